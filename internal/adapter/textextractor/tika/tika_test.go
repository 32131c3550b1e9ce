package tika

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
)

func TestExtractBytes_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/tika", r.URL.Path)
		assert.Equal(t, "text/plain", r.Header.Get("Accept"))
		assert.Equal(t, "application/pdf", r.Header.Get("Content-Type"))
		b, _ := io.ReadAll(r.Body)
		assert.Equal(t, "%PDF-1.4", string(b))
		_, _ = w.Write([]byte("\n  Senior   SRE \x00\n\n\tKubernetes, AWS  \n"))
	}))
	defer ts.Close()

	out, err := New(ts.URL).ExtractBytes(context.Background(), "jd.PDF", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "Senior SRE\nKubernetes, AWS", out)
}

func TestExtractBytes_RetriesServerErrors(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer ts.Close()

	out, err := New(ts.URL).ExtractBytes(context.Background(), "jd.docx", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestExtractBytes_UnparseableIsInvalidArgument(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer ts.Close()

	_, err := New(ts.URL).ExtractBytes(context.Background(), "jd.pdf", []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestExtractBytes_EmptyDocument(t *testing.T) {
	_, err := New("").ExtractBytes(context.Background(), "jd.pdf", nil)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestPing(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/version" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("Apache Tika 2.9"))
	}))
	defer ts.Close()
	require.NoError(t, New(ts.URL+"/").Ping(context.Background()))
}

func TestNew_Defaults(t *testing.T) {
	c := New("")
	assert.Equal(t, defaultBaseURL, c.baseURL)
	require.NotNil(t, c.httpClient)
}

func TestContentTypeFromExt(t *testing.T) {
	tests := []struct {
		ext, expected string
	}{
		{".pdf", "application/pdf"},
		{".DOCX", "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
		{".txt", "text/plain"},
		{"", ""},
		{".", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, contentTypeFromExt(tt.ext), tt.ext)
	}
}
