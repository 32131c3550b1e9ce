// Package tika provides Apache Tika integration for text extraction.
//
// It turns uploaded PDF and DOCX job descriptions into plain text.
package tika

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
	"github.com/fairyhunter13/ai-jd-matcher/pkg/textx"
)

const defaultBaseURL = "http://localhost:9998"

// Client is a minimal Apache Tika HTTP client implementing domain.TextExtractor.
// It performs PUT /tika with Accept: text/plain to retrieve extracted text.
// See: https://tika.apache.org/server/ for API details.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retries    uint64
}

// New constructs a Tika client with a default timeout.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		retries:    2,
	}
}

// ExtractBytes uploads a document and returns its text with one trimmed,
// non-empty line per source line.
func (c *Client) ExtractBytes(ctx context.Context, fileName string, data []byte) (string, error) {
	ctx, span := otel.Tracer("tika").Start(ctx, "tika.ExtractBytes")
	defer span.End()

	if len(data) == 0 {
		return "", fmt.Errorf("op=tika.ExtractBytes: %w: empty document", domain.ErrInvalidArgument)
	}

	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/tika", bytes.NewReader(data))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "text/plain")
		if ct := contentTypeFromExt(filepath.Ext(fileName)); ct != "" {
			req.Header.Set("Content-Type", ct)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		switch {
		case resp.StatusCode == http.StatusUnsupportedMediaType || resp.StatusCode == http.StatusUnprocessableEntity:
			return backoff.Permanent(fmt.Errorf("%w: tika cannot parse %s (status %d)", domain.ErrInvalidArgument, fileName, resp.StatusCode))
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return backoff.Permanent(fmt.Errorf("tika status %d", resp.StatusCode))
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return fmt.Errorf("tika status %d", resp.StatusCode)
		}
		body, err = io.ReadAll(resp.Body)
		return err
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 200 * time.Millisecond
	bo := backoff.WithContext(backoff.WithMaxRetries(expo, c.retries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		span.RecordError(err)
		slog.Warn("tika extraction failed", slog.String("file", fileName), slog.Any("error", err))
		return "", fmt.Errorf("op=tika.ExtractBytes: %w", err)
	}
	return normalizeLines(string(body)), nil
}

// Ping checks GET /version for readiness.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/version", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("tika status %d", resp.StatusCode)
	}
	return nil
}

func normalizeLines(s string) string {
	s = textx.SanitizeText(s)
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if l := textx.CollapseWhitespace(line); l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}

func contentTypeFromExt(ext string) string {
	ext = strings.ToLower(ext)
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain"
	default:
		if ext != "" && ext != "." {
			return mime.TypeByExtension(ext)
		}
	}
	return ""
}
