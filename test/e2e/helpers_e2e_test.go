//go:build e2e

package e2e_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// getenv returns the value of the environment variable k or def if empty.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

var baseURL = getenv("E2E_BASE_URL", "http://localhost:8080/v1")

const cloudJD = `Senior Cloud Platform Engineer
We are looking for an engineer with 5+ years of experience running Kubernetes on AWS.
Required: AWS, Kubernetes, Terraform. Nice to have: Prometheus, Go.`

// waitForAppReady polls /readyz until it answers 200 or the deadline passes.
func waitForAppReady(t *testing.T, client *http.Client, within time.Duration) {
	t.Helper()
	readyz := strings.TrimSuffix(baseURL, "/v1") + "/readyz"
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		resp, err := client.Get(readyz)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(time.Second)
	}
	t.Skip("app not ready; skipping E2E")
}

// postJSON sends body to path and decodes the response, retrying briefly on 429.
func postJSON(t *testing.T, client *http.Client, path string, body any) (int, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	var status int
	var out map[string]any
	for i := 0; i < 6; i++ {
		req, err := http.NewRequest(http.MethodPost, baseURL+path, bytes.NewReader(raw))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Submitted-By", "e2e")
		resp, err := client.Do(req)
		require.NoError(t, err)
		status, out = resp.StatusCode, decode(t, resp)
		if status != http.StatusTooManyRequests {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	return status, out
}

func getJSON(t *testing.T, client *http.Client, path string) (int, map[string]any) {
	t.Helper()
	resp, err := client.Get(baseURL + path)
	require.NoError(t, err)
	return resp.StatusCode, decode(t, resp)
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(b) > 0 {
		require.NoError(t, json.Unmarshal(b, &out), string(b))
	}
	return out
}

// errorCode extracts error.code from the error envelope.
func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

// upstreamFailure reports whether an analysis failed for reasons outside the
// engine, which constrained environments are allowed to hit.
func upstreamFailure(status int, body map[string]any) bool {
	switch errorCode(body) {
	case "UPSTREAM_TIMEOUT", "UPSTREAM_RATE_LIMIT", "CONFIGURATION", "EXTRACTION_FAILED":
		return status >= 500
	}
	return false
}
