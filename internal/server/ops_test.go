package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getJSON(t *testing.T, handler http.Handler, path string) (int, map[string]string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	body := map[string]string{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealthAlwaysOK(t *testing.T) {
	s := newTestServer(t, &stubBackend{})
	handler := s.streamableHandler()

	code, body := getJSON(t, handler, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "sourcegraph-mcp", body["service"])

	// Liveness ignores shutdown state.
	s.draining.Store(true)
	code, _ = getJSON(t, handler, "/health")
	assert.Equal(t, http.StatusOK, code)
}

func TestReady(t *testing.T) {
	s := newTestServer(t, &stubBackend{})

	code, body := getJSON(t, s.sseHandler(), "/ready")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", body["status"])
}

func TestReady_MissingDependencies(t *testing.T) {
	t.Run("no search client", func(t *testing.T) {
		s := newTestServer(t, &stubBackend{}, WithSearchClient(nil))

		code, body := getJSON(t, s.streamableHandler(), "/ready")
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "not_ready", body["status"])
		assert.Contains(t, body["reason"], "search client")
	})

	t.Run("no content fetcher", func(t *testing.T) {
		s := newTestServer(t, &stubBackend{}, WithContentFetcher(nil))

		code, body := getJSON(t, s.streamableHandler(), "/ready")
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Contains(t, body["reason"], "content fetcher")
	})
}

func TestMetricsExposed(t *testing.T) {
	s := newTestServer(t, &stubBackend{})
	callTool(t, s, toolSearch, map[string]any{"query": "q"})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.streamableHandler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sourcegraph_mcp_tool_calls_total")
}
