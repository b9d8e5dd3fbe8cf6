package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/divar-ir/sourcegraph-mcp/internal/config"
	"github.com/divar-ir/sourcegraph-mcp/internal/logging"
	"github.com/divar-ir/sourcegraph-mcp/internal/sourcegraph"
)

// stubBackend implements SearchClient and ContentFetcher with canned
// behavior, counting dispatched calls.
type stubBackend struct {
	searchCalls int
	fetchCalls  int

	searchResults []sourcegraph.RawResult
	searchErr     error
	lastLimit     int

	content  string
	fetchErr error
}

func (b *stubBackend) Search(_ context.Context, _ string, limit int) ([]sourcegraph.RawResult, error) {
	b.searchCalls++
	b.lastLimit = limit
	return b.searchResults, b.searchErr
}

func (b *stubBackend) FetchContent(_ context.Context, _, _ string) (string, error) {
	b.fetchCalls++
	return b.content, b.fetchErr
}

func testConfig() *config.Config {
	return &config.Config{
		SSEPort:            8000,
		StreamableHTTPPort: 8080,
		Endpoint:           "https://example.test",
	}
}

func newTestServer(t *testing.T, backend *stubBackend, opts ...Option) *Server {
	t.Helper()
	opts = append([]Option{WithSearchClient(backend), WithContentFetcher(backend)}, opts...)
	s, err := New(testConfig(), logging.NewNop(), opts...)
	require.NoError(t, err)
	return s
}

func toolRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func callTool(t *testing.T, s *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	handler, ok := s.registered[name]
	require.True(t, ok, "tool %s not registered", name)

	res, err := handler(context.Background(), toolRequest(name, args))
	require.NoError(t, err, "tool handlers must never return an error")
	require.NotNil(t, res)
	return res
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return text.Text
}

func resultResults(t *testing.T, res *mcp.CallToolResult) []sourcegraph.FormattedResult {
	t.Helper()
	var results []sourcegraph.FormattedResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &results))
	return results
}

func rawMatch(repo, path string, line int) sourcegraph.RawResult {
	r := sourcegraph.RawResult{
		TypeName:    "FileMatch",
		LineMatches: []sourcegraph.LineMatch{{Preview: "match", LineNumber: line}},
	}
	r.Repository.Name = repo
	r.File.Path = path
	return r
}

func TestShutdownFallbacks(t *testing.T) {
	backend := &stubBackend{}
	s := newTestServer(t, backend)
	s.draining.Store(true)

	res := callTool(t, s, toolSearch, map[string]any{"query": "foo"})
	assert.Empty(t, resultResults(t, res))

	res = callTool(t, s, toolFetchContent, map[string]any{"repo": "r", "path": "p"})
	assert.Empty(t, resultText(t, res))

	res = callTool(t, s, toolSearchPromptGuide, map[string]any{"objective": "x"})
	assert.Equal(t, "Server is shutting down", resultText(t, res))

	// No backend call may be dispatched once the flag is observed.
	assert.Zero(t, backend.searchCalls)
	assert.Zero(t, backend.fetchCalls)
}

// The raw handlers re-check the drain flag themselves, so a flag set after
// the adapter's pre-check but before backend dispatch still refuses work.
func TestRawHandlers_RecheckDrainFlag(t *testing.T) {
	backend := &stubBackend{}
	s := newTestServer(t, backend)
	s.draining.Store(true)
	ctx := context.Background()

	_, err := s.rawSearch(ctx, toolRequest(toolSearch, map[string]any{"query": "q"}))
	require.ErrorIs(t, err, ErrShuttingDown)

	_, err = s.rawFetchContent(ctx, toolRequest(toolFetchContent, map[string]any{"repo": "r", "path": "p"}))
	require.ErrorIs(t, err, ErrShuttingDown)

	_, err = s.rawSearchPromptGuide(ctx, toolRequest(toolSearchPromptGuide, map[string]any{"objective": "x"}))
	require.ErrorIs(t, err, ErrShuttingDown)

	assert.Zero(t, backend.searchCalls)
	assert.Zero(t, backend.fetchCalls)
}

// A raw handler reporting ErrShuttingDown mid-call maps to the shutdown
// fallback, not the error fallback, even though the adapter's own pre-check
// saw a non-draining server.
func TestSafeCall_ShutdownDuringCall(t *testing.T) {
	s := newTestServer(t, &stubBackend{})

	guideHandler := safeCall(s, toolSearchPromptGuide,
		shutdownGuideMessage,
		s.guideFallback,
		encodeText,
		func(context.Context, mcp.CallToolRequest) (string, error) {
			return "", ErrShuttingDown
		},
	)
	res, err := guideHandler(context.Background(), toolRequest(toolSearchPromptGuide, map[string]any{"objective": "x"}))
	require.NoError(t, err)
	assert.Equal(t, "Server is shutting down", resultText(t, res))

	searchHandler := safeCall(s, toolSearch,
		[]sourcegraph.FormattedResult{},
		s.searchFallback,
		encodeResults,
		func(context.Context, mcp.CallToolRequest) ([]sourcegraph.FormattedResult, error) {
			return nil, ErrShuttingDown
		},
	)
	res, err = searchHandler(context.Background(), toolRequest(toolSearch, map[string]any{"query": "q"}))
	require.NoError(t, err)
	assert.Empty(t, resultResults(t, res))
}

func TestSearch_LimitClamping(t *testing.T) {
	cases := map[string]struct {
		args map[string]any
		want int
	}{
		"default when absent": {map[string]any{"query": "q"}, 30},
		"zero clamps to one":  {map[string]any{"query": "q", "limit": 0}, 1},
		"above max clamps":    {map[string]any{"query": "q", "limit": 500}, 100},
		"json number":         {map[string]any{"query": "q", "limit": float64(7)}, 7},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			backend := &stubBackend{}
			s := newTestServer(t, backend)

			callTool(t, s, toolSearch, tc.args)
			require.Equal(t, 1, backend.searchCalls)
			assert.Equal(t, tc.want, backend.lastLimit)
		})
	}
}

func TestSearch_EmptyQueryRejected(t *testing.T) {
	backend := &stubBackend{}
	s := newTestServer(t, backend)

	res := callTool(t, s, toolSearch, map[string]any{"query": "   "})
	assert.Empty(t, resultResults(t, res))
	assert.Zero(t, backend.searchCalls)
}

func TestSearch_BackendFailureIsolation(t *testing.T) {
	backend := &stubBackend{searchErr: fmt.Errorf("sourcegraph returned 502")}
	s := newTestServer(t, backend)

	res := callTool(t, s, toolSearch, map[string]any{"query": "foo"})
	assert.Empty(t, resultResults(t, res))

	// A subsequent unrelated call in the same process still succeeds.
	backend.searchErr = nil
	backend.searchResults = []sourcegraph.RawResult{rawMatch("r1", "a.go", 1)}
	res = callTool(t, s, toolSearch, map[string]any{"query": "bar"})
	assert.Len(t, resultResults(t, res), 1)
}

func TestSearch_EndToEndOrdering(t *testing.T) {
	backend := &stubBackend{searchResults: []sourcegraph.RawResult{
		rawMatch("r1", "a.go", 1),
		rawMatch("r2", "b.go", 2),
		rawMatch("r3", "c.go", 3),
	}}
	s := newTestServer(t, backend)

	got := resultResults(t, callTool(t, s, toolSearch, map[string]any{"query": "foo", "limit": 30}))
	require.Len(t, got, 3)
	assert.Equal(t, "r1", got[0].Repository)
	assert.Equal(t, "r2", got[1].Repository)
	assert.Equal(t, "r3", got[2].Repository)
}

func TestFetchContent(t *testing.T) {
	backend := &stubBackend{content: "package main\n"}
	s := newTestServer(t, backend)

	res := callTool(t, s, toolFetchContent, map[string]any{"repo": "r", "path": "main.go"})
	assert.Equal(t, "package main\n", resultText(t, res))
}

func TestFetchContent_ErrorMessages(t *testing.T) {
	t.Run("invalid argument", func(t *testing.T) {
		backend := &stubBackend{fetchErr: fmt.Errorf("r/p: %w", sourcegraph.ErrInvalidArgument)}
		s := newTestServer(t, backend)

		res := callTool(t, s, toolFetchContent, map[string]any{"repo": "r", "path": "p"})
		assert.Equal(t, "invalid arguments the given path or repository does not exist", resultText(t, res))
	})

	t.Run("opaque failure", func(t *testing.T) {
		backend := &stubBackend{fetchErr: errors.New("connection reset")}
		s := newTestServer(t, backend)

		res := callTool(t, s, toolFetchContent, map[string]any{"repo": "r", "path": "p"})
		assert.Equal(t, fetchErrorMessage, resultText(t, res))
	})
}

func TestSearchPromptGuide(t *testing.T) {
	s := newTestServer(t, &stubBackend{})
	s.orgGuide = ""

	text := resultText(t, callTool(t, s, toolSearchPromptGuide, map[string]any{"objective": "refactor auth"}))
	assert.Contains(t, text, "Given this guide create a Sourcegraph query for refactor auth")
	assert.True(t, len(text) > len(s.codesearchGuide))
}

func TestSearchPromptGuide_OrgPreamble(t *testing.T) {
	s := newTestServer(t, &stubBackend{})
	s.orgGuide = "Always search the monorepo first."

	text := resultText(t, callTool(t, s, toolSearchPromptGuide, map[string]any{"objective": "x"}))
	require.True(t, strings.HasPrefix(text, "Always search the monorepo first.\n\n"))
	assert.Contains(t, text, s.codesearchGuide)
}

func TestSearchPromptGuide_Idempotent(t *testing.T) {
	s := newTestServer(t, &stubBackend{})

	first := resultText(t, callTool(t, s, toolSearchPromptGuide, map[string]any{"objective": "find dead code"}))
	second := resultText(t, callTool(t, s, toolSearchPromptGuide, map[string]any{"objective": "find dead code"}))
	assert.Equal(t, first, second)
}
