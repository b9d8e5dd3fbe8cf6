package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/mitchellh/mapstructure"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/divar-ir/sourcegraph-mcp/internal/cache"
	"github.com/divar-ir/sourcegraph-mcp/internal/prompts"
	"github.com/divar-ir/sourcegraph-mcp/internal/sourcegraph"
)

const (
	toolSearch            = "search"
	toolFetchContent      = "fetch_content"
	toolSearchPromptGuide = "search_prompt_guide"

	defaultSearchLimit = 30
	maxSearchLimit     = 100

	invalidArgumentMessage = "invalid arguments the given path or repository does not exist"
	fetchErrorMessage      = "error fetching content"
	shutdownGuideMessage   = "Server is shutting down"
	guideErrorMessage      = "Error generating search guide"
)

// registerTools binds the three tools, with descriptions resolved from the
// prompts document. Missing descriptions abort startup.
func (s *Server) registerTools(pm *prompts.Manager) error {
	searchDesc, err := pm.Load("tools.search")
	if err != nil {
		return err
	}
	fetchDesc, err := pm.Load("tools.fetch_content")
	if err != nil {
		return err
	}
	guideDesc, err := pm.Load("tools.search_prompt_guide")
	if err != nil {
		return err
	}

	searchTool := mcp.NewTool(toolSearch,
		mcp.WithDescription(searchDesc),
		mcp.WithString("query", mcp.Required(), mcp.Description("Sourcegraph query string")),
		mcp.WithNumber("limit", mcp.DefaultNumber(defaultSearchLimit),
			mcp.Description("Maximum number of results (1-100)")),
	)
	if err := s.registerTool(searchTool, safeCall(s, toolSearch,
		[]sourcegraph.FormattedResult{},
		s.searchFallback,
		encodeResults,
		s.rawSearch,
	)); err != nil {
		return err
	}

	fetchTool := mcp.NewTool(toolFetchContent,
		mcp.WithDescription(fetchDesc),
		mcp.WithString("repo", mcp.Required(), mcp.Description("Repository name, e.g. github.com/acme/billing")),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path within the repository")),
	)
	if err := s.registerTool(fetchTool, safeCall(s, toolFetchContent,
		"",
		s.fetchFallback,
		encodeText,
		s.rawFetchContent,
	)); err != nil {
		return err
	}

	guideTool := mcp.NewTool(toolSearchPromptGuide,
		mcp.WithDescription(guideDesc),
		mcp.WithString("objective", mcp.Required(), mcp.Description("What you are trying to find or accomplish")),
	)
	return s.registerTool(guideTool, safeCall(s, toolSearchPromptGuide,
		shutdownGuideMessage,
		s.guideFallback,
		encodeText,
		s.rawSearchPromptGuide,
	))
}

// safeCall wraps a raw handler so a tool invocation is total: a drained
// server short-circuits to the shutdown fallback without dispatching, and
// every failure degrades to a value of the tool's declared result type.
// Nothing propagates past this boundary.
func safeCall[T any](
	s *Server,
	tool string,
	shutdownFallback T,
	errFallback func(error) T,
	encode func(T) *mcp.CallToolResult,
	raw func(ctx context.Context, req mcp.CallToolRequest) (T, error),
) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if s.draining.Load() {
			s.logger.Info("shutdown in progress, declining new requests", "tool", tool)
			s.metrics.toolCalls.WithLabelValues(tool, "shutdown").Inc()
			return encode(shutdownFallback), nil
		}

		out, err := raw(ctx, req)
		switch {
		case err == nil:
			s.metrics.toolCalls.WithLabelValues(tool, "ok").Inc()
			return encode(out), nil
		case errors.Is(err, ErrShuttingDown):
			// Shutdown began while the call was in flight.
			s.logger.Info("shutdown in progress, declining new requests", "tool", tool)
			s.metrics.toolCalls.WithLabelValues(tool, "shutdown").Inc()
			return encode(shutdownFallback), nil
		default:
			s.metrics.toolCalls.WithLabelValues(tool, "error").Inc()
			return encode(errFallback(err)), nil
		}
	}
}

// decodeArgs binds the request argument map onto a typed struct.
func decodeArgs(req mcp.CallToolRequest, out any) error {
	if err := mapstructure.Decode(req.GetArguments(), out); err != nil {
		return fmt.Errorf("invalid tool arguments: %w", err)
	}
	return nil
}

func encodeText(text string) *mcp.CallToolResult {
	return mcp.NewToolResultText(text)
}

func encodeResults(results []sourcegraph.FormattedResult) *mcp.CallToolResult {
	if results == nil {
		results = []sourcegraph.FormattedResult{}
	}
	data, err := json.Marshal(results)
	if err != nil {
		return mcp.NewToolResultText("[]")
	}
	return mcp.NewToolResultText(string(data))
}

// dispatch runs a backend call in its own goroutine and joins the result,
// so a slow backend call never stalls the request-accepting path and the
// call is abandoned when the client disconnects.
func dispatch[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type outcome struct {
		val T
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		val, err := fn(ctx)
		ch <- outcome{val: val, err: err}
	}()

	select {
	case out := <-ch:
		return out.val, out.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

type searchArgs struct {
	Query string `mapstructure:"query"`
	Limit *int   `mapstructure:"limit"`
}

// clampLimit applies the default and bounds the limit to [1,100].
func clampLimit(limit *int) int {
	if limit == nil {
		return defaultSearchLimit
	}
	if *limit < 1 {
		return 1
	}
	if *limit > maxSearchLimit {
		return maxSearchLimit
	}
	return *limit
}

func (s *Server) rawSearch(ctx context.Context, req mcp.CallToolRequest) ([]sourcegraph.FormattedResult, error) {
	var args searchArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.Query) == "" {
		return nil, errors.New("query must not be empty")
	}
	limit := clampLimit(args.Limit)

	// Re-check the drain flag: it must be observed before any backend
	// dispatch within this invocation.
	if s.draining.Load() {
		return nil, ErrShuttingDown
	}

	if s.cache != nil {
		hit, err := s.cache.Get(ctx, args.Query, limit)
		if err == nil {
			s.logger.Debug("search cache hit", "query", args.Query)
			return hit, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("search cache lookup failed", "error", err)
		}
	}

	raw, err := dispatch(ctx, func(ctx context.Context) ([]sourcegraph.RawResult, error) {
		timer := prometheus.NewTimer(s.metrics.backendDuration.WithLabelValues("search"))
		defer timer.ObserveDuration()
		return s.search.Search(ctx, args.Query, limit)
	})
	if err != nil {
		return nil, err
	}

	formatted := sourcegraph.FormatResults(raw, limit)
	if s.cache != nil {
		if err := s.cache.Set(ctx, args.Query, limit, formatted); err != nil {
			s.logger.Warn("search cache store failed", "error", err)
		}
	}
	return formatted, nil
}

// searchFallback degrades every search failure to an empty result list;
// the distinction between failure kinds matters only for logging detail.
func (s *Server) searchFallback(err error) []sourcegraph.FormattedResult {
	s.logger.Error("search failed", "error", err)
	return []sourcegraph.FormattedResult{}
}

type fetchArgs struct {
	Repo string `mapstructure:"repo"`
	Path string `mapstructure:"path"`
}

func (s *Server) rawFetchContent(ctx context.Context, req mcp.CallToolRequest) (string, error) {
	var args fetchArgs
	if err := decodeArgs(req, &args); err != nil {
		return "", err
	}

	if s.draining.Load() {
		return "", ErrShuttingDown
	}

	return dispatch(ctx, func(ctx context.Context) (string, error) {
		timer := prometheus.NewTimer(s.metrics.backendDuration.WithLabelValues("fetch_content"))
		defer timer.ObserveDuration()
		return s.content.FetchContent(ctx, args.Repo, args.Path)
	})
}

// fetchFallback degrades fetch failures to a human-readable string:
// a bad repo/path gets a distinct message from an opaque backend failure.
func (s *Server) fetchFallback(err error) string {
	if errors.Is(err, sourcegraph.ErrInvalidArgument) {
		s.logger.Warn("content fetch rejected", "error", err)
		return invalidArgumentMessage
	}
	s.logger.Error("content fetch failed", "error", err)
	return fetchErrorMessage
}

type guideArgs struct {
	Objective string `mapstructure:"objective"`
}

// rawSearchPromptGuide composes the guide text in memory; it performs no
// backend call and is deliberately free of hidden mutable state so equal
// inputs produce byte-identical output.
func (s *Server) rawSearchPromptGuide(_ context.Context, req mcp.CallToolRequest) (string, error) {
	var args guideArgs
	if err := decodeArgs(req, &args); err != nil {
		return "", err
	}

	if s.draining.Load() {
		return "", ErrShuttingDown
	}

	var b strings.Builder
	if s.orgGuide != "" {
		b.WriteString(s.orgGuide)
		b.WriteString("\n\n")
	}
	b.WriteString(s.codesearchGuide)
	b.WriteString("\nGiven this guide create a Sourcegraph query for ")
	b.WriteString(args.Objective)
	b.WriteString(" and call the search tool accordingly.")
	return b.String(), nil
}

func (s *Server) guideFallback(err error) string {
	s.logger.Error("prompt guide generation failed", "error", err)
	return guideErrorMessage
}
