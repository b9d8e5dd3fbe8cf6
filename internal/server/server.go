// Package server wires the MCP tool registry, the two HTTP transports,
// and the operational endpoints into one orchestrator with a graceful
// shutdown contract: a termination signal marks the server as draining,
// in-flight requests finish, and new tool invocations short-circuit to
// their fallback values.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/divar-ir/sourcegraph-mcp/internal/config"
	"github.com/divar-ir/sourcegraph-mcp/internal/prompts"
	"github.com/divar-ir/sourcegraph-mcp/internal/sourcegraph"
)

const (
	serviceName = "sourcegraph-mcp"

	// streamablePath is the fixed endpoint of the streamable HTTP transport.
	streamablePath = "/sourcegraph/mcp"

	// drainTimeout bounds how long in-flight requests may take to finish
	// once a termination signal arrives.
	drainTimeout = 10 * time.Second
)

// Version is set at build time via ldflags.
var Version = "dev"

// ErrShuttingDown is produced by raw tool handlers that observe the drain
// flag after dispatch; the safe-call adapter converts it to the tool's
// shutdown fallback value.
var ErrShuttingDown = errors.New("server is shutting down")

// SearchClient is the backend search capability consumed by the search tool.
type SearchClient interface {
	Search(ctx context.Context, query string, limit int) ([]sourcegraph.RawResult, error)
}

// ContentFetcher is the backend file-read capability consumed by fetch_content.
type ContentFetcher interface {
	FetchContent(ctx context.Context, repo, path string) (string, error)
}

// SearchCache is an optional read-through cache for formatted search results.
type SearchCache interface {
	Get(ctx context.Context, query string, limit int) ([]sourcegraph.FormattedResult, error)
	Set(ctx context.Context, query string, limit int, results []sourcegraph.FormattedResult) error
}

// Server owns the shutdown state, the tool registry, and both transport
// listeners.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	search  SearchClient
	content ContentFetcher
	cache   SearchCache

	mcp      *mcpserver.MCPServer
	registry *prometheus.Registry
	metrics  *metrics

	// draining transitions false->true exactly once, written only by Run
	// on signal delivery and read by every tool entry point.
	draining atomic.Bool

	// registered maps tool names to their wrapped handlers; it doubles as
	// the duplicate-registration guard and as a direct invocation path for
	// tests.
	registered map[string]mcpserver.ToolHandlerFunc

	codesearchGuide string
	orgGuide        string
}

type Option func(*Server)

// WithSearchClient overrides the backend search client.
func WithSearchClient(c SearchClient) Option {
	return func(s *Server) { s.search = c }
}

// WithContentFetcher overrides the backend content fetcher.
func WithContentFetcher(c ContentFetcher) Option {
	return func(s *Server) { s.content = c }
}

// WithCache sets the search response cache. Nil disables caching.
func WithCache(c SearchCache) Option {
	return func(s *Server) { s.cache = c }
}

// New constructs the orchestrator: it binds the backend clients, loads the
// guide and tool description texts, and registers tools and operational
// routes. A registration or prompt-loading failure aborts startup.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	backend := sourcegraph.NewClient(cfg.Endpoint, cfg.AccessToken)

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		search:     backend,
		content:    backend,
		registry:   prometheus.NewRegistry(),
		registered: map[string]mcpserver.ToolHandlerFunc{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = newMetrics(s.registry)

	pm, err := prompts.NewManager()
	if err != nil {
		return nil, err
	}
	if s.codesearchGuide, err = pm.Load("guides.codesearch_guide"); err != nil {
		return nil, err
	}
	// The organization guide is optional and defaults to empty text.
	s.orgGuide = pm.LoadOptional("guides.org_guide")

	s.mcp = mcpserver.NewMCPServer(serviceName, Version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	)

	if err := s.registerTools(pm); err != nil {
		return nil, err
	}
	return s, nil
}

// registerTool records the descriptor and fails fast on a name collision.
func (s *Server) registerTool(tool mcp.Tool, handler mcpserver.ToolHandlerFunc) error {
	if _, dup := s.registered[tool.Name]; dup {
		return fmt.Errorf("tool %q already registered", tool.Name)
	}
	s.registered[tool.Name] = handler
	s.mcp.AddTool(tool, handler)
	return nil
}

// streamableHandler builds the router for the streamable HTTP listener:
// the MCP endpoint at its fixed path, plus health, readiness and metrics.
func (s *Server) streamableHandler() http.Handler {
	streamable := mcpserver.NewStreamableHTTPServer(s.mcp,
		mcpserver.WithEndpointPath(streamablePath),
		mcpserver.WithStateLess(true),
	)

	r := chi.NewRouter()
	r.Handle(streamablePath, streamable)
	s.mountOps(r)
	r.Handle("/metrics", s.metricsHandler())
	return r
}

// sseHandler builds the router for the SSE listener.
func (s *Server) sseHandler() http.Handler {
	sse := mcpserver.NewSSEServer(s.mcp,
		mcpserver.WithSSEEndpoint("/sse"),
		mcpserver.WithMessageEndpoint("/message"),
	)

	r := chi.NewRouter()
	r.Handle("/sse", sse.SSEHandler())
	r.Handle("/message", sse.MessageHandler())
	s.mountOps(r)
	return r
}

// Run starts both transport listeners concurrently and blocks until a
// listener fails or ctx is cancelled by a termination signal. On signal it
// sets the drain flag, lets in-flight requests finish, and shuts both
// listeners down. A listener failure is returned to the caller; a
// signal-initiated stop returns nil.
func (s *Server) Run(ctx context.Context) error {
	streamableSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.StreamableHTTPPort),
		Handler: s.streamableHandler(),
	}
	sseSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.SSEPort),
		Handler: s.sseHandler(),
	}

	// Channel to listen for errors coming from the listeners.
	serverErrors := make(chan error, 2)

	go func() {
		s.logger.Info("starting streamable HTTP transport", "addr", streamableSrv.Addr, "path", streamablePath)
		serverErrors <- streamableSrv.ListenAndServe()
	}()
	go func() {
		s.logger.Info("starting SSE transport", "addr", sseSrv.Addr)
		serverErrors <- sseSrv.ListenAndServe()
	}()

	servers := []*http.Server{streamableSrv, sseSrv}

	select {
	case err := <-serverErrors:
		// A listener failed on its own (bind error, protocol fault).
		// There is no degraded mode without a listener: stop the other
		// one and surface the failure to the process boundary.
		s.logger.Error("transport listener failed", "error", err)
		s.draining.Store(true)
		s.closeAll(servers)
		<-serverErrors
		return err

	case <-ctx.Done():
		s.logger.Info("received shutdown signal, draining")
		s.draining.Store(true)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()

		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				s.logger.Warn("graceful shutdown did not complete", "error", err)
				_ = srv.Close()
			}
		}
		for range servers {
			if err := <-serverErrors; err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("transport listener failed during drain", "error", err)
			}
		}
		s.logger.Info("server has shut down")
		return nil
	}
}

func (s *Server) closeAll(servers []*http.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
		}
	}
}
