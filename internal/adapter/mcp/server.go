// Package mcp exposes the sandbox's authoring surface over the Model
// Context Protocol, so AI agents can inspect, register and test
// policies under the same validation the REST API applies.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/RuleForge/internal/domain/policy"
	"github.com/Strob0t/RuleForge/internal/domain/trigger"
	"github.com/Strob0t/RuleForge/internal/service"
)

// PolicyReader loads stored policies.
type PolicyReader interface {
	List(ctx context.Context) ([]policy.Policy, error)
	Get(ctx context.Context, id string) (*policy.Policy, error)
}

// PolicyRegistrar registers new policies through the validating
// service, never directly against the store.
type PolicyRegistrar interface {
	Create(ctx context.Context, req policy.CreateRequest) (*policy.Policy, error)
}

// PolicyTester runs the authoring pipeline against a sample event.
type PolicyTester interface {
	TestPolicy(ctx context.Context, p *policy.Policy, sample trigger.Event, dryRun bool) (*service.TestReport, error)
}

// StatsReader reports execution statistics for one policy or globally.
type StatsReader interface {
	Stats(ctx context.Context, subject string) (*service.SubjectStats, error)
}

// ServerDeps holds the service dependencies the MCP tools call. A nil
// field turns the corresponding tools into error results instead of
// panics.
type ServerDeps struct {
	PolicyReader    PolicyReader
	PolicyRegistrar PolicyRegistrar
	PolicyTester    PolicyTester
	StatsReader     StatsReader
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Addr    string // listen address; empty disables Start
	Name    string
	Version string
	APIKey  string // bearer token required by clients; empty disables auth
}

// Server exposes the authoring tools and resources over MCP's
// streamable HTTP transport.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
	httpSrv   *http.Server
}

// NewServer creates the MCP server and registers all tools and
// resources.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	m := mcpserver.NewMCPServer(cfg.Name, cfg.Version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithRecovery(),
	)
	s := &Server{cfg: cfg, deps: deps, mcpServer: m}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying MCP server, mainly for tests.
func (s *Server) MCPServer() *mcpserver.MCPServer { return s.mcpServer }

// Start serves the streamable HTTP transport on the configured address
// in a background goroutine. An empty address is a no-op so deployments
// without agent access skip the listener entirely.
func (s *Server) Start() error {
	if s.cfg.Addr == "" {
		slog.Info("mcp server disabled, no listen address configured")
		return nil
	}
	handler := mcpserver.NewStreamableHTTPServer(s.mcpServer)
	s.httpSrv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           AuthMiddleware(s.cfg.APIKey, handler),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("mcp server listening", "addr", s.cfg.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server failed", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the transport down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// toolResultJSON wraps a JSON document as a text tool result.
func toolResultJSON(data string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(data)
}
