// Package mcp exposes walkthrough navigation as MCP tools, so an assistant
// can drive a tour over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nextlevelbuilder/walkthrough/internal/gateway"
	"github.com/nextlevelbuilder/walkthrough/pkg/walkthrough"
)

// Tool names.
const (
	ToolStatus = "walkthrough_status"
	ToolStart  = "walkthrough_start"
	ToolNext   = "walkthrough_next"
	ToolBack   = "walkthrough_back"
	ToolSkip   = "walkthrough_skip"
	ToolFinish = "walkthrough_finish"
	ToolGoTo   = "walkthrough_goto"
)

// Server registers the walkthrough tools on an MCP server.
type Server struct {
	mcp         *server.MCPServer
	target      gateway.Target
	logger      *slog.Logger
	nextTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithNextTimeout bounds walkthrough_next (hooks and gate).
func WithNextTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.nextTimeout = d
		}
	}
}

// NewServer creates the MCP server for target.
func NewServer(target gateway.Target, version string, opts ...Option) *Server {
	s := &Server{
		mcp:         server.NewMCPServer("walkthrough", version, server.WithToolCapabilities(false)),
		target:      target,
		logger:      slog.Default(),
		nextTimeout: 30 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	s.register()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// ServeStdio serves JSON-RPC over in/out until ctx is done or in closes.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn))
	err := stdio.Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) register() {
	s.mcp.AddTool(mcpgo.NewTool(ToolStatus,
		mcpgo.WithDescription("Report the walkthrough state: whether it is running, the current step index, the step count and the current step's target and content."),
		mcpgo.WithReadOnlyHintAnnotation(true),
	), s.handleStatus)

	s.mcp.AddTool(mcpgo.NewTool(ToolStart,
		mcpgo.WithDescription("Start the walkthrough at the first step."),
	), s.simple(func(ctx context.Context, ws *walkthrough.Session) { ws.Start(ctx) }))

	s.mcp.AddTool(mcpgo.NewTool(ToolNext,
		mcpgo.WithDescription("Advance to the next step, or finish on the last one. Fails when the step's condition is not met yet."),
	), s.handleNext)

	s.mcp.AddTool(mcpgo.NewTool(ToolBack,
		mcpgo.WithDescription("Go back one step. Does nothing on the first step."),
	), s.simple(func(ctx context.Context, ws *walkthrough.Session) { ws.Back(ctx) }))

	s.mcp.AddTool(mcpgo.NewTool(ToolSkip,
		mcpgo.WithDescription("Stop the walkthrough, keeping the current step."),
	), s.simple(func(ctx context.Context, ws *walkthrough.Session) { ws.Skip(ctx) }))

	s.mcp.AddTool(mcpgo.NewTool(ToolFinish,
		mcpgo.WithDescription("Stop the walkthrough and reset it to the first step."),
	), s.simple(func(ctx context.Context, ws *walkthrough.Session) { ws.Finish(ctx) }))

	s.mcp.AddTool(mcpgo.NewTool(ToolGoTo,
		mcpgo.WithDescription("Jump to a step by zero-based index and start the walkthrough there. Out-of-range indexes are ignored."),
		mcpgo.WithNumber("index", mcpgo.Required(), mcpgo.Description("Zero-based step index")),
	), s.handleGoTo)
}

func (s *Server) session() (*walkthrough.Session, string, *mcpgo.CallToolResult) {
	ws, name := s.target.Current()
	if ws == nil {
		return nil, "", mcpgo.NewToolResultError("no walkthrough loaded")
	}
	return ws, name, nil
}

func (s *Server) handleStatus(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	ws, name, errResult := s.session()
	if errResult != nil {
		return errResult, nil
	}
	return stateResult(ws, name)
}

func (s *Server) simple(op func(ctx context.Context, ws *walkthrough.Session)) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		ws, name, errResult := s.session()
		if errResult != nil {
			return errResult, nil
		}
		op(walkthrough.NewContext(ctx, ws), ws)
		return stateResult(ws, name)
	}
}

func (s *Server) handleNext(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	ws, name, errResult := s.session()
	if errResult != nil {
		return errResult, nil
	}
	ctx, cancel := context.WithTimeout(walkthrough.NewContext(ctx, ws), s.nextTimeout)
	defer cancel()
	if err := ws.Next(ctx); err != nil {
		s.logger.Debug("mcp: next rejected", "error", err)
		return mcpgo.NewToolResultError(nextMessage(err)), nil
	}
	return stateResult(ws, name)
}

func (s *Server) handleGoTo(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	ws, name, errResult := s.session()
	if errResult != nil {
		return errResult, nil
	}
	index, err := req.RequireInt("index")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	if index < 0 || index >= ws.Total() {
		return mcpgo.NewToolResultError(fmt.Sprintf("index %d out of range [0, %d)", index, ws.Total())), nil
	}
	ws.GoToStep(walkthrough.NewContext(ctx, ws), index)
	return stateResult(ws, name)
}

func stateResult(ws *walkthrough.Session, name string) (*mcpgo.CallToolResult, error) {
	data, err := json.MarshalIndent(gateway.StateOf(ws, name, nil), "", "  ")
	if err != nil {
		return nil, err
	}
	return mcpgo.NewToolResultText(string(data)), nil
}

// nextMessage explains a Next failure to the assistant.
func nextMessage(err error) string {
	var gate *walkthrough.GateRejectedError
	switch {
	case errors.As(err, &gate):
		return "step condition not met: " + gate.Message
	case errors.Is(err, walkthrough.ErrNotActive):
		return "walkthrough is not running; call " + ToolStart + " first"
	case errors.Is(err, walkthrough.ErrNavigationBusy):
		return "another next is still running; retry shortly"
	default:
		return err.Error()
	}
}
