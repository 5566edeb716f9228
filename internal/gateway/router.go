package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/walkthrough/pkg/protocol"
	"github.com/nextlevelbuilder/walkthrough/pkg/walkthrough"
)

// MethodHandler processes a single RPC method request.
type MethodHandler func(ctx context.Context, client *Client, req *protocol.RequestFrame)

// MethodRouter maps method names to handlers.
type MethodRouter struct {
	handlers map[string]MethodHandler
	server   *Server
}

func NewMethodRouter(server *Server) *MethodRouter {
	r := &MethodRouter{
		handlers: make(map[string]MethodHandler),
		server:   server,
	}
	r.registerDefaults()
	return r
}

// Register adds a method handler.
func (r *MethodRouter) Register(method string, handler MethodHandler) {
	r.handlers[method] = handler
}

// Handle dispatches a request to the appropriate handler. A handler that
// panics (a session closed under it by a tour reload) yields INTERNAL.
func (r *MethodRouter) Handle(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	handler, ok := r.handlers[req.Method]
	if !ok {
		r.server.logger.Warn("unknown method", "method", req.Method, "client", client.id)
		client.SendResponse(protocol.NewErrorResponse(
			req.ID,
			protocol.ErrInvalidRequest,
			"unknown method: "+req.Method,
		))
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.server.logger.Error("method handler panicked", "method", req.Method, "client", client.id, "panic", rec)
			client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, fmt.Sprint(rec)))
		}
	}()

	r.server.logger.Debug("handling method", "method", req.Method, "client", client.id, "req_id", req.ID)
	handler(ctx, client, req)
}

// registerDefaults registers the built-in method handlers.
func (r *MethodRouter) registerDefaults() {
	// System
	r.Register(protocol.MethodConnect, r.handleConnect)
	r.Register(protocol.MethodHealth, r.handleHealth)

	// Walkthrough
	r.Register(protocol.MethodStatus, r.handleStatus)
	r.Register(protocol.MethodStart, r.navigate(func(ctx context.Context, s *walkthrough.Session, _ json.RawMessage) error {
		s.Start(ctx)
		return nil
	}))
	r.Register(protocol.MethodBack, r.navigate(func(ctx context.Context, s *walkthrough.Session, _ json.RawMessage) error {
		s.Back(ctx)
		return nil
	}))
	r.Register(protocol.MethodSkip, r.navigate(func(ctx context.Context, s *walkthrough.Session, _ json.RawMessage) error {
		s.Skip(ctx)
		return nil
	}))
	r.Register(protocol.MethodFinish, r.navigate(func(ctx context.Context, s *walkthrough.Session, _ json.RawMessage) error {
		s.Finish(ctx)
		return nil
	}))
	r.Register(protocol.MethodGoTo, r.navigate(func(ctx context.Context, s *walkthrough.Session, raw json.RawMessage) error {
		var params protocol.GoToParams
		if len(raw) == 0 {
			return errMissingIndex
		}
		if err := json.Unmarshal(raw, &params); err != nil {
			return fmt.Errorf("%w: %v", errBadParams, err)
		}
		s.GoToStep(ctx, params.Index)
		return nil
	}))
	r.Register(protocol.MethodNext, r.handleNext)
}

var (
	errMissingIndex = errors.New("params.index is required")
	errBadParams    = errors.New("invalid params")
	errNoSession    = errors.New("no walkthrough loaded")
)

// --- Built-in handlers ---

func (r *MethodRouter) handleConnect(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	var params protocol.ConnectParams
	if req.Params != nil {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "invalid connect params: "+err.Error()))
			return
		}
	}
	if params.Protocol != 0 && params.Protocol != protocol.ProtocolVersion {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest,
			fmt.Sprintf("unsupported protocol %d (server speaks %d)", params.Protocol, protocol.ProtocolVersion)))
		return
	}

	if token := r.server.cfg.Token; token != "" && params.Token != token {
		r.server.logger.Warn("security.connect_rejected", "client", client.id)
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrUnauthorized, "invalid token"))
		return
	}

	client.name = params.Client
	client.authenticated.Store(true)
	r.server.logger.Info("gateway client connected", "client", client.id, "name", params.Client)

	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{
		"protocol": protocol.ProtocolVersion,
		"client":   client.id,
		"server": map[string]any{
			"name":    "walkthrough",
			"version": r.server.version,
		},
	}))

	// Replay the current state so the client does not wait for the next
	// transition.
	if s, name := r.server.target.Current(); s != nil {
		client.SendEvent(*protocol.NewEvent(protocol.EventState, StateOf(s, name, nil)))
	}
}

func (r *MethodRouter) handleHealth(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{
		"status":  "ok",
		"clients": r.server.Clients(),
	}))
}

func (r *MethodRouter) handleStatus(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	s, name := r.server.target.Current()
	if s == nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrNotFound, errNoSession.Error()))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, StateOf(s, name, nil)))
}

// navigate wraps a synchronous navigation op and answers with the
// resulting state.
func (r *MethodRouter) navigate(op func(ctx context.Context, s *walkthrough.Session, params json.RawMessage) error) MethodHandler {
	return func(ctx context.Context, client *Client, req *protocol.RequestFrame) {
		s, name := r.server.target.Current()
		if s == nil {
			client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrNotFound, errNoSession.Error()))
			return
		}
		if err := op(walkthrough.NewContext(ctx, s), s, req.Params); err != nil {
			client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, err.Error()))
			return
		}
		client.SendResponse(protocol.NewOKResponse(req.ID, StateOf(s, name, nil)))
	}
}

// handleNext runs Next off the read pump: its hooks and gate may block
// while the client keeps sending requests.
func (r *MethodRouter) handleNext(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	s, name := r.server.target.Current()
	if s == nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrNotFound, errNoSession.Error()))
		return
	}
	id := req.ID
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				client.SendResponse(protocol.NewErrorResponse(id, protocol.ErrInternal, fmt.Sprint(rec)))
			}
		}()
		ctx, cancel := context.WithTimeout(walkthrough.NewContext(ctx, s), r.server.nextTimeout)
		defer cancel()
		if err := s.Next(ctx); err != nil {
			client.SendResponse(nextErrorResponse(id, err))
			return
		}
		client.SendResponse(protocol.NewOKResponse(id, StateOf(s, name, nil)))
	}()
}

// nextErrorResponse maps a Next failure to a protocol error.
func nextErrorResponse(id string, err error) *protocol.ResponseFrame {
	var gate *walkthrough.GateRejectedError
	switch {
	case errors.Is(err, walkthrough.ErrNotActive):
		return protocol.NewErrorResponse(id, protocol.ErrNotActive, err.Error())
	case errors.Is(err, walkthrough.ErrNavigationBusy):
		resp := protocol.NewErrorResponse(id, protocol.ErrBusy, err.Error())
		resp.Error.Retryable = true
		resp.Error.RetryAfterMs = int((250 * time.Millisecond).Milliseconds())
		return resp
	case errors.Is(err, walkthrough.ErrStaleTransition):
		return protocol.NewErrorResponse(id, protocol.ErrStale, err.Error())
	case errors.As(err, &gate):
		resp := protocol.NewErrorResponse(id, protocol.ErrGateRejected, gate.Message)
		resp.Error.Details = map[string]any{"index": gate.Index}
		return resp
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return protocol.NewErrorResponse(id, protocol.ErrInternal, err.Error())
	default:
		return protocol.NewErrorResponse(id, protocol.ErrHookFailed, err.Error())
	}
}
