// Package gateway exposes a running walkthrough over WebSocket: clients
// connect, send navigation requests and receive state, frame and notice
// events.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/walkthrough/internal/bus"
	"github.com/nextlevelbuilder/walkthrough/internal/config"
	"github.com/nextlevelbuilder/walkthrough/pkg/protocol"
	"github.com/nextlevelbuilder/walkthrough/pkg/walkthrough"
)

// Target supplies the session the gateway drives. It may change when the
// tour file is reloaded; nil means nothing is loaded.
type Target interface {
	Current() (*walkthrough.Session, string)
}

// TargetFunc adapts a function to Target.
type TargetFunc func() (*walkthrough.Session, string)

func (f TargetFunc) Current() (*walkthrough.Session, string) { return f() }

const busSubscriberID = "gateway"

// Server is the remote control WebSocket server.
type Server struct {
	cfg         config.GatewayConfig
	bus         *bus.MessageBus
	target      Target
	router      *MethodRouter
	rateLimiter *RateLimiter
	upgrader    websocket.Upgrader
	logger      *slog.Logger
	version     string
	nextTimeout time.Duration

	mu      sync.RWMutex
	clients map[string]*Client
	wg      sync.WaitGroup
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithVersion sets the version reported in connect responses.
func WithVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

// WithNextTimeout bounds a walkthrough.next request (hooks and gate).
func WithNextTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.nextTimeout = d
		}
	}
}

// NewServer creates a gateway that forwards bus events to its clients.
func NewServer(cfg config.GatewayConfig, b *bus.MessageBus, target Target, opts ...ServerOption) *Server {
	s := &Server{
		cfg:         cfg,
		bus:         b,
		target:      target,
		rateLimiter: NewRateLimiter(cfg.RateLimitRPM, cfg.Burst),
		logger:      slog.Default(),
		version:     "dev",
		nextTimeout: 30 * time.Second,
		clients:     make(map[string]*Client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, o := range opts {
		o(s)
	}
	s.router = NewMethodRouter(s)
	if b != nil {
		b.Subscribe(busSubscriberID, s.forward)
	}
	return s
}

// Router returns the method router, for registering extra methods.
func (s *Server) Router() *MethodRouter { return s.router }

// Handler returns the HTTP handler serving /ws and /health.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// Start listens on cfg.Listen until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then closes every
// client.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.logger.Info("gateway listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		s.shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.shutdown()
	return err
}

func (s *Server) shutdown() {
	if s.bus != nil {
		s.bus.Unsubscribe(busSubscriberID)
	}
	s.rateLimiter.Stop()
	s.mu.Lock()
	for _, c := range s.clients {
		c.conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(conn, s)
	s.mu.Lock()
	s.clients[client.id] = client
	s.mu.Unlock()
	s.wg.Add(1)
	defer s.wg.Done()

	s.logger.Debug("websocket client opened", "client", client.id, "remote", r.RemoteAddr)
	client.Run(r.Context())

	s.mu.Lock()
	delete(s.clients, client.id)
	s.mu.Unlock()
	s.rateLimiter.Forget(client.id)
	client.Close()
	s.logger.Debug("websocket client closed", "client", client.id)
}

// Clients returns the number of open connections.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// BroadcastEvent sends event to every authenticated client.
func (s *Server) BroadcastEvent(event protocol.EventFrame) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		if c.Authenticated() {
			c.SendEvent(event)
		}
	}
}

// forward relays bus events whose name is a protocol event.
func (s *Server) forward(ev bus.Event) {
	switch ev.Name {
	case protocol.EventState, protocol.EventStepFrame, protocol.EventNotice, protocol.EventTour:
		s.BroadcastEvent(*protocol.NewEvent(ev.Name, ev.Payload))
	}
}
