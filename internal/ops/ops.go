// Package ops serves the operator HTTP surface of `voxnet serve`: health,
// Prometheus metrics, a JSON view of connected peers, and a websocket
// stream of every broadcast message for spectators.
//
// The tick goroutine publishes into a Server through Publish and Tap; the
// HTTP handlers only read what was published.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxel-dev/voxnet/pkg/protocol"
	"github.com/voxel-dev/voxnet/pkg/server"
)

// Options configures a Server.
type Options struct {
	// Gatherer backs /metrics. Default: prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// SpectatorQueue is the per-spectator frame queue. Default: 256.
	SpectatorQueue int

	// Logger receives request and spectator logs. Default: slog.Default().
	Logger *slog.Logger
}

// Snapshot is the state served by /peers.
type Snapshot struct {
	Peers     []server.PeerInfo `json:"peers"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Server is the ops HTTP surface.
type Server struct {
	router   chi.Router
	hub      *Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
	started  time.Time

	snapshot atomic.Pointer[Snapshot]
}

// New creates a Server with its routes mounted.
func New(opts Options) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		hub:     NewHub(opts.SpectatorQueue),
		logger:  opts.Logger.With("component", "ops"),
		started: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.snapshot.Store(&Snapshot{Peers: []server.PeerInfo{}})

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/peers", s.handlePeers)
	r.Get("/spectate", s.handleSpectate)
	s.router = r

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the spectator hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Publish replaces the peer snapshot served by /peers.
func (s *Server) Publish(peers []server.PeerInfo) {
	if peers == nil {
		peers = []server.PeerInfo{}
	}
	s.snapshot.Store(&Snapshot{Peers: peers, UpdatedAt: time.Now()})
}

// Tap forwards a broadcast message to spectators as one framed binary
// websocket message. It matches server.Options.Tap.
func (s *Server) Tap(m protocol.Message) {
	if s.hub.Len() == 0 {
		return
	}
	s.hub.Broadcast(protocol.EncodeFrame(m))
}

// Serve serves HTTP on l until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(l) }()
	s.logger.Info("ops server listening", "addr", l.Addr().String())

	select {
	case err := <-errc:
		s.hub.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.hub.Close()
	if serveErr := <-errc; !errors.Is(serveErr, http.ErrServerClosed) && err == nil {
		err = serveErr
	}
	return err
}

// ListenAndServe binds addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot.Load()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"peers":      len(snap.Peers),
		"spectators": s.hub.Len(),
		"uptime":     time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot.Load())
}

func (s *Server) handleSpectate(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("spectator upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sub, ok := s.hub.add(conn)
	if !ok {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		_ = conn.Close()
		return
	}
	s.logger.Info("spectator joined", "remote", r.RemoteAddr)
	go sub.writeLoop()

	// Spectators only listen; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.hub.remove(sub)
	s.logger.Info("spectator left", "remote", r.RemoteAddr)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
