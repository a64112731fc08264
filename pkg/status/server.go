// Package status serves the host daemon's HTTP status surface: health, the
// latest reading, the reading history and a websocket stream of readings.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/itohio/gasmon/pkg/console"
	"github.com/itohio/gasmon/pkg/history"
	"github.com/itohio/gasmon/pkg/monitor"
	"github.com/itohio/gasmon/pkg/network"
)

// DefaultHistoryPoints caps /history when no max is given.
const DefaultHistoryPoints = 500

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NetworkState reports the wireless link state.
type NetworkState interface {
	State() network.State
}

// Health is the /healthz body.
type Health struct {
	Status  string `json:"status"`
	Network string `json:"network"`
	Boots   uint32 `json:"boots"`
	Uptime  string `json:"uptime"`
}

// HistoryResponse is the /history body.
type HistoryResponse struct {
	Stats    history.Stats     `json:"stats"`
	Readings []monitor.Reading `json:"readings"`
}

// Server exposes readings over HTTP.
type Server struct {
	hist    *history.Buffer
	hub     *Hub
	net     NetworkState
	boots   uint32
	started time.Time
	log     console.Logger
}

// New creates a status server over hist. Every reading added to hist is
// pushed to websocket clients. state may be nil.
func New(hist *history.Buffer, state NetworkState, boots uint32, log console.Logger) *Server {
	log = console.OrStd(log)
	s := &Server{
		hist:    hist,
		hub:     NewHub(log),
		net:     state,
		boots:   boots,
		started: time.Now(),
		log:     log,
	}
	hist.OnUpdate(s.hub.Broadcast)
	return s
}

// Router returns the HTTP routes.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/reading", s.handleReading)
	r.Get("/history", s.handleHistory)
	r.Get("/ws", s.handleWebSocket)

	return r
}

// Listen binds addr for Serve.
func (s *Server) Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return ln, nil
}

// Serve serves on ln until ctx is done. The hub runs for as long as Serve
// does.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	hubCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.hub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("status server listening on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop status server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := Health{
		Status:  "ok",
		Network: "unknown",
		Boots:   s.boots,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	}
	if s.net != nil {
		h.Network = s.net.State().String()
	}
	s.writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleReading(w http.ResponseWriter, r *http.Request) {
	latest, ok := s.hist.Latest()
	if !ok {
		s.writeError(w, http.StatusServiceUnavailable, "no reading yet")
		return
	}
	s.writeJSON(w, http.StatusOK, latest)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	maxPoints := DefaultHistoryPoints
	if v := r.URL.Query().Get("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid max %q", v))
			return
		}
		maxPoints = n
	}

	s.writeJSON(w, http.StatusOK, HistoryResponse{
		Stats:    s.hist.Stats(),
		Readings: history.Downsample(nil, s.hist.Readings(), maxPoints),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("websocket upgrade error: %v", err)
		return
	}

	c := &client{hub: s.hub, conn: conn, send: make(chan []byte, sendBuffer)}
	if latest, ok := s.hist.Latest(); ok {
		if data, err := json.Marshal(message{Type: "reading", Payload: latest}); err == nil {
			c.send <- data
		}
	}

	if !s.hub.add(c) {
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warnf("failed to write response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}
