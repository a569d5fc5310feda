package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/tracemon/internal/engine"
	"github.com/roach88/tracemon/internal/ir"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	subscriberBuf  = 64
	defaultClients = 100
)

// Message is the envelope of every server → client message.
type Message struct {
	Type     string        `json:"type"` // "ack", "error" or "violation"
	Accepted bool          `json:"accepted,omitempty"`
	Error    string        `json:"error,omitempty"`
	Data     *ir.Violation `json:"data,omitempty"`
}

// Message types.
const (
	TypeAck       = "ack"
	TypeError     = "error"
	TypeViolation = "violation"
)

// Status is the body of GET /status.
type Status struct {
	RunID       string `json:"run_id"`
	Queued      int    `json:"queued"`
	PeakQueued  int    `json:"peak_queued"`
	Violations  int    `json:"violations"`
	Subscribers int    `json:"subscribers"`
}

// Server exposes an engine over websockets.
type Server struct {
	eng        *engine.Engine
	upgrader   websocket.Upgrader
	maxClients int
	logger     *slog.Logger

	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	conns       int
	violations  int

	stop     chan struct{}
	stopOnce sync.Once
}

type subscriber struct {
	remote string
	send   chan []byte
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the server's logger. Default: slog.Default().
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithMaxClients limits concurrent websocket connections. Default: 100.
func WithMaxClients(n int) ServerOption {
	return func(s *Server) { s.maxClients = n }
}

// NewServer creates a server for eng and subscribes to its violations.
// The caller runs eng.Run.
func NewServer(eng *engine.Engine, opts ...ServerOption) *Server {
	s := &Server{
		eng: eng,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		maxClients:  defaultClients,
		logger:      slog.Default(),
		subscribers: make(map[*subscriber]struct{}),
		stop:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	eng.OnViolation(s.publish)
	return s
}

// Handler returns the HTTP handler with the /events, /violations and
// /status routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/violations", s.handleViolations)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down,
// closing every websocket.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("live server listening", "addr", addr, "run_id", s.eng.RunID())

	select {
	case err := <-errc:
		s.Close()
		return err
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close disconnects every client. It does not stop the engine.
func (s *Server) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// upgrade reserves a client slot and upgrades the connection. The caller
// must call release when the connection ends.
func (s *Server) upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, bool) {
	s.mu.Lock()
	if s.conns >= s.maxClients {
		s.mu.Unlock()
		http.Error(w, "Maximum clients reached", http.StatusServiceUnavailable)
		return nil, false
	}
	s.conns++
	s.mu.Unlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.release()
		s.logger.Warn("websocket upgrade failed", "path", r.URL.Path, "error", err)
		return nil, false
	}
	return conn, true
}

func (s *Server) release() {
	s.mu.Lock()
	s.conns--
	s.mu.Unlock()
}

// handleEvents reads events until the producer disconnects. Every message
// gets exactly one reply.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, ok := s.upgrade(w, r)
	if !ok {
		return
	}
	defer s.release()
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.stop:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("event stream read failed", "error", err)
			}
			return
		}

		reply := s.accept(data)
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
	}
}

func (s *Server) accept(data []byte) Message {
	var ev ir.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Message{Type: TypeError, Error: fmt.Sprintf("invalid event: %v", err)}
	}
	if ev.Name == "" {
		return Message{Type: TypeError, Error: "invalid event: name is required"}
	}
	ev.Seq = 0 // the engine stamps seq
	if !s.eng.Enqueue(ev) {
		return Message{Type: TypeError, Error: "engine stopped"}
	}
	s.logger.Debug("event accepted", "event", ev.String())
	return Message{Type: TypeAck, Accepted: true}
}

// handleViolations streams violations to one observer.
func (s *Server) handleViolations(w http.ResponseWriter, r *http.Request) {
	conn, ok := s.upgrade(w, r)
	if !ok {
		return
	}
	defer s.release()
	sub := &subscriber{remote: conn.RemoteAddr().String(), send: make(chan []byte, subscriberBuf)}

	s.mu.Lock()
	s.subscribers[sub] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.subscribers, sub)
		s.mu.Unlock()
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Reading is required to notice a disconnect.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-sub.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readDone:
			return
		case <-s.stop:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// publish is the engine's violation listener. It runs on the engine
// goroutine and never blocks: a full subscriber buffer drops the message.
func (s *Server) publish(v ir.Violation) {
	data, err := json.Marshal(Message{Type: TypeViolation, Data: &v})
	if err != nil {
		s.logger.Error("marshal violation", "error", err)
		return
	}

	s.mu.Lock()
	s.violations++
	subs := make([]*subscriber, 0, len(s.subscribers))
	for sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.send <- data:
		default:
			s.logger.Warn("subscriber too slow, violation dropped",
				"remote", sub.remote,
				"violation", v.ID,
			)
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	st := Status{
		RunID:       s.eng.RunID(),
		Queued:      s.eng.QueueLen(),
		PeakQueued:  s.eng.QueuePeak(),
		Violations:  s.violations,
		Subscribers: len(s.subscribers),
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		s.logger.Warn("write status", "error", err)
	}
}
