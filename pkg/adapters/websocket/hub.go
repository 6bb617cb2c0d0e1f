// Package websocket connects sandboxes to sessions over WebSocket. Editor
// messages are written to the sandbox attached to a session; frames read from
// it are fed back into that session for grading.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/stepwise/internal/logging"
	"github.com/aretw0/stepwise/pkg/domain"
	"github.com/aretw0/stepwise/pkg/ports"
	"github.com/gorilla/websocket"
)

const (
	defaultWriteWait  = 5 * time.Second
	defaultPongWait   = 60 * time.Second
	defaultReadLimit  = 4 << 20
	pingPeriodPercent = 90
)

// Receiver consumes raw sandbox frames. *runtime.Session implements it.
type Receiver interface {
	HandleSandboxMessage(ctx context.Context, raw []byte) (domain.Inbound, error)
}

// Hub tracks one sandbox connection per session.
type Hub struct {
	upgrader  websocket.Upgrader
	writeWait time.Duration
	pongWait  time.Duration
	logger    *slog.Logger

	mu    sync.RWMutex
	conns map[string]*conn
}

// Option configures the Hub.
type Option func(*Hub)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithCheckOrigin sets the origin policy of the upgrader.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = fn
	}
}

// WithTimeouts sets the write deadline and the keepalive window.
func WithTimeouts(writeWait, pongWait time.Duration) Option {
	return func(h *Hub) {
		if writeWait > 0 {
			h.writeWait = writeWait
		}
		if pongWait > 0 {
			h.pongWait = pongWait
		}
	}
}

// NewHub creates a Hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		writeWait: defaultWriteWait,
		pongWait:  defaultPongWait,
		logger:    logging.NewNop(),
		conns:     make(map[string]*conn),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// conn wraps a WebSocket connection with a write mutex.
type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

func (c *conn) write(msgType int, data []byte, wait time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(wait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(msgType, data)
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// Sandbox returns the endpoint of sessionID. It reports domain.ErrNotMounted
// while no sandbox is attached.
func (h *Hub) Sandbox(sessionID string) ports.Sandbox {
	return endpoint{hub: h, sessionID: sessionID}
}

type endpoint struct {
	hub       *Hub
	sessionID string
}

func (e endpoint) Deliver(ctx context.Context, msg domain.EditorMessage) error {
	return e.hub.Deliver(ctx, e.sessionID, msg)
}

// Deliver writes msg to the sandbox attached to sessionID.
func (h *Hub) Deliver(ctx context.Context, sessionID string, msg domain.EditorMessage) error {
	h.mu.RLock()
	c, ok := h.conns[sessionID]
	h.mu.RUnlock()
	if !ok {
		return domain.ErrNotMounted
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal editor message: %w", err)
	}

	wait := h.writeWait
	if deadline, ok := ctx.Deadline(); ok {
		wait = min(wait, time.Until(deadline))
	}
	if err := c.write(websocket.TextMessage, data, wait); err != nil {
		h.detach(sessionID, c)
		c.close()
		return fmt.Errorf("sandbox write for %s: %w", sessionID, err)
	}
	return nil
}

// Mounted reports whether a sandbox is attached to sessionID.
func (h *Hub) Mounted(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[sessionID]
	return ok
}

// Serve upgrades the request and attaches the connection to sessionID,
// replacing any previous sandbox. It blocks until the connection ends.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID string, recv Receiver) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade: %w", err)
	}

	c := &conn{ws: ws, done: make(chan struct{})}
	h.mu.Lock()
	prev := h.conns[sessionID]
	h.conns[sessionID] = c
	h.mu.Unlock()
	if prev != nil {
		h.logger.Info("sandbox replaced", "session_id", sessionID)
		prev.close()
	}
	h.logger.Info("sandbox attached", "session_id", sessionID)

	defer func() {
		h.detach(sessionID, c)
		c.close()
		h.logger.Info("sandbox detached", "session_id", sessionID)
	}()

	go h.keepalive(c, sessionID)
	return h.readLoop(r.Context(), c, sessionID, recv)
}

func (h *Hub) readLoop(ctx context.Context, c *conn, sessionID string, recv Receiver) error {
	c.ws.SetReadLimit(defaultReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(h.pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("sandbox read failed", "session_id", sessionID, "err", err)
				return err
			}
			return nil
		}
		if msgType != websocket.TextMessage {
			continue
		}

		_ = c.ws.SetReadDeadline(time.Now().Add(h.pongWait))
		if _, err := recv.HandleSandboxMessage(ctx, data); err != nil {
			if errors.Is(err, domain.ErrSessionClosed) {
				_ = c.write(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"), h.writeWait)
				return nil
			}
			h.logger.Warn("sandbox message rejected", "session_id", sessionID, "err", err)
		}
	}
}

func (h *Hub) keepalive(c *conn, sessionID string) {
	ticker := time.NewTicker(h.pongWait * pingPeriodPercent / 100)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil, h.writeWait); err != nil {
				h.logger.Debug("sandbox ping failed", "session_id", sessionID, "err", err)
				c.close()
				return
			}
		}
	}
}

func (h *Hub) detach(sessionID string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[sessionID] == c {
		delete(h.conns, sessionID)
	}
}

// Close drops every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]*conn)
	h.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
}
