// Package relay implements the websocket event channel to the message relay.
// Frames are JSON envelopes of the form {"event": ..., "data": ...}; outbound
// commands and inbound broadcasts share the same wrapper.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"roomchat/internal/domain"
	"roomchat/internal/metrics"

	"github.com/gorilla/websocket"
)

// Config configures a relay connection.
type Config struct {
	URL         string // ws:// or wss:// endpoint
	DialTimeout time.Duration
	Header      http.Header
	Logger      *slog.Logger
}

// WSChannel is a websocket client implementing domain.Channel.
// Writes are serialized with a mutex; a single read loop dispatches inbound
// envelopes to registered handlers.
type WSChannel struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu       sync.RWMutex
	handlers map[string][]namedHandler
	closed   bool

	done chan struct{}
	err  error
}

// namedHandler pairs a handler with an ID for deregistration.
type namedHandler struct {
	ID      string
	Handler domain.EventHandler
}

// Dial connects to the relay and starts the read loop.
func Dial(ctx context.Context, cfg Config) (*WSChannel, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, cfg.URL, cfg.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial relay %s: %w (status %d)", cfg.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial relay %s: %w", cfg.URL, err)
	}

	c := &WSChannel{
		conn:     conn,
		logger:   cfg.Logger,
		handlers: make(map[string][]namedHandler),
		done:     make(chan struct{}),
	}
	c.logger.Info("relay connected", "url", cfg.URL)
	metrics.RelayConnected.Set(1)

	go c.readLoop()
	return c, nil
}

// Emit sends one envelope as a single text frame.
func (c *WSChannel) Emit(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	frame, err := json.Marshal(domain.Envelope{Event: event, Data: raw})
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", event, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

// On registers a handler for an inbound event name.
func (c *WSChannel) On(event string, handler domain.EventHandler) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := fmt.Sprintf("%s-%d", event, len(c.handlers[event]))
	c.handlers[event] = append(c.handlers[event], namedHandler{ID: id, Handler: handler})
	return id
}

// Off removes a handler by its ID.
func (c *WSChannel) Off(event, handlerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	handlers := c.handlers[event]
	for i, h := range handlers {
		if h.ID == handlerID {
			c.handlers[event] = append(handlers[:i], handlers[i+1:]...)
			return
		}
	}
}

// Done is closed when the read loop exits; Err reports why.
func (c *WSChannel) Done() <-chan struct{} { return c.done }

func (c *WSChannel) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Close tears the connection down. The read loop exits on the closed socket.
func (c *WSChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	return c.conn.Close()
}

func (c *WSChannel) readLoop() {
	defer close(c.done)
	defer metrics.RelayConnected.Set(0)
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			if !closed {
				c.err = err
			}
			c.mu.Unlock()
			if !closed && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error("relay read error", "err", err)
			}
			return
		}

		var env domain.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			c.logger.Warn("invalid relay frame", "err", err)
			continue
		}
		c.dispatch(env)
	}
}

// dispatch delivers one envelope to every handler registered for its event,
// in registration order.
func (c *WSChannel) dispatch(env domain.Envelope) {
	c.mu.RLock()
	handlers := make([]namedHandler, len(c.handlers[env.Event]))
	copy(handlers, c.handlers[env.Event])
	c.mu.RUnlock()

	for _, h := range handlers {
		func(nh namedHandler) {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("event handler panic", "event", env.Event, "handler", nh.ID, "panic", r)
				}
			}()
			nh.Handler(env.Data)
		}(h)
	}
}
