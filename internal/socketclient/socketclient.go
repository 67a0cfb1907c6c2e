// Package socketclient maintains the single outbound websocket session to
// the presentation backend. Messages are enqueued onto a bounded send
// queue drained by one writer goroutine; when the queue is full the
// oldest message is dropped with a warning, so a slow backend can never
// stall the dispatch loop (live push is drop-oldest, best-effort).
package socketclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/0x-minds/0xpads-listener/internal/config"
)

// ErrQueueFull is returned when a message cannot be enqueued even after
// evicting the oldest queued message.
var ErrQueueFull = fmt.Errorf("socketclient: send queue full")

// ErrClosed is returned by enqueue operations after Close.
var ErrClosed = fmt.Errorf("socketclient: closed")

// Envelope is the wire shape for every message exchanged with the
// backend: an event name plus an arbitrary JSON payload.
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// RoomPayload is the data shape of a room_message event.
type RoomPayload struct {
	Room        string      `json:"room"`
	Data        interface{} `json:"data"`
	ClientCount int         `json:"client_count"`
}

// Client is the single owner of the backend websocket connection.
type Client struct {
	cfg config.WebSocketConfig
	log *logrus.Entry

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	rooms     map[string]int

	sendCh  chan Envelope
	limiter *rate.Limiter

	closeOnce sync.Once
	closeCh   chan struct{}
}

// New builds a Client with a send queue of queueSize messages (a
// non-positive size falls back to 256). Connect must be called before any
// message actually leaves the process; RoomMessage/Broadcast may be
// called earlier and will be drained once the session is up.
func New(cfg config.WebSocketConfig, queueSize int, log *logrus.Entry) *Client {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Client{
		cfg:     cfg,
		log:     log,
		rooms:   make(map[string]int),
		sendCh:  make(chan Envelope, queueSize),
		limiter: rate.NewLimiter(rate.Limit(500), 100),
		closeCh: make(chan struct{}),
	}
}

// Connect dials the backend namespace and starts the writer, reader and
// ping loops. The context bounds the dial only; the session itself lives
// until Close.
func (c *Client) Connect(ctx context.Context) error {
	if c.cfg.BackendSocketURL == "" {
		return fmt.Errorf("socketclient: backend socket url not configured")
	}

	if err := c.dial(ctx); err != nil {
		return err
	}

	go c.writeLoop()
	go c.readLoop()
	go c.pingLoop()
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	url := strings.TrimSuffix(c.cfg.BackendSocketURL, "/") + c.cfg.BackendNamespace

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("socketclient: dial %s: %w", url, err)
	}

	identify := Envelope{Event: "client_identify", Data: map[string]interface{}{
		"client_type": "blockchain_listener",
	}}
	if err := conn.WriteJSON(identify); err != nil {
		conn.Close()
		return fmt.Errorf("socketclient: identify: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.log.WithField("url", url).Info("backend socket connected")
	return nil
}

// RoomMessage enqueues a room_message for room, carrying data and the
// room's current subscriber count.
func (c *Client) RoomMessage(room string, data interface{}) error {
	c.mu.RLock()
	count := c.rooms[room]
	c.mu.RUnlock()

	return c.enqueue(Envelope{Event: "room_message", Data: RoomPayload{
		Room:        room,
		Data:        data,
		ClientCount: count,
	}})
}

// Broadcast enqueues a broadcast event for every connected client.
func (c *Client) Broadcast(data interface{}) error {
	return c.enqueue(Envelope{Event: "broadcast", Data: data})
}

// enqueue is nonblocking: a full queue evicts the oldest message with a
// warning rather than stalling the caller.
func (c *Client) enqueue(env Envelope) error {
	select {
	case <-c.closeCh:
		return ErrClosed
	default:
	}

	select {
	case c.sendCh <- env:
		return nil
	default:
	}

	select {
	case dropped := <-c.sendCh:
		c.log.WithField("event", dropped.Event).Warn("backend socket send queue full, dropping oldest message")
	default:
	}

	select {
	case c.sendCh <- env:
		return nil
	default:
		return ErrQueueFull
	}
}

func (c *Client) writeLoop() {
	for {
		select {
		case <-c.closeCh:
			return
		case env := <-c.sendCh:
			if err := c.limiter.Wait(context.Background()); err != nil {
				return
			}
			conn := c.currentConn()
			if conn == nil {
				// Disconnected; the message is dropped rather than
				// buffered indefinitely (live push is best-effort).
				c.log.WithField("event", env.Event).Warn("backend socket disconnected, dropping message")
				continue
			}
			if err := conn.WriteJSON(env); err != nil {
				c.log.WithError(err).Warn("backend socket write failed")
				c.handleDisconnect()
			}
		}
	}
}

func (c *Client) readLoop() {
	for {
		select {
		case <-c.closeCh:
			return
		default:
		}

		conn := c.currentConn()
		if conn == nil {
			select {
			case <-c.closeCh:
				return
			case <-time.After(time.Second):
			}
			continue
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closeCh:
				return
			default:
			}
			c.log.WithError(err).Warn("backend socket read failed")
			c.handleDisconnect()
			continue
		}

		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			c.log.WithError(err).Debug("backend socket sent malformed message")
			continue
		}
		c.handleIncoming(env)
	}
}

func (c *Client) handleIncoming(env Envelope) {
	switch env.Event {
	case "ping":
		_ = c.enqueue(Envelope{Event: "pong"})
	case "subscribe_request":
		if room := roomOf(env.Data); room != "" {
			c.mu.Lock()
			c.rooms[room]++
			c.mu.Unlock()
		}
	case "unsubscribe_request":
		if room := roomOf(env.Data); room != "" {
			c.mu.Lock()
			if c.rooms[room] > 0 {
				c.rooms[room]--
			}
			c.mu.Unlock()
		}
	case "chart_data_request", "market_data_request":
		// Reads are served from the cache by the backend itself; these
		// arrive only when the backend misroutes, so note and move on.
		c.log.WithField("event", env.Event).Debug("backend socket data request ignored")
	default:
		c.log.WithField("event", env.Event).Debug("backend socket sent unknown event")
	}
}

func roomOf(data interface{}) string {
	m, ok := data.(map[string]interface{})
	if !ok {
		return ""
	}
	room, _ := m["room"].(string)
	return room
}

func (c *Client) pingLoop() {
	interval := time.Duration(c.cfg.PingIntervalS) * time.Second
	if interval <= 0 {
		interval = 20 * time.Second
	}
	timeout := time.Duration(c.cfg.PingTimeoutS) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeCh:
			return
		case <-ticker.C:
			conn := c.currentConn()
			if conn == nil {
				continue
			}
			deadline := time.Now().Add(timeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.log.WithError(err).Warn("backend socket ping failed")
				c.handleDisconnect()
			}
		}
	}
}

// handleDisconnect tears down the current connection and redials with
// exponential backoff until Close or success.
func (c *Client) handleDisconnect() {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	go c.reconnectLoop()
}

func (c *Client) reconnectLoop() {
	backoff := time.Second
	for {
		select {
		case <-c.closeCh:
			return
		case <-time.After(backoff):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.dial(ctx)
		cancel()
		if err == nil {
			return
		}
		c.log.WithError(err).Warn("backend socket reconnect failed")

		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

// Healthy reports whether the session is currently connected.
func (c *Client) Healthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// QueueDepth reports the number of messages waiting in the send queue.
func (c *Client) QueueDepth() int {
	return len(c.sendCh)
}

// Close shuts the session down. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closeCh)
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.connected = false
		c.mu.Unlock()
	})
	return nil
}

func (c *Client) currentConn() *websocket.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}
