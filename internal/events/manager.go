package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// CatchupEvent is a single missed event delivered in response to a
// catchup request.
type CatchupEvent struct {
	Seq     int64
	Type    string
	Payload map[string]any
}

// CatchupQuerier loads events a reconnecting client missed. Implemented
// by internal/store.Store.
type CatchupQuerier interface {
	ListEvents(ctx context.Context, taskID string, afterSeq int64, limit int, tail bool) ([]CatchupEvent, error)
}

// Manager tracks live WebSocket connections and their channel
// subscriptions, and fans out published events to subscribers.
type Manager struct {
	connections map[string]*Connection
	mu          sync.RWMutex

	channels  map[string]map[string]bool
	channelMu sync.RWMutex

	catchup CatchupQuerier

	writeTimeout time.Duration
	logger       *slog.Logger
}

// Connection is a single WebSocket client. subscriptions is only ever
// touched from the connection's own read-loop goroutine and its
// deferred cleanup, so it needs no lock.
type Connection struct {
	ID            string
	Conn          *websocket.Conn
	subscriptions map[string]bool
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewManager constructs a Manager. catchup may be nil if catch-up
// replay is not needed (e.g. in tests).
func NewManager(catchup CatchupQuerier, writeTimeout time.Duration) *Manager {
	return &Manager{
		connections:  make(map[string]*Connection),
		channels:     make(map[string]map[string]bool),
		catchup:      catchup,
		writeTimeout: writeTimeout,
		logger:       slog.Default().With("component", "events"),
	}
}

// HandleConnection drives a single upgraded WebSocket connection until
// it closes. Call from the HTTP handler after websocket.Accept.
func (m *Manager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &Connection{
		ID:            uuid.NewString(),
		Conn:          conn,
		subscriptions: make(map[string]bool),
		ctx:           ctx,
		cancel:        cancel,
	}

	m.register(c)
	defer m.unregister(c)

	m.sendJSON(c, map[string]string{"type": "connection.established", "connection_id": c.ID})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			m.logger.Warn("invalid websocket message", "connection_id", c.ID, "error", err)
			continue
		}
		m.handleMessage(ctx, c, &msg)
	}
}

func (m *Manager) handleMessage(ctx context.Context, c *Connection, msg *ClientMessage) {
	switch msg.Action {
	case "subscribe":
		if msg.Channel == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "channel is required for subscribe"})
			return
		}
		m.subscribe(c, msg.Channel)
		m.sendJSON(c, map[string]string{"type": "subscription.confirmed", "channel": msg.Channel})
		m.handleCatchup(ctx, c, msg.Channel, 0)
	case "unsubscribe":
		if msg.Channel == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "channel is required for unsubscribe"})
			return
		}
		m.unsubscribe(c, msg.Channel)
	case "catchup":
		if msg.Channel == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "channel is required for catchup"})
			return
		}
		m.handleCatchup(ctx, c, msg.Channel, msg.AfterSeq)
	case "ping":
		m.sendJSON(c, map[string]string{"type": "pong"})
	}
}

// Broadcast sends a raw event payload to every connection subscribed to
// channel. Called from the store's Publisher hook.
func (m *Manager) Broadcast(channel string, event []byte) {
	m.channelMu.RLock()
	connIDs, ok := m.channels[channel]
	if !ok {
		m.channelMu.RUnlock()
		return
	}
	ids := make([]string, 0, len(connIDs))
	for id := range connIDs {
		ids = append(ids, id)
	}
	m.channelMu.RUnlock()

	m.mu.RLock()
	conns := make([]*Connection, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.connections[id]; ok {
			conns = append(conns, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range conns {
		if err := m.sendRaw(c, event); err != nil {
			m.logger.Warn("failed to send event", "connection_id", c.ID, "error", err)
		}
	}
}

// ActiveConnections returns the count of live WebSocket connections.
func (m *Manager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

func (m *Manager) subscribe(c *Connection, channel string) {
	m.channelMu.Lock()
	if _, ok := m.channels[channel]; !ok {
		m.channels[channel] = make(map[string]bool)
	}
	m.channels[channel][c.ID] = true
	m.channelMu.Unlock()
	c.subscriptions[channel] = true
}

func (m *Manager) unsubscribe(c *Connection, channel string) {
	m.channelMu.Lock()
	if subs, ok := m.channels[channel]; ok {
		delete(subs, c.ID)
		if len(subs) == 0 {
			delete(m.channels, channel)
		}
	}
	m.channelMu.Unlock()
	delete(c.subscriptions, channel)
}

// handleCatchup replays events missed since afterSeq, channel being a
// task channel ("task:<id>"); any other channel has nothing to replay.
func (m *Manager) handleCatchup(ctx context.Context, c *Connection, channel string, afterSeq int64) {
	if m.catchup == nil || len(channel) < 5 || channel[:5] != "task:" {
		return
	}
	taskID := channel[5:]

	events, err := m.catchup.ListEvents(ctx, taskID, afterSeq, catchupLimit+1, false)
	if err != nil {
		m.logger.Error("catchup query failed", "channel", channel, "error", err)
		return
	}
	hasMore := len(events) > catchupLimit
	if hasMore {
		events = events[:catchupLimit]
	}

	for _, evt := range events {
		payload, err := json.Marshal(map[string]any{"type": evt.Type, "data": evt.Payload, "seq": evt.Seq})
		if err != nil {
			continue
		}
		if err := m.sendRaw(c, payload); err != nil {
			m.logger.Warn("failed to send catchup event", "connection_id", c.ID, "error", err)
			return
		}
	}
	if hasMore {
		m.sendJSON(c, map[string]any{"type": "catchup.overflow", "channel": channel, "has_more": true})
	}
}

func (m *Manager) register(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.ID] = c
}

func (m *Manager) unregister(c *Connection) {
	for ch := range c.subscriptions {
		m.unsubscribe(c, ch)
	}
	m.mu.Lock()
	delete(m.connections, c.ID)
	m.mu.Unlock()
	c.cancel()
	_ = c.Conn.Close(websocket.StatusNormalClosure, "")
}

func (m *Manager) sendJSON(c *Connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		m.logger.Warn("failed to marshal message", "connection_id", c.ID, "error", err)
		return
	}
	if err := m.sendRaw(c, data); err != nil {
		m.logger.Warn("failed to send message", "connection_id", c.ID, "error", err)
	}
}

func (m *Manager) sendRaw(c *Connection, data []byte) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.Conn.Write(writeCtx, websocket.MessageText, data)
}
