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

// writeTimeoutDefault bounds how long a single WebSocket write may block.
const writeTimeoutDefault = 10 * time.Second

// ConnectionManager manages WebSocket connections that watch a project's
// or a session's live event stream (spec §6). Unlike a multi-pod
// deployment where publishers and viewers may live in different
// processes, the orchestrator runs as a single process (spec §5's
// sync.Map-backed project-scheduler registry), so there is no need for
// a Postgres LISTEN/NOTIFY relay: every subscription is served directly
// from the in-process Bus, including catchup for late subscribers.
type ConnectionManager struct {
	bus *Bus

	mu    sync.RWMutex
	conns map[string]*Connection

	writeTimeout time.Duration
}

// Connection represents one WebSocket client and the set of channels
// (session IDs, or GlobalSessionsChannel) it is currently subscribed to.
//
// subs is accessed only from the connection's own read loop goroutine
// and its deferred cleanup, so no separate lock is needed for it — the
// same invariant TARSy's Connection relies on for its subscriptions map.
type Connection struct {
	ID   string
	Conn *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc

	subs map[string]context.CancelFunc // channel -> stop forwarder
}

// NewConnectionManager creates a ConnectionManager backed by bus.
func NewConnectionManager(bus *Bus, writeTimeout time.Duration) *ConnectionManager {
	if writeTimeout <= 0 {
		writeTimeout = writeTimeoutDefault
	}
	return &ConnectionManager{
		bus:          bus,
		conns:        make(map[string]*Connection),
		writeTimeout: writeTimeout,
	}
}

// HandleConnection manages the lifecycle of a single WebSocket connection.
// Called by the WebSocket HTTP handler after upgrade. Blocks until the
// connection closes.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &Connection{
		ID:     uuid.New().String(),
		Conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]context.CancelFunc),
	}

	m.registerConnection(c)
	defer m.unregisterConnection(c)

	m.sendJSON(c, map[string]string{
		"type":          "connection.established",
		"connection_id": c.ID,
	})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("invalid websocket message", "connection_id", c.ID, "error", err)
			continue
		}
		m.handleClientMessage(c, &msg)
	}
}

// ActiveConnections returns the count of active WebSocket connections.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

func (m *ConnectionManager) handleClientMessage(c *Connection, msg *ClientMessage) {
	switch msg.Action {
	case "subscribe":
		if msg.Channel == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "channel is required for subscribe"})
			return
		}
		m.subscribe(c, msg.Channel)
		m.sendJSON(c, map[string]string{"type": "subscription.confirmed", "channel": msg.Channel})

	case "unsubscribe":
		if msg.Channel == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "channel is required for unsubscribe"})
			return
		}
		m.unsubscribe(c, msg.Channel)

	case "ping":
		m.sendJSON(c, map[string]string{"type": "pong"})
	}
}

// subscribe starts forwarding channel's Bus stream to c: replaying its
// history first, then every event published from this point on, until
// c unsubscribes, the connection closes, or the channel's session ends.
func (m *ConnectionManager) subscribe(c *Connection, channel string) {
	if _, already := c.subs[channel]; already {
		return
	}

	sessionID := busKey(channel)
	ch, history := m.bus.Subscribe(sessionID)

	fwdCtx, stop := context.WithCancel(c.ctx)
	c.subs[channel] = stop

	go func() {
		for _, evt := range history {
			if err := m.sendEvent(c, evt); err != nil {
				return
			}
		}
		for {
			select {
			case <-fwdCtx.Done():
				m.bus.Unsubscribe(sessionID, ch)
				return
			case evt, ok := <-ch:
				if !ok {
					m.sendJSON(c, map[string]string{"type": "stream.closed", "channel": channel})
					return
				}
				if err := m.sendEvent(c, evt); err != nil {
					m.bus.Unsubscribe(sessionID, ch)
					return
				}
			}
		}
	}()
}

func (m *ConnectionManager) unsubscribe(c *Connection, channel string) {
	if stop, ok := c.subs[channel]; ok {
		stop()
		delete(c.subs, channel)
	}
}

// busKey maps a client-facing channel name to the Bus key publishers use.
// "session:<id>" channels address one session's stream; any other
// channel name (e.g. GlobalSessionsChannel) is used verbatim.
func busKey(channel string) string {
	const prefix = "session:"
	if len(channel) > len(prefix) && channel[:len(prefix)] == prefix {
		return channel[len(prefix):]
	}
	return channel
}

func (m *ConnectionManager) sendEvent(c *Connection, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		slog.Warn("failed to marshal event", "connection_id", c.ID, "error", err)
		return nil
	}
	return m.sendRaw(c, data)
}

func (m *ConnectionManager) registerConnection(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[c.ID] = c
}

func (m *ConnectionManager) unregisterConnection(c *Connection) {
	for _, stop := range c.subs {
		stop()
	}

	m.mu.Lock()
	delete(m.conns, c.ID)
	m.mu.Unlock()

	c.cancel()
	_ = c.Conn.Close(websocket.StatusNormalClosure, "")
}

func (m *ConnectionManager) sendJSON(c *Connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("failed to marshal websocket message", "connection_id", c.ID, "error", err)
		return
	}
	if err := m.sendRaw(c, data); err != nil {
		slog.Warn("failed to send websocket message", "connection_id", c.ID, "error", err)
	}
}

func (m *ConnectionManager) sendRaw(c *Connection, data []byte) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.Conn.Write(writeCtx, websocket.MessageText, data)
}
