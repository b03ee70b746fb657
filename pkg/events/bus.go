package events

import (
	"sync"
	"time"
)

// historyLimit bounds the in-memory replay buffer kept per session so a
// WebSocket client that subscribes late (or reconnects) can catch up
// without a dedicated catchup store. Sessions produce at most a few
// thousand events; keeping the most recent historyLimit is enough for a
// client to resync a live view.
const historyLimit = 500

// Bus is the in-process, ordered, exactly-once broadcaster for one agent
// session's event stream. A single publisher (the session runner's event
// reader goroutine) calls Publish for a session; every Subscribe call
// for that session sees the same events, in the same order, exactly once
// — the fan-out spec §5 requires between the Metrics Collector and the
// Intervention Engine, generalized here to also serve live WebSocket
// viewers (spec §6) without a second delivery mechanism.
type Bus struct {
	mu       sync.Mutex
	sessions map[string]*sessionStream
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{sessions: make(map[string]*sessionStream)}
}

// sessionStream holds one session's ordered history and live subscribers.
// All access is serialized through mu so that registering a new
// subscriber and taking a history snapshot happen atomically with
// respect to Publish — a subscriber never misses an event published
// between "snapshot history" and "start receiving live events", and
// never receives one twice.
type sessionStream struct {
	mu          sync.Mutex
	seq         uint64
	history     []Event
	subscribers map[chan Event]struct{}
	closed      bool
}

func (b *Bus) stream(sessionID string) *sessionStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.sessions[sessionID]
	if !ok {
		st = &sessionStream{subscribers: make(map[chan Event]struct{})}
		b.sessions[sessionID] = st
	}
	return st
}

// Publish appends an event to sessionID's stream and delivers it to every
// current subscriber, in order. The returned Event carries the
// assigned sequence number and timestamp.
func (b *Bus) Publish(sessionID string, kind Kind, data map[string]any) Event {
	st := b.stream(sessionID)

	st.mu.Lock()
	defer st.mu.Unlock()

	st.seq++
	evt := Event{
		SessionID: sessionID,
		Seq:       st.seq,
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	st.history = append(st.history, evt)
	if len(st.history) > historyLimit {
		st.history = st.history[len(st.history)-historyLimit:]
	}

	for ch := range st.subscribers {
		ch <- evt
	}
	return evt
}

// Subscribe registers a new subscriber for sessionID and returns a channel
// of future events plus a snapshot of everything already published (up to
// historyLimit, most recent last). The channel is closed when the session
// is closed via CloseSession.
func (b *Bus) Subscribe(sessionID string) (<-chan Event, []Event) {
	st := b.stream(sessionID)

	st.mu.Lock()
	defer st.mu.Unlock()

	ch := make(chan Event, 64)
	if st.closed {
		close(ch)
		return ch, append([]Event(nil), st.history...)
	}
	st.subscribers[ch] = struct{}{}
	snapshot := append([]Event(nil), st.history...)
	return ch, snapshot
}

// Unsubscribe removes a subscriber channel registered by Subscribe. Safe
// to call more than once, or after CloseSession.
func (b *Bus) Unsubscribe(sessionID string, ch <-chan Event) {
	b.mu.Lock()
	st, ok := b.sessions[sessionID]
	b.mu.Unlock()
	if !ok {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	for c := range st.subscribers {
		if c == ch {
			delete(st.subscribers, c)
			return
		}
	}
}

// CloseSession closes every live subscriber channel for sessionID and
// frees its history. Called once the session runner has emitted
// KindSessionEnd and no further events will be published. Subsequent
// Publish calls for the same sessionID start a fresh, empty stream (a
// session ID is never reused, so this only matters for tests).
func (b *Bus) CloseSession(sessionID string) {
	b.mu.Lock()
	st, ok := b.sessions[sessionID]
	delete(b.sessions, sessionID)
	b.mu.Unlock()
	if !ok {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.closed = true
	for ch := range st.subscribers {
		close(ch)
	}
	st.subscribers = nil
}

// History returns a snapshot of sessionID's events published so far
// (up to historyLimit), without subscribing to future ones.
func (b *Bus) History(sessionID string) []Event {
	st := b.stream(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]Event(nil), st.history...)
}
