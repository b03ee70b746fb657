// Package events carries the ordered stream of frames an agent session
// produces (spec §6) to two kinds of consumer: in-process subscribers
// (Metrics Collector, Intervention Engine) via Bus, and WebSocket clients
// watching a session live via ConnectionManager.
package events

import "time"

// Kind is the type of one frame in a session's event stream (spec §6).
type Kind string

const (
	KindPrompt        Kind = "prompt"
	KindAssistantText Kind = "assistant_text"
	KindToolUse       Kind = "tool_use"
	KindToolResult    Kind = "tool_result"
	KindSystemMessage Kind = "system_message"
	KindError         Kind = "error"
	KindSessionEnd    Kind = "session_end"

	// KindNotification carries an Intervention Engine blocker notification
	// for external dispatchers (spec §4.5); fields {project, session,
	// blocker_type, message, retry_stats}.
	KindNotification Kind = "notification"
	// KindInterventionAction records one privileged auto-recovery action
	// taken outside the Tool Surface (spec §4.5/§9 Open Question 3).
	KindInterventionAction Kind = "intervention_action"
)

// Event is one ordered frame in a session's event stream.
type Event struct {
	SessionID string         `json:"session_id"`
	Seq       uint64         `json:"seq"`
	Kind      Kind           `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// SessionChannel returns the WebSocket subscription channel name for a
// session's event stream, the same "session:{id}" convention TARSy uses.
func SessionChannel(sessionID string) string {
	return "session:" + sessionID
}

// GlobalSessionsChannel is the channel name reserved for project-wide
// session lifecycle events, independent of any one session's stream.
// Nothing in this module publishes to it, so a subscriber receives no events.
const GlobalSessionsChannel = "sessions"

// ClientMessage is the JSON structure for client -> server WebSocket
// messages over the live event connection.
type ClientMessage struct {
	Action  string `json:"action"` // "subscribe", "unsubscribe", "ping"
	Channel string `json:"channel,omitempty"`
}
