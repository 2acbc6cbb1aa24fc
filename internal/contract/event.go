package contract

// EventSessionChanged is pushed after any mutation of an actor's session or
// its log.
const EventSessionChanged = "session.changed"

type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}
