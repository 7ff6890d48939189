// Package relay is the bridge between unprivileged UI contexts and the
// privileged daemon. Unprivileged code cannot reach the network or the
// note database; it sends a typed envelope over a local WebSocket and the
// daemon performs the real operation and answers with exactly one
// response per request.
package relay

import "encoding/json"

// MessageType tags a relay envelope. The names are a wire contract
// shared with every UI surface; do not rename.
type MessageType string

const (
	// Note operations
	TypeCreateNote MessageType = "CREATE_NOTE"
	TypeUpdateNote MessageType = "UPDATE_NOTE"
	TypeDeleteNote MessageType = "DELETE_NOTE"
	TypeFocusNote  MessageType = "FOCUS_NOTE"

	// Authentication
	TypeLogin     MessageType = "LOGIN"
	TypeLogout    MessageType = "LOGOUT"
	TypeCheckAuth MessageType = "CHECK_AUTH"

	// API operations
	TypeAPIRequest MessageType = "API_REQUEST"
)

// knownTypes guards dispatch against typo'd or hostile envelopes.
var knownTypes = map[MessageType]bool{
	TypeCreateNote: true,
	TypeUpdateNote: true,
	TypeDeleteNote: true,
	TypeFocusNote:  true,
	TypeLogin:      true,
	TypeLogout:     true,
	TypeCheckAuth:  true,
	TypeAPIRequest: true,
}

// Request is the envelope an unprivileged context sends. ID correlates
// the eventual response; the daemon echoes it back verbatim.
type Request struct {
	ID   string          `json:"id"`
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response is the single reply to a Request.
type Response struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Event is a server-initiated broadcast: a note mutation or focus
// request fanned out to the other connected contexts so page overlays
// stay in sync with the sidebar. Events carry no ID; that is how a
// client tells them apart from responses.
type Event struct {
	Type MessageType `json:"type"`
	Data any         `json:"data,omitempty"`
}

// APIRequestData is the payload of an API_REQUEST envelope: a tunneled
// call the unprivileged side cannot make itself.
type APIRequestData struct {
	Endpoint string            `json:"endpoint"`
	Method   string            `json:"method"`
	Body     json.RawMessage   `json:"body,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
}

// DeleteNoteData is the payload of a DELETE_NOTE envelope.
type DeleteNoteData struct {
	NoteID string `json:"noteId"`
}

// frame is the superset shape used on the read side to distinguish
// responses (Success present) from events.
type frame struct {
	ID      string          `json:"id,omitempty"`
	Type    MessageType     `json:"type,omitempty"`
	Success *bool           `json:"success,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}
