package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	wserrors "github.com/webstickynotes/websticky/pkg/errors"
	"github.com/webstickynotes/websticky/pkg/logging"
	"github.com/webstickynotes/websticky/pkg/notes"
)

// dispatch performs the privileged work for one envelope and returns its
// response. The caller stamps the request ID.
func (s *Server) dispatch(ctx context.Context, origin *client, req Request) Response {
	s.events.Debug(logging.CategoryRelay, "request", "relay request", map[string]any{"type": string(req.Type)})

	switch req.Type {
	case TypeCheckAuth:
		// Never fails: the probe swallows its own errors, and an absent
		// session is a valid answer, not an error.
		session := s.auth.CurrentSession(ctx)
		if session == nil {
			return Response{Success: true}
		}
		return Response{Success: true, Data: session}

	case TypeLogin:
		user, err := s.auth.Login(ctx)
		if err != nil {
			return failure(err)
		}
		return Response{Success: true, Data: map[string]any{"user": user}}

	case TypeLogout:
		if err := s.auth.Logout(ctx); err != nil {
			return failure(err)
		}
		return Response{Success: true}

	case TypeAPIRequest:
		return s.handleAPIRequest(ctx, req.Data)

	case TypeCreateNote:
		var note notes.Note
		if err := json.Unmarshal(req.Data, &note); err != nil {
			return protocolError("CREATE_NOTE payload is not a note")
		}
		created, err := s.router.Create(ctx, note)
		if err != nil {
			return failure(err)
		}
		s.hub.Broadcast(Event{Type: TypeCreateNote, Data: created}, origin)
		return Response{Success: true, Data: created}

	case TypeUpdateNote:
		var note notes.Note
		if err := json.Unmarshal(req.Data, &note); err != nil {
			return protocolError("UPDATE_NOTE payload is not a note")
		}
		updated, err := s.router.Update(ctx, note)
		if err != nil {
			return failure(err)
		}
		s.hub.Broadcast(Event{Type: TypeUpdateNote, Data: updated}, origin)
		return Response{Success: true, Data: updated}

	case TypeDeleteNote:
		var payload DeleteNoteData
		if err := json.Unmarshal(req.Data, &payload); err != nil || payload.NoteID == "" {
			return protocolError("DELETE_NOTE payload requires noteId")
		}
		if err := s.router.Delete(ctx, payload.NoteID); err != nil {
			return failure(err)
		}
		s.hub.Broadcast(Event{Type: TypeDeleteNote, Data: payload}, origin)
		return Response{Success: true, Data: payload}

	case TypeFocusNote:
		// Pure UI coordination: relay the payload to the other contexts.
		var payload json.RawMessage = req.Data
		s.hub.Broadcast(Event{Type: TypeFocusNote, Data: payload}, origin)
		return Response{Success: true}
	}

	return protocolError("unknown message type")
}

// handleAPIRequest tunnels a generic call. Note endpoints go through the
// storage router, so the caller sees the same remote-or-local routing as
// every other path; anything else is forwarded to the remote API as-is.
func (s *Server) handleAPIRequest(ctx context.Context, data json.RawMessage) Response {
	var req APIRequestData
	if err := json.Unmarshal(data, &req); err != nil {
		return protocolError("API_REQUEST payload is malformed")
	}
	if req.Endpoint == "" || req.Method == "" {
		return protocolError("API_REQUEST requires endpoint and method")
	}

	if req.Endpoint == "/notes" {
		return s.handleNotesAPI(ctx, req)
	}

	params := url.Values{}
	for k, v := range req.Params {
		params.Set(k, v)
	}
	var body any
	if len(req.Body) > 0 {
		body = req.Body
	}
	payload, err := s.tunnel.Do(ctx, req.Method, req.Endpoint, body, params)
	if err != nil {
		return failure(err)
	}
	return Response{Success: true, Data: payload}
}

func (s *Server) handleNotesAPI(ctx context.Context, req APIRequestData) Response {
	switch req.Method {
	case http.MethodGet:
		result, err := s.router.List(ctx, notes.ListFilter{
			Search:  req.Params["search"],
			Website: req.Params["website"],
		})
		if err != nil {
			return failure(err)
		}
		if result == nil {
			result = []notes.Note{}
		}
		return Response{Success: true, Data: result}

	case http.MethodPost:
		var note notes.Note
		if err := json.Unmarshal(req.Body, &note); err != nil {
			return protocolError("POST /notes body is not a note")
		}
		created, err := s.router.Create(ctx, note)
		if err != nil {
			return failure(err)
		}
		return Response{Success: true, Data: created}

	case http.MethodPut:
		var note notes.Note
		if err := json.Unmarshal(req.Body, &note); err != nil {
			return protocolError("PUT /notes body is not a note")
		}
		updated, err := s.router.Update(ctx, note)
		if err != nil {
			return failure(err)
		}
		return Response{Success: true, Data: updated}

	case http.MethodDelete:
		id := req.Params["noteId"]
		if id == "" {
			return protocolError("DELETE /notes requires noteId")
		}
		if err := s.router.Delete(ctx, id); err != nil {
			return failure(err)
		}
		return Response{Success: true}
	}

	return protocolError("unsupported method for /notes")
}

// failure maps an error to the envelope's failure shape, preferring the
// human-facing message when the error carries one.
func failure(err error) Response {
	msg := err.Error()
	if werr, ok := err.(*wserrors.Error); ok && werr.UserMessage != "" {
		msg = werr.UserMessage
	}
	return Response{Success: false, Error: msg}
}

func protocolError(msg string) Response {
	return Response{Success: false, Error: msg}
}
