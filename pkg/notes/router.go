package notes

import (
	"context"

	"github.com/webstickynotes/websticky/pkg/logging"
)

// Authenticator is the slice of the auth facade the router depends on.
type Authenticator interface {
	IsAuthenticated(ctx context.Context) bool
}

// Router is the single entry point for note operations. Each call asks
// the authenticator which backend serves it: remote when a session is
// present, local otherwise. The check runs fresh on every call, so a
// login or logout takes effect on the very next operation; errors from
// the chosen backend propagate untouched, never triggering a fallback
// to the other backend.
type Router struct {
	auth   Authenticator
	remote Backend
	local  Backend
	logger *logging.Logger
}

// NewRouter wires the router to its three collaborators.
func NewRouter(auth Authenticator, remote, local Backend, logger *logging.Logger) *Router {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Router{auth: auth, remote: remote, local: local, logger: logger}
}

func (r *Router) backend(ctx context.Context) Backend {
	if r.auth.IsAuthenticated(ctx) {
		return r.remote
	}
	return r.local
}

// List lists notes through the backend the current auth state selects.
func (r *Router) List(ctx context.Context, filter ListFilter) ([]Note, error) {
	return r.backend(ctx).List(ctx, filter)
}

// Create persists a new note; ID assignment belongs to the backend.
func (r *Router) Create(ctx context.Context, note Note) (Note, error) {
	created, err := r.backend(ctx).Create(ctx, note)
	if err != nil {
		return Note{}, err
	}
	r.logger.Info(logging.CategoryNotes, "note.created", "note created", map[string]any{"id": created.ID, "website": created.Website})
	return created, nil
}

// Update replaces a note wholesale.
func (r *Router) Update(ctx context.Context, note Note) (Note, error) {
	return r.backend(ctx).Update(ctx, note)
}

// Delete removes a note by ID.
func (r *Router) Delete(ctx context.Context, id string) error {
	return r.backend(ctx).Delete(ctx, id)
}
