package storage

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/webstickynotes/websticky/pkg/errors"
	"github.com/webstickynotes/websticky/pkg/notes"
)

// notesKey is the settings key holding the full ordered note collection
// as one JSON array. Absence of the key means no notes.
const notesKey = "notes"

// LocalNotes persists notes on-device, in the settings table of the
// SQLite store. It generates IDs and timestamps itself so it works with
// no remote service at all.
type LocalNotes struct {
	store *Store

	// Serializes the read-modify-write of the shared note collection;
	// without it two concurrent creates could lose an append.
	mu sync.Mutex

	now   func() time.Time
	newID func() string
}

// NewLocalNotes returns a note backend over the given store.
func NewLocalNotes(store *Store) *LocalNotes {
	return &LocalNotes{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.NewString() },
	}
}

// List loads the collection and applies at most one filter predicate:
// search matches the title, otherwise website matches the source site.
func (l *LocalNotes) List(ctx context.Context, filter notes.ListFilter) ([]notes.Note, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	all, err := l.load()
	if err != nil {
		return nil, err
	}

	if filter.Search != "" {
		needle := strings.ToLower(filter.Search)
		filtered := make([]notes.Note, 0, len(all))
		for _, n := range all {
			if strings.Contains(strings.ToLower(n.Title), needle) {
				filtered = append(filtered, n)
			}
		}
		return filtered, nil
	}

	if filter.Website != "" {
		needle := strings.ToLower(filter.Website)
		filtered := make([]notes.Note, 0, len(all))
		for _, n := range all {
			if strings.Contains(strings.ToLower(n.Website), needle) {
				filtered = append(filtered, n)
			}
		}
		return filtered, nil
	}

	return all, nil
}

// Create assigns a fresh ID, stamps both timestamps, and appends.
func (l *LocalNotes) Create(ctx context.Context, note notes.Note) (notes.Note, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	all, err := l.load()
	if err != nil {
		return notes.Note{}, err
	}

	now := l.now()
	note.ID = l.newID()
	note.CreatedAt = now
	note.UpdatedAt = now

	all = append(all, note)
	if err := l.save(all); err != nil {
		return notes.Note{}, err
	}
	return note, nil
}

// Update replaces the entry matching note.ID and restamps updatedAt.
// A note without an ID is treated as a create. An unknown ID is a no-op:
// the input comes back unchanged and the collection is untouched.
func (l *LocalNotes) Update(ctx context.Context, note notes.Note) (notes.Note, error) {
	if note.ID == "" {
		return l.Create(ctx, note)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	all, err := l.load()
	if err != nil {
		return notes.Note{}, err
	}

	for i := range all {
		if all[i].ID == note.ID {
			note.CreatedAt = all[i].CreatedAt
			note.UpdatedAt = l.now()
			all[i] = note
			if err := l.save(all); err != nil {
				return notes.Note{}, err
			}
			return note, nil
		}
	}

	return note, nil
}

// Delete removes the entry with the given ID. Unknown IDs are a silent
// no-op.
func (l *LocalNotes) Delete(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	all, err := l.load()
	if err != nil {
		return err
	}

	kept := all[:0]
	for _, n := range all {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	if len(kept) == len(all) {
		return nil
	}
	return l.save(kept)
}

func (l *LocalNotes) load() ([]notes.Note, error) {
	raw, err := l.store.GetSetting(notesKey)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageRead, "failed to load local notes")
	}
	if raw == "" {
		return nil, nil
	}

	var all []notes.Note
	if err := json.Unmarshal([]byte(raw), &all); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageCorrupt, "local note collection is not valid JSON")
	}
	return all, nil
}

func (l *LocalNotes) save(all []notes.Note) error {
	data, err := json.Marshal(all)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "failed to encode local notes")
	}
	if err := l.store.SetSetting(notesKey, string(data)); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "failed to persist local notes")
	}
	return nil
}
