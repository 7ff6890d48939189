// Package notes defines the sticky-note domain model and the routing
// layer that picks a persistence backend per call.
package notes

import (
	"context"
	"time"
)

// Color is the sticky-note color swatch.
type Color string

const (
	ColorYellow Color = "yellow"
	ColorPink   Color = "pink"
	ColorBlue   Color = "blue"
)

// Position is the note's anchor point on the annotated page, in page
// coordinates.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is the rendered note size in pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Note is a positioned annotation attached to a web page. The JSON field
// names are the wire contract shared by the remote API, the local store,
// and the relay envelope payloads.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Website   string    `json:"website"`
	Tags      []string  `json:"tags"`
	Color     Color     `json:"color"`
	Position  Position  `json:"position"`
	Size      Size      `json:"size"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// ListFilter narrows a list call. Search takes precedence over Website;
// at most one predicate ever applies.
type ListFilter struct {
	Search  string `json:"search,omitempty"`
	Website string `json:"website,omitempty"`
}

// Backend is a concrete note persistence target. Both the remote API
// client and the on-device store implement it, which is what lets the
// router switch per call.
type Backend interface {
	List(ctx context.Context, filter ListFilter) ([]Note, error)
	Create(ctx context.Context, note Note) (Note, error)
	Update(ctx context.Context, note Note) (Note, error)
	Delete(ctx context.Context, id string) error
}
