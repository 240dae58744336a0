// Package viewport turns a stream of map viewport changes into throttled,
// deduplicated, zoom-gated bounding-box loads.
//
// A single coordinating goroutine ([Loader.Run]) owns the debounce timer, the
// last dispatched key, and the request generation. Events reach it through
// [Loader.Notify]; state changes leave it through the handler installed with
// [WithStateHandler] and through [Loader.State] snapshots.
//
// Policy:
//
//	zoom < MinZoom      points and error cleared, status Idle, no request
//	same rounded key    event ignored (no timer reset, no state change)
//	new key             key recorded, debounce timer restarted
//	timer fires         status Loading, source called with the pending bbox
//	success             points replaced, error cleared, status Loaded
//	failure             previous points kept, status Error with message
//
// Each dispatch cancels the previous in-flight request and bumps a
// generation; a response from an older generation is dropped, so a slow
// stale response can never overwrite a newer one.
package viewport

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/heritage-sites-service/internal/domain"
)

// Defaults for the loading policy.
const (
	DefaultMinZoom  = 7
	DefaultDebounce = 450 * time.Millisecond
)

// Viewport is the visible map extent and zoom level.
type Viewport struct {
	BBox domain.BBox `json:"bbox"`
	Zoom int         `json:"zoom"`
}

// Key identifies the effective viewport. Coordinates are rounded to three
// decimal places so sub-pixel jitter maps to the same key.
func (v Viewport) Key() string {
	return fmt.Sprintf("%d|%.3f|%.3f|%.3f|%.3f",
		v.Zoom, v.BBox.MinLat, v.BBox.MinLng, v.BBox.MaxLat, v.BBox.MaxLng)
}

// Status is the loader's lifecycle state.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusLoaded
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusLoaded:
		return "loaded"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// State is a snapshot of the loader's view of the data.
type State struct {
	Status   Status         `json:"status"`
	Points   []domain.Point `json:"points"`
	Err      string         `json:"error,omitempty"`
	Viewport Viewport       `json:"viewport"`
}

// Decision reports what the loader did with one viewport event.
type Decision int

const (
	DecisionGated Decision = iota
	DecisionDuplicate
	DecisionScheduled
)

func (d Decision) String() string {
	switch d {
	case DecisionGated:
		return "gated"
	case DecisionDuplicate:
		return "duplicate"
	case DecisionScheduled:
		return "scheduled"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Source loads the points inside a bounding box.
type Source interface {
	LoadFromBbox(ctx context.Context, bbox domain.BBox) ([]domain.Point, error)
}
