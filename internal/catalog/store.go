// Package catalog holds the in-memory point collection served by the API.
package catalog

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/heritage-sites-service/internal/domain"
	"github.com/couchcryptid/heritage-sites-service/internal/spatial"
)

// ErrNotLoaded is returned until the first snapshot is stored.
var ErrNotLoaded = errors.New("catalog not loaded")

// Snapshot is one immutable generation of the collection.
type Snapshot struct {
	Points   []domain.Point
	Facets   domain.Facets
	LoadedAt time.Time

	index *spatial.Index
	byID  map[string]int
}

// Result is the answer to a Search.
type Result struct {
	Points   []domain.Point `json:"points"`
	Matched  int            `json:"matched"`
	Total    int            `json:"total"`
	Facets   domain.Facets  `json:"facets"`
	Query    domain.Query   `json:"query"`
	LoadedAt time.Time      `json:"loadedAt"`
}

// Store publishes snapshots to concurrent readers. Replace swaps the whole
// collection; readers never see a partially built one.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Replace builds a snapshot from points and makes it current. The caller must
// not modify points afterwards.
func (s *Store) Replace(points []domain.Point, loadedAt time.Time) *Snapshot {
	if points == nil {
		points = []domain.Point{}
	}
	byID := make(map[string]int, len(points))
	for i, p := range points {
		// First occurrence wins, matching a linear lookup.
		if _, ok := byID[p.ID]; !ok {
			byID[p.ID] = i
		}
	}

	snap := &Snapshot{
		Points:   points,
		Facets:   domain.FacetsOf(points),
		LoadedAt: loadedAt,
		index:    spatial.New(points),
		byID:     byID,
	}
	s.current.Store(snap)
	return snap
}

// Snapshot returns the current snapshot, or false before the first Replace.
func (s *Store) Snapshot() (*Snapshot, bool) {
	snap := s.current.Load()
	return snap, snap != nil
}

// Search filters the current collection. A nil bbox means the whole
// collection; facets always describe the unfiltered set.
func (s *Store) Search(q domain.Query, bbox *domain.BBox) (Result, error) {
	snap, ok := s.Snapshot()
	if !ok {
		return Result{}, ErrNotLoaded
	}

	candidates := snap.Points
	if bbox != nil {
		candidates = snap.index.Within(*bbox)
	}
	points := domain.Filter(candidates, q)

	return Result{
		Points:   points,
		Matched:  len(points),
		Total:    len(snap.Points),
		Facets:   snap.Facets,
		Query:    q,
		LoadedAt: snap.LoadedAt,
	}, nil
}

// Get returns the point with the given id.
func (s *Store) Get(id string) (domain.Point, error) {
	snap, ok := s.Snapshot()
	if !ok {
		return domain.Point{}, ErrNotLoaded
	}
	i, ok := snap.byID[id]
	if !ok {
		return domain.Point{}, fmt.Errorf("point %q: %w", id, domain.ErrNotFound)
	}
	return snap.Points[i], nil
}
