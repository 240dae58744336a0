// Package view holds the presentation state of one map session: the loaded
// points, the active filter, the facets, and the selected point.
package view

import (
	"sync"

	"github.com/couchcryptid/heritage-sites-service/internal/domain"
	"github.com/couchcryptid/heritage-sites-service/internal/viewport"
)

// Selection holds at most one point. The zero value is empty.
type Selection struct {
	point domain.Point
	ok    bool
}

// Select replaces the current selection.
func (s *Selection) Select(p domain.Point) {
	s.point, s.ok = p, true
}

// Clear empties the selection.
func (s *Selection) Clear() {
	s.point, s.ok = domain.Point{}, false
}

// Current returns the selected point, if any.
func (s Selection) Current() (domain.Point, bool) {
	return s.point, s.ok
}

// SelectionChange is emitted whenever the selection is set or cleared.
type SelectionChange struct {
	Point    domain.Point
	Selected bool
}

// Recenter returns where the map should move for this change. Clearing does
// not move the map.
func (c SelectionChange) Recenter() (domain.LatLng, bool) {
	if !c.Selected {
		return domain.LatLng{}, false
	}
	return domain.LatLng{Lat: c.Point.Lat, Lng: c.Point.Lng}, true
}

// Snapshot is a read-only copy of the view for rendering.
type Snapshot struct {
	Status   viewport.Status `json:"status"`
	Error    string          `json:"error,omitempty"`
	Query    domain.Query    `json:"query"`
	Facets   domain.Facets   `json:"facets"`
	Total    int             `json:"total"`
	Visible  []domain.Point  `json:"visible"`
	Selected *domain.Point   `json:"selected,omitempty"`
}

// MapView is the state container a session shares between its loader,
// filter controls, and selection handlers.
type MapView struct {
	mu        sync.RWMutex
	points    []domain.Point
	facets    domain.Facets
	query     domain.Query
	visible   []domain.Point
	selection Selection
	status    viewport.Status
	err       string

	onSelection func(SelectionChange)
}

// New returns an empty view. onSelection may be nil; it runs after the
// change is applied and outside the view's lock.
func New(onSelection func(SelectionChange)) *MapView {
	return &MapView{
		points:      []domain.Point{},
		facets:      domain.FacetsOf(nil),
		visible:     []domain.Point{},
		onSelection: onSelection,
	}
}

// SetPoints replaces the point set and marks the view loaded.
func (m *MapView) SetPoints(points []domain.Point) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replace(points)
	m.status = viewport.StatusLoaded
	m.err = ""
}

// SetError records a failed load. The current points stay visible.
func (m *MapView) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = viewport.StatusError
	m.err = err.Error()
}

// ApplyLoaderState mirrors a viewport loader state into the view.
func (m *MapView) ApplyLoaderState(s viewport.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replace(s.Points)
	m.status = s.Status
	m.err = s.Err
}

// SetQuery changes the filter. Facets are unaffected.
func (m *MapView) SetQuery(q domain.Query) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.query = q
	m.visible = domain.Filter(m.points, q)
}

// Select focuses p.
func (m *MapView) Select(p domain.Point) {
	m.mu.Lock()
	m.selection.Select(p)
	m.mu.Unlock()
	m.emit(SelectionChange{Point: p, Selected: true})
}

// SelectByID focuses the loaded point with the given id.
func (m *MapView) SelectByID(id string) error {
	m.mu.RLock()
	p, err := domain.FindByID(m.points, id)
	m.mu.RUnlock()
	if err != nil {
		return err
	}
	m.Select(p)
	return nil
}

// Clear drops the selection, as on closing the detail panel or clicking
// the map background.
func (m *MapView) Clear() {
	m.mu.Lock()
	m.selection.Clear()
	m.mu.Unlock()
	m.emit(SelectionChange{})
}

// Selected returns the focused point, if any.
func (m *MapView) Selected() (domain.Point, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selection.Current()
}

// Snapshot copies the current state.
func (m *MapView) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{
		Status:  m.status,
		Error:   m.err,
		Query:   m.query,
		Facets:  m.facets,
		Total:   len(m.points),
		Visible: m.visible,
	}
	if p, ok := m.selection.Current(); ok {
		s.Selected = &p
	}
	return s
}

func (m *MapView) replace(points []domain.Point) {
	if points == nil {
		points = []domain.Point{}
	}
	m.points = points
	m.facets = domain.FacetsOf(points)
	m.visible = domain.Filter(points, m.query)
}

func (m *MapView) emit(c SelectionChange) {
	if m.onSelection != nil {
		m.onSelection(c)
	}
}
