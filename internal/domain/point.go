package domain

import "fmt"

// Placeholder display values applied when a source omits them.
const (
	DefaultTitle    = "Untitled"
	DefaultLocation = "Location not specified"
)

// Point is one archaeological-site record with validated coordinates.
// Optional descriptive fields are empty when the source did not provide them.
// A Point is never mutated after construction; collections are replaced whole.
type Point struct {
	ID       string  `json:"id"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Title    string  `json:"title"`
	Location string  `json:"location"`

	// Facet fields. Empty means uncategorized.
	Categoria string `json:"categoria,omitempty"`
	Periodo   string `json:"periodo,omitempty"`

	// Detail-only fields.
	Caracteristicas string `json:"caracteristicas,omitempty"`
	Soil            string `json:"soil,omitempty"`
	Risks           string `json:"risks,omitempty"`
	Responsavel     string `json:"responsavel,omitempty"`
}

// BBox is a rectangular WGS84 extent (south/west/north/east).
type BBox struct {
	MinLat float64 `json:"minLat"`
	MinLng float64 `json:"minLng"`
	MaxLat float64 `json:"maxLat"`
	MaxLng float64 `json:"maxLng"`
}

// Valid reports whether the bounds are inside WGS84 ranges with south <= north.
// West may exceed east for extents crossing the antimeridian.
func (b BBox) Valid() bool {
	return validLat(b.MinLat) && validLat(b.MaxLat) &&
		validLng(b.MinLng) && validLng(b.MaxLng) &&
		b.MinLat <= b.MaxLat
}

// Contains reports whether p lies inside the box, edges included.
func (b BBox) Contains(p Point) bool {
	if p.Lat < b.MinLat || p.Lat > b.MaxLat {
		return false
	}
	if b.MinLng <= b.MaxLng {
		return p.Lng >= b.MinLng && p.Lng <= b.MaxLng
	}
	return p.Lng >= b.MinLng || p.Lng <= b.MaxLng
}

func (b BBox) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", b.MinLng, b.MinLat, b.MaxLng, b.MaxLat)
}

// FindByID returns the point with the given id or ErrNotFound.
func FindByID(points []Point, id string) (Point, error) {
	for _, p := range points {
		if p.ID == id {
			return p, nil
		}
	}
	return Point{}, fmt.Errorf("point %q: %w", id, ErrNotFound)
}
