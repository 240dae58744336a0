// Package spatial provides a read-only R-tree over a point set for
// bounding-box lookups.
package spatial

import (
	"sort"

	"github.com/dhconnelly/rtreego"

	"github.com/couchcryptid/heritage-sites-service/internal/domain"
)

// Points are stored as tiny squares; rtreego rejects zero-size rectangles.
const pointTolerance = 1e-9

// minQuerySide keeps degenerate query boxes (a single point) valid.
const minQuerySide = 1e-9

// Index answers bounding-box queries over an immutable point slice. Results
// come back in the order of the slice the index was built from.
type Index struct {
	points []domain.Point
	rtree  *rtreego.Rtree
}

type indexedPoint struct {
	pos  int
	rect rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (p *indexedPoint) Bounds() rtreego.Rect {
	return p.rect
}

// New builds an index. The caller must not modify points afterwards.
func New(points []domain.Point) *Index {
	rtree := rtreego.NewTree(2, 25, 50)
	for i, p := range points {
		rtree.Insert(&indexedPoint{
			pos:  i,
			rect: rtreego.Point{p.Lng, p.Lat}.ToRect(pointTolerance),
		})
	}
	return &Index{points: points, rtree: rtree}
}

// Len returns the number of indexed points.
func (x *Index) Len() int {
	return len(x.points)
}

// Within returns the points inside b, edges included. A box whose MinLng is
// greater than its MaxLng crosses the antimeridian.
func (x *Index) Within(b domain.BBox) []domain.Point {
	positions := x.positions(b)
	out := make([]domain.Point, 0, len(positions))
	for _, pos := range positions {
		out = append(out, x.points[pos])
	}
	return out
}

func (x *Index) positions(b domain.BBox) []int {
	var hits []rtreego.Spatial
	if b.MinLng > b.MaxLng {
		hits = append(hits, x.search(b.MinLat, b.MinLng, b.MaxLat, 180)...)
		hits = append(hits, x.search(b.MinLat, -180, b.MaxLat, b.MaxLng)...)
	} else {
		hits = x.search(b.MinLat, b.MinLng, b.MaxLat, b.MaxLng)
	}

	seen := make(map[int]struct{}, len(hits))
	positions := make([]int, 0, len(hits))
	for _, h := range hits {
		pos := h.(*indexedPoint).pos
		if _, dup := seen[pos]; dup {
			continue
		}
		seen[pos] = struct{}{}
		// The tree works on padded rectangles; the exact test decides.
		if b.Contains(x.points[pos]) {
			positions = append(positions, pos)
		}
	}
	sort.Ints(positions)
	return positions
}

func (x *Index) search(minLat, minLng, maxLat, maxLng float64) []rtreego.Spatial {
	rect, err := rtreego.NewRect(
		rtreego.Point{minLng, minLat},
		[]float64{max(maxLng-minLng, minQuerySide), max(maxLat-minLat, minQuerySide)},
	)
	if err != nil {
		return nil
	}
	return x.rtree.SearchIntersect(rect)
}
