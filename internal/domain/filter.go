package domain

import (
	"net/url"
	"sort"
	"strings"
)

// Query holds the map filter criteria. Empty fields do not constrain.
type Query struct {
	Text      string `json:"q,omitempty"`
	Categoria string `json:"cat,omitempty"`
	Periodo   string `json:"periodo,omitempty"`
}

// URL query-string keys that carry filter state.
const (
	ParamText      = "q"
	ParamCategoria = "cat"
	ParamPeriodo   = "periodo"
)

// IsZero reports whether the query has no criteria.
func (q Query) IsZero() bool {
	return q.Text == "" && q.Categoria == "" && q.Periodo == ""
}

// QueryFromValues reads filter state from a URL query string.
// Absent parameters mean no constraint.
func QueryFromValues(v url.Values) Query {
	return Query{
		Text:      strings.TrimSpace(v.Get(ParamText)),
		Categoria: v.Get(ParamCategoria),
		Periodo:   v.Get(ParamPeriodo),
	}
}

// Values encodes the non-empty criteria so filter state can be bookmarked.
func (q Query) Values() url.Values {
	v := url.Values{}
	if q.Text != "" {
		v.Set(ParamText, q.Text)
	}
	if q.Categoria != "" {
		v.Set(ParamCategoria, q.Categoria)
	}
	if q.Periodo != "" {
		v.Set(ParamPeriodo, q.Periodo)
	}
	return v
}

// Filter returns the points matching every criterion of q, in input order.
// A zero query returns points unchanged.
func Filter(points []Point, q Query) []Point {
	if q.IsZero() {
		return points
	}

	text := strings.ToLower(q.Text)
	out := make([]Point, 0, len(points))
	for _, p := range points {
		if q.Categoria != "" && p.Categoria != q.Categoria {
			continue
		}
		if q.Periodo != "" && p.Periodo != q.Periodo {
			continue
		}
		if text != "" && !matchesText(p, text) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// matchesText expects needle already lowercased.
func matchesText(p Point, needle string) bool {
	return strings.Contains(strings.ToLower(p.Title), needle) ||
		strings.Contains(strings.ToLower(p.Location), needle) ||
		strings.Contains(strings.ToLower(p.Responsavel), needle)
}

// Field selects a facet field.
type Field int

const (
	FieldCategoria Field = iota
	FieldPeriodo
)

// Value returns the field of p.
func (f Field) Value(p Point) string {
	switch f {
	case FieldCategoria:
		return p.Categoria
	case FieldPeriodo:
		return p.Periodo
	default:
		return ""
	}
}

// DistinctValues returns the sorted, deduplicated non-empty values of field.
func DistinctValues(points []Point, field Field) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, p := range points {
		v := field.Value(p)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Facets lists the filter choices available in a point set.
type Facets struct {
	Categorias []string `json:"categorias"`
	Periodos   []string `json:"periodos"`
}

// FacetsOf computes facets from the full point set.
func FacetsOf(points []Point) Facets {
	return Facets{
		Categorias: DistinctValues(points, FieldCategoria),
		Periodos:   DistinctValues(points, FieldPeriodo),
	}
}
