package catalog

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/heritage-sites-service/internal/domain"
)

var loadedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixture() []domain.Point {
	return []domain.Point{
		{ID: "1", Lat: -21.1, Lng: -51.8, Title: "Sítio Lagoa", Location: "Presidente Epitácio", Categoria: "Arqueológico", Periodo: "Pré-colonial"},
		{ID: "2", Lat: -21.5, Lng: -51.5, Title: "Casa Velha", Location: "Rosana", Categoria: "Histórico", Periodo: "Colonial"},
		{ID: "3", Lat: -23.5, Lng: -46.6, Title: "Sambaqui", Location: "Santos", Categoria: "Arqueológico", Periodo: "Pré-colonial"},
		{ID: "1", Lat: 0, Lng: 0, Title: "Duplicate id"},
	}
}

func pointIDs(points []domain.Point) []string {
	out := make([]string, len(points))
	for i, p := range points {
		out[i] = p.ID + ":" + p.Title
	}
	return out
}

func TestStore_NotLoaded(t *testing.T) {
	s := NewStore()

	_, ok := s.Snapshot()
	assert.False(t, ok)

	_, err := s.Search(domain.Query{}, nil)
	require.ErrorIs(t, err, ErrNotLoaded)

	_, err = s.Get("1")
	require.ErrorIs(t, err, ErrNotLoaded)
}

func TestStore_Search(t *testing.T) {
	s := NewStore()
	s.Replace(fixture(), loadedAt)

	region := &domain.BBox{MinLat: -22, MinLng: -52, MaxLat: -21, MaxLng: -51}

	tests := []struct {
		name  string
		query domain.Query
		bbox  *domain.BBox
		want  []string
	}{
		{
			name: "everything",
			want: []string{"1:Sítio Lagoa", "2:Casa Velha", "3:Sambaqui", "1:Duplicate id"},
		},
		{
			name:  "category",
			query: domain.Query{Categoria: "Arqueológico"},
			want:  []string{"1:Sítio Lagoa", "3:Sambaqui"},
		},
		{
			name: "bbox",
			bbox: region,
			want: []string{"1:Sítio Lagoa", "2:Casa Velha"},
		},
		{
			name:  "bbox and text",
			query: domain.Query{Text: "rosana"},
			bbox:  region,
			want:  []string{"2:Casa Velha"},
		},
		{
			name:  "no match",
			query: domain.Query{Periodo: "Imperial"},
			want:  []string{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := s.Search(tc.query, tc.bbox)
			require.NoError(t, err)

			if diff := cmp.Diff(tc.want, pointIDs(res.Points)); diff != "" {
				t.Errorf("points mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, len(tc.want), res.Matched)
			assert.Equal(t, 4, res.Total)
			assert.Equal(t, tc.query, res.Query)
			assert.Equal(t, loadedAt, res.LoadedAt)
			assert.Equal(t, []string{"Arqueológico", "Histórico"}, res.Facets.Categorias)
			assert.Equal(t, []string{"Colonial", "Pré-colonial"}, res.Facets.Periodos)
		})
	}
}

func TestStore_Get(t *testing.T) {
	s := NewStore()
	s.Replace(fixture(), loadedAt)

	p, err := s.Get("1")
	require.NoError(t, err)
	assert.Equal(t, "Sítio Lagoa", p.Title, "first occurrence wins")

	_, err = s.Get("missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), `"missing"`)
}

func TestStore_ReplaceSwapsWholeSnapshot(t *testing.T) {
	s := NewStore()
	first := s.Replace(fixture(), loadedAt)
	second := s.Replace([]domain.Point{{ID: "9", Title: "Only"}}, loadedAt.Add(time.Minute))

	assert.Len(t, first.Points, 4, "earlier snapshot is untouched")

	current, ok := s.Snapshot()
	require.True(t, ok)
	assert.Same(t, second, current)

	res, err := s.Search(domain.Query{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, []string{}, res.Facets.Categorias)
}

func TestStore_ReplaceNil(t *testing.T) {
	s := NewStore()
	s.Replace(nil, loadedAt)

	res, err := s.Search(domain.Query{}, nil)
	require.NoError(t, err)
	assert.NotNil(t, res.Points)
	assert.Empty(t, res.Points)
}

func TestStore_ConcurrentReaders(t *testing.T) {
	s := NewStore()
	s.Replace(fixture(), loadedAt)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				res, err := s.Search(domain.Query{Categoria: "Arqueológico"}, nil)
				if err != nil || (res.Total != 4 && res.Total != 2) {
					t.Errorf("unexpected result: total=%d err=%v", res.Total, err)
					return
				}
			}
		}()
	}
	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			s.Replace(fixture()[:2], loadedAt)
		} else {
			s.Replace(fixture(), loadedAt)
		}
	}
	wg.Wait()
}
