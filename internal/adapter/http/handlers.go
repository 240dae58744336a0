package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/skip2/go-qrcode"

	"github.com/couchcryptid/heritage-sites-service/internal/catalog"
	"github.com/couchcryptid/heritage-sites-service/internal/domain"
	"github.com/couchcryptid/heritage-sites-service/internal/viewport"
)

const (
	paramBBox = "bbox"
	qrSize    = 256
)

type configResponse struct {
	Map             domain.MapConfig `json:"map"`
	ViewportMinZoom int              `json:"viewportMinZoom"`
	Categorias      []string         `json:"categorias"`
	Periodos        []string         `json:"periodos"`
}

type sitesResponse struct {
	Points []domain.Point `json:"points"`
	Count  int            `json:"count"`
	Gated  bool           `json:"gated"`
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, configResponse{
		Map:             domain.DefaultMapConfig,
		ViewportMinZoom: s.deps.MinZoom,
		Categorias:      domain.KnownCategorias,
		Periodos:        domain.KnownPeriodos,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	q := domain.QueryFromValues(values)

	var bbox *domain.BBox
	if raw := values.Get(paramBBox); raw != "" {
		b, err := parseBBox(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		bbox = &b
	}

	res, err := s.deps.Catalog.Search(q, bbox)
	if err != nil {
		s.writeLookupError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePoint(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDirections(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookup(w, r)
	if !ok {
		return
	}
	http.Redirect(w, r, domain.DirectionsURL(p), http.StatusFound)
}

func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookup(w, r)
	if !ok {
		return
	}
	png, err := qrcode.Encode(domain.DirectionsURL(p), qrcode.Medium, qrSize)
	if err != nil {
		s.logger.Error("qr encode failed", "id", p.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "qr encode failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (s *Server) handleSites(w http.ResponseWriter, r *http.Request) {
	v, err := parseViewport(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if v.Zoom < s.deps.MinZoom {
		writeJSON(w, http.StatusOK, sitesResponse{Points: []domain.Point{}, Gated: true})
		return
	}

	points, err := s.deps.Sites.Load(r.Context(), v)
	if err != nil {
		s.logger.Warn("sites load failed", "bbox", v.BBox.String(), "zoom", v.Zoom, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if points == nil {
		points = []domain.Point{}
	}
	writeJSON(w, http.StatusOK, sitesResponse{Points: points, Count: len(points)})
}

// lookup resolves the {id} path value, writing the error response itself
// when the point cannot be returned.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (domain.Point, bool) {
	id := r.PathValue("id")
	p, err := s.deps.Catalog.Get(id)
	if err != nil {
		s.writeLookupError(w, err, id)
		return domain.Point{}, false
	}
	return p, true
}

func (s *Server) writeLookupError(w http.ResponseWriter, err error, id string) {
	switch {
	case errors.Is(err, catalog.ErrNotLoaded):
		writeError(w, http.StatusServiceUnavailable, "points not loaded yet")
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": domain.ErrNotFound.Error(),
			"id":    id,
		})
	default:
		s.logger.Error("catalog lookup failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// parseBBox reads "minLng,minLat,maxLng,maxLat".
func parseBBox(raw string) (domain.BBox, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return domain.BBox{}, fmt.Errorf("invalid bbox %q: want minLng,minLat,maxLng,maxLat", raw)
	}
	var f [4]float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return domain.BBox{}, fmt.Errorf("invalid bbox %q: %w", raw, err)
		}
		f[i] = v
	}
	b := domain.BBox{MinLng: f[0], MinLat: f[1], MaxLng: f[2], MaxLat: f[3]}
	if !b.Valid() {
		return domain.BBox{}, fmt.Errorf("invalid bbox %q: out of range", raw)
	}
	return b, nil
}

func parseViewport(values url.Values) (viewport.Viewport, error) {
	var v viewport.Viewport
	fields := []struct {
		key string
		dst *float64
	}{
		{"minLat", &v.BBox.MinLat},
		{"minLng", &v.BBox.MinLng},
		{"maxLat", &v.BBox.MaxLat},
		{"maxLng", &v.BBox.MaxLng},
	}
	for _, f := range fields {
		val, err := strconv.ParseFloat(values.Get(f.key), 64)
		if err != nil {
			return viewport.Viewport{}, fmt.Errorf("invalid %s", f.key)
		}
		*f.dst = val
	}

	zoom, err := strconv.Atoi(values.Get("zoom"))
	if err != nil {
		return viewport.Viewport{}, errors.New("invalid zoom")
	}
	v.Zoom = zoom

	if !v.BBox.Valid() {
		return viewport.Viewport{}, errors.New("invalid bounds")
	}
	return v, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}
