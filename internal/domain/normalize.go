package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Row is one tabular record keyed by header name.
type Row map[string]string

// Header aliases per canonical field, in priority order.
var (
	idAliases              = []string{"id", "ID", "Id"}
	titleAliases           = []string{"title", "titulo", "nome"}
	locationAliases        = []string{"location", "localizacao", "local"}
	latAliases             = []string{"lat", "latitude"}
	lngAliases             = []string{"lng", "lon", "longitude"}
	categoriaAliases       = []string{"categoria", "category"}
	periodoAliases         = []string{"periodo", "period"}
	soilAliases            = []string{"soil", "solo"}
	risksAliases           = []string{"risks", "riscos"}
	responsavelAliases     = []string{"responsavel", "responsible"}
	caracteristicasAliases = []string{"caracteristicas", "characteristics"}
)

// Property keys of the IPHAN sites layer.
const (
	propID          = "id_bem"
	propTitle       = "identificacao_bem"
	propCode        = "co_iphan"
	propTipo        = "ds_tipo_bem"
	propClass       = "ds_classificacao"
	propDescription = "sintese_bem"
)

var errNoPointGeometry = errors.New("feature has no point geometry")

// record is the canonical intermediate shape both source adapters produce.
type record struct {
	id       string
	lat      float64
	lng      float64
	coordErr error

	title           string
	location        string
	categoria       string
	periodo         string
	caracteristicas string
	soil            string
	risks           string
	responsavel     string
}

// NormalizeRow converts a tabular row into a Point. index is the row's
// position within the batch and sourceTag prefixes synthesized ids.
// Rejected rows return an error wrapping ErrRejected.
func NormalizeRow(row Row, index int, sourceTag string) (Point, error) {
	rec := record{
		id:              resolve(row, idAliases),
		title:           resolve(row, titleAliases),
		location:        resolve(row, locationAliases),
		categoria:       resolve(row, categoriaAliases),
		periodo:         resolve(row, periodoAliases),
		caracteristicas: resolve(row, caracteristicasAliases),
		soil:            resolve(row, soilAliases),
		risks:           resolve(row, risksAliases),
		responsavel:     resolve(row, responsavelAliases),
	}

	lat, errLat := parseCoord("lat", resolve(row, latAliases))
	lng, errLng := parseCoord("lng", resolve(row, lngAliases))
	rec.lat, rec.lng = lat, lng
	rec.coordErr = errors.Join(errLat, errLng)

	return build(rec, index, sourceTag)
}

// NormalizeFeature converts a GeoJSON feature from the sites layer into a
// Point. The geometry must be a single [lng, lat] point.
func NormalizeFeature(f *geojson.Feature, index int, sourceTag string) (Point, error) {
	if f == nil {
		return Point{}, reject("nil feature")
	}

	rec := record{
		id:              firstNonEmpty(propString(f.Properties, propID), anyString(f.ID)),
		title:           propString(f.Properties, propTitle),
		categoria:       propString(f.Properties, propTipo),
		periodo:         propString(f.Properties, propClass),
		caracteristicas: propString(f.Properties, propDescription),
	}
	if code := propString(f.Properties, propCode); code != "" {
		rec.location = "Code: " + code
	}

	if pt, ok := f.Geometry.(orb.Point); ok {
		rec.lng, rec.lat = pt.Lon(), pt.Lat()
	} else {
		rec.coordErr = errNoPointGeometry
	}

	return build(rec, index, sourceTag)
}

// build applies the shared validation and defaults.
func build(rec record, index int, sourceTag string) (Point, error) {
	if rec.coordErr != nil {
		return Point{}, reject("%v", rec.coordErr)
	}
	if !validLat(rec.lat) {
		return Point{}, reject("latitude %v out of range", rec.lat)
	}
	if !validLng(rec.lng) {
		return Point{}, reject("longitude %v out of range", rec.lng)
	}

	id := rec.id
	if id == "" {
		id = fmt.Sprintf("%s-%d", sourceTag, index)
	}

	return Point{
		ID:              id,
		Lat:             rec.lat,
		Lng:             rec.lng,
		Title:           firstNonEmpty(rec.title, DefaultTitle),
		Location:        firstNonEmpty(rec.location, DefaultLocation),
		Categoria:       rec.categoria,
		Periodo:         rec.periodo,
		Caracteristicas: rec.caracteristicas,
		Soil:            rec.soil,
		Risks:           rec.risks,
		Responsavel:     rec.responsavel,
	}, nil
}

func validLat(v float64) bool { return v >= -90 && v <= 90 }
func validLng(v float64) bool { return v >= -180 && v <= 180 }

// parseCoord parses a decimal degree. Empty, non-numeric, NaN and infinite
// values are errors.
func parseCoord(name, s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("missing %s", name)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q is not a number", name, s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s %q is not finite", name, s)
	}
	return v, nil
}

// resolve returns the first non-empty value among aliases, trimmed.
func resolve(row Row, aliases []string) string {
	for _, key := range aliases {
		if v := strings.TrimSpace(row[key]); v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func propString(props geojson.Properties, key string) string {
	if props == nil {
		return ""
	}
	return anyString(props[key])
}

// anyString renders a JSON scalar as text. Whole numbers print without an
// exponent so numeric ids stay readable.
func anyString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
