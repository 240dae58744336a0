package domain

import (
	"net/url"
	"strconv"
)

// LatLng is a bare coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// MapConfig is the initial view handed to map widgets.
type MapConfig struct {
	Center  LatLng `json:"center"`
	Zoom    int    `json:"zoom"`
	MinZoom int    `json:"minZoom"`
	MaxZoom int    `json:"maxZoom"`
}

// DefaultMapConfig centers on the project region in western São Paulo state.
var DefaultMapConfig = MapConfig{
	Center:  LatLng{Lat: -21.124722, Lng: -51.838333},
	Zoom:    7,
	MinZoom: 5,
	MaxZoom: 18,
}

// KnownCategorias and KnownPeriodos are the vocabularies the spreadsheet
// editors are asked to use. Facets still come from the data.
var (
	KnownCategorias = []string{"Arqueológico", "Histórico", "Paleontológico", "Cultural", "Outro"}
	KnownPeriodos   = []string{"Pré-colonial", "Colonial", "Imperial", "República", "Contemporâneo"}
)

const directionsBaseURL = "https://www.google.com/maps/dir/"

// DirectionsURL builds a driving-directions link to p.
func DirectionsURL(p Point) string {
	dest := strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lng, 'f', -1, 64)
	v := url.Values{"api": {"1"}, "destination": {dest}}
	return directionsBaseURL + "?" + v.Encode()
}
