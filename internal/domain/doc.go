// Package domain models archaeological-site records and the rules that turn
// loosely shaped upstream records into validated points.
//
// # Data Sources
//
// Two upstreams feed the map:
//
//	Spreadsheet export: a Google Sheets CSV published by the project team.
//	Columns are named by whoever edits the sheet, so each canonical field
//	accepts a short list of aliases (e.g. "lat" or "latitude", "soil" or
//	"solo"). The first non-empty alias wins.
//
//	IPHAN WFS: the national heritage institute's GeoServer layer of registered
//	sites (SICG:sitios), reached through a CORS proxy. Each GeoJSON feature has
//	a [lng, lat] point and provider keys such as id_bem, identificacao_bem,
//	co_iphan, ds_tipo_bem, ds_classificacao and sintese_bem.
//
// Both shapes are converted into one intermediate record and validated by the
// same routine, see [NormalizeRow] and [NormalizeFeature].
//
// # Validation
//
// Coordinates are WGS84 degrees. A record whose latitude or longitude does not
// parse as a finite number, or falls outside [-90, 90] / [-180, 180], is
// rejected with an error wrapping [ErrRejected]. Values are never clamped or
// rounded. Rejections are a local concern of ingestion: one bad row never
// fails a batch.
//
// # Identity
//
// Records without an id get "<source>-<row index>", which is unique within a
// single ingestion batch. The two sources are never merged into one set.
//
// # Filtering
//
// [Filter] applies free text, categoria and periodo criteria with AND
// semantics. Facets ([DistinctValues], [FacetsOf]) are always computed from the
// full point set, never from a filtered subset.
package domain
