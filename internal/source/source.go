// Package source loads provider payloads into canonical geospatial tables.
// Two variants are supported: zipped shapefile archives (one table per
// contained shapefile) and GeoJSON feature services (one table per endpoint,
// renamed to a fixed attribute vocabulary). Both produce tables with EPSG:4326
// longitude/latitude coordinates.
package source

import "github.com/rotisserie/eris"

// ErrSchemaMismatch indicates a source payload that does not match the
// expected column vocabulary or position.
var ErrSchemaMismatch = eris.New("source: schema mismatch")

// Canonical attribute vocabulary produced by the feature-service loader, in
// storage order. The geometry column is appended after these.
var FeatureVocabulary = []string{
	"code", "name", "easting", "northing",
	"longitude", "latitude", "shape_area", "shape_length",
}
