package geotable

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkt"
)

// ErrInvalidGeometryText indicates a WKT string that cannot be decoded into a
// geometry: unbalanced coordinate groups, an unrecognized keyword, or a
// non-numeric coordinate.
var ErrInvalidGeometryText = eris.New("geotable: invalid geometry text")

// EncodeWKT serializes a geometry to well-known text. Deterministic: the same
// geometry always yields the same string. The CRS is not part of the encoding;
// callers track it as dataset-level metadata (EPSG:4326 in this pipeline).
func EncodeWKT(g geom.T) (string, error) {
	if g == nil {
		return "", eris.New("geotable: encode nil geometry")
	}
	s, err := wkt.Marshal(g)
	if err != nil {
		return "", eris.Wrap(err, "geotable: encode WKT")
	}
	return s, nil
}

// DecodeWKT parses well-known text back into a geometry. The result is
// geometrically identical to the encoded geometry: same subtype, same vertex
// sequence, coordinates within the text representation's decimal precision.
func DecodeWKT(s string) (geom.T, error) {
	g, err := wkt.Unmarshal(s)
	if err != nil {
		return nil, eris.Wrapf(ErrInvalidGeometryText, "%v", err)
	}
	return g, nil
}
