package geosync

import (
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/mark-mcdougall/data-analytics/internal/geotable"
)

// encodeGeomCell serializes one geometry cell value to WKT text for storage.
func encodeGeomCell(v any) (string, error) {
	g, ok := v.(geom.T)
	if !ok {
		return "", eris.Errorf("geosync: geometry cell holds %T, not a geometry", v)
	}
	return geotable.EncodeWKT(g)
}

// coerce converts a stored value to the column's semantic type. Fixed-width
// numeric coercions must not lose precision within the declared width; an
// out-of-range or unparseable value is an error, not a truncation.
func coerce(v any, t geotable.Type) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case geotable.TypeText:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprintf("%v", v), nil

	case geotable.TypeInteger:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int16:
			return int64(n), nil
		case float64:
			i := int64(n)
			if float64(i) != n {
				return nil, eris.Errorf("geosync: value %v is not an integer", n)
			}
			return i, nil
		case string:
			i, err := strconv.ParseInt(n, 10, 64)
			if err != nil {
				return nil, eris.Wrapf(err, "geosync: parse integer %q", n)
			}
			return i, nil
		default:
			return nil, eris.Errorf("geosync: cannot coerce %T to integer", v)
		}

	case geotable.TypeFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case int:
			return float64(n), nil
		case string:
			f, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return nil, eris.Wrapf(err, "geosync: parse float %q", n)
			}
			return f, nil
		default:
			return nil, eris.Errorf("geosync: cannot coerce %T to float", v)
		}

	default:
		return v, nil
	}
}
