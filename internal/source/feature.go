package source

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/mark-mcdougall/data-analytics/internal/fetcher"
	"github.com/mark-mcdougall/data-analytics/internal/geotable"
)

// FeatureEndpoint names one feature-collection endpoint and declares, in
// provider order, the property fields each feature carries. Position 0 is the
// provider's object identifier and the last position its internal GUID; both
// are dropped. The remaining eight positions map onto FeatureVocabulary.
type FeatureEndpoint struct {
	Name   string   `yaml:"name" mapstructure:"name"`
	URL    string   `yaml:"url" mapstructure:"url"`
	Fields []string `yaml:"fields" mapstructure:"fields"`
}

// featureFieldCount = OBJECTID + the eight semantic fields + GlobalID.
const featureFieldCount = 10

// LoadFeatureService fetches a GeoJSON feature collection and converts it to
// a canonical table with the fixed attribute vocabulary, "code" as primary.
func LoadFeatureService(ctx context.Context, f fetcher.Fetcher, ep FeatureEndpoint) (*geotable.Table, error) {
	if len(ep.Fields) != featureFieldCount {
		return nil, eris.Wrapf(ErrSchemaMismatch, "endpoint %s declares %d fields, want %d", ep.Name, len(ep.Fields), featureFieldCount)
	}

	body, err := f.Download(ctx, ep.URL)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read feature collection %s", ep.Name)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(err, "source: parse feature collection %s", ep.Name)
	}

	columns := make([]geotable.Column, 0, len(FeatureVocabulary)+1)
	for _, name := range FeatureVocabulary {
		columns = append(columns, geotable.Column{Name: name, Type: vocabularyType(name)})
	}
	columns = append(columns, geotable.Column{Name: "geometry", Type: geotable.TypeGeometry})

	tbl, err := geotable.New(ep.Name, columns, "code")
	if err != nil {
		return nil, err
	}

	// Semantic fields sit between the object identifier and the GUID.
	semantic := ep.Fields[1 : featureFieldCount-1]

	for i, feat := range fc.Features {
		if len(feat.Properties) != featureFieldCount {
			return nil, eris.Wrapf(ErrSchemaMismatch, "endpoint %s feature %d has %d properties, want %d", ep.Name, i, len(feat.Properties), featureFieldCount)
		}

		row := make([]any, 0, len(columns))
		for pos, field := range semantic {
			raw, ok := feat.Properties[field]
			if !ok {
				return nil, eris.Wrapf(ErrSchemaMismatch, "endpoint %s feature %d missing field %s", ep.Name, i, field)
			}
			v, convErr := vocabularyValue(FeatureVocabulary[pos], raw)
			if convErr != nil {
				return nil, eris.Wrapf(convErr, "source: endpoint %s feature %d field %s", ep.Name, i, field)
			}
			row = append(row, v)
		}

		g, geomErr := decodeFeatureGeometry(feat)
		if geomErr != nil {
			return nil, eris.Wrapf(geomErr, "source: endpoint %s feature %d", ep.Name, i)
		}
		row = append(row, g)

		if err := tbl.AddRow(row); err != nil {
			return nil, err
		}
	}

	zap.L().Info("feature service loaded",
		zap.String("component", "source.feature"),
		zap.String("table", ep.Name),
		zap.Int("rows", len(tbl.Rows)),
	)
	return tbl, nil
}

func decodeFeatureGeometry(feat *geojson.Feature) (geom.T, error) {
	if feat.Geometry == nil {
		return nil, eris.New("feature has no geometry")
	}
	return feat.Geometry, nil
}

// vocabularyType returns the declared semantic type for a canonical attribute.
func vocabularyType(name string) geotable.Type {
	switch name {
	case "easting", "northing":
		return geotable.TypeInteger
	case "longitude", "latitude", "shape_area", "shape_length":
		return geotable.TypeFloat
	default:
		return geotable.TypeText
	}
}

// vocabularyValue coerces a raw GeoJSON property to its canonical attribute
// type. JSON numbers arrive as float64; fixed-width coordinates must be whole.
func vocabularyValue(name string, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch vocabularyType(name) {
	case geotable.TypeInteger:
		n, ok := raw.(float64)
		if !ok {
			return nil, eris.Errorf("field %s: want number, got %T", name, raw)
		}
		i := int64(n)
		if float64(i) != n {
			return nil, eris.Errorf("field %s: %v is not a whole number", name, n)
		}
		return i, nil
	case geotable.TypeFloat:
		n, ok := raw.(float64)
		if !ok {
			return nil, eris.Errorf("field %s: want number, got %T", name, raw)
		}
		return n, nil
	default:
		s, ok := raw.(string)
		if !ok {
			return nil, eris.Errorf("field %s: want string, got %T", name, raw)
		}
		if name == "name" {
			return CleanName(s), nil
		}
		return s, nil
	}
}

// Suffixes some providers append to region names; stripped during cleanup.
var nameSuffixes = []string{" Euro Region"}

// CleanName normalizes a region name: trims whitespace, strips provider
// suffixes, and title-cases. Idempotent: CleanName(CleanName(s)) == CleanName(s).
// Safe for concurrent callers.
func CleanName(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	// cases.Caser is stateful; build one per call, never share.
	s = cases.Title(language.BritishEnglish).String(strings.ToLower(s))
	for _, suf := range nameSuffixes {
		s = strings.TrimSuffix(s, suf)
	}
	return s
}
