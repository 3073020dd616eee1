// Package geotable defines the canonical in-memory geospatial table exchanged
// between the source loaders and the relational sync layer: ordered typed
// attribute columns plus exactly one geometry column, with a designated
// primary attribute as row identity.
package geotable

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Type is the declared semantic type of an attribute column.
type Type string

const (
	TypeText     Type = "text"
	TypeInteger  Type = "integer"
	TypeFloat    Type = "float"
	TypeGeometry Type = "geometry"
)

// ParseType maps a storage or semantic type tag to a column Type.
func ParseType(tag string) (Type, error) {
	switch tag {
	case "text", "string", "varchar":
		return TypeText, nil
	case "integer", "int", "bigint", "smallint":
		return TypeInteger, nil
	case "float", "double precision", "real", "numeric":
		return TypeFloat, nil
	case "geometry":
		return TypeGeometry, nil
	default:
		return "", eris.Errorf("geotable: unknown type tag %q", tag)
	}
}

// Column is a named, typed attribute.
type Column struct {
	Name string
	Type Type
}

// Table is a canonical geospatial table. Rows are positionally aligned with
// Columns. GeometryColumn holds geom.T values; subtypes may vary row to row
// (Polygon and MultiPolygon coexisting is allowed). Primary names the
// attribute whose values identify rows; IndexAttr, when non-empty, names the
// column used as the row index (empty means positional).
type Table struct {
	Name      string
	Columns   []Column
	Rows      [][]any
	Primary   string
	IndexAttr string
}

// New builds a Table after validating that exactly one column carries the
// geometry type and, when a primary attribute is named, that it exists.
// An empty primary means rows carry only positional identity (used when
// reconstructing tables on read).
func New(name string, columns []Column, primary string) (*Table, error) {
	geomCount := 0
	primaryFound := false
	for _, c := range columns {
		if c.Type == TypeGeometry {
			geomCount++
		}
		if c.Name == primary {
			primaryFound = true
		}
	}
	if geomCount != 1 {
		return nil, eris.Errorf("geotable: table %s must have exactly one geometry column, got %d", name, geomCount)
	}
	if primary != "" && !primaryFound {
		return nil, eris.Errorf("geotable: table %s has no primary attribute %q", name, primary)
	}
	return &Table{Name: name, Columns: columns, Primary: primary}, nil
}

// AddRow appends a row. The row must be positionally aligned with Columns.
func (t *Table) AddRow(row []any) error {
	if len(row) != len(t.Columns) {
		return eris.Errorf("geotable: row has %d values, table %s has %d columns", len(row), t.Name, len(t.Columns))
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// GeometryIndex returns the position of the geometry column, or -1.
func (t *Table) GeometryIndex() int {
	for i, c := range t.Columns {
		if c.Type == TypeGeometry {
			return i
		}
	}
	return -1
}

// Geometries returns the geometry column values in row order.
func (t *Table) Geometries() []geom.T {
	gi := t.GeometryIndex()
	if gi < 0 {
		return nil
	}
	out := make([]geom.T, 0, len(t.Rows))
	for _, row := range t.Rows {
		g, _ := row[gi].(geom.T)
		out = append(out, g)
	}
	return out
}

// GeomEqual reports geometric equality: same concrete subtype, same layout,
// and coordinates matching within eps. Used by tests to check the round-trip
// law without requiring bit-exact floats.
func GeomEqual(a, b geom.T, eps float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if geomSubtype(a) != geomSubtype(b) {
		return false
	}
	if a.Layout() != b.Layout() {
		return false
	}
	fa, fb := a.FlatCoords(), b.FlatCoords()
	if len(fa) != len(fb) {
		return false
	}
	for i := range fa {
		if math.Abs(fa[i]-fb[i]) > eps {
			return false
		}
	}
	return equalInts(endss(a), endss(b))
}

func geomSubtype(g geom.T) string {
	switch g.(type) {
	case *geom.Point:
		return "Point"
	case *geom.LineString:
		return "LineString"
	case *geom.Polygon:
		return "Polygon"
	case *geom.MultiPoint:
		return "MultiPoint"
	case *geom.MultiLineString:
		return "MultiLineString"
	case *geom.MultiPolygon:
		return "MultiPolygon"
	case *geom.GeometryCollection:
		return "GeometryCollection"
	default:
		return ""
	}
}

// endss flattens the part structure of a geometry so multi-part shapes with
// identical coordinates but different part boundaries compare unequal.
func endss(g geom.T) []int {
	switch t := g.(type) {
	case *geom.Polygon:
		return t.Ends()
	case *geom.MultiLineString:
		return t.Ends()
	case *geom.MultiPolygon:
		var flat []int
		for _, ends := range t.Endss() {
			flat = append(flat, ends...)
			flat = append(flat, -1)
		}
		return flat
	default:
		return nil
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
