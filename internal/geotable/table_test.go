package geotable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func testColumns() []Column {
	return []Column{
		{Name: "name", Type: TypeText},
		{Name: "area", Type: TypeFloat},
		{Name: "geometry", Type: TypeGeometry},
	}
}

func TestNewValidation(t *testing.T) {
	_, err := New("t", testColumns(), "name")
	require.NoError(t, err)

	_, err = New("t", []Column{{Name: "name", Type: TypeText}}, "name")
	assert.Error(t, err, "no geometry column")

	_, err = New("t", append(testColumns(), Column{Name: "geom2", Type: TypeGeometry}), "name")
	assert.Error(t, err, "two geometry columns")

	_, err = New("t", testColumns(), "missing")
	assert.Error(t, err, "primary attribute absent")
}

func TestAddRowAlignment(t *testing.T) {
	tbl, err := New("t", testColumns(), "name")
	require.NoError(t, err)

	g := geom.NewPointFlat(geom.XY, []float64{0, 0})
	require.NoError(t, tbl.AddRow([]any{"A", 1.5, g}))
	assert.Error(t, tbl.AddRow([]any{"B", 2.0}))
	assert.Len(t, tbl.Rows, 1)
}

func TestColumnLookups(t *testing.T) {
	tbl, err := New("t", testColumns(), "name")
	require.NoError(t, err)

	assert.Equal(t, 0, tbl.ColumnIndex("name"))
	assert.Equal(t, -1, tbl.ColumnIndex("nope"))
	assert.Equal(t, 2, tbl.GeometryIndex())
}

func TestGeometriesMixedSubtypes(t *testing.T) {
	tbl, err := New("t", testColumns(), "name")
	require.NoError(t, err)

	poly := geom.NewPolygonFlat(geom.XY, []float64{0, 0, 1, 0, 1, 1, 0, 0}, []int{8})
	multi := geom.NewMultiPolygonFlat(geom.XY, []float64{0, 0, 1, 0, 1, 1, 0, 0}, [][]int{{8}})
	require.NoError(t, tbl.AddRow([]any{"A", 1.0, poly}))
	require.NoError(t, tbl.AddRow([]any{"B", 2.0, multi}))

	gs := tbl.Geometries()
	require.Len(t, gs, 2)
	assert.IsType(t, &geom.Polygon{}, gs[0])
	assert.IsType(t, &geom.MultiPolygon{}, gs[1])
}

func TestGeomEqualDistinguishesSubtypes(t *testing.T) {
	poly := geom.NewPolygonFlat(geom.XY, []float64{0, 0, 1, 0, 1, 1, 0, 0}, []int{8})
	multi := geom.NewMultiPolygonFlat(geom.XY, []float64{0, 0, 1, 0, 1, 1, 0, 0}, [][]int{{8}})

	assert.False(t, GeomEqual(poly, multi, 1e-9))
	assert.True(t, GeomEqual(poly, poly, 1e-9))
}

func TestParseType(t *testing.T) {
	for tag, want := range map[string]Type{
		"text":             TypeText,
		"string":           TypeText,
		"bigint":           TypeInteger,
		"integer":          TypeInteger,
		"double precision": TypeFloat,
		"float":            TypeFloat,
		"geometry":         TypeGeometry,
	} {
		got, err := ParseType(tag)
		require.NoError(t, err, tag)
		assert.Equal(t, want, got, tag)
	}

	_, err := ParseType("blob")
	assert.Error(t, err)
}
