package geosync

import (
	"context"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/mark-mcdougall/data-analytics/internal/geotable"
)

func triangle(offset float64) *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{
		offset, offset, offset + 1, offset, offset + 1, offset + 1, offset, offset,
	}, []int{8})
}

func sampleTable(t *testing.T, name string) *geotable.Table {
	t.Helper()
	tbl, err := geotable.New(name, []geotable.Column{
		{Name: "name", Type: geotable.TypeText},
		{Name: "region", Type: geotable.TypeText},
		{Name: "geometry", Type: geotable.TypeGeometry},
	}, "name")
	require.NoError(t, err)
	for i, id := range []string{"A", "B", "C"} {
		require.NoError(t, tbl.AddRow([]any{id, "north", triangle(float64(i))}))
	}
	return tbl
}

func expectWrite(t *testing.T, mock pgxmock.PgxPoolIface, table string, columns []string, defs string, rowCount int) {
	t.Helper()
	mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "` + table + `"`)).
		WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE "` + table + `" (` + defs + `)`)).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{table}, columns).
		WillReturnResult(int64(rowCount))
	mock.ExpectExec(regexp.QuoteMeta(`ALTER TABLE "` + table + `" ADD PRIMARY KEY ("name")`)).
		WillReturnResult(pgxmock.NewResult("ALTER", 0))
}

const sampleDefs = `"name" text, "region" text, "geometry" text`

func TestWriteReplacesAndKeys(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	tbl := sampleTable(t, "t1")
	expectWrite(t, mock, "t1", []string{"name", "region", "geometry"}, sampleDefs, 3)

	s := New(mock)
	err = s.Write(context.Background(), []*geotable.Table{tbl}, []Descriptor{{
		TableName:        "t1",
		PrimaryAttribute: "name",
		Types:            map[string]string{"name": "text", "region": "text"},
	}})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteIdempotent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	tbl := sampleTable(t, "t1")
	desc := Descriptor{TableName: "t1", PrimaryAttribute: "name"}

	expectWrite(t, mock, "t1", []string{"name", "region", "geometry"}, sampleDefs, 3)
	expectWrite(t, mock, "t1", []string{"name", "region", "geometry"}, sampleDefs, 3)

	s := New(mock)
	require.NoError(t, s.Write(context.Background(), []*geotable.Table{tbl}, []Descriptor{desc}))
	require.NoError(t, s.Write(context.Background(), []*geotable.Table{tbl}, []Descriptor{desc}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteTwoTablesOneCall(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	a := sampleTable(t, "regions")
	b := sampleTable(t, "counties")

	expectWrite(t, mock, "regions", []string{"name", "region", "geometry"}, sampleDefs, 3)
	expectWrite(t, mock, "counties", []string{"name", "region", "geometry"}, sampleDefs, 3)

	s := New(mock)
	err = s.Write(context.Background(), []*geotable.Table{a, b}, []Descriptor{
		{TableName: "regions", PrimaryAttribute: "name"},
		{TableName: "counties", PrimaryAttribute: "name"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWritePrimaryKeyViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	tbl := sampleTable(t, "t1")
	require.NoError(t, tbl.AddRow([]any{"A", "south", triangle(9)})) // duplicate identity

	mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "t1"`)).
		WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE "t1"`)).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"t1"}, []string{"name", "region", "geometry"}).
		WillReturnResult(4)
	mock.ExpectExec(regexp.QuoteMeta(`ALTER TABLE "t1" ADD PRIMARY KEY ("name")`)).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	s := New(mock)
	err = s.Write(context.Background(), []*geotable.Table{tbl}, []Descriptor{{
		TableName:        "t1",
		PrimaryAttribute: "name",
	}})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrPrimaryKeyViolation))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWritePersistIndex(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	tbl := sampleTable(t, "t1")

	mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "t1"`)).
		WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE "t1" ("index" bigint, ` + sampleDefs + `)`)).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"t1"}, []string{"index", "name", "region", "geometry"}).
		WillReturnResult(3)
	mock.ExpectExec(regexp.QuoteMeta(`ALTER TABLE "t1" ADD PRIMARY KEY ("name")`)).
		WillReturnResult(pgxmock.NewResult("ALTER", 0))

	s := New(mock)
	err = s.Write(context.Background(), []*geotable.Table{tbl}, []Descriptor{{
		TableName:        "t1",
		PrimaryAttribute: "name",
		PersistIndex:     true,
	}})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteInputValidation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := New(mock)
	assert.Error(t, s.Write(context.Background(), nil, nil))

	tbl := sampleTable(t, "t1")
	assert.Error(t, s.Write(context.Background(), []*geotable.Table{tbl}, nil))
	assert.Error(t, s.Write(context.Background(), []*geotable.Table{tbl}, []Descriptor{{
		TableName:        "t1",
		PrimaryAttribute: "missing",
	}}))
}

func TestReadRoundTrip(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	wkts := make([]string, 3)
	for i := range wkts {
		text, encErr := geotable.EncodeWKT(triangle(float64(i)))
		require.NoError(t, encErr)
		wkts[i] = text
	}

	rows := pgxmock.NewRows([]string{"name", "region", "geometry"}).
		AddRow("A", "north", wkts[0]).
		AddRow("B", "north", wkts[1]).
		AddRow("C", "north", wkts[2])
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "t1"`)).WillReturnRows(rows)

	s := New(mock)
	tbl, err := s.Read(context.Background(), "t1", map[string]string{"name": "string"}, "name")
	require.NoError(t, err)

	require.Len(t, tbl.Rows, 3)
	assert.Equal(t, "name", tbl.IndexAttr)
	assert.Equal(t, geotable.TypeGeometry, tbl.Columns[2].Type)

	ids := []string{"A", "B", "C"}
	for i, row := range tbl.Rows {
		assert.Equal(t, ids[i], row[0])
		g, ok := row[2].(geom.T)
		require.True(t, ok)
		assert.True(t, geotable.GeomEqual(triangle(float64(i)), g, 1e-9))
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReadTypeCoercion(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	point, err := geotable.EncodeWKT(geom.NewPointFlat(geom.XY, []float64{-1.5, 52.4}))
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{"code", "easting", "shape_area", "geometry"}).
		AddRow("E12000001", "428029", 8675.25, point)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "regions"`)).WillReturnRows(rows)

	s := New(mock)
	tbl, err := s.Read(context.Background(), "regions", map[string]string{
		"code":    "string",
		"easting": "integer",
	}, "code")
	require.NoError(t, err)

	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, int64(428029), tbl.Rows[0][1], "string storage coerced to integer without loss")
	assert.Equal(t, 8675.25, tbl.Rows[0][2], "uncoerced column keeps inferred float")
	assert.Equal(t, geotable.TypeInteger, tbl.Columns[1].Type)
	assert.Equal(t, geotable.TypeFloat, tbl.Columns[2].Type)
}

func TestReadTableNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "nope"`)).
		WillReturnError(&pgconn.PgError{Code: "42P01", Message: `relation "nope" does not exist`})

	s := New(mock)
	_, err = s.Read(context.Background(), "nope", nil, "")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrTableNotFound))
}

func TestReadCorruptGeometryFailsWholeRead(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	good, err := geotable.EncodeWKT(triangle(0))
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{"name", "geometry"}).
		AddRow("A", good).
		AddRow("B", "POLYGON ((not wkt")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "t1"`)).WillReturnRows(rows)

	s := New(mock)
	_, err = s.Read(context.Background(), "t1", nil, "")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrCorruptStoredGeometry))
}

func TestReadUnknownIndexAttribute(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	good, err := geotable.EncodeWKT(triangle(0))
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{"name", "geometry"}).AddRow("A", good)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "t1"`)).WillReturnRows(rows)

	s := New(mock)
	_, err = s.Read(context.Background(), "t1", nil, "code")
	require.Error(t, err)
}

func TestDisposeGatesAllCalls(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	s := New(mock)
	s.Dispose()
	s.Dispose() // idempotent

	err = s.Write(context.Background(), []*geotable.Table{sampleTable(t, "t1")}, []Descriptor{{
		TableName:        "t1",
		PrimaryAttribute: "name",
	}})
	assert.True(t, eris.Is(err, ErrConnectionClosed))

	_, err = s.Read(context.Background(), "t1", nil, "")
	assert.True(t, eris.Is(err, ErrConnectionClosed))
}
