// Package geosync persists canonical geospatial tables to a relational store
// and reads them back. The store has no native geometry type: the geometry
// column is serialized to well-known text on write and decoded on read, so a
// write-then-read round trip reconstructs every geometry vertex for vertex.
//
// Writes use full-replace semantics: an existing table of the same name is
// dropped and recreated. Reruns of a pipeline therefore produce a clean table,
// at the cost of concurrent readers of that table name observing an undefined
// intermediate state. Callers must serialize writers per table name.
package geosync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	stdsync "sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mark-mcdougall/data-analytics/internal/db"
	"github.com/mark-mcdougall/data-analytics/internal/geotable"
)

// indexColumn is the visible column name used when a descriptor asks for the
// in-memory row index to be persisted.
const indexColumn = "index"

// Descriptor carries the contract parameters for writing one table:
// target name, primary attribute, per-attribute storage types, and whether
// the row index is persisted as a visible column. Constructed per Write call.
type Descriptor struct {
	TableName        string
	PrimaryAttribute string
	Types            map[string]string
	PersistIndex     bool
}

// Syncer owns the store connection for all write and read calls. Lifecycle:
// connected on construction, terminal after Dispose. Not safe for concurrent
// writers against the same table name; see the package comment.
type Syncer struct {
	pool db.Pool

	mu       stdsync.Mutex
	disposed bool
}

// New wraps an open connection pool.
func New(pool db.Pool) *Syncer {
	return &Syncer{pool: pool}
}

func (s *Syncer) closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Dispose releases the store connection. Idempotent; every subsequent Write
// or Read fails with ErrConnectionClosed.
func (s *Syncer) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.disposed = true
	s.pool.Close()
}

// Write persists each (table, descriptor) pair in order under full-replace
// semantics. Tables meant to be queried uniformly downstream should use
// attribute-name-compatible descriptors; that is a caller responsibility, not
// enforced here. A failed table aborts the call; earlier tables stay written
// (no multi-table transaction).
func (s *Syncer) Write(ctx context.Context, tables []*geotable.Table, descs []Descriptor) error {
	if s.closed() {
		return ErrConnectionClosed
	}
	if len(tables) == 0 {
		return eris.New("geosync: no tables to write")
	}
	if len(tables) != len(descs) {
		return eris.Errorf("geosync: %d tables but %d descriptors", len(tables), len(descs))
	}

	for i, tbl := range tables {
		if err := s.writeOne(ctx, tbl, descs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) writeOne(ctx context.Context, tbl *geotable.Table, desc Descriptor) error {
	log := zap.L().With(
		zap.String("component", "geosync"),
		zap.String("table", desc.TableName),
	)

	gi := tbl.GeometryIndex()
	if gi < 0 {
		return eris.Errorf("geosync: table %s has no geometry column", tbl.Name)
	}
	if tbl.ColumnIndex(desc.PrimaryAttribute) < 0 {
		return eris.Errorf("geosync: table %s has no primary attribute %q", tbl.Name, desc.PrimaryAttribute)
	}

	columns, defs := storageColumns(tbl, desc)
	ident := pgx.Identifier{desc.TableName}.Sanitize()

	// Full replace: drop whatever is there and recreate.
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", ident)); err != nil {
		return eris.Wrapf(err, "geosync: drop %s", desc.TableName)
	}
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", ident, strings.Join(defs, ", "))); err != nil {
		return eris.Wrapf(err, "geosync: create %s", desc.TableName)
	}

	// Encode the geometry column to WKT text.
	rows := make([][]any, 0, len(tbl.Rows))
	for ri, src := range tbl.Rows {
		row := make([]any, 0, len(columns))
		if desc.PersistIndex {
			row = append(row, int64(ri))
		}
		for ci, v := range src {
			if ci == gi {
				enc, err := encodeGeomCell(v)
				if err != nil {
					return eris.Wrapf(err, "geosync: encode geometry for %s row %d", desc.TableName, ri)
				}
				row = append(row, enc)
				continue
			}
			row = append(row, v)
		}
		rows = append(rows, row)
	}

	n, err := db.CopyFrom(ctx, s.pool, desc.TableName, columns, rows)
	if err != nil {
		return err
	}

	// The store enforces identity uniqueness here, not earlier.
	pkSQL := fmt.Sprintf("ALTER TABLE %s ADD PRIMARY KEY (%s)",
		ident, pgx.Identifier{desc.PrimaryAttribute}.Sanitize())
	if _, err := s.pool.Exec(ctx, pkSQL); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return eris.Wrapf(ErrPrimaryKeyViolation, "table %s attribute %s", desc.TableName, desc.PrimaryAttribute)
		}
		return eris.Wrapf(err, "geosync: add primary key on %s", desc.TableName)
	}

	log.Info("table written",
		zap.Int64("rows", n),
		zap.String("primary", desc.PrimaryAttribute),
	)
	return nil
}

// storageColumns returns the store column names and CREATE TABLE definitions
// for a table under a descriptor. The geometry column is always stored as
// text; other columns take the descriptor's storage type, falling back to a
// default mapped from the declared semantic type.
func storageColumns(tbl *geotable.Table, desc Descriptor) (names []string, defs []string) {
	if desc.PersistIndex {
		names = append(names, indexColumn)
		defs = append(defs, fmt.Sprintf("%s bigint", pgx.Identifier{indexColumn}.Sanitize()))
	}
	for _, c := range tbl.Columns {
		st := storageType(c, desc)
		names = append(names, c.Name)
		defs = append(defs, fmt.Sprintf("%s %s", pgx.Identifier{c.Name}.Sanitize(), st))
	}
	return names, defs
}

func storageType(c geotable.Column, desc Descriptor) string {
	if c.Type == geotable.TypeGeometry {
		return "text"
	}
	if tag, ok := desc.Types[c.Name]; ok {
		return tag
	}
	switch c.Type {
	case geotable.TypeInteger:
		return "bigint"
	case geotable.TypeFloat:
		return "double precision"
	default:
		return "text"
	}
}

// Read fetches all rows of tableName, decodes the geometry column, coerces
// attributes listed in typeMap to their semantic types (absent attributes
// keep the store's inferred type), and designates indexAttr as the row
// identity when non-empty.
func (s *Syncer) Read(ctx context.Context, tableName string, typeMap map[string]string, indexAttr string) (*geotable.Table, error) {
	if s.closed() {
		return nil, ErrConnectionClosed
	}

	ident := pgx.Identifier{tableName}.Sanitize()
	rows, err := s.pool.Query(ctx, fmt.Sprintf("SELECT * FROM %s", ident))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable {
			return nil, eris.Wrapf(ErrTableNotFound, "%s", tableName)
		}
		return nil, eris.Wrapf(err, "geosync: select from %s", tableName)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]geotable.Column, len(fields))
	for i, f := range fields {
		columns[i] = geotable.Column{Name: f.Name, Type: ""}
	}

	var raw [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, eris.Wrapf(err, "geosync: scan row from %s", tableName)
		}
		raw = append(raw, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "geosync: iterate rows from %s", tableName)
	}

	resolveColumnTypes(columns, raw, typeMap)

	tbl, err := geotable.New(tableName, columns, "")
	if err != nil {
		return nil, err
	}

	gi := tbl.GeometryIndex()
	for ri, vals := range raw {
		row := make([]any, len(vals))
		for ci, v := range vals {
			switch {
			case ci == gi:
				text, ok := v.(string)
				if !ok {
					return nil, eris.Wrapf(ErrCorruptStoredGeometry, "table %s row %d: non-text geometry", tableName, ri)
				}
				g, decErr := geotable.DecodeWKT(text)
				if decErr != nil {
					return nil, eris.Wrapf(ErrCorruptStoredGeometry, "table %s row %d: %v", tableName, ri, decErr)
				}
				row[ci] = g
			default:
				cv, coErr := coerce(v, columns[ci].Type)
				if coErr != nil {
					return nil, eris.Wrapf(coErr, "geosync: coerce %s.%s row %d", tableName, columns[ci].Name, ri)
				}
				row[ci] = cv
			}
		}
		if err := tbl.AddRow(row); err != nil {
			return nil, err
		}
	}

	if indexAttr != "" {
		if tbl.ColumnIndex(indexAttr) < 0 {
			return nil, eris.Errorf("geosync: table %s has no index attribute %q", tableName, indexAttr)
		}
		tbl.IndexAttr = indexAttr
		tbl.Primary = indexAttr
	}

	return tbl, nil
}

// resolveColumnTypes fixes each column's semantic type: geometry for the
// geometry column, the typeMap entry when present, otherwise a type inferred
// from the first non-nil stored value.
func resolveColumnTypes(columns []geotable.Column, raw [][]any, typeMap map[string]string) {
	for i := range columns {
		if columns[i].Name == "geometry" {
			columns[i].Type = geotable.TypeGeometry
			continue
		}
		if tag, ok := typeMap[columns[i].Name]; ok {
			if t, err := geotable.ParseType(tag); err == nil {
				columns[i].Type = t
				continue
			}
		}
		columns[i].Type = inferType(raw, i)
	}
}

func inferType(raw [][]any, col int) geotable.Type {
	for _, row := range raw {
		switch row[col].(type) {
		case nil:
			continue
		case int8, int16, int32, int64, int, uint8, uint16, uint32, uint64:
			return geotable.TypeInteger
		case float32, float64:
			return geotable.TypeFloat
		default:
			return geotable.TypeText
		}
	}
	return geotable.TypeText
}
