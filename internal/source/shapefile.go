package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mark-mcdougall/data-analytics/internal/fetcher"
	"github.com/mark-mcdougall/data-analytics/internal/geotable"
)

// ShapefileOptions configures a shapefile-archive load.
type ShapefileOptions struct {
	URL       string // http(s), ftp, or a local file path
	TempDir   string // scratch parent; default os.TempDir()
	NameField string // identity attribute in the DBF; default "name"
}

// LoadShapefileArchive fetches a ZIP of shapefile sets, extracts it into a
// scratch directory, and loads every contained .shp into a canonical table.
// Table names derive deterministically from each file's archive-internal path.
// The scratch directory is removed on every exit path.
func LoadShapefileArchive(ctx context.Context, f fetcher.Fetcher, opts ShapefileOptions) (map[string]*geotable.Table, error) {
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.NameField == "" {
		opts.NameField = "name"
	}

	log := zap.L().With(
		zap.String("component", "source.shapefile"),
		zap.String("url", opts.URL),
	)

	scratch := filepath.Join(opts.TempDir, "shpload-"+uuid.NewString())
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return nil, eris.Wrap(err, "source: create scratch dir")
	}
	defer os.RemoveAll(scratch) //nolint:errcheck

	zipPath, err := materializeArchive(ctx, f, opts.URL, scratch)
	if err != nil {
		return nil, err
	}

	contents := filepath.Join(scratch, "contents")
	files, err := fetcher.ExtractZIP(zipPath, contents)
	if err != nil {
		return nil, err
	}

	tables := make(map[string]*geotable.Table)
	for _, path := range files {
		if !strings.EqualFold(filepath.Ext(path), ".shp") {
			continue
		}
		rel, relErr := filepath.Rel(contents, path)
		if relErr != nil {
			rel = filepath.Base(path)
		}
		name := TableNameFromPath(rel)

		tbl, loadErr := loadShapefile(path, name, opts.NameField)
		if loadErr != nil {
			return nil, loadErr
		}
		tables[name] = tbl

		log.Info("shapefile loaded",
			zap.String("table", name),
			zap.Int("rows", len(tbl.Rows)),
		)
	}

	if len(tables) == 0 {
		return nil, eris.Wrapf(fetcher.ErrMalformedArchive, "no shapefiles in %s", opts.URL)
	}
	return tables, nil
}

// materializeArchive brings the archive into the scratch directory, fetching
// remote URLs and copying local paths.
func materializeArchive(ctx context.Context, f fetcher.Fetcher, rawURL, scratch string) (string, error) {
	zipPath := filepath.Join(scratch, "archive.zip")

	if strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://") || strings.HasPrefix(rawURL, "ftp://") {
		if _, err := f.DownloadToFile(ctx, rawURL, zipPath); err != nil {
			return "", err
		}
		return zipPath, nil
	}

	// Local archive: use in place.
	if _, err := os.Stat(rawURL); err != nil {
		return "", eris.Wrapf(fetcher.ErrFetch, "local archive %s: %v", rawURL, err)
	}
	return rawURL, nil
}

// TableNameFromPath maps an archive-internal shapefile path to its table
// name: lower-cased basename without extension, prefixed by any non-noise
// path elements joined with underscores. "Data/GB/county_region.shp" becomes
// "gb_county_region".
func TableNameFromPath(rel string) string {
	rel = filepath.ToSlash(rel)
	parts := strings.Split(rel, "/")

	var elems []string
	for i, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || p == "data" || p == "shapefiles" {
			continue
		}
		if i == len(parts)-1 {
			p = strings.TrimSuffix(p, filepath.Ext(p))
		}
		p = strings.ReplaceAll(p, " ", "_")
		p = strings.ReplaceAll(p, "-", "_")
		elems = append(elems, p)
	}
	return strings.Join(elems, "_")
}

// loadShapefile reads one shapefile set into a canonical table. All DBF
// attributes become text columns; the identity field is renamed to "name" and
// set as the primary attribute.
func loadShapefile(shpPath, tableName, nameField string) (*geotable.Table, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	columns := make([]geotable.Column, 0, len(fields)+1)
	nameIdx := -1
	for i, f := range fields {
		fname := strings.ToLower(strings.TrimRight(f.String(), "\x00"))
		if fname == strings.ToLower(nameField) {
			fname = "name"
			nameIdx = i
		}
		columns = append(columns, geotable.Column{Name: fname, Type: geotable.TypeText})
	}
	if nameIdx < 0 {
		return nil, eris.Wrapf(ErrSchemaMismatch, "shapefile %s has no %q field", shpPath, nameField)
	}
	columns = append(columns, geotable.Column{Name: "geometry", Type: geotable.TypeGeometry})

	tbl, err := geotable.New(tableName, columns, "name")
	if err != nil {
		return nil, err
	}

	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		g := shapeToGeom(shape)
		if g == nil {
			skipped++
			continue
		}

		row := make([]any, 0, len(columns))
		for i := range fields {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if val == "" {
				row = append(row, nil)
				continue
			}
			row = append(row, val)
		}
		row = append(row, g)
		if err := tbl.AddRow(row); err != nil {
			return nil, err
		}
	}

	if skipped > 0 {
		zap.L().Debug("source: skipped shapefile records without geometry",
			zap.String("table", tableName),
			zap.Int("skipped", skipped),
		)
	}

	return tbl, nil
}
