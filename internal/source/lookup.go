package source

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// LookupOptions configures parsing of a code register workbook.
type LookupOptions struct {
	SheetName  string // if empty, the first sheet
	CodeColumn int    // zero-based column holding the area code
	NameColumn int    // zero-based column holding the area name
	SkipRows   int    // header rows to skip
}

// LoadLookup reads an ONS-style code register workbook and returns a
// code-to-name map, used to validate feature-service names after cleanup.
func LoadLookup(path string, opts LookupOptions) (map[string]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "source: open lookup workbook")
	}

	var sheet *xlsx.Sheet
	if opts.SheetName != "" {
		s, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("source: lookup sheet %q not found", opts.SheetName)
		}
		sheet = s
	} else {
		if len(f.Sheets) == 0 {
			return nil, eris.New("source: lookup workbook has no sheets")
		}
		sheet = f.Sheets[0]
	}

	maxCol := opts.CodeColumn
	if opts.NameColumn > maxCol {
		maxCol = opts.NameColumn
	}

	lookup := make(map[string]string)
	for i, row := range sheet.Rows {
		if i < opts.SkipRows {
			continue
		}
		if len(row.Cells) <= maxCol {
			return nil, eris.Wrapf(ErrSchemaMismatch, "lookup row %d has %d cells, need %d", i, len(row.Cells), maxCol+1)
		}
		code := strings.TrimSpace(row.Cells[opts.CodeColumn].String())
		name := strings.TrimSpace(row.Cells[opts.NameColumn].String())
		if code == "" {
			continue
		}
		lookup[code] = name
	}

	return lookup, nil
}
