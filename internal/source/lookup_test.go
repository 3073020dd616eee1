package source

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeTestLookup(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("RGN")
	require.NoError(t, err)

	for _, r := range rows {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}

	path := filepath.Join(t.TempDir(), "register.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestLoadLookup(t *testing.T) {
	path := writeTestLookup(t, [][]string{
		{"RGN21CD", "RGN21NM"},
		{"E12000001", "North East"},
		{"E12000002", "North West"},
		{"", "ignored blank code"},
	})

	lookup, err := LoadLookup(path, LookupOptions{SheetName: "RGN", SkipRows: 1, CodeColumn: 0, NameColumn: 1})
	require.NoError(t, err)

	assert.Len(t, lookup, 2)
	assert.Equal(t, "North East", lookup["E12000001"])
	assert.Equal(t, "North West", lookup["E12000002"])
}

func TestLoadLookup_ShortRow(t *testing.T) {
	path := writeTestLookup(t, [][]string{
		{"E12000001"},
	})

	_, err := LoadLookup(path, LookupOptions{CodeColumn: 0, NameColumn: 1})
	require.Error(t, err)
}

func TestLoadLookup_MissingSheet(t *testing.T) {
	path := writeTestLookup(t, [][]string{{"a", "b"}})

	_, err := LoadLookup(path, LookupOptions{SheetName: "nope"})
	require.Error(t, err)
}
