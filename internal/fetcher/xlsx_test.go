package fetcher

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

// sheetData preserves sheet order, unlike a map.
type sheetData struct {
	name string
	rows [][]string
}

func createTestXLSX(t *testing.T, dir, file string, sheets ...sheetData) string {
	t.Helper()
	f := xlsx.NewFile()
	for _, s := range sheets {
		sheet, err := f.AddSheet(s.name)
		require.NoError(t, err)
		for _, rowData := range s.rows {
			row := sheet.AddRow()
			for _, v := range rowData {
				row.AddCell().SetString(v)
			}
		}
	}
	path := filepath.Join(dir, file)
	require.NoError(t, f.Save(path))
	return path
}

func TestReadXLSX_FirstSheet(t *testing.T) {
	path := createTestXLSX(t, t.TempDir(), "data.xlsx",
		sheetData{"Data Element_data", [][]string{
			{"Advertiser", "Clicks"},
			{"Acme", "3"},
		}},
		sheetData{"Other", [][]string{{"x"}}},
	)

	tbl, err := ReadXLSX(path, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Advertiser", "Clicks"}, tbl.Header)
	assert.Equal(t, [][]string{{"Acme", "3"}}, tbl.Records)
}

func TestReadXLSX_NamedSheet(t *testing.T) {
	path := createTestXLSX(t, t.TempDir(), "lookup.xlsx",
		sheetData{"Notes", [][]string{{"ignore me"}}},
		sheetData{"Master Lookup", [][]string{
			{"", ""},
			{"Company Name", "Client Industry Value"},
			{"Acme Co", "Retail"},
		}},
	)

	tbl, err := ReadXLSX(path, "Master Lookup")
	require.NoError(t, err)
	assert.Equal(t, []string{"Company Name", "Client Industry Value"}, tbl.Header)
	assert.Equal(t, [][]string{{"Acme Co", "Retail"}}, tbl.Records)
}

func TestReadXLSX_SheetNotFound(t *testing.T) {
	path := createTestXLSX(t, t.TempDir(), "x.xlsx", sheetData{"Sheet1", [][]string{{"a"}}})

	_, err := ReadXLSX(path, "Missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestReadXLSX_EmptySheet(t *testing.T) {
	path := createTestXLSX(t, t.TempDir(), "x.xlsx", sheetData{"Sheet1", nil})

	_, err := ReadXLSX(path, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is empty")
}

func TestReadXLSX_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.xlsx")
	require.NoError(t, writeTestFile(path, "not a zip"))

	_, err := ReadXLSX(path, "")
	assert.Error(t, err)
}
