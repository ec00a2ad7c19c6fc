package lookup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testHeader = []string{"Company Name", "Quickbooks Customer Name", "Client Group", "Client Industry Value"}

func testTable(t *testing.T) *Table {
	t.Helper()
	tbl, err := New(testHeader, [][]string{
		{"Acme Co", "ACME CORP", "Acme Group", "Retail"},
		{"Blue River Bank", "", "River Holdings", "Finance"},
		{"No Vertical Inc", "NVI", "", "  "},
		{"Acme Co", "Acme Duplicate", "", "Travel"},
		{"", "Globex", "Acme Group", "Retail"},
	}, DefaultAliasColumns, DefaultVerticalColumn)
	require.NoError(t, err)
	return tbl
}

func TestNew_MissingColumns(t *testing.T) {
	_, err := New([]string{"Company Name", "Vertical"}, nil, DefaultAliasColumns, DefaultVerticalColumn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Quickbooks Customer Name")
	assert.Contains(t, err.Error(), "Client Industry Value")
}

func TestNew_BadConfig(t *testing.T) {
	_, err := New(testHeader, nil, nil, DefaultVerticalColumn)
	assert.Error(t, err)
	_, err = New(testHeader, nil, DefaultAliasColumns, "")
	assert.Error(t, err)
}

func TestNew_SkipsRowsWithoutVertical(t *testing.T) {
	tbl := testTable(t)
	assert.Equal(t, 4, tbl.Len())
	assert.Equal(t, 1, tbl.Skipped())

	_, _, ok := tbl.Find("NVI")
	assert.False(t, ok)
}

func TestDistinct(t *testing.T) {
	tbl := testTable(t)
	assert.Equal(t, []string{"Acme Co", "Blue River Bank"}, tbl.Distinct("Company Name"))
	assert.Equal(t, []string{"ACME CORP", "Acme Duplicate", "Globex"}, tbl.Distinct("Quickbooks Customer Name"))
	assert.Equal(t, []string{"Acme Group", "River Holdings"}, tbl.Distinct("Client Group"))
	assert.Empty(t, tbl.Distinct("Unknown"))
}

func TestFind(t *testing.T) {
	tbl := testTable(t)

	row, col, ok := tbl.Find("Acme Co")
	require.True(t, ok)
	assert.Equal(t, "Company Name", col)
	// first row wins over the later Travel row
	assert.Equal(t, "Retail", row.Vertical)

	row, col, ok = tbl.Find("River Holdings")
	require.True(t, ok)
	assert.Equal(t, "Client Group", col)
	assert.Equal(t, "Finance", row.Vertical)
	assert.Equal(t, "Blue River Bank", row.Aliases["Company Name"])

	// byte-exact
	_, _, ok = tbl.Find("acme co")
	assert.False(t, ok)
	_, _, ok = tbl.Find("")
	assert.False(t, ok)
}

func TestFindIn(t *testing.T) {
	tbl := testTable(t)

	row, ok := tbl.FindIn("Client Group", "Acme Group")
	require.True(t, ok)
	assert.Equal(t, "Acme Co", row.Aliases["Company Name"])

	_, ok = tbl.FindIn("Company Name", "Acme Group")
	assert.False(t, ok)
	_, ok = tbl.FindIn("Unknown", "Acme Co")
	assert.False(t, ok)
}

func TestCategories(t *testing.T) {
	tbl := testTable(t)
	assert.Equal(t, []string{"Retail", "Finance", "Travel"}, tbl.Categories())

	cats := tbl.Categories()
	cats[0] = "mutated"
	assert.Equal(t, "Retail", tbl.Categories()[0])
}

func TestAliasColumns_Copy(t *testing.T) {
	tbl := testTable(t)
	cols := tbl.AliasColumns()
	cols[0] = "mutated"
	assert.Equal(t, DefaultAliasColumns, tbl.AliasColumns())
}

func TestFingerprint(t *testing.T) {
	a := testTable(t)
	b := testTable(t)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Len(t, a.Fingerprint(), 64)

	c, err := New(testHeader, [][]string{{"Acme Co", "", "", "Travel"}}, DefaultAliasColumns, DefaultVerticalColumn)
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())

	reordered, err := New(testHeader, [][]string{{"Acme Co", "", "", "Travel"}},
		[]string{"Client Group", "Company Name", "Quickbooks Customer Name"}, DefaultVerticalColumn)
	require.NoError(t, err)
	assert.NotEqual(t, c.Fingerprint(), reordered.Fingerprint())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lookup.csv")
	content := "Company Name,Quickbooks Customer Name,Client Group,Client Industry Value\n" +
		"Acme Co,,,Retail\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	tbl, err := Load(context.Background(), path, "", DefaultAliasColumns, DefaultVerticalColumn)
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.Len())

	_, err = Load(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), "", DefaultAliasColumns, DefaultVerticalColumn)
	assert.Error(t, err)
}
