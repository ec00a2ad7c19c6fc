package fetcher

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCategories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "categories.yaml")
	require.NoError(t, writeTestFile(path, "categories:\n  - Retail\n  - ' Finance '\n  - ''\n  - Retail\n  - Travel\n"))

	got, err := LoadCategories(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Retail", "Finance", "Travel"}, got)
}

func TestLoadCategories_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadCategories(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, writeTestFile(empty, "categories: []\n"))
	_, err = LoadCategories(empty)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no categories")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, writeTestFile(bad, "categories: [unclosed\n"))
	_, err = LoadCategories(bad)
	assert.Error(t, err)
}
