package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Table is a header plus data records read from one or more files.
type Table struct {
	Source  string
	Header  []string
	Records [][]string
}

// Column returns the index of the named header column, or -1.
func (t *Table) Column(name string) int {
	for i, h := range t.Header {
		if strings.TrimSpace(h) == name {
			return i
		}
	}
	return -1
}

// Require returns an error naming every column that is absent.
func (t *Table) Require(names ...string) error {
	var missing []string
	for _, n := range names {
		if t.Column(n) < 0 {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return eris.Errorf("fetcher: %s is missing required columns %q", t.Source, missing)
	}
	return nil
}

// ReadTable reads a .csv or .xlsx file. sheet is ignored for CSV.
func ReadTable(ctx context.Context, path, sheet string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSV(ctx, path)
	case ".xlsx":
		return ReadXLSX(path, sheet)
	default:
		return nil, eris.Errorf("fetcher: unsupported file type %q", path)
	}
}

// ReadTables reads path as a single table, or, when path is a directory,
// reads every .csv and .xlsx file in it (sorted by name) and concatenates
// them. Files are aligned by column name onto the first file's header;
// columns a later file lacks are left empty.
func ReadTables(ctx context.Context, path, sheet string) (*Table, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: stat %s", path)
	}
	if !info.IsDir() {
		return ReadTable(ctx, path, sheet)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: read dir %s", path)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), "~$") {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".csv", ".xlsx":
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, eris.Errorf("fetcher: no .csv or .xlsx files in %s", path)
	}

	merged := &Table{Source: path}
	for _, f := range files {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "fetcher: read tables")
		}
		t, err := ReadTable(ctx, f, sheet)
		if err != nil {
			return nil, err
		}
		zap.L().Info("fetcher: loaded file",
			zap.String("path", f),
			zap.Int("rows", len(t.Records)),
		)
		if merged.Header == nil {
			merged.Header = t.Header
			merged.Records = t.Records
			continue
		}
		merged.Records = append(merged.Records, realign(t, merged.Header)...)
	}
	return merged, nil
}

// realign maps t's records onto header by column name.
func realign(t *Table, header []string) [][]string {
	idx := make([]int, len(header))
	for i, h := range header {
		idx[i] = t.Column(strings.TrimSpace(h))
	}
	out := make([][]string, 0, len(t.Records))
	for _, rec := range t.Records {
		row := make([]string, len(header))
		for i, j := range idx {
			if j >= 0 && j < len(rec) {
				row[i] = rec[j]
			}
		}
		out = append(out, row)
	}
	return out
}
