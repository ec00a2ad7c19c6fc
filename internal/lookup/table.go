// Package lookup holds the reference table that maps alias names to an
// industry vertical.
package lookup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Default column names of the master lookup workbook.
var (
	DefaultAliasColumns   = []string{"Company Name", "Quickbooks Customer Name", "Client Group"}
	DefaultVerticalColumn = "Client Industry Value"
)

// Row is one reference row: alias values by column plus its vertical.
type Row struct {
	Aliases  map[string]string
	Vertical string
}

// Table is an immutable lookup table. It is safe for concurrent reads.
type Table struct {
	aliasColumns   []string
	verticalColumn string
	rows           []Row

	distinct   map[string][]string
	index      map[string]map[string]int // column -> alias -> first row index
	categories []string
	skipped    int
}

// New builds a table from a header and records. aliasColumns are given in
// priority order. Missing columns are an error; rows without a vertical are
// skipped.
func New(header []string, records [][]string, aliasColumns []string, verticalColumn string) (*Table, error) {
	if len(aliasColumns) == 0 {
		return nil, eris.New("lookup: no alias columns configured")
	}
	if verticalColumn == "" {
		return nil, eris.New("lookup: no vertical column configured")
	}

	pos := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}

	var missing []string
	for _, c := range append(append([]string{}, aliasColumns...), verticalColumn) {
		if _, ok := pos[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("lookup: missing required columns %q (have %q)", missing, header)
	}

	t := &Table{
		aliasColumns:   append([]string{}, aliasColumns...),
		verticalColumn: verticalColumn,
		distinct:       make(map[string][]string, len(aliasColumns)),
		index:          make(map[string]map[string]int, len(aliasColumns)),
	}
	for _, c := range aliasColumns {
		t.index[c] = make(map[string]int)
	}

	seenCategory := make(map[string]bool)
	for _, rec := range records {
		vertical := strings.TrimSpace(cell(rec, pos[verticalColumn]))
		if vertical == "" {
			t.skipped++
			continue
		}

		row := Row{Aliases: make(map[string]string, len(aliasColumns)), Vertical: vertical}
		rowIdx := len(t.rows)
		for _, c := range aliasColumns {
			alias := strings.TrimSpace(cell(rec, pos[c]))
			if alias == "" {
				continue
			}
			row.Aliases[c] = alias
			if _, ok := t.index[c][alias]; !ok {
				t.index[c][alias] = rowIdx
				t.distinct[c] = append(t.distinct[c], alias)
			}
		}
		t.rows = append(t.rows, row)

		if !seenCategory[vertical] {
			seenCategory[vertical] = true
			t.categories = append(t.categories, vertical)
		}
	}

	if t.skipped > 0 {
		zap.L().Warn("lookup: skipped rows without a vertical",
			zap.String("column", verticalColumn),
			zap.Int("skipped", t.skipped),
		)
	}

	return t, nil
}

func cell(rec []string, i int) string {
	if i < len(rec) {
		return rec[i]
	}
	return ""
}

// AliasColumns returns the alias columns in priority order.
func (t *Table) AliasColumns() []string {
	return append([]string{}, t.aliasColumns...)
}

// Len returns the number of rows kept.
func (t *Table) Len() int { return len(t.rows) }

// Skipped returns the number of rows dropped for lacking a vertical.
func (t *Table) Skipped() int { return t.skipped }

// Distinct returns the non-empty values of an alias column in
// first-occurrence order. The returned slice must not be modified.
func (t *Table) Distinct(column string) []string {
	return t.distinct[column]
}

// Find looks alias up byte-for-byte across alias columns in priority order
// and returns the first row holding it and the column it was found in.
func (t *Table) Find(alias string) (Row, string, bool) {
	for _, c := range t.aliasColumns {
		if i, ok := t.index[c][alias]; ok {
			return t.rows[i], c, true
		}
	}
	return Row{}, "", false
}

// FindIn looks alias up byte-for-byte in a single alias column.
func (t *Table) FindIn(column, alias string) (Row, bool) {
	i, ok := t.index[column][alias]
	if !ok {
		return Row{}, false
	}
	return t.rows[i], true
}

// Categories returns the distinct verticals in first-occurrence order.
func (t *Table) Categories() []string {
	return append([]string{}, t.categories...)
}

// Fingerprint returns a stable hash of the table contents and column
// layout. It changes whenever any resolution could change.
func (t *Table) Fingerprint() string {
	h := sha256.New()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	for _, c := range t.aliasColumns {
		write(c)
	}
	write(t.verticalColumn)
	for _, r := range t.rows {
		for _, c := range t.aliasColumns {
			write(r.Aliases[c])
		}
		write(r.Vertical)
	}
	return hex.EncodeToString(h.Sum(nil))
}
