package lookup

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/vertical-cli/internal/fetcher"
)

// Load reads a lookup table from a .csv or .xlsx file.
func Load(ctx context.Context, path, sheet string, aliasColumns []string, verticalColumn string) (*Table, error) {
	raw, err := fetcher.ReadTable(ctx, path, sheet)
	if err != nil {
		return nil, err
	}
	t, err := New(raw.Header, raw.Records, aliasColumns, verticalColumn)
	if err != nil {
		return nil, err
	}
	zap.L().Info("lookup: loaded table",
		zap.String("path", path),
		zap.Int("rows", t.Len()),
		zap.Int("categories", len(t.Categories())),
	)
	return t, nil
}
