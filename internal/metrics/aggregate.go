// Package metrics joins resolved verticals onto performance rows, sums them
// per grouping key, derives CTR and a cost ratio, and ranks rows with a
// batch-relative 1-100 score.
package metrics

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/vertical-cli/internal/model"
)

// Dimension is a grouping key.
type Dimension string

const (
	DimVertical   Dimension = "vertical"
	DimBrand      Dimension = "brand"
	DimDataID     Dimension = "data_id"
	DimAdvertiser Dimension = "advertiser"
)

// DefaultDimensions groups by vertical, brand and data ID.
var DefaultDimensions = []Dimension{DimVertical, DimBrand, DimDataID}

// ParseDimensions validates dimension names. Empty input yields the defaults.
func ParseDimensions(names []string) ([]Dimension, error) {
	if len(names) == 0 {
		return append([]Dimension{}, DefaultDimensions...), nil
	}
	out := make([]Dimension, 0, len(names))
	seen := make(map[Dimension]bool, len(names))
	for _, n := range names {
		d := Dimension(strings.ToLower(strings.TrimSpace(n)))
		switch d {
		case DimVertical, DimBrand, DimDataID, DimAdvertiser:
		default:
			return nil, eris.Errorf("metrics: unknown dimension %q", n)
		}
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out, nil
}

// Join returns a copy of rows with Vertical set from recs by advertiser.
// Advertisers without a resolution get Uncategorized; their count is
// returned.
func Join(rows []model.PerformanceRow, recs []model.Resolution) ([]model.PerformanceRow, int) {
	vertical := make(map[string]string, len(recs))
	for _, r := range recs {
		vertical[r.Advertiser] = r.Vertical
	}

	out := make([]model.PerformanceRow, len(rows))
	missing := make(map[string]bool)
	for i, r := range rows {
		v, ok := vertical[r.Advertiser]
		if !ok || v == "" {
			v = model.Uncategorized
			missing[r.Advertiser] = true
		}
		r.Vertical = v
		out[i] = r
	}
	return out, len(missing)
}

type groupKey struct {
	vertical, brand, dataID, advertiser string
}

// Aggregate sums Clicks, Impressions, Cost and Conversions per distinct
// combination of dims. Key fields not in dims are left empty. Groups come
// out in first-occurrence order.
func Aggregate(rows []model.PerformanceRow, dims ...Dimension) []model.MetricRow {
	use := make(map[Dimension]bool, len(dims))
	for _, d := range dims {
		use[d] = true
	}

	index := make(map[groupKey]int)
	var out []model.MetricRow
	for _, r := range rows {
		var k groupKey
		if use[DimVertical] {
			k.vertical = r.Vertical
		}
		if use[DimBrand] {
			k.brand = r.Brand
		}
		if use[DimDataID] {
			k.dataID = r.DataID
		}
		if use[DimAdvertiser] {
			k.advertiser = r.Advertiser
		}

		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, model.MetricRow{
				Vertical:   k.vertical,
				Brand:      k.brand,
				DataID:     k.dataID,
				Advertiser: k.advertiser,
			})
		}
		m := &out[i]
		m.Clicks += r.Clicks
		m.Impressions += r.Impressions
		m.Cost += r.Cost
		m.Conversions += r.Conversions
	}
	return out
}
