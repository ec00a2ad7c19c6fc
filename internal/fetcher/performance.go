package fetcher

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/vertical-cli/internal/model"
)

// PerformanceColumns names the columns of a performance export.
type PerformanceColumns struct {
	Advertiser  string `mapstructure:"advertiser"`
	Brand       string `mapstructure:"brand"`
	DataID      string `mapstructure:"data_id"`
	Clicks      string `mapstructure:"clicks"`
	Impressions string `mapstructure:"impressions"`
	Cost        string `mapstructure:"cost"`
	Conversions string `mapstructure:"conversions"`
}

// DefaultPerformanceColumns matches the Data Element export.
var DefaultPerformanceColumns = PerformanceColumns{
	Advertiser:  "Advertiser",
	Brand:       "3rd Party Data Brand",
	DataID:      "3rd Party Data ID",
	Clicks:      "Clicks",
	Impressions: "Impressions",
	Cost:        "Hypothetical Advertiser Cost (Adv Currency)",
	Conversions: "All Last Click + View Conversions",
}

func (c PerformanceColumns) names() []string {
	return []string{c.Advertiser, c.Brand, c.DataID, c.Clicks, c.Impressions, c.Cost, c.Conversions}
}

// ParsePerformance maps t's records onto PerformanceRows. Missing columns
// are an error. Rows with a blank advertiser or an unparseable number are
// skipped; the skip count is returned.
func ParsePerformance(t *Table, cols PerformanceColumns) ([]model.PerformanceRow, int, error) {
	if err := t.Require(cols.names()...); err != nil {
		return nil, 0, err
	}
	adv, brand, dataID := t.Column(cols.Advertiser), t.Column(cols.Brand), t.Column(cols.DataID)
	nums := []int{t.Column(cols.Clicks), t.Column(cols.Impressions), t.Column(cols.Cost), t.Column(cols.Conversions)}

	rows := make([]model.PerformanceRow, 0, len(t.Records))
	skipped := 0
	for i, rec := range t.Records {
		name := strings.TrimSpace(field(rec, adv))
		if name == "" {
			skipped++
			continue
		}

		var vals [4]float64
		ok := true
		for k, idx := range nums {
			v, err := ParseNumber(field(rec, idx))
			if err != nil {
				zap.L().Debug("fetcher: skipping row with bad number",
					zap.String("source", t.Source),
					zap.Int("row", i+2),
					zap.String("advertiser", name),
					zap.Error(err),
				)
				ok = false
				break
			}
			vals[k] = v
		}
		if !ok {
			skipped++
			continue
		}

		rows = append(rows, model.PerformanceRow{
			Advertiser:  name,
			Brand:       strings.TrimSpace(field(rec, brand)),
			DataID:      strings.TrimSpace(field(rec, dataID)),
			Clicks:      vals[0],
			Impressions: vals[1],
			Cost:        vals[2],
			Conversions: vals[3],
		})
	}

	if skipped > 0 {
		zap.L().Warn("fetcher: skipped performance rows",
			zap.String("source", t.Source),
			zap.Int("skipped", skipped),
		)
	}
	return rows, skipped, nil
}

// ParseNumber parses a spreadsheet number. Thousands separators, currency
// symbols, and a trailing percent sign are ignored. Empty cells are 0;
// NaN and infinities are errors.
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return 0, nil
	}
	neg := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	if neg {
		s = s[1 : len(s)-1]
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case ',', '$', '€', '£', '%', ' ':
			return -1
		}
		return r
	}, s)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, eris.Errorf("fetcher: non-finite number %q", s)
	}
	if neg {
		v = -v
	}
	return v, nil
}

// DistinctAdvertisers returns the advertiser names of rows in
// first-occurrence order.
func DistinctAdvertisers(rows []model.PerformanceRow) []string {
	seen := make(map[string]bool, len(rows))
	var out []string
	for _, r := range rows {
		if seen[r.Advertiser] {
			continue
		}
		seen[r.Advertiser] = true
		out = append(out, r.Advertiser)
	}
	return out
}

func field(rec []string, i int) string {
	if i >= 0 && i < len(rec) {
		return rec[i]
	}
	return ""
}
