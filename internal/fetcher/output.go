package fetcher

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/vertical-cli/internal/model"
)

type resolutionRecord struct {
	Advertiser     string `csv:"Advertiser"`
	MatchedCompany string `csv:"Matched_Company"`
	MatchedColumn  string `csv:"Matched_Column"`
	Vertical       string `csv:"Vertical"`
	MatchScore     *int   `csv:"Match_Score"`
	Technique      string `csv:"Categorization_Technique"`
	Reason         string `csv:"Reason"`
}

type metricRecord struct {
	Vertical        string  `csv:"Vertical"`
	Brand           string  `csv:"3rd Party Data Brand"`
	DataID          string  `csv:"3rd Party Data ID"`
	Advertiser      string  `csv:"Advertiser"`
	Clicks          float64 `csv:"Clicks"`
	Impressions     float64 `csv:"Impressions"`
	Cost            float64 `csv:"Cost"`
	Conversions     float64 `csv:"Conversions"`
	CTR             float64 `csv:"CTR"`
	CostRatio       float64 `csv:"Cost_Ratio"`
	CTRZ            float64 `csv:"CTR_Z"`
	CostZ           float64 `csv:"Cost_Z"`
	Composite       float64 `csv:"Composite"`
	NormalizedScore float64 `csv:"Normalized_Score"`
}

// WriteResolutions writes the resolution table as CSV. A null matched
// alias is written as NO MATCH and a missing score as an empty cell.
func WriteResolutions(w io.Writer, recs []model.Resolution) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if err := enc.EncodeHeader(resolutionRecord{}); err != nil {
		return eris.Wrap(err, "fetcher: encode resolution header")
	}
	for _, r := range recs {
		out := resolutionRecord{
			Advertiser:     r.Advertiser,
			MatchedCompany: model.NoMatch,
			MatchedColumn:  r.MatchedColumn,
			Vertical:       r.Vertical,
			Technique:      string(r.Technique),
			Reason:         r.Reason,
		}
		if r.MatchedAlias != nil {
			out.MatchedCompany = *r.MatchedAlias
			score := r.Score
			out.MatchScore = &score
		}
		if err := enc.Encode(out); err != nil {
			return eris.Wrapf(err, "fetcher: encode resolution %q", r.Advertiser)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "fetcher: flush resolutions")
}

// ReadResolutions parses a resolution table written by WriteResolutions.
// The legacy "LLM Matched" technique label is read as Matched.
func ReadResolutions(r io.Reader) ([]model.Resolution, error) {
	data, err := io.ReadAll(skipBOM(r))
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: read resolutions")
	}
	var raw []resolutionRecord
	if err := csvutil.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "fetcher: decode resolutions")
	}

	out := make([]model.Resolution, 0, len(raw))
	for _, rec := range raw {
		res := model.Resolution{
			Advertiser:    rec.Advertiser,
			Vertical:      rec.Vertical,
			MatchedColumn: rec.MatchedColumn,
			Reason:        rec.Reason,
		}
		switch strings.TrimSpace(rec.Technique) {
		case string(model.TechniqueMatched), "LLM Matched":
			res.Technique = model.TechniqueMatched
		case string(model.TechniqueAICategorized):
			res.Technique = model.TechniqueAICategorized
		default:
			res.Technique = model.TechniqueUncategorized
		}
		if alias := rec.MatchedCompany; alias != "" && alias != model.NoMatch {
			res.MatchedAlias = &alias
			if rec.MatchScore != nil {
				res.Score = *rec.MatchScore
			}
		}
		if res.Vertical == "" {
			res.Vertical = model.Uncategorized
		}
		out = append(out, res)
	}
	return out, nil
}

// MetricsLayout controls the optional columns of the metrics table.
type MetricsLayout struct {
	CostMetric    model.CostMetric
	PerAdvertiser bool
}

// WriteMetrics writes the metrics table as CSV. The cost ratio column is
// headed CPA or CPC; the Advertiser column is present only when rows are
// grouped per advertiser.
func WriteMetrics(w io.Writer, rows []model.MetricRow, layout MetricsLayout) error {
	cw := csv.NewWriter(w)
	hw := &headerWriter{
		w:      cw,
		rename: map[string]string{"Cost_Ratio": layout.CostMetric.Label()},
	}
	if !layout.PerAdvertiser {
		hw.drop = map[string]bool{"Advertiser": true}
	}

	enc := csvutil.NewEncoder(hw)
	if err := enc.EncodeHeader(metricRecord{}); err != nil {
		return eris.Wrap(err, "fetcher: encode metrics header")
	}
	for _, r := range rows {
		if err := enc.Encode(metricRecord(r)); err != nil {
			return eris.Wrap(err, "fetcher: encode metric row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "fetcher: flush metrics")
}

// WriteFile creates path and hands it to write.
func WriteFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "fetcher: create %s", path)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "fetcher: close %s", path)
}

// headerWriter renames and drops columns by header name. The first row
// written is taken as the header.
type headerWriter struct {
	w      *csv.Writer
	rename map[string]string
	drop   map[string]bool
	keep   []int
}

func (h *headerWriter) Write(row []string) error {
	if h.keep == nil {
		h.keep = make([]int, 0, len(row))
		header := make([]string, 0, len(row))
		for i, name := range row {
			if h.drop[name] {
				continue
			}
			h.keep = append(h.keep, i)
			if to, ok := h.rename[name]; ok {
				name = to
			}
			header = append(header, name)
		}
		return h.w.Write(header)
	}
	out := make([]string, 0, len(h.keep))
	for _, i := range h.keep {
		out = append(out, row[i])
	}
	return h.w.Write(out)
}
