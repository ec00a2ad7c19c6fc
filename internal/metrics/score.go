package metrics

import (
	"math"

	"github.com/sells-group/vertical-cli/internal/model"
)

// Policy decides which aggregated rows are kept.
type Policy struct {
	CostMetric     model.CostMetric
	MinImpressions float64
}

// DefaultPolicy keeps rows with at least 1000 impressions and ranks by CPA.
func DefaultPolicy() Policy {
	return Policy{CostMetric: model.CostPerAcquisition, MinImpressions: 1000}
}

// Derive computes CTR and the cost ratio for each row and returns the rows
// that have both defined: non-zero denominators, finite results, a
// positive cost ratio, and at least MinImpressions impressions. The number
// of dropped rows is also returned.
func Derive(rows []model.MetricRow, p Policy) ([]model.MetricRow, int) {
	kept := make([]model.MetricRow, 0, len(rows))
	for _, r := range rows {
		if r.Impressions <= 0 || r.Impressions < p.MinImpressions {
			continue
		}
		denom := r.Conversions
		if p.CostMetric == model.CostPerClick {
			denom = r.Clicks
		}
		if denom == 0 {
			continue
		}

		r.CTR = r.Clicks / r.Impressions
		r.CostRatio = r.Cost / denom
		if !finite(r.CTR) || !finite(r.CostRatio) || r.CostRatio <= 0 {
			continue
		}
		kept = append(kept, r)
	}
	return kept, len(rows) - len(kept)
}

// Score sets the z-scores, composite and normalized score of rows in place.
// The composite is CTR_z minus cost_z, so high CTR and low cost both rank
// higher. Normalized scores map the batch's composite range linearly onto
// 1..100; when every composite is equal they are all 50.5.
func Score(rows []model.MetricRow) {
	if len(rows) == 0 {
		return
	}
	ctr := make([]float64, len(rows))
	cost := make([]float64, len(rows))
	for i, r := range rows {
		ctr[i] = r.CTR
		cost[i] = r.CostRatio
	}
	ctrZ, costZ := zScores(ctr), zScores(cost)

	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range rows {
		rows[i].CTRZ = ctrZ[i]
		rows[i].CostZ = costZ[i]
		rows[i].Composite = ctrZ[i] - costZ[i]
		lo = math.Min(lo, rows[i].Composite)
		hi = math.Max(hi, rows[i].Composite)
	}

	for i := range rows {
		if hi == lo {
			rows[i].NormalizedScore = 50.5
			continue
		}
		rows[i].NormalizedScore = 1 + 99*(rows[i].Composite-lo)/(hi-lo)
	}
}

// zScores standardizes xs with the population standard deviation. A zero
// deviation yields all zeros.
func zScores(xs []float64) []float64 {
	n := float64(len(xs))
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / n

	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	sd := math.Sqrt(ss / n)

	out := make([]float64, len(xs))
	if sd == 0 || !finite(sd) {
		return out
	}
	for i, x := range xs {
		out[i] = (x - mean) / sd
	}
	return out
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
