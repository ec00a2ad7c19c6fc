package model

// PerformanceRow is one raw row from an advertising performance export.
type PerformanceRow struct {
	Advertiser  string  `json:"advertiser"`
	Brand       string  `json:"brand"`
	DataID      string  `json:"data_id"`
	Vertical    string  `json:"vertical,omitempty"`
	Clicks      float64 `json:"clicks"`
	Impressions float64 `json:"impressions"`
	Cost        float64 `json:"cost"`
	Conversions float64 `json:"conversions"`
}

// CostMetric selects the cost ratio derived for each metric row.
type CostMetric string

const (
	CostPerAcquisition CostMetric = "cpa"
	CostPerClick       CostMetric = "cpc"
)

// Label returns the column header used for the cost metric.
func (c CostMetric) Label() string {
	if c == CostPerClick {
		return "CPC"
	}
	return "CPA"
}

// MetricRow is one aggregated row keyed by vertical and grouping dimensions.
// Derived fields are zero until Derive and Score have run.
type MetricRow struct {
	Vertical   string `json:"vertical"`
	Brand      string `json:"brand,omitempty"`
	DataID     string `json:"data_id,omitempty"`
	Advertiser string `json:"advertiser,omitempty"`

	Clicks      float64 `json:"clicks"`
	Impressions float64 `json:"impressions"`
	Cost        float64 `json:"cost"`
	Conversions float64 `json:"conversions"`

	CTR             float64 `json:"ctr"`
	CostRatio       float64 `json:"cost_ratio"`
	CTRZ            float64 `json:"ctr_z"`
	CostZ           float64 `json:"cost_z"`
	Composite       float64 `json:"composite"`
	NormalizedScore float64 `json:"normalized_score"`
}
