package model

import "time"

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusResolving   RunStatus = "resolving"
	RunStatusAggregating RunStatus = "aggregating"
	RunStatusComplete    RunStatus = "complete"
	RunStatusFailed      RunStatus = "failed"
)

// Run records one invocation of the resolve + aggregate pipeline.
type Run struct {
	ID        string    `json:"id"`
	LookupKey string    `json:"lookup_key"`
	Source    string    `json:"source"`
	Status    RunStatus `json:"status"`
	Stats     *RunStats `json:"stats,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunStats summarizes a finished run.
type RunStats struct {
	Advertisers   int     `json:"advertisers"`
	Matched       int     `json:"matched"`
	AICategorized int     `json:"ai_categorized"`
	Uncategorized int     `json:"uncategorized"`
	CacheHits     int     `json:"cache_hits"`
	MetricRows    int     `json:"metric_rows"`
	DroppedRows   int     `json:"dropped_rows"`
	InputTokens   int64   `json:"input_tokens"`
	OutputTokens  int64   `json:"output_tokens"`
	CostUSD       float64 `json:"cost_usd"`
}

// Tally counts resolutions by technique.
func Tally(recs []Resolution) RunStats {
	var s RunStats
	s.Advertisers = len(recs)
	for _, r := range recs {
		switch r.Technique {
		case TechniqueMatched:
			s.Matched++
		case TechniqueAICategorized:
			s.AICategorized++
		default:
			s.Uncategorized++
		}
	}
	return s
}
