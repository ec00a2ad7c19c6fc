package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTechniqueValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		technique Technique
		want      string
	}{
		{TechniqueMatched, "Matched"},
		{TechniqueAICategorized, "AICategorized"},
		{TechniqueUncategorized, "Uncategorized"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.technique))
		})
	}
}

func TestResolutionConstructors(t *testing.T) {
	m := Matched("ACME", "Retail", "Acme Co", "Company Name", 92, "selected")
	assert.Equal(t, TechniqueMatched, m.Technique)
	assert.Equal(t, "Acme Co", m.Alias())
	assert.Equal(t, 92, m.Score)

	c := AICategorized("Zylo99xQ", "Finance", "no_candidates")
	assert.Nil(t, c.MatchedAlias)
	assert.Equal(t, "", c.Alias())
	assert.Equal(t, "Finance", c.Vertical)

	u := UncategorizedResolution("Zylo99xQ", "service_error")
	assert.Equal(t, Uncategorized, u.Vertical)
	assert.Equal(t, TechniqueUncategorized, u.Technique)
	assert.Nil(t, u.MatchedAlias)
}

func TestSortCandidates(t *testing.T) {
	pool := []CandidateMatch{
		{Alias: "Acme Group", Score: 90, Column: "Client Group", ColumnRank: 2, Position: 0},
		{Alias: "Acme Inc", Score: 90, Column: "Company Name", ColumnRank: 0, Position: 3},
		{Alias: "Acme Co", Score: 90, Column: "Company Name", ColumnRank: 0, Position: 1},
		{Alias: "Acme", Score: 95, Column: "Quickbooks Customer Name", ColumnRank: 1, Position: 7},
	}

	SortCandidates(pool)

	got := make([]string, len(pool))
	for i, c := range pool {
		got[i] = c.Alias
	}
	assert.Equal(t, []string{"Acme", "Acme Co", "Acme Inc", "Acme Group"}, got)
}

func TestTally(t *testing.T) {
	recs := []Resolution{
		Matched("a", "Retail", "A", "Company Name", 100, "exact"),
		AICategorized("b", "Finance", "no_candidates"),
		UncategorizedResolution("c", "rejected"),
		UncategorizedResolution("d", "service_error"),
	}
	s := Tally(recs)
	assert.Equal(t, 4, s.Advertisers)
	assert.Equal(t, 1, s.Matched)
	assert.Equal(t, 1, s.AICategorized)
	assert.Equal(t, 2, s.Uncategorized)
}

func TestCostMetricLabel(t *testing.T) {
	assert.Equal(t, "CPA", CostPerAcquisition.Label())
	assert.Equal(t, "CPC", CostPerClick.Label())
	assert.Equal(t, "CPA", CostMetric("").Label())
}
