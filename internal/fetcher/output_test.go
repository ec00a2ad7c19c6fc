package fetcher

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/vertical-cli/internal/model"
)

func TestWriteResolutions(t *testing.T) {
	recs := []model.Resolution{
		model.Matched("ACME", "Retail", "Acme Co", "Company Name", 90, "selected"),
		model.AICategorized("Zylo99xQ", "Finance", "no_candidates"),
		model.UncategorizedResolution("Qux", "service_error"),
	}

	var buf bytes.Buffer
	require.NoError(t, WriteResolutions(&buf, recs))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Advertiser,Matched_Company,Matched_Column,Vertical,Match_Score,Categorization_Technique,Reason", lines[0])
	assert.Equal(t, "ACME,Acme Co,Company Name,Retail,90,Matched,selected", lines[1])
	assert.Equal(t, "Zylo99xQ,NO MATCH,,Finance,,AICategorized,no_candidates", lines[2])
	assert.Equal(t, "Qux,NO MATCH,,Uncategorized,,Uncategorized,service_error", lines[3])
}

func TestWriteResolutions_EmptyHasHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResolutions(&buf, nil))
	assert.True(t, strings.HasPrefix(buf.String(), "Advertiser,Matched_Company"))
}

func TestReadResolutions_RoundTrip(t *testing.T) {
	recs := []model.Resolution{
		model.Matched("ACME", "Retail", "Acme Co", "Company Name", 90, "selected"),
		model.AICategorized("Zylo99xQ", "Finance", "no_candidates"),
	}
	var buf bytes.Buffer
	require.NoError(t, WriteResolutions(&buf, recs))

	got, err := ReadResolutions(&buf)
	require.NoError(t, err)
	assert.Equal(t, recs, got)
}

func TestReadResolutions_LegacyFile(t *testing.T) {
	in := "Advertiser,Matched_Company,Vertical,Match_Score,Categorization_Technique\n" +
		"ACME,Acme Co,Retail,92,LLM Matched\n" +
		"Qux,NO MATCH,,,\n"

	got, err := ReadResolutions(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.TechniqueMatched, got[0].Technique)
	assert.Equal(t, "Acme Co", got[0].Alias())
	assert.Equal(t, 92, got[0].Score)
	assert.Equal(t, model.TechniqueUncategorized, got[1].Technique)
	assert.Equal(t, model.Uncategorized, got[1].Vertical)
	assert.Nil(t, got[1].MatchedAlias)
}

func TestWriteMetrics(t *testing.T) {
	rows := []model.MetricRow{{
		Vertical: "Retail", Brand: "BrandA", DataID: "101", Advertiser: "Acme",
		Clicks: 10, Impressions: 1000, Cost: 20, Conversions: 4,
		CTR: 0.01, CostRatio: 5, Composite: 1.5, NormalizedScore: 100,
	}}

	t.Run("grouped by brand", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteMetrics(&buf, rows, MetricsLayout{CostMetric: model.CostPerAcquisition}))
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 2)
		assert.Equal(t, "Vertical,3rd Party Data Brand,3rd Party Data ID,Clicks,Impressions,Cost,Conversions,CTR,CPA,CTR_Z,Cost_Z,Composite,Normalized_Score", lines[0])
		assert.Equal(t, "Retail,BrandA,101,10,1000,20,4,0.01,5,0,0,1.5,100", lines[1])
	})

	t.Run("per advertiser with cpc", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteMetrics(&buf, rows, MetricsLayout{CostMetric: model.CostPerClick, PerAdvertiser: true}))
		header := strings.SplitN(buf.String(), "\n", 2)[0]
		assert.Contains(t, header, "3rd Party Data ID,Advertiser,Clicks")
		assert.Contains(t, header, ",CPC,")
	})
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vertical_mapping.csv")
	err := WriteFile(path, func(w io.Writer) error {
		return WriteResolutions(w, []model.Resolution{model.UncategorizedResolution("Qux", "")})
	})
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	got, err := ReadResolutions(f)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Qux", got[0].Advertiser)
}
