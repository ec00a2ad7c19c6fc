package resolve

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/vertical-cli/internal/llm"
	"github.com/sells-group/vertical-cli/internal/lookup"
	"github.com/sells-group/vertical-cli/internal/model"
	"github.com/sells-group/vertical-cli/pkg/anthropic"
)

var vocabulary = []string{"Retail", "Finance", "Travel"}

func testTable(t *testing.T) *lookup.Table {
	t.Helper()
	tbl, err := lookup.New(
		[]string{"Company Name", "Quickbooks Customer Name", "Client Group", "Client Industry Value"},
		[][]string{
			{"Acme Co", "", "", "Retail"},
			{"Blue River Bank", "BRB Holdings", "", "Finance"},
			{"Zeta Travel", "", "Zeta Group", "Travel"},
		},
		lookup.DefaultAliasColumns, lookup.DefaultVerticalColumn,
	)
	require.NoError(t, err)
	return tbl
}

// MockDisambiguator implements Disambiguator for testing.
type MockDisambiguator struct {
	mock.Mock
}

func (m *MockDisambiguator) Disambiguate(ctx context.Context, name string, pool []model.CandidateMatch) llm.Result {
	args := m.Called(ctx, name, pool)
	return args.Get(0).(llm.Result)
}

// MockCategorizer implements Categorizer for testing.
type MockCategorizer struct {
	mock.Mock
}

func (m *MockCategorizer) Categorize(ctx context.Context, name string) llm.Result {
	args := m.Called(ctx, name)
	return args.Get(0).(llm.Result)
}

// MockAnthropic implements anthropic.Client for testing.
type MockAnthropic struct {
	mock.Mock
}

func (m *MockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

// hungClient never answers before the request deadline.
type hungClient struct{}

func (hungClient) CreateMessage(ctx context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func realCategorizer(t *testing.T, client anthropic.Client) *llm.Categorizer {
	t.Helper()
	svc := llm.NewService(client, llm.Config{Timeout: 20 * time.Millisecond, BreakerFailures: 100})
	cat, err := llm.NewCategorizer(svc, vocabulary)
	require.NoError(t, err)
	return cat
}

func noMatch() llm.Result { return llm.Result{Outcome: llm.NoMatch} }

func TestNew_NilTable(t *testing.T) {
	_, err := New(nil, nil, nil, Options{})
	assert.Error(t, err)
}

func TestResolve_VerbatimAliasIsMatched(t *testing.T) {
	tbl := testTable(t)
	d := new(MockDisambiguator)
	c := new(MockCategorizer)
	p, err := New(tbl, d, c, Options{})
	require.NoError(t, err)

	for _, col := range tbl.AliasColumns() {
		for _, alias := range tbl.Distinct(col) {
			row, _, ok := tbl.Find(alias)
			require.True(t, ok)

			rec := p.Resolve(context.Background(), alias)
			assert.Equal(t, model.TechniqueMatched, rec.Technique, alias)
			assert.Equal(t, row.Vertical, rec.Vertical, alias)
			assert.Equal(t, alias, rec.Alias())
			assert.Equal(t, 100, rec.Score)
			assert.Equal(t, ReasonExact, rec.Reason)
		}
	}
	d.AssertNotCalled(t, "Disambiguate", mock.Anything, mock.Anything, mock.Anything)
	c.AssertNotCalled(t, "Categorize", mock.Anything, mock.Anything)
}

func TestResolve_DisambiguatorConfirmsFuzzyMatch(t *testing.T) {
	d := new(MockDisambiguator)
	d.On("Disambiguate", mock.Anything, "ACME", mock.MatchedBy(func(pool []model.CandidateMatch) bool {
		return len(pool) > 0 && pool[0].Alias == "Acme Co" && pool[0].Score >= 90
	})).Return(llm.Result{Value: "Acme Co", Outcome: llm.Selected}).Once()
	c := new(MockCategorizer)

	p, err := New(testTable(t), d, c, Options{})
	require.NoError(t, err)

	rec := p.Resolve(context.Background(), "ACME")
	assert.Equal(t, "Retail", rec.Vertical)
	require.NotNil(t, rec.MatchedAlias)
	assert.Equal(t, "Acme Co", *rec.MatchedAlias)
	assert.Equal(t, model.TechniqueMatched, rec.Technique)
	assert.Equal(t, "Company Name", rec.MatchedColumn)
	assert.GreaterOrEqual(t, rec.Score, 90)
	assert.Equal(t, "selected", rec.Reason)

	d.AssertExpectations(t)
	c.AssertNotCalled(t, "Categorize", mock.Anything, mock.Anything)
}

func TestResolve_NoCloseAliasIsCategorized(t *testing.T) {
	d := new(MockDisambiguator)
	d.On("Disambiguate", mock.Anything, "Zylo99xQ", mock.Anything).Return(noMatch())

	client := new(MockAnthropic)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "Finance"}},
	}, nil)

	p, err := New(testTable(t), d, realCategorizer(t, client), Options{})
	require.NoError(t, err)

	rec := p.Resolve(context.Background(), "Zylo99xQ")
	assert.Equal(t, "Finance", rec.Vertical)
	assert.Nil(t, rec.MatchedAlias)
	assert.Equal(t, model.TechniqueAICategorized, rec.Technique)
	assert.Contains(t, vocabulary, rec.Vertical)
}

func TestResolve_CategorizerTimeoutIsUncategorized(t *testing.T) {
	d := new(MockDisambiguator)
	d.On("Disambiguate", mock.Anything, mock.Anything, mock.Anything).Return(noMatch())

	p, err := New(testTable(t), d, realCategorizer(t, hungClient{}), Options{})
	require.NoError(t, err)

	start := time.Now()
	rec := p.Resolve(context.Background(), "Zylo99xQ")
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.Equal(t, model.Uncategorized, rec.Vertical)
	assert.Nil(t, rec.MatchedAlias)
	assert.Equal(t, model.TechniqueUncategorized, rec.Technique)
	assert.Contains(t, rec.Reason, "service_error")
}

func TestResolve_CategoryOutsideVocabulary(t *testing.T) {
	d := new(MockDisambiguator)
	d.On("Disambiguate", mock.Anything, mock.Anything, mock.Anything).Return(noMatch())

	client := new(MockAnthropic)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "Crypto"}},
	}, nil)

	p, err := New(testTable(t), d, realCategorizer(t, client), Options{})
	require.NoError(t, err)

	rec := p.Resolve(context.Background(), "Zylo99xQ")
	assert.Equal(t, model.UncategorizedResolution("Zylo99xQ", "no_match; categorizer: rejected"), rec)
}

func TestResolve_HallucinatedAliasFallsThrough(t *testing.T) {
	d := new(MockDisambiguator)
	d.On("Disambiguate", mock.Anything, "ACME", mock.Anything).Return(llm.Result{Value: "Acme Holdings", Outcome: llm.Selected})
	c := new(MockCategorizer)
	c.On("Categorize", mock.Anything, "ACME").Return(llm.Result{Value: "Retail", Outcome: llm.Selected})

	p, err := New(testTable(t), d, c, Options{})
	require.NoError(t, err)

	rec := p.Resolve(context.Background(), "ACME")
	assert.Equal(t, model.AICategorized("ACME", "Retail", "not_in_table; categorizer: selected"), rec)
}

func TestResolve_SelectedAliasOutsidePoolStillVerified(t *testing.T) {
	d := new(MockDisambiguator)
	d.On("Disambiguate", mock.Anything, "ACME", mock.Anything).Return(llm.Result{Value: "Zeta Group", Outcome: llm.Selected})

	p, err := New(testTable(t), d, nil, Options{})
	require.NoError(t, err)

	rec := p.Resolve(context.Background(), "ACME")
	assert.Equal(t, model.TechniqueMatched, rec.Technique)
	assert.Equal(t, "Travel", rec.Vertical)
	assert.Equal(t, "Client Group", rec.MatchedColumn)
}

func TestResolve_DisambiguatorFailureDegrades(t *testing.T) {
	for _, res := range []llm.Result{
		{Outcome: llm.ServiceError, Err: errors.New("timeout")},
		{Outcome: llm.Rejected, Value: "garbage"},
		{Outcome: llm.NoCandidates},
	} {
		d := new(MockDisambiguator)
		d.On("Disambiguate", mock.Anything, mock.Anything, mock.Anything).Return(res)
		c := new(MockCategorizer)
		c.On("Categorize", mock.Anything, "ACME").Return(llm.Result{Value: "Retail", Outcome: llm.Selected}).Once()

		p, err := New(testTable(t), d, c, Options{})
		require.NoError(t, err)

		rec := p.Resolve(context.Background(), "ACME")
		assert.Equal(t, model.TechniqueAICategorized, rec.Technique, res.Outcome.String())
		assert.Contains(t, rec.Reason, res.Outcome.String())
		c.AssertExpectations(t)
	}
}

func TestResolve_NoCategorizer(t *testing.T) {
	d := new(MockDisambiguator)
	d.On("Disambiguate", mock.Anything, mock.Anything, mock.Anything).Return(noMatch())

	p, err := New(testTable(t), d, nil, Options{})
	require.NoError(t, err)

	rec := p.Resolve(context.Background(), "Zylo99xQ")
	assert.Equal(t, model.TechniqueUncategorized, rec.Technique)
	assert.Equal(t, "no_match; categorizer: disabled", rec.Reason)
}

func TestResolve_Deterministic(t *testing.T) {
	p, err := New(testTable(t), nil, nil, Options{})
	require.NoError(t, err)

	rec := p.Resolve(context.Background(), "ACME")
	assert.Equal(t, model.Matched("ACME", "Retail", "Acme Co", "Company Name", 90, ReasonFuzzy), rec)

	rec = p.Resolve(context.Background(), "brb holdings")
	assert.Equal(t, model.TechniqueMatched, rec.Technique)
	assert.Equal(t, "Quickbooks Customer Name", rec.MatchedColumn)
	assert.Equal(t, "Finance", rec.Vertical)

	rec = p.Resolve(context.Background(), "Zylo99xQ")
	assert.Equal(t, model.UncategorizedResolution("Zylo99xQ", "below_cutoff; categorizer: disabled"), rec)
}

func TestResolve_DeterministicColumnPriority(t *testing.T) {
	tbl, err := lookup.New(
		[]string{"Company Name", "Quickbooks Customer Name", "Client Group", "Client Industry Value"},
		[][]string{
			{"", "", "Delta Air", "Retail"},
			{"Delta Air", "", "", "Travel"},
		},
		lookup.DefaultAliasColumns, lookup.DefaultVerticalColumn,
	)
	require.NoError(t, err)

	p, err := New(tbl, nil, nil, Options{})
	require.NoError(t, err)

	rec := p.Resolve(context.Background(), "DELTA AIR!")
	assert.Equal(t, "Company Name", rec.MatchedColumn)
	assert.Equal(t, "Travel", rec.Vertical)
}

func TestCandidates_OrderingAndFloor(t *testing.T) {
	tbl, err := lookup.New(
		[]string{"Company Name", "Quickbooks Customer Name", "Client Group", "Client Industry Value"},
		[][]string{
			{"Acme Co", "", "Acme Co", "Retail"},
			{"Acme Corporation", "Acme Co", "", "Retail"},
			{"Unrelated Widgets", "", "", "Retail"},
		},
		lookup.DefaultAliasColumns, lookup.DefaultVerticalColumn,
	)
	require.NoError(t, err)

	p, err := New(tbl, nil, nil, Options{})
	require.NoError(t, err)

	pool, err := p.Candidates(context.Background(), "Acme Co")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(pool), 3)

	// equal scores follow declared column priority
	assert.Equal(t, model.CandidateMatch{Alias: "Acme Co", Score: 100, Column: "Company Name", ColumnRank: 0, Position: 0}, pool[0])
	assert.Equal(t, "Quickbooks Customer Name", pool[1].Column)
	assert.Equal(t, "Client Group", pool[2].Column)

	for i, c := range pool {
		assert.GreaterOrEqual(t, c.Score, 60)
		assert.NotEqual(t, "Unrelated Widgets", c.Alias)
		if i > 0 {
			assert.GreaterOrEqual(t, pool[i-1].Score, c.Score)
		}
	}

	for i := 0; i < 20; i++ {
		again, err := p.Candidates(context.Background(), "Acme Co")
		require.NoError(t, err)
		assert.Equal(t, pool, again)
	}
}

func TestCandidates_NoFloor(t *testing.T) {
	p, err := New(testTable(t), nil, nil, Options{CandidateFloor: -1})
	require.NoError(t, err)

	pool, err := p.Candidates(context.Background(), "Zylo99xQ")
	require.NoError(t, err)
	assert.Len(t, pool, 5)
}

func TestCandidates_Cancelled(t *testing.T) {
	p, err := New(testTable(t), nil, nil, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Candidates(ctx, "ACME")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolve_Idempotent(t *testing.T) {
	d := new(MockDisambiguator)
	d.On("Disambiguate", mock.Anything, "ACME", mock.Anything).Return(llm.Result{Value: "Acme Co", Outcome: llm.Selected})
	d.On("Disambiguate", mock.Anything, mock.Anything, mock.Anything).Return(noMatch())
	c := new(MockCategorizer)
	c.On("Categorize", mock.Anything, mock.Anything).Return(llm.Result{Value: "Finance", Outcome: llm.Selected})

	p, err := New(testTable(t), d, c, Options{})
	require.NoError(t, err)

	names := []string{"ACME", "Zylo99xQ", "Acme Co", "Blue Rivr Bank"}
	first := p.ResolveBatch(context.Background(), names)
	second := p.ResolveBatch(context.Background(), names)
	assert.Equal(t, first, second)
}

func TestKey(t *testing.T) {
	tbl := testTable(t)
	a, _ := New(tbl, nil, nil, Options{})
	b, _ := New(tbl, nil, nil, Options{})
	assert.Equal(t, a.Key(), b.Key())

	salted, _ := New(tbl, nil, nil, Options{CacheSalt: "claude-haiku"})
	assert.NotEqual(t, a.Key(), salted.Key())

	stricter, _ := New(tbl, nil, nil, Options{ScoreCutoff: 95})
	assert.NotEqual(t, a.Key(), stricter.Key())

	withLLM, _ := New(tbl, new(MockDisambiguator), nil, Options{})
	assert.NotEqual(t, a.Key(), withLLM.Key())
}

// countingCategorizer records how often each name is categorized.
type countingCategorizer struct {
	mu     sync.Mutex
	calls  map[string]int
	failOn string
}

func (c *countingCategorizer) Categorize(_ context.Context, name string) llm.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[name]++
	if name == c.failOn {
		return llm.Result{Outcome: llm.ServiceError, Err: errors.New("boom")}
	}
	return llm.Result{Value: "Finance", Outcome: llm.Selected}
}

// memCache is an in-memory Cache.
type memCache struct {
	mu      sync.Mutex
	data    map[string]map[string]model.Resolution
	readErr error
	saves   atomic.Int32
}

func (m *memCache) GetResolutions(_ context.Context, key string, names []string) (map[string]model.Resolution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	out := make(map[string]model.Resolution)
	for _, n := range names {
		if r, ok := m.data[key][n]; ok {
			out[n] = r
		}
	}
	return out, nil
}

func (m *memCache) SaveResolutions(_ context.Context, key string, recs []model.Resolution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves.Add(1)
	if m.data == nil {
		m.data = make(map[string]map[string]model.Resolution)
	}
	if m.data[key] == nil {
		m.data[key] = make(map[string]model.Resolution)
	}
	for _, r := range recs {
		m.data[key][r.Advertiser] = r
	}
	return nil
}
