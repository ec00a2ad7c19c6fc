// Package resolve assigns an industry vertical to each advertiser name:
// exact lookup, fuzzy candidates fanned out across the alias columns, model
// disambiguation, and categorization as the last resort. Every name ends
// in exactly one of Matched, AICategorized or Uncategorized.
package resolve

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/vertical-cli/internal/fuzzy"
	"github.com/sells-group/vertical-cli/internal/llm"
	"github.com/sells-group/vertical-cli/internal/lookup"
	"github.com/sells-group/vertical-cli/internal/model"
)

// Disambiguator picks one alias from a candidate pool. *llm.Disambiguator
// implements it.
type Disambiguator interface {
	Disambiguate(ctx context.Context, name string, pool []model.CandidateMatch) llm.Result
}

// Categorizer assigns a category from a fixed vocabulary. *llm.Categorizer
// implements it.
type Categorizer interface {
	Categorize(ctx context.Context, name string) llm.Result
}

// Cache stores resolutions under a key that changes whenever a resolution
// could change.
type Cache interface {
	GetResolutions(ctx context.Context, key string, names []string) (map[string]model.Resolution, error)
	SaveResolutions(ctx context.Context, key string, recs []model.Resolution) error
}

// Reasons recorded on resolutions that never reached the model.
const (
	ReasonExact    = "exact"
	ReasonFuzzy    = "fuzzy_cutoff"
	ReasonNoFuzzy  = "below_cutoff"
	ReasonNotFound = "not_in_table"
	ReasonCanceled = "canceled"
)

// Options tunes the pipeline. Zero fields take DefaultOptions values.
type Options struct {
	// TopN is the number of fuzzy candidates kept per alias column.
	TopN int
	// ScoreCutoff is the minimum score for a deterministic fuzzy match.
	ScoreCutoff int
	// CandidateFloor drops weaker candidates before disambiguation. A
	// negative value keeps every candidate.
	CandidateFloor int
	// Concurrency bounds the names resolved at once by ResolveBatch.
	Concurrency int
	// Cache, when set, serves and stores resolutions.
	Cache Cache
	// CacheSalt is mixed into the cache key; set it to anything outside
	// the table that changes answers, such as the model and vocabulary.
	CacheSalt string
}

// DefaultOptions returns the standard policy values.
func DefaultOptions() Options {
	return Options{
		TopN:           10,
		ScoreCutoff:    90,
		CandidateFloor: 60,
		Concurrency:    8,
	}
}

// Pipeline resolves advertiser names against one lookup table. It is safe
// for concurrent use.
type Pipeline struct {
	table  *lookup.Table
	disamb Disambiguator
	cat    Categorizer
	opts   Options
	key    string

	cacheHits atomic.Int64
}

// New builds a Pipeline. With a nil Disambiguator, fuzzy matches are
// accepted per column at ScoreCutoff without a model call. With a nil
// Categorizer, unmatched names are Uncategorized.
func New(table *lookup.Table, d Disambiguator, c Categorizer, opts Options) (*Pipeline, error) {
	if table == nil {
		return nil, eris.New("resolve: nil lookup table")
	}
	def := DefaultOptions()
	if opts.TopN <= 0 {
		opts.TopN = def.TopN
	}
	if opts.ScoreCutoff <= 0 {
		opts.ScoreCutoff = def.ScoreCutoff
	}
	if opts.CandidateFloor < 0 {
		opts.CandidateFloor = 0
	} else if opts.CandidateFloor == 0 {
		opts.CandidateFloor = def.CandidateFloor
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}

	p := &Pipeline{table: table, disamb: d, cat: c, opts: opts}
	p.key = p.cacheKey()
	return p, nil
}

// Key returns the cache key for this table and policy.
func (p *Pipeline) Key() string { return p.key }

// CacheHits returns the number of names served from the cache so far.
func (p *Pipeline) CacheHits() int { return int(p.cacheHits.Load()) }

func (p *Pipeline) cacheKey() string {
	h := sha256.New()
	mode := "llm"
	if p.disamb == nil {
		mode = "deterministic"
	}
	cat := "categorize"
	if p.cat == nil {
		cat = "none"
	}
	fmt.Fprintf(h, "%s|%d|%d|%d|%s|%s|%s",
		p.table.Fingerprint(), p.opts.TopN, p.opts.ScoreCutoff, p.opts.CandidateFloor, mode, cat, p.opts.CacheSalt)
	return hex.EncodeToString(h.Sum(nil))
}

// Resolve produces the resolution for one name. It never fails; the worst
// case is Uncategorized with the cause in Reason.
func (p *Pipeline) Resolve(ctx context.Context, name string) model.Resolution {
	res, _ := p.resolve(ctx, name)
	return res
}

// resolve also reports whether the record is stable enough to cache, which
// it is not when a service error or cancellation shaped it.
func (p *Pipeline) resolve(ctx context.Context, name string) (model.Resolution, bool) {
	if row, col, ok := p.table.Find(name); ok {
		return model.Matched(name, row.Vertical, name, col, 100, ReasonExact), true
	}

	if p.disamb == nil {
		return p.resolveDeterministic(ctx, name)
	}

	// Fan-out work for this name ends with this call.
	nameCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool, err := p.Candidates(nameCtx, name)
	if err != nil {
		return model.UncategorizedResolution(name, ReasonCanceled), false
	}

	res := p.disamb.Disambiguate(nameCtx, name, pool)
	stable := res.Outcome != llm.ServiceError
	reason := res.Outcome.String()
	if res.OK() {
		if rec, ok := p.matched(name, res.Value, pool); ok {
			return rec, true
		}
		zap.L().Warn("resolve: disambiguated alias not in lookup table",
			zap.String("advertiser", name),
			zap.String("alias", res.Value),
		)
		reason = ReasonNotFound
	}

	rec, catStable := p.categorize(nameCtx, name, reason)
	return rec, stable && catStable
}

func (p *Pipeline) resolveDeterministic(ctx context.Context, name string) (model.Resolution, bool) {
	for _, col := range p.table.AliasColumns() {
		m, ok := fuzzy.BestMatch(name, p.table.Distinct(col), p.opts.ScoreCutoff)
		if !ok {
			continue
		}
		row, _ := p.table.FindIn(col, m.Value)
		return model.Matched(name, row.Vertical, m.Value, col, m.Score, ReasonFuzzy), true
	}
	return p.categorize(ctx, name, ReasonNoFuzzy)
}

// matched builds the Matched record for alias, preferring the provenance of
// its best candidate in pool.
func (p *Pipeline) matched(name, alias string, pool []model.CandidateMatch) (model.Resolution, bool) {
	for _, c := range pool {
		if c.Alias != alias {
			continue
		}
		if row, ok := p.table.FindIn(c.Column, alias); ok {
			return model.Matched(name, row.Vertical, alias, c.Column, c.Score, llm.Selected.String()), true
		}
	}
	row, col, ok := p.table.Find(alias)
	if !ok {
		return model.Resolution{}, false
	}
	return model.Matched(name, row.Vertical, alias, col, fuzzy.WRatio(name, alias), llm.Selected.String()), true
}

func (p *Pipeline) categorize(ctx context.Context, name, reason string) (model.Resolution, bool) {
	if p.cat == nil {
		return model.UncategorizedResolution(name, reason+"; categorizer: disabled"), true
	}
	if ctx.Err() != nil {
		return model.UncategorizedResolution(name, ReasonCanceled), false
	}

	res := p.cat.Categorize(ctx, name)
	reason = reason + "; categorizer: " + res.Outcome.String()
	if res.OK() {
		return model.AICategorized(name, res.Value, reason), true
	}
	return model.UncategorizedResolution(name, reason), res.Outcome != llm.ServiceError
}

// Candidates runs TopMatches against every alias column concurrently and
// merges the results. The merged pool is ordered by score, then column
// priority, then first occurrence within the column, and excludes
// candidates below the floor. It fails only when ctx is cancelled.
func (p *Pipeline) Candidates(ctx context.Context, name string) ([]model.CandidateMatch, error) {
	cols := p.table.AliasColumns()
	perColumn := make([][]model.CandidateMatch, len(cols))

	g, gCtx := errgroup.WithContext(ctx)
	for i, col := range cols {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			matches := fuzzy.TopMatches(name, p.table.Distinct(col), p.opts.TopN)
			out := make([]model.CandidateMatch, 0, len(matches))
			for _, m := range matches {
				if m.Score < p.opts.CandidateFloor {
					continue
				}
				out = append(out, model.CandidateMatch{
					Alias:      m.Value,
					Score:      m.Score,
					Column:     col,
					ColumnRank: i,
					Position:   m.Position,
				})
			}
			perColumn[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrapf(err, "resolve: candidates for %q", name)
	}

	var pool []model.CandidateMatch
	for _, c := range perColumn {
		pool = append(pool, c...)
	}
	model.SortCandidates(pool)
	return pool, nil
}
