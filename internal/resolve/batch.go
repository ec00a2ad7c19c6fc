package resolve

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/vertical-cli/internal/model"
)

// ResolveBatch resolves names and returns one record per input name, in
// input order. Duplicate names are resolved once. Names are processed
// concurrently up to Options.Concurrency; a failure on one name never
// affects another.
func (p *Pipeline) ResolveBatch(ctx context.Context, names []string) []model.Resolution {
	distinct := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			distinct = append(distinct, n)
		}
	}

	done := p.fromCache(ctx, distinct)

	var todo []string
	for _, n := range distinct {
		if _, ok := done[n]; !ok {
			todo = append(todo, n)
		}
	}

	type outcome struct {
		rec    model.Resolution
		stable bool
	}
	results := make([]outcome, len(todo))

	log := zap.L().With(zap.String("component", "resolve"))
	log.Info("resolving advertisers",
		zap.Int("names", len(names)),
		zap.Int("distinct", len(distinct)),
		zap.Int("cached", len(done)),
		zap.Int("concurrency", p.opts.Concurrency),
	)

	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for i, name := range todo {
		g.Go(func() error {
			rec, stable := p.resolve(ctx, name)
			results[i] = outcome{rec: rec, stable: stable}
			log.Debug("resolved advertiser",
				zap.String("advertiser", name),
				zap.String("technique", string(rec.Technique)),
				zap.String("vertical", rec.Vertical),
				zap.String("reason", rec.Reason),
			)
			return nil
		})
	}
	_ = g.Wait()

	fresh := make([]model.Resolution, 0, len(todo))
	for i, r := range results {
		done[todo[i]] = r.rec
		if r.stable {
			fresh = append(fresh, r.rec)
		}
	}
	p.toCache(ctx, fresh)

	out := make([]model.Resolution, len(names))
	for i, n := range names {
		out[i] = done[n]
	}
	return out
}

func (p *Pipeline) fromCache(ctx context.Context, names []string) map[string]model.Resolution {
	done := make(map[string]model.Resolution, len(names))
	if p.opts.Cache == nil || len(names) == 0 {
		return done
	}
	cached, err := p.opts.Cache.GetResolutions(ctx, p.key, names)
	if err != nil {
		zap.L().Warn("resolve: cache read failed", zap.Error(err))
		return done
	}
	for _, n := range names {
		if rec, ok := cached[n]; ok {
			done[n] = rec
		}
	}
	p.cacheHits.Add(int64(len(done)))
	return done
}

func (p *Pipeline) toCache(ctx context.Context, recs []model.Resolution) {
	if p.opts.Cache == nil || len(recs) == 0 {
		return
	}
	if err := p.opts.Cache.SaveResolutions(ctx, p.key, recs); err != nil {
		zap.L().Warn("resolve: cache write failed", zap.Error(err), zap.Int("records", len(recs)))
	}
}
