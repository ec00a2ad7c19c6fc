package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/vertical-cli/internal/model"
	"github.com/sells-group/vertical-cli/internal/resilience"
	"github.com/sells-group/vertical-cli/pkg/anthropic"
)

// NoMatchAnswer is the sentinel the model returns to decline every candidate.
const NoMatchAnswer = "NO MATCH"

const disambiguateSystem = `You match advertiser names from an ad-platform export to companies in a client lookup table.
You are given one advertiser name and a list of candidate company names, each followed by its fuzzy similarity score in parentheses.
If one candidate is the same company as the advertiser, reply with that candidate name exactly as written, without the score.
If none of the candidates is the same company, reply with exactly: NO MATCH
Reply with the answer only. No explanation, no punctuation, no quotes.`

// Disambiguator asks the model to choose among fuzzy candidates.
type Disambiguator struct {
	svc *Service
}

// NewDisambiguator returns a Disambiguator that calls through svc.
func NewDisambiguator(svc *Service) *Disambiguator {
	return &Disambiguator{svc: svc}
}

// Disambiguate picks the candidate in pool that names the same company as
// name. A Selected result's Value is always one of the pool's aliases.
func (d *Disambiguator) Disambiguate(ctx context.Context, name string, pool []model.CandidateMatch) Result {
	if len(pool) == 0 {
		return Result{Outcome: NoCandidates}
	}

	allowed := make(map[string]bool, len(pool))
	for _, c := range pool {
		allowed[c.Alias] = true
	}

	answer, err := d.svc.complete(ctx, []anthropic.SystemBlock{{Text: disambiguateSystem}}, DisambiguationPrompt(name, pool))
	if err != nil {
		zap.L().Warn("llm: disambiguation failed",
			zap.String("advertiser", name),
			zap.String("class", resilience.Classify(err)),
			zap.Error(err),
		)
		return Result{Outcome: ServiceError, Err: err}
	}

	switch {
	case allowed[answer]:
		return Result{Value: answer, Outcome: Selected}
	case strings.EqualFold(answer, NoMatchAnswer):
		return Result{Outcome: NoMatch}
	default:
		zap.L().Warn("llm: disambiguation answer not in candidate pool",
			zap.String("advertiser", name),
			zap.String("answer", answer),
		)
		return Result{Value: answer, Outcome: Rejected}
	}
}

// DisambiguationPrompt renders the user prompt: the advertiser name and one
// "- alias (score)" line per distinct alias, in pool order.
func DisambiguationPrompt(name string, pool []model.CandidateMatch) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Advertiser: %s\n\nCandidates:\n", name)
	seen := make(map[string]bool, len(pool))
	for _, c := range pool {
		if seen[c.Alias] {
			continue
		}
		seen[c.Alias] = true
		fmt.Fprintf(&b, "- %s (%d)\n", c.Alias, c.Score)
	}
	return b.String()
}
