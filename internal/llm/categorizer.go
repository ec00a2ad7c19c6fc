package llm

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/vertical-cli/internal/resilience"
	"github.com/sells-group/vertical-cli/pkg/anthropic"
)

// Categorizer asks the model to assign a category from a fixed vocabulary.
type Categorizer struct {
	svc        *Service
	vocabulary map[string]bool
	system     []anthropic.SystemBlock
}

// NewCategorizer returns a Categorizer for vocabulary. The vocabulary is
// sent as a cached system block so repeated calls reuse it.
func NewCategorizer(svc *Service, vocabulary []string) (*Categorizer, error) {
	if len(vocabulary) == 0 {
		return nil, eris.New("llm: empty category vocabulary")
	}
	vocab := make(map[string]bool, len(vocabulary))
	for _, v := range vocabulary {
		vocab[v] = true
	}
	return &Categorizer{
		svc:        svc,
		vocabulary: vocab,
		system:     anthropic.BuildCachedSystemBlocks(CategorizationSystem(vocabulary)),
	}, nil
}

// Categorize returns a Selected result whose Value is a vocabulary member,
// compared byte-for-byte after trimming whitespace.
func (c *Categorizer) Categorize(ctx context.Context, name string) Result {
	answer, err := c.svc.complete(ctx, c.system, "Advertiser: "+name)
	if err != nil {
		zap.L().Warn("llm: categorization failed",
			zap.String("advertiser", name),
			zap.String("class", resilience.Classify(err)),
			zap.Error(err),
		)
		return Result{Outcome: ServiceError, Err: err}
	}

	if !c.vocabulary[answer] {
		zap.L().Warn("llm: category not in vocabulary",
			zap.String("advertiser", name),
			zap.String("answer", answer),
		)
		return Result{Value: answer, Outcome: Rejected}
	}
	return Result{Value: answer, Outcome: Selected}
}

// CategorizationSystem renders the system prompt listing the vocabulary one
// entry per line.
func CategorizationSystem(vocabulary []string) string {
	var b strings.Builder
	b.WriteString("You categorize advertisers into industry verticals.\n")
	b.WriteString("Given an advertiser name, reply with exactly one category from the list below, written exactly as it appears.\n")
	b.WriteString("Reply with the category only. No explanation, no punctuation, no quotes.\n\nCategories:\n")
	for _, v := range vocabulary {
		b.WriteString("- ")
		b.WriteString(v)
		b.WriteByte('\n')
	}
	return b.String()
}
