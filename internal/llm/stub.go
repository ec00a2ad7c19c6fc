package llm

import (
	"context"
	"strconv"
	"strings"

	"github.com/sells-group/vertical-cli/pkg/anthropic"
)

var _ anthropic.Client = (*StubClient)(nil)

// StubClient answers without network access, for offline runs. It accepts
// the top disambiguation candidate when its score reaches AcceptScore and
// otherwise declines; categorization requests get Category, which is
// rejected unless it is in the vocabulary.
type StubClient struct {
	AcceptScore int
	Category    string
}

// CreateMessage implements anthropic.Client.
func (s *StubClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	prompt := ""
	if len(req.Messages) > 0 {
		prompt = req.Messages[len(req.Messages)-1].Content
	}

	answer := s.Category
	if len(req.System) > 0 && req.System[0].Text == disambiguateSystem {
		answer = s.pick(prompt)
	}

	return &anthropic.MessageResponse{
		ID:         "stub-msg",
		Model:      req.Model,
		Content:    []anthropic.ContentBlock{{Type: "text", Text: answer}},
		StopReason: "end_turn",
	}, nil
}

func (s *StubClient) pick(prompt string) string {
	for _, line := range strings.Split(prompt, "\n") {
		if !strings.HasPrefix(line, "- ") {
			continue
		}
		line = strings.TrimPrefix(line, "- ")
		open := strings.LastIndex(line, " (")
		if open < 0 || !strings.HasSuffix(line, ")") {
			break
		}
		score, err := strconv.Atoi(line[open+2 : len(line)-1])
		if err != nil || score < s.AcceptScore {
			break
		}
		return line[:open]
	}
	return NoMatchAnswer
}
