// Package llm asks a language model to pick a lookup alias for an
// advertiser (disambiguation) or to assign it a category from a fixed
// vocabulary (categorization). Answers are untrusted and validated against
// the permitted set; every failure comes back as a Result, never a panic or
// an error return.
package llm

// Outcome says how a model call ended.
type Outcome int

const (
	// Selected means Value is a validated member of the permitted set.
	Selected Outcome = iota
	// NoMatch means the model declined to pick a candidate.
	NoMatch
	// NoCandidates means there was nothing to choose from, so no call was made.
	NoCandidates
	// Rejected means the model answered outside the permitted set.
	Rejected
	// ServiceError means the call failed: timeout, transport, API error,
	// or an open circuit.
	ServiceError
)

func (o Outcome) String() string {
	switch o {
	case Selected:
		return "selected"
	case NoMatch:
		return "no_match"
	case NoCandidates:
		return "no_candidates"
	case Rejected:
		return "rejected"
	case ServiceError:
		return "service_error"
	default:
		return "unknown"
	}
}

// Result is the answer of one Disambiguate or Categorize call. Value is
// set only when Outcome is Selected; for Rejected it holds the raw answer.
// Err is set only for ServiceError.
type Result struct {
	Value   string
	Outcome Outcome
	Err     error
}

// OK reports whether Value can be used.
func (r Result) OK() bool { return r.Outcome == Selected }
