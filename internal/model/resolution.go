// Package model holds the domain types shared across the resolution and metrics pipeline.
package model

import "sort"

// Technique records how an advertiser's vertical was decided.
type Technique string

const (
	TechniqueMatched       Technique = "Matched"
	TechniqueAICategorized Technique = "AICategorized"
	TechniqueUncategorized Technique = "Uncategorized"
)

// Uncategorized is the vertical assigned when neither matching nor
// categorization produced a usable answer.
const Uncategorized = "Uncategorized"

// NoMatch is written in place of a null matched alias in flat files.
const NoMatch = "NO MATCH"

// Resolution is the immutable outcome of resolving one advertiser name.
type Resolution struct {
	Advertiser    string    `json:"advertiser"`
	Vertical      string    `json:"vertical"`
	MatchedAlias  *string   `json:"matched_alias,omitempty"`
	MatchedColumn string    `json:"matched_column,omitempty"`
	Score         int       `json:"score,omitempty"`
	Technique     Technique `json:"technique"`
	// Reason is the diagnostic outcome that led to the terminal state.
	Reason string `json:"reason,omitempty"`
}

// Matched builds a Matched resolution.
func Matched(advertiser, vertical, alias, column string, score int, reason string) Resolution {
	return Resolution{
		Advertiser:    advertiser,
		Vertical:      vertical,
		MatchedAlias:  &alias,
		MatchedColumn: column,
		Score:         score,
		Technique:     TechniqueMatched,
		Reason:        reason,
	}
}

// AICategorized builds a resolution whose vertical came from the categorizer.
func AICategorized(advertiser, vertical, reason string) Resolution {
	return Resolution{
		Advertiser: advertiser,
		Vertical:   vertical,
		Technique:  TechniqueAICategorized,
		Reason:     reason,
	}
}

// UncategorizedResolution builds the terminal fallback resolution.
func UncategorizedResolution(advertiser, reason string) Resolution {
	return Resolution{
		Advertiser: advertiser,
		Vertical:   Uncategorized,
		Technique:  TechniqueUncategorized,
		Reason:     reason,
	}
}

// Alias returns the matched alias or "" when none.
func (r Resolution) Alias() string {
	if r.MatchedAlias == nil {
		return ""
	}
	return *r.MatchedAlias
}

// CandidateMatch is one fuzzy candidate drawn from an alias column.
type CandidateMatch struct {
	Alias  string `json:"alias"`
	Score  int    `json:"score"`
	Column string `json:"column"`

	// ColumnRank is the declared priority of Column (0 = highest).
	ColumnRank int `json:"-"`
	// Position is the candidate's first-occurrence index within its column.
	Position int `json:"-"`
}

// SortCandidates orders candidates by score descending, then column
// priority, then first occurrence. The result does not depend on the
// order in which per-column lookups completed.
func SortCandidates(pool []CandidateMatch) {
	sort.SliceStable(pool, func(i, j int) bool {
		a, b := pool[i], pool[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.ColumnRank != b.ColumnRank {
			return a.ColumnRank < b.ColumnRank
		}
		return a.Position < b.Position
	})
}
