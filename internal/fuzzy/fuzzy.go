// Package fuzzy ranks candidate strings by similarity to a name. All
// functions are pure and safe for concurrent use.
package fuzzy

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Match is one scored candidate. Position is the candidate's index in the
// slice it was drawn from.
type Match struct {
	Value    string
	Score    int
	Position int
}

const (
	// unbaseScale discounts token-based scores against the plain ratio.
	unbaseScale = 0.95
	// partialScale discounts substring scores when lengths differ a lot.
	partialScale     = 0.9
	longPartialScale = 0.6
)

// Process folds accents, lowercases, replaces anything that is not a
// letter or digit with a space, and collapses whitespace.
func Process(s string) string {
	// Transformers are stateful, so each call builds its own chain.
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Ratio returns the edit-distance similarity of a and b on a 0-100 scale.
// Inputs are compared as given.
func Ratio(a, b string) int {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	return round(100 * float64(total-dist) / float64(total))
}

// PartialRatio scores the shorter string against the best-aligned window
// of the longer one.
func PartialRatio(a, b string) int {
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		return 0
	}
	if len(short) == len(long) {
		return Ratio(a, b)
	}

	s := string(short)
	best := 0
	for i := 0; i+len(short) <= len(long); i++ {
		if r := Ratio(s, string(long[i:i+len(short)])); r > best {
			best = r
			if best == 100 {
				break
			}
		}
	}
	return best
}

// TokenSortRatio compares the processed inputs with their words sorted.
func TokenSortRatio(a, b string) int {
	return tokenSort(Process(a), Process(b), false)
}

// TokenSetRatio compares the shared words of both inputs against each
// side's remainder, so extra words on one side cost little.
func TokenSetRatio(a, b string) int {
	return tokenSet(Process(a), Process(b), false)
}

// WRatio is the weighted composite used for ranking. It takes the best of
// the plain, substring and token-based scores with each discounted by how
// much it can over-reward dissimilar strings. Returns 0 when either input
// is empty after processing.
func WRatio(a, b string) int {
	p1, p2 := Process(a), Process(b)
	if p1 == "" || p2 == "" {
		return 0
	}

	base := float64(Ratio(p1, p2))
	l1, l2 := utf8.RuneCountInString(p1), utf8.RuneCountInString(p2)
	lenRatio := float64(max(l1, l2)) / float64(min(l1, l2))

	if lenRatio < 1.5 {
		tsor := float64(tokenSort(p1, p2, false)) * unbaseScale
		tser := float64(tokenSet(p1, p2, false)) * unbaseScale
		return round(max(base, tsor, tser))
	}

	scale := partialScale
	if lenRatio > 8 {
		scale = longPartialScale
	}
	partial := float64(PartialRatio(p1, p2)) * scale
	ptsor := float64(tokenSort(p1, p2, true)) * unbaseScale * scale
	ptser := float64(tokenSet(p1, p2, true)) * unbaseScale * scale
	return round(max(base, partial, ptsor, ptser))
}

// TopMatches scores every non-blank candidate against name and returns at
// most limit matches by descending score. Equal scores keep candidate order.
func TopMatches(name string, candidates []string, limit int) []Match {
	if limit <= 0 || len(candidates) == 0 {
		return nil
	}

	matches := make([]Match, 0, len(candidates))
	for i, c := range candidates {
		if strings.TrimSpace(c) == "" {
			continue
		}
		matches = append(matches, Match{Value: c, Score: WRatio(name, c), Position: i})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// BestMatch returns the top candidate, or false when there is none or its
// score is strictly below cutoff.
func BestMatch(name string, candidates []string, cutoff int) (Match, bool) {
	top := TopMatches(name, candidates, 1)
	if len(top) == 0 || top[0].Score < cutoff {
		return Match{}, false
	}
	return top[0], true
}

func tokenSort(p1, p2 string, partial bool) int {
	s1, s2 := sortedTokens(p1), sortedTokens(p2)
	if partial {
		return PartialRatio(s1, s2)
	}
	return Ratio(s1, s2)
}

func tokenSet(p1, p2 string, partial bool) int {
	if p1 == "" || p2 == "" {
		return 0
	}

	set1, set2 := tokenSetOf(p1), tokenSetOf(p2)
	var sect, diff12, diff21 []string
	for t := range set1 {
		if _, ok := set2[t]; ok {
			sect = append(sect, t)
		} else {
			diff12 = append(diff12, t)
		}
	}
	for t := range set2 {
		if _, ok := set1[t]; !ok {
			diff21 = append(diff21, t)
		}
	}
	sort.Strings(sect)
	sort.Strings(diff12)
	sort.Strings(diff21)

	t0 := strings.Join(sect, " ")
	t1 := strings.TrimSpace(t0 + " " + strings.Join(diff12, " "))
	t2 := strings.TrimSpace(t0 + " " + strings.Join(diff21, " "))

	score := Ratio
	if partial {
		score = PartialRatio
	}
	return max(score(t0, t1), score(t0, t2), score(t1, t2))
}

func sortedTokens(s string) string {
	fields := strings.Fields(s)
	sort.Strings(fields)
	return strings.Join(fields, " ")
}

func tokenSetOf(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range strings.Fields(s) {
		set[t] = struct{}{}
	}
	return set
}

func round(f float64) int {
	return int(math.Round(f))
}
