package util

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// maxEditDistance bounds the typo fallback in ClosestMatch
const maxEditDistance = 2

// ClosestMatch returns the candidate that best matches target, or "" when
// nothing is close. Subsequence matches rank first ("Bse" -> "Base"); after
// that a small edit distance catches transpositions ("Baes" -> "Base").
func ClosestMatch(target string, candidates []string) string {
	if target == "" || len(candidates) == 0 {
		return ""
	}

	ranks := fuzzy.RankFindFold(target, candidates)
	if len(ranks) > 0 {
		sort.Sort(ranks)
		return ranks[0].Target
	}

	best, bestDist := "", maxEditDistance+1
	lower := strings.ToLower(target)
	for _, c := range candidates {
		if d := fuzzy.LevenshteinDistance(lower, strings.ToLower(c)); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// DidYouMean formats a hint for ClosestMatch, or "" when there is no match.
func DidYouMean(target string, candidates []string) string {
	if m := ClosestMatch(target, candidates); m != "" && m != target {
		return "did you mean " + m + "?"
	}
	return ""
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
