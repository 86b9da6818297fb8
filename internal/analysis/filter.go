package analysis

import "strings"

// KeywordMatch is the outcome of matching a target's include and exclude
// keyword lists against extracted text.
type KeywordMatch struct {
	Hits     []string
	Excluded []string
	Relevant bool
}

// MatchKeywords reports which include keywords occur in text and whether the
// text is relevant: at least one include keyword (when any are configured)
// and no exclude keyword. Matching is case-insensitive substring containment.
func MatchKeywords(text string, include, exclude []string) KeywordMatch {
	lower := strings.ToLower(text)
	m := KeywordMatch{Hits: []string{}, Excluded: []string{}}

	for _, k := range include {
		k = strings.TrimSpace(k)
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			m.Hits = append(m.Hits, k)
		}
	}
	for _, k := range exclude {
		k = strings.TrimSpace(k)
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			m.Excluded = append(m.Excluded, k)
		}
	}

	m.Relevant = len(m.Excluded) == 0 && (len(include) == 0 || len(m.Hits) > 0)
	return m
}
