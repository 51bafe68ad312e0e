package search

import (
	"sort"
	"strings"
)

// escapeFTSQuery splits the raw query on whitespace, double-quotes each
// term, and doubles any embedded double quote, guaranteeing no term can
// inject an FTS5 operator (spec §4.8 query safety).
func escapeFTSQuery(raw string) string {
	terms := strings.Fields(raw)
	if len(terms) == 0 {
		return ""
	}
	escaped := make([]string, len(terms))
	for i, t := range terms {
		escaped[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(escaped, " ")
}

// sortHitsDescending sorts hits by CombinedScore, highest first.
func sortHitsDescending(hits []*Hit) {
	sort.Slice(hits, func(i, j int) bool {
		return hits[i].CombinedScore > hits[j].CombinedScore
	})
}

func truncate(hits []*Hit, limit int) []*Hit {
	if limit > 0 && len(hits) > limit {
		return hits[:limit]
	}
	return hits
}
