package retrieval

import (
	"regexp"
	"strings"
)

// Variant is one expanded query form with its fusion weight (spec §4.3.3:
// "original query's weight = 1.0 and subsequent variants ≤ 0.8").
type Variant struct {
	Query  string
	Weight float64
}

var synonyms = map[string][]string{
	"bug":     {"defect", "issue"},
	"fix":     {"resolve", "patch"},
	"slow":    {"sluggish", "laggy"},
	"crash":   {"panic", "segfault"},
	"delete":  {"remove", "drop"},
	"connect": {"link", "attach"},
}

var acronyms = map[string][]string{
	"api":  {"application programming interface"},
	"db":   {"database"},
	"ui":   {"user interface"},
	"ci":   {"continuous integration"},
	"auth": {"authentication", "authorization"},
}

var phrasalRewrites = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)^why (is|does|did) `), ""},
	{regexp.MustCompile(`(?i)^how (do|can|does) (i|we|you) `), ""},
	{regexp.MustCompile(`(?i) (fails?|failed|failing)$`), " error"},
	{regexp.MustCompile(`(?i)^what is `), ""},
}

// Expand produces up to maxVariants additional query forms via synonym
// substitution, acronym expansion, and phrasal rewrites (spec §4.3.3). The
// original query is always variant 0 with weight 1.0.
func Expand(query string, maxVariants int) []Variant {
	variants := []Variant{{Query: query, Weight: 1.0}}
	seen := map[string]bool{strings.ToLower(query): true}

	add := func(q string) bool {
		q = strings.TrimSpace(q)
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			return false
		}
		seen[key] = true
		variants = append(variants, Variant{Query: q, Weight: 0.8})
		return len(variants)-1 >= maxVariants
	}

	words := strings.Fields(query)
	for _, w := range words {
		lw := strings.ToLower(strings.Trim(w, ".,!?"))
		for _, syn := range synonyms[lw] {
			if add(strings.Replace(query, w, syn, 1)) {
				return variants
			}
		}
		for _, exp := range acronyms[lw] {
			if add(strings.Replace(query, w, exp, 1)) {
				return variants
			}
		}
	}

	for _, r := range phrasalRewrites {
		if r.pattern.MatchString(query) {
			rewritten := r.pattern.ReplaceAllString(query, r.replacement)
			if add(rewritten) {
				return variants
			}
		}
	}

	if len(variants) > maxVariants+1 {
		variants = variants[:maxVariants+1]
	}
	return variants
}

// MergeExpanded merges per-variant scored hits keyed by entity id, taking
// the maximum per-variant similarity and multiplying by 1.1 if the entity
// was found by ≥ 2 variants (spec §4.3.3).
func MergeExpanded(perVariant []map[string]float64) map[string]float64 {
	merged := map[string]float64{}
	hitCount := map[string]int{}

	for _, variantScores := range perVariant {
		for id, score := range variantScores {
			if score > merged[id] {
				merged[id] = score
			}
			hitCount[id]++
		}
	}
	for id, count := range hitCount {
		if count >= 2 {
			merged[id] *= 1.1
		}
	}
	return merged
}
