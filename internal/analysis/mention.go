// Package analysis turns raw provider responses into structured scan
// results: brand mention detection, sentiment, recommendation
// classification, hallucination judging, and compliance screening.
package analysis

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/mentha-app/mentha-engine/pkg/models"
)

// contextWindow is how many bytes of surrounding text are kept per mention.
const contextWindow = 240

var reWhitespace = regexp.MustCompile(`\s+`)

// Mention is one occurrence of a brand term in a provider response.
type Mention struct {
	Term    string `json:"term"`
	Index   int    `json:"index"`
	Context string `json:"context"`
}

// DetectMentions finds every occurrence of the brand name or one of its
// aliases in content, case-insensitively and on word boundaries. Mentions
// are returned in document order.
func DetectMentions(content, brandName string, aliases []string) []Mention {
	terms := dedupeTerms(append([]string{brandName}, aliases...))

	var mentions []Mention
	for _, term := range terms {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`)
		if err != nil {
			continue
		}
		for _, loc := range re.FindAllStringIndex(content, -1) {
			mentions = append(mentions, Mention{
				Term:    term,
				Index:   loc[0],
				Context: contextAround(content, loc[0], loc[1]),
			})
		}
	}

	sort.Slice(mentions, func(i, j int) bool {
		return mentions[i].Index < mentions[j].Index
	})
	return mentions
}

// Recommendation lexicons. Mention-context hits are weighted double over
// whole-document hits, so language near the brand dominates.
var recommendationTerms = map[string][]string{
	models.RecommendationDirect: {
		"recommend", "best choice", "best option", "top pick", "top choice",
		"highly rated", "ideal", "great option", "go-to", "stands out",
		"excellent", "strongly suggest", "should use", "worth trying",
		"leading", "favorite",
	},
	models.RecommendationNegative: {
		"avoid", "not recommended", "scam", "complaints", "poor", "downside",
		"worse than", "stay away", "lawsuit", "caution", "warning",
		"unreliable", "overpriced", "disappointing", "falls short",
	},
	models.RecommendationNeutral: {
		"compared to", "alternative", "versus", "similar to", "both offer",
		"depends on", "options include", "such as", "among others",
		"other options", "on the other hand", "trade-off",
	},
}

// ClassifyRecommendation scores the response against the recommendation
// lexicons and returns the dominant classification. No mentions means the
// brand is absent regardless of the surrounding language; ties and zero
// scores fall back to neutral_comparison.
func ClassifyRecommendation(content string, mentions []Mention) string {
	if len(mentions) == 0 {
		return models.RecommendationAbsent
	}

	contentLower := normalizeText(content)
	contexts := make([]string, 0, len(mentions))
	for _, m := range mentions {
		contexts = append(contexts, normalizeText(m.Context))
	}

	scores := make(map[string]int, len(recommendationTerms))
	for recType, terms := range recommendationTerms {
		for _, term := range terms {
			for _, c := range contexts {
				scores[recType] += 2 * strings.Count(c, term)
			}
			scores[recType] += strings.Count(contentLower, term)
		}
	}

	best := models.RecommendationNeutral
	bestScore := 0
	// Fixed evaluation order keeps ties deterministic: negative language
	// outranks praise when they score equal.
	for _, recType := range []string{
		models.RecommendationNegative,
		models.RecommendationDirect,
		models.RecommendationNeutral,
	} {
		if scores[recType] > bestScore {
			best = recType
			bestScore = scores[recType]
		}
	}
	return best
}

// Compliance lexicon: scam, legal, and safety language that should surface
// as a warning on the result regardless of sentiment.
var complianceTerms = map[string][]string{
	"scam": {
		"scam", "fraud", "ponzi", "pyramid scheme", "phishing", "fake reviews",
	},
	"legal": {
		"lawsuit", "class action", "sued", "investigation", "regulatory action",
		"fined", "settlement",
	},
	"safety": {
		"recall", "safety concern", "hazard", "data breach", "security breach",
		"unsafe",
	},
}

// DetectComplianceWarning scans content for scam/legal/safety language and
// returns a warning naming the matched categories, or nil when clean.
func DetectComplianceWarning(content string) *string {
	contentLower := normalizeText(content)

	var matched []string
	for category, terms := range complianceTerms {
		for _, term := range terms {
			if strings.Contains(contentLower, term) {
				matched = append(matched, category)
				break
			}
		}
	}
	if len(matched) == 0 {
		return nil
	}

	sort.Strings(matched)
	warning := "flagged language: " + strings.Join(matched, ", ")
	return &warning
}

func dedupeTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

// contextAround extracts a window of text around [start, end) without
// splitting UTF-8 runes, with whitespace collapsed.
func contextAround(content string, start, end int) string {
	lo := start - contextWindow/2
	if lo < 0 {
		lo = 0
	}
	hi := end + contextWindow/2
	if hi > len(content) {
		hi = len(content)
	}
	for lo > 0 && !utf8.RuneStart(content[lo]) {
		lo--
	}
	for hi < len(content) && !utf8.RuneStart(content[hi]) {
		hi++
	}
	return strings.TrimSpace(reWhitespace.ReplaceAllString(content[lo:hi], " "))
}

func normalizeText(s string) string {
	return strings.ToLower(reWhitespace.ReplaceAllString(s, " "))
}
