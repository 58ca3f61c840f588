package analysis

import "strings"

// Sentiment lexicons applied to mention contexts. Coverage is deliberately
// generic product-review language; domain nuance belongs in the LLM judge,
// not here.
var (
	positiveTerms = []string{
		"excellent", "great", "best", "reliable", "trusted", "popular",
		"recommend", "easy", "powerful", "fast", "intuitive", "strong",
		"leading", "impressive", "robust", "well-regarded", "affordable",
		"outstanding", "seamless", "love",
	}
	negativeTerms = []string{
		"poor", "bad", "worst", "unreliable", "avoid", "slow", "expensive",
		"difficult", "confusing", "buggy", "complaints", "scam", "weak",
		"disappointing", "limited", "overpriced", "lawsuit", "clunky",
		"outdated", "frustrating",
	}
)

// ScoreSentiment scores the tone of the given mention contexts in [-1, 1].
// The score is the normalized balance of positive and negative lexicon hits;
// no hits at all scores 0 (neutral).
func ScoreSentiment(contexts []string) float64 {
	var pos, neg int
	for _, c := range contexts {
		c = normalizeText(c)
		for _, term := range positiveTerms {
			pos += strings.Count(c, term)
		}
		for _, term := range negativeTerms {
			neg += strings.Count(c, term)
		}
	}

	total := pos + neg
	if total == 0 {
		return 0
	}
	return float64(pos-neg) / float64(total)
}
