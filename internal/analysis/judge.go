package analysis

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/mentha-app/mentha-engine/pkg/models"
)

// Judge decides whether a provider response asserts facts about the brand
// that cannot be verified against the project's ground truth. Strategies are
// pluggable; the pipeline only sees this interface.
type Judge interface {
	Assess(ctx context.Context, project *models.Project, content string, mentions []Mention) (bool, error)
}

var (
	reSentenceEnd = regexp.MustCompile(`[.!?]\s+`)
	reToken       = regexp.MustCompile(`[a-z0-9][a-z0-9-]{3,}`)
)

// Phrases that introduce a checkable factual claim about a company or
// product. A mention sentence without one of these is treated as opinion,
// which the judge never flags.
var assertionCues = []string{
	"founded", "headquartered", "based in", "acquired", "launched in",
	"owned by", "priced at", "costs", "pricing starts", "employees",
	"million", "billion", "market share", "partnered with", "ceo",
	"valuation", "offers a", "features include",
}

// HeuristicJudge flags mention sentences that make factual assertions with
// no lexical support in the project's brand facts. With no facts recorded
// there is no ground truth to contradict, so it never flags.
type HeuristicJudge struct{}

func (HeuristicJudge) Assess(_ context.Context, project *models.Project, _ string, mentions []Mention) (bool, error) {
	if len(project.BrandFacts) == 0 {
		return false, nil
	}

	factTokens := make(map[string]struct{})
	for _, fact := range project.BrandFacts {
		for _, tok := range reToken.FindAllString(strings.ToLower(fact), -1) {
			factTokens[tok] = struct{}{}
		}
	}

	for _, m := range mentions {
		for _, sentence := range splitSentences(m.Context) {
			s := normalizeText(sentence)
			if !containsAssertionCue(s) {
				continue
			}
			if !overlapsFacts(s, factTokens) {
				return true, nil
			}
		}
	}
	return false, nil
}

func containsAssertionCue(sentence string) bool {
	for _, cue := range assertionCues {
		if strings.Contains(sentence, cue) {
			return true
		}
	}
	return false
}

// overlapsFacts requires at least two distinct fact tokens in the sentence
// before treating the claim as grounded. One shared token (usually the brand
// name itself) is not evidence.
func overlapsFacts(sentence string, factTokens map[string]struct{}) bool {
	hits := 0
	seen := make(map[string]struct{})
	for _, tok := range reToken.FindAllString(sentence, -1) {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		if _, ok := factTokens[tok]; ok {
			hits++
			if hits >= 2 {
				return true
			}
		}
	}
	return false
}

func splitSentences(text string) []string {
	return reSentenceEnd.Split(text, -1)
}

// LLMJudge asks an answer engine to verify brand claims against the
// recorded facts. The verdict must start with "yes" or "no"; anything else
// is an invalid response.
type LLMJudge struct {
	provider models.SearchProvider
}

func NewLLMJudge(p models.SearchProvider) *LLMJudge {
	return &LLMJudge{provider: p}
}

const judgeSystemPrompt = "You are a fact checker. Answer with a single word: " +
	"\"yes\" if the text asserts facts about the brand that are not supported " +
	"by the provided brand facts, otherwise \"no\"."

func (j *LLMJudge) Assess(ctx context.Context, project *models.Project, content string, _ []Mention) (bool, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Brand: %s\n", project.BrandName)
	b.WriteString("Known facts:\n")
	for _, fact := range project.BrandFacts {
		fmt.Fprintf(&b, "- %s\n", fact)
	}
	b.WriteString("\nText to check:\n")
	b.WriteString(content)

	resp, err := j.provider.Search(ctx, models.SearchRequest{
		Query:        b.String(),
		SystemPrompt: judgeSystemPrompt,
		Temperature:  0,
		MaxTokens:    8,
	})
	if err != nil {
		return false, fmt.Errorf("judge query: %w", err)
	}

	verdict := strings.ToLower(strings.TrimSpace(resp.Content))
	switch {
	case strings.HasPrefix(verdict, "yes"):
		return true, nil
	case strings.HasPrefix(verdict, "no"):
		return false, nil
	}
	return false, fmt.Errorf("judge returned unparseable verdict %q", resp.Content)
}
