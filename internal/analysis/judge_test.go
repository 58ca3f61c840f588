package analysis_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentha-app/mentha-engine/internal/analysis"
	"github.com/mentha-app/mentha-engine/internal/provider/mock"
	"github.com/mentha-app/mentha-engine/pkg/models"
)

func acmeProject() *models.Project {
	return &models.Project{
		Name:      "Acme Tracking",
		BrandName: "Acme",
		BrandFacts: []string{
			"Acme was founded in 2015 in Austin, Texas",
			"Acme CRM pricing starts at $29 per seat",
		},
	}
}

func assessHeuristic(t *testing.T, project *models.Project, content string) bool {
	t.Helper()
	mentions := analysis.DetectMentions(content, project.BrandName, project.BrandAliases)
	flagged, err := analysis.HeuristicJudge{}.Assess(context.Background(), project, content, mentions)
	require.NoError(t, err)
	return flagged
}

func TestHeuristicJudge_NoFactsNeverFlags(t *testing.T) {
	project := &models.Project{BrandName: "Acme"}
	content := "Acme was founded in 1802 by Napoleon and is headquartered on the Moon."

	assert.False(t, assessHeuristic(t, project, content))
}

func TestHeuristicJudge_OpinionNotFlagged(t *testing.T) {
	content := "Acme is a great tool. Many teams enjoy using Acme daily."

	assert.False(t, assessHeuristic(t, acmeProject(), content))
}

func TestHeuristicJudge_UngroundedAssertionFlagged(t *testing.T) {
	content := "Acme reportedly reached a billion dollar valuation under a celebrity ceo."

	assert.True(t, assessHeuristic(t, acmeProject(), content))
}

func TestHeuristicJudge_GroundedAssertionNotFlagged(t *testing.T) {
	content := "Acme was founded in 2015 in Austin and its pricing starts at $29 per seat."

	assert.False(t, assessHeuristic(t, acmeProject(), content))
}

func TestHeuristicJudge_NoMentions(t *testing.T) {
	content := "CompetitorX was founded in 1999 with a huge valuation."

	assert.False(t, assessHeuristic(t, acmeProject(), content))
}

func TestLLMJudge_Verdicts(t *testing.T) {
	tests := []struct {
		name    string
		answer  string
		want    bool
		wantErr bool
	}{
		{"yes", "yes", true, false},
		{"yes with prose", "Yes, the claim about pricing is unsupported.", true, false},
		{"no", "No.", false, false},
		{"unparseable", "The text seems fine to me.", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mock.MockProvider{
				Name_: models.EngineOpenAI,
				SearchFunc: func(_ context.Context, _ models.SearchRequest) (*models.ProviderResponse, error) {
					return &models.ProviderResponse{Content: tt.answer}, nil
				},
			}
			j := analysis.NewLLMJudge(p)

			flagged, err := j.Assess(context.Background(), acmeProject(), "Acme costs $999.", nil)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, flagged)
		})
	}
}

func TestLLMJudge_PromptCarriesGroundTruth(t *testing.T) {
	var got models.SearchRequest
	p := &mock.MockProvider{
		Name_: models.EngineOpenAI,
		SearchFunc: func(_ context.Context, req models.SearchRequest) (*models.ProviderResponse, error) {
			got = req
			return &models.ProviderResponse{Content: "no"}, nil
		},
	}
	j := analysis.NewLLMJudge(p)

	_, err := j.Assess(context.Background(), acmeProject(), "Acme costs $999.", nil)
	require.NoError(t, err)

	assert.Contains(t, got.Query, "Brand: Acme")
	assert.Contains(t, got.Query, "founded in 2015")
	assert.Contains(t, got.Query, "Acme costs $999.")
	assert.NotEmpty(t, got.SystemPrompt)
	assert.Zero(t, got.Temperature)
}

func TestLLMJudge_ProviderErrorPropagates(t *testing.T) {
	p := mock.NewFailingProvider(models.EngineOpenAI, assert.AnError)
	j := analysis.NewLLMJudge(p)

	_, err := j.Assess(context.Background(), acmeProject(), "Acme costs $999.", nil)
	assert.Error(t, err)
}
