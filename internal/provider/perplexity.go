package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/mentha-app/mentha-engine/internal/config"
	"github.com/mentha-app/mentha-engine/pkg/models"
)

// PerplexityProvider implements models.SearchProvider. Perplexity is the one
// engine that returns a native citation list alongside the answer.
type PerplexityProvider struct {
	cfg config.PerplexityConfig
}

func NewPerplexityProvider(cfg config.PerplexityConfig) *PerplexityProvider {
	return &PerplexityProvider{cfg: cfg}
}

func (p *PerplexityProvider) Name() string { return models.EnginePerplexity }

type perplexityResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Citations     []string  `json:"citations"`
	SearchResults []struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	} `json:"search_results"`
	Usage chatUsage `json:"usage"`
}

func (p *PerplexityProvider) Search(ctx context.Context, req models.SearchRequest) (*models.ProviderResponse, error) {
	if p.cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: no Perplexity API key configured", ErrInvalidCredentials)
	}

	body := chatRequest{
		Model:       p.cfg.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.SystemPrompt != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: userPrompt(req)})

	start := time.Now()
	var out perplexityResponse
	err := postJSON(ctx, p.cfg.BaseURL+"/chat/completions",
		map[string]string{"Authorization": "Bearer " + p.cfg.APIKey}, body, &out)
	if err != nil {
		return nil, err
	}

	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", ErrInvalidResponse)
	}

	content := out.Choices[0].Message.Content

	titles := make(map[string]string, len(out.SearchResults))
	for _, sr := range out.SearchResults {
		titles[sr.URL] = sr.Title
	}

	cites := make([]models.Citation, 0, len(out.Citations))
	for i, u := range out.Citations {
		cites = append(cites, models.Citation{URL: u, Title: titles[u], Index: i})
	}
	if len(cites) == 0 {
		cites = extractCitations(content)
	}

	model := out.Model
	if model == "" {
		model = p.cfg.Model
	}

	return &models.ProviderResponse{
		Content:   content,
		Citations: cites,
		ModelName: model,
		Usage: models.TokenUsage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		},
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

var _ models.SearchProvider = (*PerplexityProvider)(nil)
