package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/mentha-app/mentha-engine/internal/config"
	"github.com/mentha-app/mentha-engine/pkg/models"
)

// GeminiProvider implements models.SearchProvider against the
// generateContent API.
type GeminiProvider struct {
	cfg config.GeminiConfig
}

func NewGeminiProvider(cfg config.GeminiConfig) *GeminiProvider {
	return &GeminiProvider{cfg: cfg}
}

func (p *GeminiProvider) Name() string { return models.EngineGemini }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

func (p *GeminiProvider) Search(ctx context.Context, req models.SearchRequest) (*models.ProviderResponse, error) {
	if p.cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: no Gemini API key configured", ErrInvalidCredentials)
	}

	body := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: userPrompt(req)}}, Role: "user"}},
	}
	if req.SystemPrompt != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}
	body.GenerationConfig.Temperature = req.Temperature
	body.GenerationConfig.MaxOutputTokens = req.MaxTokens

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.cfg.BaseURL, p.cfg.Model)

	start := time.Now()
	var out geminiResponse
	err := postJSON(ctx, url, map[string]string{"x-goog-api-key": p.cfg.APIKey}, body, &out)
	if err != nil {
		return nil, err
	}

	if len(out.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates returned", ErrInvalidResponse)
	}

	var content string
	for _, part := range out.Candidates[0].Content.Parts {
		content += part.Text
	}
	if content == "" {
		return nil, fmt.Errorf("%w: empty candidate content", ErrInvalidResponse)
	}

	model := out.ModelVersion
	if model == "" {
		model = p.cfg.Model
	}

	return &models.ProviderResponse{
		Content:   content,
		Citations: extractCitations(content),
		ModelName: model,
		Usage: models.TokenUsage{
			PromptTokens:     out.UsageMetadata.PromptTokenCount,
			CompletionTokens: out.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      out.UsageMetadata.TotalTokenCount,
		},
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

var _ models.SearchProvider = (*GeminiProvider)(nil)
