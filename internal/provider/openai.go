package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/mentha-app/mentha-engine/internal/config"
	"github.com/mentha-app/mentha-engine/pkg/models"
)

// OpenAIProvider implements models.SearchProvider against the chat
// completions API.
type OpenAIProvider struct {
	cfg config.OpenAIConfig
}

func NewOpenAIProvider(cfg config.OpenAIConfig) *OpenAIProvider {
	return &OpenAIProvider{cfg: cfg}
}

func (p *OpenAIProvider) Name() string { return models.EngineOpenAI }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage chatUsage `json:"usage"`
}

func (p *OpenAIProvider) Search(ctx context.Context, req models.SearchRequest) (*models.ProviderResponse, error) {
	if p.cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: no OpenAI API key configured", ErrInvalidCredentials)
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
	var out chatResponse
	err := postJSON(ctx, p.cfg.BaseURL+"/v1/chat/completions",
		map[string]string{"Authorization": "Bearer " + p.cfg.APIKey}, body, &out)
	if err != nil {
		return nil, err
	}

	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", ErrInvalidResponse)
	}

	content := out.Choices[0].Message.Content
	model := out.Model
	if model == "" {
		model = p.cfg.Model
	}

	return &models.ProviderResponse{
		Content:   content,
		Citations: extractCitations(content),
		ModelName: model,
		Usage: models.TokenUsage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		},
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

var _ models.SearchProvider = (*OpenAIProvider)(nil)
