package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/mentha-app/mentha-engine/internal/config"
	"github.com/mentha-app/mentha-engine/pkg/models"
)

const anthropicVersion = "2023-06-01"

// AnthropicProvider implements models.SearchProvider against the messages API.
type AnthropicProvider struct {
	cfg config.AnthropicConfig
}

func NewAnthropicProvider(cfg config.AnthropicConfig) *AnthropicProvider {
	return &AnthropicProvider{cfg: cfg}
}

func (p *AnthropicProvider) Name() string { return models.EngineAnthropic }

type anthropicRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	System      string        `json:"system,omitempty"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *AnthropicProvider) Search(ctx context.Context, req models.SearchRequest) (*models.ProviderResponse, error) {
	if p.cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: no Anthropic API key configured", ErrInvalidCredentials)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024 // the messages API requires an explicit cap
	}

	body := anthropicRequest{
		Model:       p.cfg.Model,
		MaxTokens:   maxTokens,
		System:      req.SystemPrompt,
		Temperature: req.Temperature,
		Messages:    []chatMessage{{Role: "user", Content: userPrompt(req)}},
	}

	start := time.Now()
	var out anthropicResponse
	err := postJSON(ctx, p.cfg.BaseURL+"/v1/messages",
		map[string]string{
			"x-api-key":         p.cfg.APIKey,
			"anthropic-version": anthropicVersion,
		}, body, &out)
	if err != nil {
		return nil, err
	}

	var content string
	for _, block := range out.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}
	if content == "" {
		return nil, fmt.Errorf("%w: no text content returned", ErrInvalidResponse)
	}

	model := out.Model
	if model == "" {
		model = p.cfg.Model
	}

	return &models.ProviderResponse{
		Content:   content,
		Citations: extractCitations(content),
		ModelName: model,
		Usage: models.TokenUsage{
			PromptTokens:     out.Usage.InputTokens,
			CompletionTokens: out.Usage.OutputTokens,
			TotalTokens:      out.Usage.InputTokens + out.Usage.OutputTokens,
		},
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

var _ models.SearchProvider = (*AnthropicProvider)(nil)
