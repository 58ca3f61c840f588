package models

import "context"

// Supported answer engines. Engine values are stored as-is in keywords,
// scan jobs, and scan results.
const (
	EngineOpenAI     = "openai"
	EngineAnthropic  = "anthropic"
	EngineGemini     = "gemini"
	EnginePerplexity = "perplexity"
)

// AllEngines returns the supported engine identifiers in canonical order.
func AllEngines() []string {
	return []string{EngineOpenAI, EngineAnthropic, EngineGemini, EnginePerplexity}
}

// ValidEngine reports whether s is a supported engine identifier.
func ValidEngine(s string) bool {
	switch s {
	case EngineOpenAI, EngineAnthropic, EngineGemini, EnginePerplexity:
		return true
	}
	return false
}

// GeoTarget optionally localizes a search to a country or location.
type GeoTarget struct {
	Country  string `json:"country,omitempty"`
	Location string `json:"location,omitempty"`
}

// SearchRequest is the uniform input to every provider adapter.
type SearchRequest struct {
	Query        string     `json:"query"`
	Temperature  float64    `json:"temperature"`
	MaxTokens    int        `json:"max_tokens"`
	Geo          *GeoTarget `json:"geo,omitempty"`
	SystemPrompt string     `json:"system_prompt,omitempty"`
}

// SearchProvider is the capability interface every answer engine adapter
// implements. Never call a specific engine directly — always inject this.
type SearchProvider interface {
	// Search runs one query against the engine and returns its raw response.
	Search(ctx context.Context, req SearchRequest) (*ProviderResponse, error)
	// Name returns the engine identifier (e.g., "openai", "perplexity").
	Name() string
}

// Citation is one source an answer engine attributed in its response,
// in the order the engine returned it.
type Citation struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	Index int    `json:"index"`
}

// TokenUsage is the token accounting reported by a provider for one call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ProviderResponse is the raw output of one successful ScanJob execution.
// It is produced once per completed job and consumed exactly once by the
// analysis pipeline; retries happen at the ScanJob level, never here.
type ProviderResponse struct {
	Content   string     `json:"content"`
	Citations []Citation `json:"citations"`
	ModelName string     `json:"model_name"`
	Usage     TokenUsage `json:"usage"`
	LatencyMs int64      `json:"latency_ms"`
}
