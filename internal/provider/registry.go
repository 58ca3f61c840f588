// Package provider holds the answer-engine adapters and the registry that
// caches one constructed adapter per engine.
package provider

import (
	"fmt"

	"github.com/mentha-app/mentha-engine/internal/config"
	"github.com/mentha-app/mentha-engine/pkg/models"
)

// Registry holds one adapter instance per configured engine. Adapters are
// stateless and constructed exactly once at startup; lookups never allocate.
type Registry struct {
	providers map[string]models.SearchProvider
}

// NewRegistry constructs adapters for every engine with configured
// credentials. Called once at server startup.
func NewRegistry(cfg config.ProvidersConfig) *Registry {
	r := &Registry{providers: make(map[string]models.SearchProvider)}

	if cfg.OpenAI.APIKey != "" {
		r.providers[models.EngineOpenAI] = NewOpenAIProvider(cfg.OpenAI)
	}
	if cfg.Anthropic.APIKey != "" {
		r.providers[models.EngineAnthropic] = NewAnthropicProvider(cfg.Anthropic)
	}
	if cfg.Gemini.APIKey != "" {
		r.providers[models.EngineGemini] = NewGeminiProvider(cfg.Gemini)
	}
	if cfg.Perplexity.APIKey != "" {
		r.providers[models.EnginePerplexity] = NewPerplexityProvider(cfg.Perplexity)
	}

	return r
}

// NewRegistryFromProviders builds a registry over pre-constructed providers.
// Used in tests and by the LLM judge wiring.
func NewRegistryFromProviders(providers ...models.SearchProvider) *Registry {
	r := &Registry{providers: make(map[string]models.SearchProvider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns the cached adapter for engine.
func (r *Registry) Get(engine string) (models.SearchProvider, error) {
	if !models.ValidEngine(engine) {
		return nil, fmt.Errorf("%w: %q must be one of openai, anthropic, gemini, perplexity", ErrUnknownEngine, engine)
	}
	p, ok := r.providers[engine]
	if !ok {
		return nil, fmt.Errorf("%w: engine %q has no credentials configured", ErrInvalidCredentials, engine)
	}
	return p, nil
}

// Engines returns the engines with a registered adapter.
func (r *Registry) Engines() []string {
	var engines []string
	for _, e := range models.AllEngines() {
		if _, ok := r.providers[e]; ok {
			engines = append(engines, e)
		}
	}
	return engines
}
