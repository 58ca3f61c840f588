package mock

import (
	"context"

	"github.com/mentha-app/mentha-engine/internal/provider"
	"github.com/mentha-app/mentha-engine/pkg/models"
)

// MockProvider satisfies models.SearchProvider for testing.
type MockProvider struct {
	Name_      string
	SearchFunc func(ctx context.Context, req models.SearchRequest) (*models.ProviderResponse, error)

	// Calls records every request, in order.
	Calls []models.SearchRequest
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Search(ctx context.Context, req models.SearchRequest) (*models.ProviderResponse, error) {
	m.Calls = append(m.Calls, req)
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, req)
	}
	return &models.ProviderResponse{}, nil
}

// NewMockProvider returns a MockProvider with a canned successful response.
func NewMockProvider(engine string) *MockProvider {
	return &MockProvider{
		Name_: engine,
		SearchFunc: func(_ context.Context, req models.SearchRequest) (*models.ProviderResponse, error) {
			return &models.ProviderResponse{
				Content:   "Mock answer for: " + req.Query,
				Citations: []models.Citation{{URL: "https://example.com/source", Index: 0}},
				ModelName: "mock-v1",
				Usage:     models.TokenUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
				LatencyMs: 5,
			}, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(engine string, err error) *MockProvider {
	return &MockProvider{
		Name_: engine,
		SearchFunc: func(_ context.Context, _ models.SearchRequest) (*models.ProviderResponse, error) {
			return nil, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider(engine string) *MockProvider {
	return &MockProvider{
		Name_: engine,
		SearchFunc: func(ctx context.Context, _ models.SearchRequest) (*models.ProviderResponse, error) {
			<-ctx.Done()
			return nil, provider.ErrProviderTimeout
		},
	}
}

// Compile-time check that MockProvider implements SearchProvider.
var _ models.SearchProvider = (*MockProvider)(nil)
