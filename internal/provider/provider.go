// Package provider implements the embedding provider gateway: a registry of
// OpenAI-compatible embedding services with capability flags, per-request
// credentials, time-bounded calls, and ordered fallback.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/aicook/recipesearch/internal/config"
	"github.com/aicook/recipesearch/internal/domain"
	"github.com/aicook/recipesearch/internal/metrics"
)

// Provider is one configured embedding service speaking the
// OpenAI-compatible embeddings API (OpenAI, Google, Zhipu, DeepSeek all
// expose compatible endpoints).
type Provider struct {
	name       string
	apiKey     string // server default; never logged
	baseURL    string
	model      string
	dimensions int
	embeddings bool
	logger     *zap.Logger
}

// Name returns the provider's configuration name.
func (p *Provider) Name() string { return p.name }

// Model returns the embedding model identifier.
func (p *Provider) Model() string { return p.model }

// Dimensions returns the configured vector dimensionality (0 = model default).
func (p *Provider) Dimensions() int { return p.dimensions }

// SupportsEmbeddings reports the embedding-generation capability.
func (p *Provider) SupportsEmbeddings() bool { return p.embeddings }

// HasKey reports whether a server-side default credential is configured.
// The key itself is never exposed.
func (p *Provider) HasKey() bool { return p.apiKey != "" }

// Embed requests one vector per input text. credential overrides the
// server-configured key for this call only.
func (p *Provider) Embed(ctx context.Context, texts []string, credential string) (domain.EmbeddingResult, error) {
	key := credential
	if key == "" {
		key = p.apiKey
	}
	if key == "" {
		return domain.EmbeddingResult{}, fmt.Errorf("provider %s: %w", p.name, domain.ErrCredentialMissing)
	}

	clientCfg := openai.DefaultConfig(key)
	if p.baseURL != "" {
		clientCfg.BaseURL = p.baseURL
	}
	client := openai.NewClientWithConfig(clientCfg)

	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          openai.EmbeddingModel(p.model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if p.dimensions > 0 {
		req.Dimensions = p.dimensions
	}

	start := time.Now()
	resp, err := client.CreateEmbeddings(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(p.name, p.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(p.name, p.model, "api_error").Inc()
		return domain.EmbeddingResult{}, parseAPIError(p.name, err)
	}

	if len(resp.Data) != len(texts) {
		metrics.EmbeddingRequestsTotal.WithLabelValues(p.name, p.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(p.name, p.model, "short_response").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf(
			"provider %s returned %d embeddings for %d texts: %w",
			p.name, len(resp.Data), len(texts), domain.ErrProviderUnavailable)
	}

	vectors := make([][]float32, len(resp.Data))
	dim := 0
	for i, d := range resp.Data {
		if dim == 0 {
			dim = len(d.Embedding)
		}
		if len(d.Embedding) != dim {
			return domain.EmbeddingResult{}, fmt.Errorf(
				"provider %s mixed dimensionalities in one response: %w",
				p.name, domain.ErrVectorDimMismatch)
		}
		vectors[i] = d.Embedding
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(p.name, p.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(p.name, p.model).Observe(duration.Seconds())
	if resp.Usage.TotalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(p.name, p.model).Add(float64(resp.Usage.TotalTokens))
	}

	return domain.EmbeddingResult{
		Vectors:     vectors,
		Dimensions:  dim,
		TotalTokens: resp.Usage.TotalTokens,
	}, nil
}

// Registry holds the configured providers.
type Registry struct {
	providers map[string]*Provider
	defName   string
	fbName    string
}

// NewRegistry builds the provider registry from configuration.
func NewRegistry(cfg config.EmbeddingConfig, logger *zap.Logger) *Registry {
	r := &Registry{
		providers: make(map[string]*Provider, len(cfg.Providers)),
		defName:   cfg.DefaultProvider,
		fbName:    cfg.FallbackProvider,
	}
	for name, pc := range cfg.Providers {
		r.providers[name] = &Provider{
			name:       name,
			apiKey:     pc.APIKey,
			baseURL:    pc.BaseURL,
			model:      pc.Model,
			dimensions: pc.Dimensions,
			embeddings: pc.Embeddings,
			logger:     logger,
		}
	}
	return r
}

// Provider returns a configured provider by name.
func (r *Registry) Provider(name string) (Embedder, bool) {
	p, ok := r.providers[name]
	if !ok {
		return nil, false
	}
	return p, true
}

// Fallback returns the designated fallback provider, if any.
func (r *Registry) Fallback() (Embedder, bool) {
	if r.fbName == "" {
		return nil, false
	}
	return r.Provider(r.fbName)
}

// DefaultName returns the default provider's name.
func (r *Registry) DefaultName() string { return r.defName }

// List returns all providers sorted by name, for capability listings.
func (r *Registry) List() []*Provider {
	out := make([]*Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// parseAPIError extracts a readable message from the API response. All
// errors wrap domain.ErrProviderUnavailable for transient-failure handling.
func parseAPIError(provider string, err error) error {
	wrap := domain.ErrProviderUnavailable

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if detail := extractDetail(reqErr.Body); detail != "" {
			return fmt.Errorf("provider %s: API error %d: %s: %w",
				provider, reqErr.HTTPStatusCode, detail, wrap)
		}
		return fmt.Errorf("provider %s: API error %d: %w",
			provider, reqErr.HTTPStatusCode, wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("provider %s: API error %d: %s: %w",
			provider, apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("provider %s: %w: %w", provider, err, wrap)
	}

	return fmt.Errorf("provider %s: embedding request failed: %w", provider, wrap)
}

// extractDetail pulls the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
