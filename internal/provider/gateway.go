package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aicook/recipesearch/internal/domain"
)

// DefaultTimeout bounds a single provider call so one slow provider cannot
// stall a whole query.
const DefaultTimeout = 30 * time.Second

// Embedder is the gateway's view of one provider.
type Embedder interface {
	Name() string
	SupportsEmbeddings() bool
	Embed(ctx context.Context, texts []string, credential string) (domain.EmbeddingResult, error)
}

// Source resolves providers by name; implemented by Registry.
type Source interface {
	Provider(name string) (Embedder, bool)
	Fallback() (Embedder, bool)
}

// Gateway dispatches embedding requests to configured providers with
// capability checks, per-call timeouts, and single-retry fallback.
type Gateway struct {
	src     Source
	timeout time.Duration
	logger  *zap.Logger
}

// NewGateway creates a Gateway. timeout <= 0 takes DefaultTimeout.
func NewGateway(src Source, timeout time.Duration, logger *zap.Logger) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gateway{src: src, timeout: timeout, logger: logger}
}

var _ domain.Embedder = (*Gateway)(nil)

// Embed returns one vector per input text. Requesting a provider without
// embedding capability fails with ProviderUnsupportedError; a transient
// failure retries once against the fallback provider when the caller
// allowed it, and a double failure surfaces both errors aggregated.
// Credentials are dispatched, never logged.
func (g *Gateway) Embed(ctx context.Context, req domain.EmbedRequest) (domain.EmbeddingResult, error) {
	if len(req.Texts) == 0 {
		return domain.EmbeddingResult{}, fmt.Errorf("no texts to embed: %w", domain.ErrInvalidInput)
	}

	p, ok := g.src.Provider(req.Provider)
	if !ok {
		return domain.EmbeddingResult{}, fmt.Errorf("%q: %w", req.Provider, domain.ErrProviderUnknown)
	}
	if !p.SupportsEmbeddings() {
		return domain.EmbeddingResult{}, domain.NewProviderUnsupported(req.Provider, domain.CapabilityEmbeddings)
	}

	result, err := g.call(ctx, p, req.Texts, req.Credential)
	if err == nil {
		return result, nil
	}
	if !req.AllowFallback || !transient(err) {
		return domain.EmbeddingResult{}, err
	}

	fb, ok := g.src.Fallback()
	if !ok || fb.Name() == p.Name() || !fb.SupportsEmbeddings() {
		return domain.EmbeddingResult{}, err
	}

	g.logger.Warn("embedding provider failed, retrying via fallback",
		zap.String("provider", p.Name()),
		zap.String("fallback", fb.Name()),
		zap.Error(err))

	// The caller's credential belongs to the requested provider only; the
	// fallback uses its own server-configured key.
	result, fbErr := g.call(ctx, fb, req.Texts, "")
	if fbErr != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("fallback also failed: %w", errors.Join(err, fbErr))
	}
	return result, nil
}

func (g *Gateway) call(
	ctx context.Context, p Embedder, texts []string, credential string,
) (domain.EmbeddingResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return p.Embed(callCtx, texts, credential)
}

// transient reports whether err warrants a fallback retry. Capability and
// input errors are not retried; substituting a provider silently would
// violate the capability contract.
func transient(err error) bool {
	return errors.Is(err, domain.ErrProviderUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}
