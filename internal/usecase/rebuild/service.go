// Package rebuild re-vectorizes the recipe dataset through an embedding
// provider and swaps the vector index snapshot on success.
package rebuild

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/aicook/recipesearch/internal/domain"
	"github.com/aicook/recipesearch/internal/index/vector"
	"github.com/aicook/recipesearch/internal/metrics"
)

// Params is one rebuild request.
type Params struct {
	Provider   string // "" = configured default
	Credential string // caller key, used for every batch; never logged
	BatchSize  int    // 0 = configured default
}

// Report summarizes a completed rebuild.
type Report struct {
	Provider         string
	RecipesProcessed int
	VectorCount      int
	Dimensions       int
	TotalTokens      int
}

// Config tunes rebuild batching.
type Config struct {
	DefaultProvider string
	BatchSize       int
	MaxBatchSize    int
}

// Service rebuilds the vector index from the full dataset. Rebuilds are
// all-or-nothing: the previous snapshot keeps serving until every batch has
// embedded successfully, and a failed rebuild leaves it untouched.
type Service struct {
	recipes  []domain.Recipe
	vectors  *vector.Holder
	embedder domain.Embedder
	cfg      Config
	logger   *zap.Logger
}

// NewService creates the rebuild service.
func NewService(
	recipes []domain.Recipe,
	vectors *vector.Holder,
	embedder domain.Embedder,
	cfg Config,
	log *zap.Logger,
) *Service {
	return &Service{
		recipes:  recipes,
		vectors:  vectors,
		embedder: embedder,
		cfg:      cfg,
		logger:   log,
	}
}

// Rebuild embeds the whole dataset in batches and atomically swaps the
// vector snapshot. Fallback is disabled here so every vector in one index
// comes from the same provider and model.
func (s *Service) Rebuild(ctx context.Context, p Params) (Report, error) {
	provider := p.Provider
	if provider == "" {
		provider = s.cfg.DefaultProvider
	}
	if provider == "" {
		return Report{}, fmt.Errorf("no embedding provider configured: %w", domain.ErrProviderUnknown)
	}

	batchSize := p.BatchSize
	if batchSize == 0 {
		batchSize = s.cfg.BatchSize
	}
	if batchSize < 1 || batchSize > s.cfg.MaxBatchSize {
		return Report{}, fmt.Errorf(
			"batch size must be between 1 and %d: %w", s.cfg.MaxBatchSize, domain.ErrInvalidInput)
	}

	if len(s.recipes) == 0 {
		return Report{}, fmt.Errorf("no recipes to index: %w", domain.ErrIndexUnavailable)
	}

	s.logger.Info("starting vector index rebuild",
		zap.String("provider", provider),
		zap.Int("recipes", len(s.recipes)),
		zap.Int("batch_size", batchSize))

	var (
		builder     *vector.Builder
		totalTokens int
		batches     = (len(s.recipes) + batchSize - 1) / batchSize
	)

	for b := 0; b < batches; b++ {
		if err := ctx.Err(); err != nil {
			metrics.RebuildsTotal.WithLabelValues(provider, "cancelled").Inc()
			return Report{}, domain.NewRebuildError(b+1, err)
		}

		start := b * batchSize
		end := start + batchSize
		if end > len(s.recipes) {
			end = len(s.recipes)
		}
		batch := s.recipes[start:end]

		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].EmbeddingText()
		}

		result, err := s.embedder.Embed(ctx, domain.EmbedRequest{
			Provider:      provider,
			Credential:    p.Credential,
			Texts:         texts,
			AllowFallback: false,
		})
		if err != nil {
			metrics.RebuildsTotal.WithLabelValues(provider, "error").Inc()
			return Report{}, domain.NewRebuildError(b+1, err)
		}
		totalTokens += result.TotalTokens

		if builder == nil {
			builder, err = vector.NewBuilder(result.Dimensions)
			if err != nil {
				metrics.RebuildsTotal.WithLabelValues(provider, "error").Inc()
				return Report{}, domain.NewRebuildError(b+1, err)
			}
		}
		for i := range batch {
			if err := builder.Add(batch[i].ID(), result.Vectors[i]); err != nil {
				metrics.RebuildsTotal.WithLabelValues(provider, "error").Inc()
				return Report{}, domain.NewRebuildError(b+1, err)
			}
		}

		s.logger.Info("rebuild batch embedded",
			zap.Int("batch", b+1),
			zap.Int("batches", batches),
			zap.Int("vectors", builder.Len()))
	}

	idx := builder.Build()
	s.vectors.Swap(idx)
	metrics.RebuildsTotal.WithLabelValues(provider, "success").Inc()

	s.logger.Info("vector index rebuilt",
		zap.String("provider", provider),
		zap.Int("vectors", idx.Len()),
		zap.Int("dimensions", idx.Dim()),
		zap.Int("total_tokens", totalTokens))

	return Report{
		Provider:         provider,
		RecipesProcessed: len(s.recipes),
		VectorCount:      idx.Len(),
		Dimensions:       idx.Dim(),
		TotalTokens:      totalTokens,
	}, nil
}
