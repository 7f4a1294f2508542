// Package search orchestrates a hybrid query: lexical and fuzzy retrieval
// over the inverted index, vector retrieval over the embedding index, and
// weighted fusion of the three channels into one ranking.
package search

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aicook/recipesearch/internal/domain"
	"github.com/aicook/recipesearch/internal/index/lexical"
	"github.com/aicook/recipesearch/internal/index/vector"
	"github.com/aicook/recipesearch/internal/logger"
	"github.com/aicook/recipesearch/internal/metrics"
)

// Config tunes the search service. Limits are validated by config loading.
type Config struct {
	DefaultLimit    int
	MaxLimit        int
	Weights         Weights
	DefaultProvider string
}

// Service executes hybrid searches against the current index snapshots.
type Service struct {
	lex      *lexical.Index
	vectors  *vector.Holder
	embedder domain.Embedder
	tok      Tokenizer
	cfg      Config
	logger   *zap.Logger
}

// NewService creates the search service.
func NewService(
	lex *lexical.Index,
	vectors *vector.Holder,
	embedder domain.Embedder,
	tok Tokenizer,
	cfg Config,
	log *zap.Logger,
) *Service {
	return &Service{
		lex:      lex,
		vectors:  vectors,
		embedder: embedder,
		tok:      tok,
		cfg:      cfg,
		logger:   log,
	}
}

// Search runs the query through all available channels and fuses the
// results. The vector channel is best-effort: an empty vector index or a
// failed query embedding degrades the response to lexical-only instead of
// failing it, and the Channels field makes the degradation observable.
func (s *Service) Search(ctx context.Context, p Params) (domain.SearchResult, error) {
	query := strings.TrimSpace(p.Query)
	if query == "" {
		return domain.SearchResult{}, fmt.Errorf("query is required: %w", domain.ErrInvalidInput)
	}

	limit := p.Limit
	if limit == 0 {
		limit = s.cfg.DefaultLimit
	}
	if limit < 0 || limit > s.cfg.MaxLimit {
		return domain.SearchResult{}, fmt.Errorf(
			"limit must be between 1 and %d: %w", s.cfg.MaxLimit, domain.ErrInvalidInput)
	}

	// Even a query that tokenizes to nothing can be a substring of a
	// recipe name, so the lexical channel always runs.
	terms := s.tok.Tokens(query)

	var (
		lexHits   []domain.ChannelHit
		fuzzyHits []domain.ChannelHit
		vecHits   []domain.ChannelHit
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lexHits = s.lex.Search(query, terms, limit)
		fuzzyHits = s.lex.Fuzzy(terms, limit)
		return gctx.Err()
	})
	g.Go(func() error {
		vecHits = s.vectorHits(gctx, query, p, limit)
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return domain.SearchResult{}, err
	}

	channels := domain.Channels{
		Lexical: len(lexHits) > 0,
		Fuzzy:   len(fuzzyHits) > 0,
		Vector:  len(vecHits) > 0,
	}
	for _, name := range channels.List() {
		metrics.SearchChannelsTotal.WithLabelValues(name).Inc()
	}

	fused := fuse(lexHits, fuzzyHits, vecHits, s.cfg.Weights, limit)

	items := make([]domain.ScoredRecipe, 0, len(fused))
	for _, h := range fused {
		r, ok := s.lex.Recipe(h.id)
		if !ok {
			// Vector hit for a document missing from the dataset (stale
			// index after a dataset change). Drop it rather than fail.
			continue
		}
		items = append(items, domain.ScoredRecipe{
			Recipe:       r,
			LexicalScore: h.lexical,
			FuzzyScore:   h.fuzzy,
			VectorScore:  h.vector,
			FinalScore:   h.final,
		})
	}

	return domain.SearchResult{Items: items, Channels: channels}, nil
}

// vectorHits embeds the query and searches the current vector snapshot.
// Any failure on this path is logged and counted, never propagated.
func (s *Service) vectorHits(ctx context.Context, query string, p Params, limit int) []domain.ChannelHit {
	idx := s.vectors.Current()
	if idx.Len() == 0 {
		return nil
	}

	provider := p.Provider
	if provider == "" {
		provider = s.cfg.DefaultProvider
	}
	if provider == "" {
		return nil
	}

	result, err := s.embedder.Embed(ctx, domain.EmbedRequest{
		Provider:      provider,
		Credential:    p.Credential,
		Texts:         []string{query},
		AllowFallback: true,
	})
	if err != nil {
		logger.FromContext(ctx).Warn("query embedding failed, serving lexical-only results",
			zap.String("provider", provider),
			zap.Error(err))
		metrics.SearchChannelsTotal.WithLabelValues("vector_degraded").Inc()
		return nil
	}
	if len(result.Vectors) != 1 {
		logger.FromContext(ctx).Warn("query embedding returned unexpected vector count, serving lexical-only results",
			zap.String("provider", provider),
			zap.Int("vectors", len(result.Vectors)))
		metrics.SearchChannelsTotal.WithLabelValues("vector_degraded").Inc()
		return nil
	}
	if got := len(result.Vectors[0]); got != idx.Dim() {
		// A provider or model change invalidates the current snapshot;
		// stay lexical-only until the next rebuild.
		logger.FromContext(ctx).Warn("query embedding dimensionality does not match the vector index, serving lexical-only results",
			zap.String("provider", provider),
			zap.Int("embedding_dimensions", got),
			zap.Int("index_dimensions", idx.Dim()))
		metrics.SearchChannelsTotal.WithLabelValues("vector_degraded").Inc()
		return nil
	}
	return idx.Search(result.Vectors[0], limit)
}
