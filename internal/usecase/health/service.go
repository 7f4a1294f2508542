// Package health reports index readiness for probes and dashboards.
package health

import (
	"github.com/aicook/recipesearch/internal/index/lexical"
	"github.com/aicook/recipesearch/internal/index/vector"
)

// Service status values.
const (
	StatusHealthy  = "healthy"  // both indices populated
	StatusDegraded = "degraded" // lexical only; vector index empty
	StatusError    = "error"    // no documents indexed
)

// Report is one health snapshot.
type Report struct {
	Status           string
	RecipeCount      int
	IndexedTermCount int
	VectorCount      int
}

// Service inspects the current index snapshots.
type Service struct {
	lex     *lexical.Index
	vectors *vector.Holder
}

// NewService creates the health service.
func NewService(lex *lexical.Index, vectors *vector.Holder) *Service {
	return &Service{lex: lex, vectors: vectors}
}

// Check reports current readiness. A service without vectors still serves
// lexical queries, so an empty vector index is degraded, not an error.
func (s *Service) Check() Report {
	r := Report{
		RecipeCount:      s.lex.DocCount(),
		IndexedTermCount: s.lex.TermCount(),
		VectorCount:      s.vectors.Len(),
	}
	switch {
	case r.RecipeCount == 0:
		r.Status = StatusError
	case r.VectorCount == 0:
		r.Status = StatusDegraded
	default:
		r.Status = StatusHealthy
	}
	return r
}
