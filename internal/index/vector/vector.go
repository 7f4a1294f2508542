// Package vector implements a flat cosine-similarity index over recipe
// embeddings. An Index is an immutable snapshot produced by a Builder;
// concurrent readers share the current snapshot through a Holder and a
// rebuild becomes visible only by an atomic swap.
package vector

import (
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"github.com/aicook/recipesearch/internal/domain"
)

// Index is an immutable vector snapshot. All vectors share one
// dimensionality and belong to one provider/model vector space; mixing
// spaces is prevented by construction (a rebuild always starts empty).
type Index struct {
	dim  int
	ids  []string
	vecs [][]float32 // L2-normalized, parallel to ids
}

// Len returns the number of stored vectors.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.ids)
}

// Dim returns the vector dimensionality.
func (x *Index) Dim() int {
	if x == nil {
		return 0
	}
	return x.dim
}

// Search returns the k nearest documents by cosine similarity, descending,
// ties broken by id ascending. An empty index yields an empty result.
func (x *Index) Search(query []float32, k int) []domain.ChannelHit {
	if x.Len() == 0 || k <= 0 {
		return nil
	}
	if len(query) != x.dim {
		return nil
	}

	q := normalize(query)
	hits := make([]domain.ChannelHit, 0, len(x.ids))
	for i, id := range x.ids {
		hits = append(hits, domain.ChannelHit{ID: id, Score: dot(q, x.vecs[i])})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Builder accumulates vectors for a new snapshot. Adding the same id twice
// replaces the earlier vector (upsert semantics).
type Builder struct {
	dim  int
	pos  map[string]int
	ids  []string
	vecs [][]float32
}

// NewBuilder creates a Builder for vectors of the given dimensionality.
func NewBuilder(dim int) (*Builder, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", dim)
	}
	return &Builder{dim: dim, pos: make(map[string]int)}, nil
}

// Add stores an L2-normalized copy of vec under id.
func (b *Builder) Add(id string, vec []float32) error {
	if id == "" {
		return fmt.Errorf("vector id is required")
	}
	if len(vec) != b.dim {
		return fmt.Errorf("vector for %q has %d dimensions, index has %d: %w",
			id, len(vec), b.dim, domain.ErrVectorDimMismatch)
	}
	n := normalize(vec)
	if i, ok := b.pos[id]; ok {
		b.vecs[i] = n
		return nil
	}
	b.pos[id] = len(b.ids)
	b.ids = append(b.ids, id)
	b.vecs = append(b.vecs, n)
	return nil
}

// Len returns the number of accumulated vectors.
func (b *Builder) Len() int { return len(b.ids) }

// Build produces the immutable snapshot, ordered by id for determinism.
func (b *Builder) Build() *Index {
	order := make([]int, len(b.ids))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return b.ids[order[i]] < b.ids[order[j]] })

	idx := &Index{
		dim:  b.dim,
		ids:  make([]string, len(order)),
		vecs: make([][]float32, len(order)),
	}
	for i, o := range order {
		idx.ids[i] = b.ids[o]
		idx.vecs[i] = b.vecs[o]
	}
	return idx
}

// Holder publishes the current snapshot to concurrent readers. Swap makes a
// completed rebuild visible atomically; readers never observe a
// half-rebuilt index.
type Holder struct {
	p atomic.Pointer[Index]
}

// Current returns the active snapshot, or nil before the first rebuild.
func (h *Holder) Current() *Index { return h.p.Load() }

// Swap replaces the active snapshot.
func (h *Holder) Swap(idx *Index) { h.p.Store(idx) }

// Len returns the active snapshot's size (0 when none).
func (h *Holder) Len() int { return h.Current().Len() }

func normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	if norm == 0 {
		copy(out, v)
		return out
	}
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
