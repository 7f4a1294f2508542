package search

import (
	"sort"

	"github.com/aicook/recipesearch/internal/domain"
)

// fusedHit carries one document's normalized per-channel scores.
type fusedHit struct {
	id      string
	lexical float64
	fuzzy   float64
	vector  float64
	final   float64
}

// fuse combines channel results into a single ranking. Each channel is
// max-normalized to [0,1] so raw scale differences (BM25 vs cosine) cancel
// out, then weighted and summed. A document missing from a channel
// contributes zero for it, so a vector-only hit can still surface. Ties on
// the final score fall back to the lexical score, then to id.
func fuse(lex, fuzzy, vec []domain.ChannelHit, w Weights, limit int) []fusedHit {
	byID := make(map[string]*fusedHit)
	get := func(id string) *fusedHit {
		h, ok := byID[id]
		if !ok {
			h = &fusedHit{id: id}
			byID[id] = h
		}
		return h
	}

	for _, hit := range normalizeHits(lex) {
		get(hit.ID).lexical = hit.Score
	}
	for _, hit := range normalizeHits(fuzzy) {
		get(hit.ID).fuzzy = hit.Score
	}
	for _, hit := range normalizeHits(vec) {
		get(hit.ID).vector = hit.Score
	}

	out := make([]fusedHit, 0, len(byID))
	for _, h := range byID {
		h.final = w.Lexical*h.lexical + w.Fuzzy*h.fuzzy + w.Vector*h.vector
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].final != out[j].final {
			return out[i].final > out[j].final
		}
		if out[i].lexical != out[j].lexical {
			return out[i].lexical > out[j].lexical
		}
		return out[i].id < out[j].id
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// normalizeHits divides every score by the channel maximum. Negative cosine
// scores clamp to zero so they never outrank an absent channel.
func normalizeHits(hits []domain.ChannelHit) []domain.ChannelHit {
	if len(hits) == 0 {
		return nil
	}
	max := 0.0
	for _, h := range hits {
		if h.Score > max {
			max = h.Score
		}
	}
	if max <= 0 {
		return nil
	}
	out := make([]domain.ChannelHit, 0, len(hits))
	for _, h := range hits {
		s := h.Score / max
		if s < 0 {
			s = 0
		}
		out = append(out, domain.ChannelHit{ID: h.ID, Score: s})
	}
	return out
}
