package domain

// ChannelHit is one retrieval channel's score for one document. Score scales
// differ per channel; the fusion ranker normalizes before combining.
type ChannelHit struct {
	ID    string
	Score float64
}

// Channels records which retrieval channels contributed to a response.
// A degraded query (vector channel skipped) is observable through this.
type Channels struct {
	Lexical bool
	Fuzzy   bool
	Vector  bool
}

// List returns the contributing channel names in a fixed order.
func (c Channels) List() []string {
	names := make([]string, 0, 3)
	if c.Lexical {
		names = append(names, "lexical")
	}
	if c.Fuzzy {
		names = append(names, "fuzzy")
	}
	if c.Vector {
		names = append(names, "vector")
	}
	return names
}

// ScoredRecipe is a ranked search result. Per-channel scores are normalized
// to [0,1]; a channel that did not match the document contributes zero.
type ScoredRecipe struct {
	Recipe       Recipe
	LexicalScore float64
	FuzzyScore   float64
	VectorScore  float64
	FinalScore   float64
}

// SearchResult is one query's ranked result set.
type SearchResult struct {
	Items    []ScoredRecipe
	Channels Channels
}
