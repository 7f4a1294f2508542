package search

// Tokenizer produces normalized query terms; implemented by segment.Segmenter.
type Tokenizer interface {
	Tokens(text string) []string
}

// Params is one search request after transport decoding.
type Params struct {
	Query      string
	Limit      int    // 0 = configured default
	Provider   string // "" = configured default
	Credential string // caller key for the query embedding; never logged
}

// Weights are the per-channel fusion multipliers.
type Weights struct {
	Lexical float64
	Vector  float64
	Fuzzy   float64
}
