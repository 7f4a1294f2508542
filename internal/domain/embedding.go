package domain

import "context"

// CapabilityEmbeddings names the embedding-generation capability.
const CapabilityEmbeddings = "embeddings"

// EmbedRequest is the provider gateway contract for one embedding call.
// Credential is caller-supplied per request and must never be logged or
// persisted; an empty credential falls back to the server-configured key.
type EmbedRequest struct {
	Provider      string
	Credential    string
	Texts         []string
	AllowFallback bool
}

// EmbeddingResult holds one vector per input text plus usage accounting.
// All vectors in one result share a single dimensionality.
type EmbeddingResult struct {
	Vectors     [][]float32
	Dimensions  int
	TotalTokens int
}

// Embedder vectorizes text through a configured provider.
type Embedder interface {
	Embed(ctx context.Context, req EmbedRequest) (EmbeddingResult, error)
}
