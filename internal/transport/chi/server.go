// Package chi exposes the search API over HTTP.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aicook/recipesearch/internal/domain"
	"github.com/aicook/recipesearch/internal/provider"
	healthuc "github.com/aicook/recipesearch/internal/usecase/health"
	rebuilduc "github.com/aicook/recipesearch/internal/usecase/rebuild"
	searchuc "github.com/aicook/recipesearch/internal/usecase/search"
)

// credentialHeader carries a caller-supplied provider API key. Keys travel
// in this header only, never in the URL or body, and are never logged.
const credentialHeader = "X-Provider-Key"

// Error response codes.
const (
	codeBadRequest          = "bad_request"
	codeValidationFailed    = "validation_failed"
	codeProviderUnknown     = "provider_unknown"
	codeProviderUnsupported = "provider_unsupported"
	codeCredentialMissing   = "credential_missing"
	codeProviderUnavailable = "provider_unavailable"
	codeIndexUnavailable    = "index_unavailable"
	codeRebuildFailed       = "rebuild_failed"
	codeInternalError       = "internal_error"
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server routes API requests to the use case services.
type Server struct {
	search        *searchuc.Service
	rebuild       *rebuilduc.Service
	health        *healthuc.Service
	providers     *provider.Registry
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	search *searchuc.Service,
	rebuild *rebuilduc.Service,
	health *healthuc.Service,
	providers *provider.Registry,
	logger *zap.Logger,
) *Server {
	s := &Server{
		search:    search,
		rebuild:   rebuild,
		health:    health,
		providers: providers,
		logger:    logger,
	}
	// Caller-fault sentinels match before the rebuild wrapper so a bad
	// provider or missing key inside a rebuild still reports 4xx.
	s.errorHandlers = []errorHandler{
		providerUnsupportedHandler,
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrProviderUnknown, http.StatusBadRequest, codeProviderUnknown),
		sentinelHandler(domain.ErrCredentialMissing, http.StatusUnauthorized, codeCredentialMissing),
		rebuildFailedHandler,
		sentinelHandler(domain.ErrProviderUnavailable, http.StatusBadGateway, codeProviderUnavailable),
		sentinelHandler(domain.ErrIndexUnavailable, http.StatusServiceUnavailable, codeIndexUnavailable),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadGateway, codeProviderUnavailable),
	}
	return s
}

// Routes mounts the API on the given router.
func (s *Server) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.SearchRecipes)
		r.Get("/health", s.HealthCheck)
		r.Post("/rebuild", s.RebuildIndex)
		r.Get("/providers", s.ListProviders)
	})
	// Probe aliases outside the versioned prefix.
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// SearchRequest is the POST /search body.
type SearchRequest struct {
	Query    string `json:"query"`
	Limit    int    `json:"limit,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// ChannelScores breaks a result's final score down per retrieval channel.
type ChannelScores struct {
	Lexical float64 `json:"lexical"`
	Fuzzy   float64 `json:"fuzzy"`
	Vector  float64 `json:"vector"`
}

// SearchResultItem is one ranked recipe.
type SearchResultItem struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Ingredients []string      `json:"ingredients,omitempty"`
	Tags        []string      `json:"tags,omitempty"`
	Difficulty  string        `json:"difficulty,omitempty"`
	Popularity  int           `json:"popularity,omitempty"`
	Score       float64       `json:"score"`
	Scores      ChannelScores `json:"scores"`
}

// SearchResponse is the POST /search reply. Channels lists the retrieval
// channels that contributed, so a degraded (lexical-only) response is
// distinguishable from a hybrid one.
type SearchResponse struct {
	Items    []SearchResultItem `json:"items"`
	Total    int                `json:"total"`
	Channels []string           `json:"channels"`
}

// SearchRecipes handles POST /api/v1/search.
func (s *Server) SearchRecipes(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	result, err := s.search.Search(r.Context(), searchuc.Params{
		Query:      req.Query,
		Limit:      req.Limit,
		Provider:   req.Provider,
		Credential: r.Header.Get(credentialHeader),
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]SearchResultItem, len(result.Items))
	for i := range result.Items {
		items[i] = scoredRecipeToItem(&result.Items[i])
	}

	writeJSON(w, http.StatusOK, SearchResponse{
		Items:    items,
		Total:    len(items),
		Channels: result.Channels.List(),
	})
}

// RebuildRequest is the POST /rebuild body.
type RebuildRequest struct {
	Provider  string `json:"provider,omitempty"`
	BatchSize int    `json:"batch_size,omitempty"`
}

// RebuildResponse reports a completed rebuild.
type RebuildResponse struct {
	Provider         string `json:"provider"`
	RecipesProcessed int    `json:"recipes_processed"`
	VectorCount      int    `json:"vector_count"`
	Dimensions       int    `json:"dimensions"`
	TotalTokens      int    `json:"total_tokens,omitempty"`
}

// RebuildIndex handles POST /api/v1/rebuild.
func (s *Server) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	var req RebuildRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}

	report, err := s.rebuild.Rebuild(r.Context(), rebuilduc.Params{
		Provider:   req.Provider,
		BatchSize:  req.BatchSize,
		Credential: r.Header.Get(credentialHeader),
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RebuildResponse{
		Provider:         report.Provider,
		RecipesProcessed: report.RecipesProcessed,
		VectorCount:      report.VectorCount,
		Dimensions:       report.Dimensions,
		TotalTokens:      report.TotalTokens,
	})
}

// ProviderInfo describes one configured provider. Credentials themselves are
// never exposed, only their presence.
type ProviderInfo struct {
	Name       string `json:"name"`
	Model      string `json:"model,omitempty"`
	Dimensions int    `json:"dimensions,omitempty"`
	Embeddings bool   `json:"embeddings"`
	HasKey     bool   `json:"has_key"`
	IsDefault  bool   `json:"is_default"`
}

// ListProviders handles GET /api/v1/providers.
func (s *Server) ListProviders(w http.ResponseWriter, r *http.Request) {
	list := s.providers.List()
	items := make([]ProviderInfo, len(list))
	for i, p := range list {
		items[i] = ProviderInfo{
			Name:       p.Name(),
			Model:      p.Model(),
			Dimensions: p.Dimensions(),
			Embeddings: p.SupportsEmbeddings(),
			HasKey:     p.HasKey(),
			IsDefault:  p.Name() == s.providers.DefaultName(),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":            items,
		"default_provider": s.providers.DefaultName(),
	})
}

// HealthResponse reports index readiness.
type HealthResponse struct {
	Status           string `json:"status"`
	RecipeCount      int    `json:"recipe_count"`
	IndexedTermCount int    `json:"indexed_term_count"`
	VectorCount      int    `json:"vector_count"`
}

// HealthCheck handles GET /health. A degraded service (lexical-only) still
// answers 200; only a service with no documents reports unavailable.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check()

	httpStatus := http.StatusOK
	if report.Status == healthuc.StatusError {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:           report.Status,
		RecipeCount:      report.RecipeCount,
		IndexedTermCount: report.IndexedTermCount,
		VectorCount:      report.VectorCount,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func scoredRecipeToItem(sr *domain.ScoredRecipe) SearchResultItem {
	r := &sr.Recipe
	return SearchResultItem{
		ID:          r.ID(),
		Name:        r.Name(),
		Ingredients: r.Ingredients(),
		Tags:        r.Tags(),
		Difficulty:  r.Difficulty(),
		Popularity:  r.Popularity(),
		Score:       sr.FinalScore,
		Scores: ChannelScores{
			Lexical: sr.LexicalScore,
			Fuzzy:   sr.FuzzyScore,
			Vector:  sr.VectorScore,
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidInput,
		domain.ErrProviderUnknown,
		domain.ErrProviderUnsupported,
		domain.ErrProviderUnavailable,
		domain.ErrCredentialMissing,
		domain.ErrIndexUnavailable,
		domain.ErrVectorDimMismatch,
		domain.ErrRebuildFailed,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// providerUnsupportedHandler reports the missing capability by name.
func providerUnsupportedHandler(w http.ResponseWriter, err error, msg string) bool {
	var pue *domain.ProviderUnsupportedError
	if !errors.As(err, &pue) {
		if !errors.Is(err, domain.ErrProviderUnsupported) {
			return false
		}
		writeError(w, http.StatusBadRequest, codeProviderUnsupported, msg)
		return true
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"code":       codeProviderUnsupported,
		"message":    pue.Error(),
		"provider":   pue.Provider,
		"capability": pue.Capability,
	})
	return true
}

// rebuildFailedHandler reports which batch aborted the rebuild.
func rebuildFailedHandler(w http.ResponseWriter, err error, msg string) bool {
	var re *domain.RebuildError
	if !errors.As(err, &re) {
		return false
	}
	writeJSON(w, http.StatusBadGateway, map[string]any{
		"code":         codeRebuildFailed,
		"message":      msg,
		"failed_batch": re.Batch,
	})
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
