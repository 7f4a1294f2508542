package chi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/aicook/recipesearch/internal/config"
	"github.com/aicook/recipesearch/internal/domain"
	"github.com/aicook/recipesearch/internal/index/lexical"
	"github.com/aicook/recipesearch/internal/index/vector"
	"github.com/aicook/recipesearch/internal/provider"
	healthuc "github.com/aicook/recipesearch/internal/usecase/health"
	rebuilduc "github.com/aicook/recipesearch/internal/usecase/rebuild"
	searchuc "github.com/aicook/recipesearch/internal/usecase/search"
)

type spaceTokenizer struct{}

func (spaceTokenizer) Tokens(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// fakeGateway serves canned vectors and records credentials.
type fakeGateway struct {
	dim      int
	err      error
	lastCred string
}

func (f *fakeGateway) Embed(_ context.Context, req domain.EmbedRequest) (domain.EmbeddingResult, error) {
	f.lastCred = req.Credential
	if f.err != nil {
		return domain.EmbeddingResult{}, f.err
	}
	vecs := make([][]float32, len(req.Texts))
	for i := range vecs {
		vecs[i] = make([]float32, f.dim)
		vecs[i][0] = 1
	}
	return domain.EmbeddingResult{Vectors: vecs, Dimensions: f.dim}, nil
}

func testRouter(t *testing.T, gw domain.Embedder) (http.Handler, *vector.Holder) {
	t.Helper()

	recipes := make([]domain.Recipe, 0, 3)
	for i, name := range []string{"beef stew", "tomato soup", "fried rice"} {
		r, err := domain.NewRecipe(fmt.Sprintf("r%d", i+1), name, nil, nil, nil, nil, "", "", 0)
		if err != nil {
			t.Fatalf("NewRecipe: %v", err)
		}
		recipes = append(recipes, r)
	}

	lex := lexical.Build(recipes, spaceTokenizer{}, lexical.Options{})
	holder := &vector.Holder{}

	searchSvc := searchuc.NewService(lex, holder, gw, spaceTokenizer{}, searchuc.Config{
		DefaultLimit:    10,
		MaxLimit:        100,
		Weights:         searchuc.Weights{Lexical: 1.0, Vector: 0.7, Fuzzy: 0.3},
		DefaultProvider: "test",
	}, zap.NewNop())

	rebuildSvc := rebuilduc.NewService(recipes, holder, gw, rebuilduc.Config{
		DefaultProvider: "test",
		BatchSize:       10,
		MaxBatchSize:    50,
	}, zap.NewNop())

	healthSvc := healthuc.NewService(lex, holder)

	registry := provider.NewRegistry(config.EmbeddingConfig{
		DefaultProvider: "test",
		Providers: map[string]config.ProviderConfig{
			"test": {APIKey: "k", Model: "m", Dimensions: 4, Embeddings: true},
			"chat": {Model: "m2", Embeddings: false},
		},
	}, zap.NewNop())

	server := NewServer(searchSvc, rebuildSvc, healthSvc, registry, zap.NewNop())
	r := chirouter.NewRouter()
	server.Routes(r)
	return r, holder
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestSearchEndpoint_OK(t *testing.T) {
	h, _ := testRouter(t, &fakeGateway{dim: 4})

	rr := doJSON(t, h, "POST", "/api/v1/search", `{"query":"beef stew"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var resp SearchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total == 0 || len(resp.Items) == 0 {
		t.Fatalf("empty response: %+v", resp)
	}
	if resp.Items[0].ID != "r1" {
		t.Errorf("top = %s, want r1", resp.Items[0].ID)
	}
	if len(resp.Channels) == 0 {
		t.Error("channels missing")
	}
}

func TestSearchEndpoint_EmptyQuery_400(t *testing.T) {
	h, _ := testRouter(t, &fakeGateway{dim: 4})

	rr := doJSON(t, h, "POST", "/api/v1/search", `{"query":"  "}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}

	var errResp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if errResp.Code != codeValidationFailed {
		t.Errorf("code = %s, want %s", errResp.Code, codeValidationFailed)
	}
}

func TestSearchEndpoint_MalformedBody_400(t *testing.T) {
	h, _ := testRouter(t, &fakeGateway{dim: 4})

	rr := doJSON(t, h, "POST", "/api/v1/search", `{"query":`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestSearchEndpoint_NoMatches_EmptyItems(t *testing.T) {
	h, _ := testRouter(t, &fakeGateway{dim: 4})

	rr := doJSON(t, h, "POST", "/api/v1/search", `{"query":"sushi"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var resp SearchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 0 || resp.Items == nil {
		t.Errorf("want total 0 with non-null items, got %+v", resp)
	}
}

func TestRebuildEndpoint_OK(t *testing.T) {
	gw := &fakeGateway{dim: 4}
	h, holder := testRouter(t, gw)

	rr := doJSON(t, h, "POST", "/api/v1/rebuild", `{"provider":"test"}`,
		map[string]string{credentialHeader: "caller-key"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var resp RebuildResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.VectorCount != 3 || resp.Provider != "test" {
		t.Errorf("response = %+v", resp)
	}
	if holder.Len() != 3 {
		t.Errorf("holder Len = %d, want 3", holder.Len())
	}
	// Credential taken from the header, not the body or URL.
	if gw.lastCred != "caller-key" {
		t.Errorf("credential = %q, want caller-key", gw.lastCred)
	}
}

func TestRebuildEndpoint_EmptyBody_UsesDefaults(t *testing.T) {
	h, holder := testRouter(t, &fakeGateway{dim: 4})

	rr := doJSON(t, h, "POST", "/api/v1/rebuild", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if holder.Len() != 3 {
		t.Errorf("holder Len = %d, want 3", holder.Len())
	}
}

func TestRebuildEndpoint_ProviderFailure_502WithBatch(t *testing.T) {
	h, _ := testRouter(t, &fakeGateway{
		dim: 4,
		err: fmt.Errorf("down: %w", domain.ErrProviderUnavailable),
	})

	rr := doJSON(t, h, "POST", "/api/v1/rebuild", `{}`, nil)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["code"] != codeRebuildFailed {
		t.Errorf("code = %v, want %s", body["code"], codeRebuildFailed)
	}
	if body["failed_batch"] != float64(1) {
		t.Errorf("failed_batch = %v, want 1", body["failed_batch"])
	}
}

func TestRebuildEndpoint_UnknownProvider_400(t *testing.T) {
	h, _ := testRouter(t, &fakeGateway{
		dim: 4,
		err: fmt.Errorf("%q: %w", "nope", domain.ErrProviderUnknown),
	})

	rr := doJSON(t, h, "POST", "/api/v1/rebuild", `{"provider":"nope"}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}

	var errResp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if errResp.Code != codeProviderUnknown {
		t.Errorf("code = %s, want %s", errResp.Code, codeProviderUnknown)
	}
}

func TestProvidersEndpoint(t *testing.T) {
	h, _ := testRouter(t, &fakeGateway{dim: 4})

	rr := doJSON(t, h, "GET", "/api/v1/providers", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var resp struct {
		Items           []ProviderInfo `json:"items"`
		DefaultProvider string         `json:"default_provider"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.DefaultProvider != "test" {
		t.Errorf("default_provider = %s, want test", resp.DefaultProvider)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("got %d providers, want 2", len(resp.Items))
	}
	// Sorted by name: chat, test.
	if resp.Items[0].Name != "chat" || resp.Items[0].Embeddings {
		t.Errorf("chat entry = %+v", resp.Items[0])
	}
	if resp.Items[1].Name != "test" || !resp.Items[1].IsDefault || !resp.Items[1].HasKey {
		t.Errorf("test entry = %+v", resp.Items[1])
	}
	if strings.Contains(rr.Body.String(), "\"k\"") {
		t.Error("provider listing leaked an API key")
	}
}

func TestHealthEndpoint_DegradedStill200(t *testing.T) {
	h, _ := testRouter(t, &fakeGateway{dim: 4})

	for _, path := range []string{"/health", "/api/v1/health"} {
		rr := doJSON(t, h, "GET", path, "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status = %d, want 200", path, rr.Code)
		}

		var resp HealthResponse
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Status != healthuc.StatusDegraded {
			t.Errorf("status = %s, want degraded (no vectors yet)", resp.Status)
		}
		if resp.RecipeCount != 3 {
			t.Errorf("recipe_count = %d, want 3", resp.RecipeCount)
		}
	}
}

func TestHealthEndpoint_HealthyAfterRebuild(t *testing.T) {
	h, _ := testRouter(t, &fakeGateway{dim: 4})

	if rr := doJSON(t, h, "POST", "/api/v1/rebuild", `{}`, nil); rr.Code != http.StatusOK {
		t.Fatalf("rebuild status = %d", rr.Code)
	}

	rr := doJSON(t, h, "GET", "/health", "", nil)
	var resp HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != healthuc.StatusHealthy || resp.VectorCount != 3 {
		t.Errorf("response = %+v", resp)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := testRouter(t, &fakeGateway{dim: 4})

	rr := doJSON(t, h, "GET", "/metrics", "", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}
