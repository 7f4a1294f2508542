package search

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/aicook/recipesearch/internal/domain"
	"github.com/aicook/recipesearch/internal/index/lexical"
	"github.com/aicook/recipesearch/internal/index/vector"
	"github.com/aicook/recipesearch/internal/segment"
)

type spaceTokenizer struct{}

func (spaceTokenizer) Tokens(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// fakeGateway returns a fixed vector or a scripted error.
type fakeGateway struct {
	vec   []float32
	err   error
	calls int
}

func (f *fakeGateway) Embed(_ context.Context, req domain.EmbedRequest) (domain.EmbeddingResult, error) {
	f.calls++
	if f.err != nil {
		return domain.EmbeddingResult{}, f.err
	}
	return domain.EmbeddingResult{
		Vectors:    [][]float32{f.vec},
		Dimensions: len(f.vec),
	}, nil
}

func testRecipes(t *testing.T) []domain.Recipe {
	t.Helper()
	specs := []struct {
		id, name    string
		ingredients []string
	}{
		{"r1", "土豆 烧 牛肉", []string{"土豆", "牛肉"}},
		{"r2", "番茄 炒 蛋", []string{"番茄", "鸡蛋"}},
		{"r3", "凉拌 黄瓜", []string{"黄瓜"}},
	}
	out := make([]domain.Recipe, len(specs))
	for i, s := range specs {
		r, err := domain.NewRecipe(s.id, s.name, s.ingredients, nil, nil, nil, "", "", 0)
		if err != nil {
			t.Fatalf("NewRecipe: %v", err)
		}
		out[i] = r
	}
	return out
}

func newTestService(t *testing.T, gw domain.Embedder, vectors *vector.Holder) *Service {
	t.Helper()
	lex := lexical.Build(testRecipes(t), spaceTokenizer{}, lexical.Options{})
	if vectors == nil {
		vectors = &vector.Holder{}
	}
	return NewService(lex, vectors, gw, spaceTokenizer{}, Config{
		DefaultLimit:    10,
		MaxLimit:        100,
		Weights:         Weights{Lexical: 1.0, Vector: 0.7, Fuzzy: 0.3},
		DefaultProvider: "test",
	}, zap.NewNop())
}

func holderWith(t *testing.T, vecs map[string][]float32) *vector.Holder {
	t.Helper()
	var dim int
	for _, v := range vecs {
		dim = len(v)
		break
	}
	b, err := vector.NewBuilder(dim)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	for id, v := range vecs {
		if err := b.Add(id, v); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	h := &vector.Holder{}
	h.Swap(b.Build())
	return h
}

func TestSearch_EmptyQuery(t *testing.T) {
	svc := newTestService(t, &fakeGateway{}, nil)

	for _, q := range []string{"", "   "} {
		_, err := svc.Search(context.Background(), Params{Query: q})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("query %q: got %v, want ErrInvalidInput", q, err)
		}
	}
}

func TestSearch_LimitBounds(t *testing.T) {
	svc := newTestService(t, &fakeGateway{}, nil)

	for _, limit := range []int{-1, 101} {
		_, err := svc.Search(context.Background(), Params{Query: "牛肉", Limit: limit})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("limit %d: got %v, want ErrInvalidInput", limit, err)
		}
	}
}

func TestSearch_LexicalOnlyWhenVectorIndexEmpty(t *testing.T) {
	gw := &fakeGateway{vec: []float32{1, 0}}
	svc := newTestService(t, gw, nil)

	res, err := svc.Search(context.Background(), Params{Query: "牛肉"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Items) == 0 {
		t.Fatal("no items")
	}
	if res.Items[0].Recipe.ID() != "r1" {
		t.Errorf("top = %s, want r1", res.Items[0].Recipe.ID())
	}
	if !res.Channels.Lexical || res.Channels.Vector {
		t.Errorf("channels = %+v, want lexical only", res.Channels)
	}
	// No vectors indexed, so the gateway must not be called at all.
	if gw.calls != 0 {
		t.Errorf("gateway called %d times, want 0", gw.calls)
	}
}

func TestSearch_HybridChannels(t *testing.T) {
	gw := &fakeGateway{vec: []float32{1, 0}}
	vectors := holderWith(t, map[string][]float32{
		"r1": {1, 0},
		"r2": {0, 1},
	})
	svc := newTestService(t, gw, vectors)

	res, err := svc.Search(context.Background(), Params{Query: "牛肉"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !res.Channels.Lexical || !res.Channels.Vector {
		t.Errorf("channels = %+v, want lexical and vector", res.Channels)
	}
	if res.Items[0].Recipe.ID() != "r1" {
		t.Errorf("top = %s, want r1 (both channels)", res.Items[0].Recipe.ID())
	}
}

func TestSearch_DegradesWhenEmbeddingFails(t *testing.T) {
	gw := &fakeGateway{err: errors.New("provider exploded")}
	vectors := holderWith(t, map[string][]float32{"r1": {1, 0}})
	svc := newTestService(t, gw, vectors)

	res, err := svc.Search(context.Background(), Params{Query: "牛肉"})
	if err != nil {
		t.Fatalf("degraded search returned error: %v", err)
	}
	if len(res.Items) == 0 {
		t.Fatal("degraded search returned no lexical results")
	}
	if res.Channels.Vector {
		t.Error("vector channel reported despite embedding failure")
	}
}

func TestSearch_FuzzyChannelOnTypo(t *testing.T) {
	svc := newTestService(t, &fakeGateway{}, nil)

	res, err := svc.Search(context.Background(), Params{Query: "土斗"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !res.Channels.Fuzzy {
		t.Errorf("channels = %+v, want fuzzy", res.Channels)
	}
	found := false
	for _, item := range res.Items {
		if item.Recipe.ID() == "r1" {
			found = true
		}
	}
	if !found {
		t.Error("typo query did not surface r1")
	}
}

func TestSearch_DegradesOnDimensionMismatch(t *testing.T) {
	// A 3-dimensional query embedding against a 2-dimensional index, as
	// after a provider or model change without a rebuild.
	gw := &fakeGateway{vec: []float32{1, 0, 0}}
	vectors := holderWith(t, map[string][]float32{"r1": {1, 0}})
	svc := newTestService(t, gw, vectors)

	res, err := svc.Search(context.Background(), Params{Query: "牛肉"})
	if err != nil {
		t.Fatalf("degraded search returned error: %v", err)
	}
	if gw.calls != 1 {
		t.Errorf("gateway called %d times, want 1", gw.calls)
	}
	if len(res.Items) == 0 {
		t.Fatal("degraded search returned no lexical results")
	}
	if res.Channels.Vector {
		t.Error("vector channel reported despite dimension mismatch")
	}
}

func TestSearch_NameSubstringRecall(t *testing.T) {
	seg, err := segment.New()
	if err != nil {
		t.Fatalf("segment.New: %v", err)
	}
	names := []struct{ id, name string }{
		{"r1", "土豆烧牛肉"},
		{"r2", "番茄炒蛋"},
		{"r3", "chocolate cake"},
	}
	recipes := make([]domain.Recipe, len(names))
	for i, n := range names {
		r, err := domain.NewRecipe(n.id, n.name, nil, nil, nil, nil, "", "", 0)
		if err != nil {
			t.Fatalf("NewRecipe: %v", err)
		}
		recipes[i] = r
	}
	lex := lexical.Build(recipes, seg, lexical.Options{})
	svc := NewService(lex, &vector.Holder{}, &fakeGateway{}, seg, Config{
		DefaultLimit:    10,
		MaxLimit:        100,
		Weights:         Weights{Lexical: 1.0, Vector: 0.7, Fuzzy: 0.3},
		DefaultProvider: "test",
	}, zap.NewNop())

	// Substrings of a name that cross its segmentation boundaries must
	// still recall the recipe.
	cases := []struct{ query, want string }{
		{"豆烧牛", "r1"},
		{"烧牛", "r1"},
		{"choc", "r3"},
	}
	for _, c := range cases {
		res, err := svc.Search(context.Background(), Params{Query: c.query})
		if err != nil {
			t.Fatalf("Search(%q): %v", c.query, err)
		}
		found := false
		for _, item := range res.Items {
			if item.Recipe.ID() == c.want {
				found = true
			}
		}
		if !found {
			t.Errorf("query %q did not recall %s (%d items)", c.query, c.want, len(res.Items))
		}
		if !res.Channels.Lexical {
			t.Errorf("query %q: channels = %+v, want lexical", c.query, res.Channels)
		}
	}
}

func TestSearch_NoMatchesEmptyResult(t *testing.T) {
	svc := newTestService(t, &fakeGateway{}, nil)

	res, err := svc.Search(context.Background(), Params{Query: "sushi"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Items) != 0 {
		t.Errorf("got %d items, want 0", len(res.Items))
	}
}

func TestSearch_CancelledContext(t *testing.T) {
	gw := &fakeGateway{vec: []float32{1, 0}}
	vectors := holderWith(t, map[string][]float32{"r1": {1, 0}})
	svc := newTestService(t, gw, vectors)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.Search(ctx, Params{Query: "牛肉"}); err == nil {
		t.Error("cancelled context did not fail the search")
	}
}

func TestSearch_DefaultLimitApplied(t *testing.T) {
	svc := newTestService(t, &fakeGateway{}, nil)

	res, err := svc.Search(context.Background(), Params{Query: "牛肉", Limit: 0})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Items) > 10 {
		t.Errorf("default limit not applied: %d items", len(res.Items))
	}
}
