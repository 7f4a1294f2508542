package config

import (
	"testing"
)

func validConfig() Config {
	c := Config{}
	c.HTTP.Port = 8080
	c.ApplyDefaults()
	return c
}

func TestApplyDefaults(t *testing.T) {
	c := validConfig()

	if c.Search.DefaultLimit != 60 {
		t.Errorf("DefaultLimit = %d, want 60", c.Search.DefaultLimit)
	}
	if c.Search.MaxLimit != 600 {
		t.Errorf("MaxLimit = %d, want 600", c.Search.MaxLimit)
	}
	if c.Search.Weights.Lexical != 1.0 || c.Search.Weights.Vector != 0.7 || c.Search.Weights.Fuzzy != 0.3 {
		t.Errorf("Weights = %+v", c.Search.Weights)
	}
	if c.Search.FuzzyThreshold != 0.8 {
		t.Errorf("FuzzyThreshold = %v, want 0.8", c.Search.FuzzyThreshold)
	}
	if c.Embedding.BatchSize != 100 || c.Embedding.MaxBatchSize != 500 {
		t.Errorf("batch sizes = %d/%d, want 100/500", c.Embedding.BatchSize, c.Embedding.MaxBatchSize)
	}
	if c.Embedding.TimeoutSec != 30 {
		t.Errorf("TimeoutSec = %d, want 30", c.Embedding.TimeoutSec)
	}
	if c.Cache.TTLHours != 24 {
		t.Errorf("TTLHours = %d, want 24", c.Cache.TTLHours)
	}
}

func TestApplyDefaults_ExplicitWeightsKept(t *testing.T) {
	c := Config{}
	c.HTTP.Port = 8080
	c.Search.Weights = WeightsConfig{Lexical: 2, Vector: 1, Fuzzy: 0.5}
	c.ApplyDefaults()

	if c.Search.Weights.Lexical != 2 {
		t.Errorf("explicit weights overwritten: %+v", c.Search.Weights)
	}
}

func TestValidate_PortRange(t *testing.T) {
	for _, port := range []int{0, -1, 70000} {
		c := validConfig()
		c.HTTP.Port = port
		if err := c.Validate(); err == nil {
			t.Errorf("port %d accepted", port)
		}
	}
}

func TestValidate_DefaultLimitVsMax(t *testing.T) {
	c := validConfig()
	c.Search.DefaultLimit = 700
	if err := c.Validate(); err == nil {
		t.Error("default_limit > max_limit accepted")
	}
}

func TestValidate_UnknownDefaultProvider(t *testing.T) {
	c := validConfig()
	c.Embedding.DefaultProvider = "ghost"
	if err := c.Validate(); err == nil {
		t.Error("unknown default provider accepted")
	}
}

func TestValidate_FallbackMustEmbed(t *testing.T) {
	c := validConfig()
	c.Embedding.Providers = map[string]ProviderConfig{
		"chat": {Model: "m", Embeddings: false},
	}
	c.Embedding.FallbackProvider = "chat"
	if err := c.Validate(); err == nil {
		t.Error("non-embedding fallback provider accepted")
	}
}

func TestValidate_EmbeddingProviderNeedsModel(t *testing.T) {
	c := validConfig()
	c.Embedding.Providers = map[string]ProviderConfig{
		"openai": {Embeddings: true},
	}
	if err := c.Validate(); err == nil {
		t.Error("embedding provider without model accepted")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("RS_TEST_KEY", "sk-123")

	in := []byte("api_key: ${RS_TEST_KEY}\nmodel: ${RS_TEST_MODEL:-fallback-model}\n")
	out := string(expandEnvVars(in))

	if out != "api_key: sk-123\nmodel: fallback-model\n" {
		t.Errorf("expanded = %q", out)
	}
}

func TestExpandEnvVars_SetVarBeatsDefault(t *testing.T) {
	t.Setenv("RS_TEST_MODEL", "real-model")

	out := string(expandEnvVars([]byte("${RS_TEST_MODEL:-fallback}")))
	if out != "real-model" {
		t.Errorf("expanded = %q, want real-model", out)
	}
}
