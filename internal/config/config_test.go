package config

import (
	"strings"
	"testing"
)

func f64(v float64) *float64 { return &v }

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 || cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("http defaults = %+v", cfg.HTTP)
	}
	if cfg.HTTP.WriteTimeoutSec != 120 {
		t.Errorf("write timeout = %d, streaming needs a long write window", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("driver = %q, want memory", cfg.Database.Driver)
	}
	if cfg.Embedding.Dimensions != 1536 {
		t.Errorf("dimensions = %d", cfg.Embedding.Dimensions)
	}
	if cfg.Ingestion.ChunkSize != 1000 || cfg.Ingestion.ChunkOverlap != 200 {
		t.Errorf("chunking defaults = %+v", cfg.Ingestion)
	}
	if cfg.Ingestion.EmbedBatchSize != 64 {
		t.Errorf("embed batch = %d", cfg.Ingestion.EmbedBatchSize)
	}
	if cfg.RAG.TopK != 5 {
		t.Errorf("rag top_k = %d", cfg.RAG.TopK)
	}
	if cfg.RAG.MinScore != nil {
		t.Errorf("min_score defaulted to %v, must stay unset", *cfg.RAG.MinScore)
	}
	if cfg.Generation.MaxTokens != 1024 {
		t.Errorf("max_tokens = %d", cfg.Generation.MaxTokens)
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := Config{}
	cfg.Ingestion.ChunkSize = 500
	cfg.Ingestion.ChunkOverlap = 50
	cfg.HTTP.WriteTimeoutSec = 30
	cfg.ApplyDefaults()

	if cfg.Ingestion.ChunkSize != 500 || cfg.Ingestion.ChunkOverlap != 50 {
		t.Errorf("explicit chunking overridden: %+v", cfg.Ingestion)
	}
	if cfg.HTTP.WriteTimeoutSec != 30 {
		t.Errorf("explicit write timeout overridden: %d", cfg.HTTP.WriteTimeoutSec)
	}
}

func validated(mutate func(*Config)) error {
	var cfg Config
	cfg.ApplyDefaults()
	cfg.HTTP.Port = 8080
	mutate(&cfg)
	return cfg.Validate()
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid memory", func(c *Config) {}, ""},
		{"valid redis", func(c *Config) {
			c.Database.Driver = "redis"
			c.Database.Addrs = []string{"localhost:6379"}
		}, ""},
		{"port zero", func(c *Config) { c.HTTP.Port = 0 }, "http.port"},
		{"port too high", func(c *Config) { c.HTTP.Port = 70000 }, "http.port"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "postgres" }, "database.driver"},
		{"redis without addrs", func(c *Config) { c.Database.Driver = "redis" }, "database.addrs"},
		{"overlap too large", func(c *Config) {
			c.Ingestion.ChunkSize = 100
			c.Ingestion.ChunkOverlap = 100
		}, "chunk_overlap"},
		{"min_score below range", func(c *Config) { c.RAG.MinScore = f64(-0.1) }, "min_score"},
		{"min_score above range", func(c *Config) { c.RAG.MinScore = f64(1.5) }, "min_score"},
		{"min_score zero ok", func(c *Config) { c.RAG.MinScore = f64(0) }, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validated(tc.mutate)
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() err = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Validate() err = %v, want mention of %q", err, tc.wantErr)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("KNOWDEX_TEST_VAR", "expanded")
	t.Setenv("KNOWDEX_TEST_EMPTY", "")

	cases := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"${KNOWDEX_TEST_VAR}", "expanded"},
		{"prefix-${KNOWDEX_TEST_VAR}-suffix", "prefix-expanded-suffix"},
		{"${KNOWDEX_TEST_MISSING:-fallback}", "fallback"},
		{"${KNOWDEX_TEST_EMPTY:-fallback}", "fallback"},
		{"${KNOWDEX_TEST_VAR:-fallback}", "expanded"},
		{"${KNOWDEX_TEST_MISSING}", ""},
	}

	for _, tc := range cases {
		if got := string(expandEnvVars([]byte(tc.in))); got != tc.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("ENV", "")
	if env := GetEnv(); env != "local" {
		t.Errorf("GetEnv() = %q, want local", env)
	}

	t.Setenv("ENV", "prod")
	if env := GetEnv(); env != "prod" {
		t.Errorf("GetEnv() = %q, want prod", env)
	}
}
