package knowdex

import (
	"go.uber.org/zap"

	"github.com/norma-cloud/knowdex/internal/chunker"
	"github.com/norma-cloud/knowdex/internal/usecase/ingest"
)

type clientConfig struct {
	driver     string
	addrs      []string
	username   string
	password   string
	dimensions int

	embedAPIKey  string
	embedBaseURL string
	embedModel   string

	genAPIKey  string
	genBaseURL string
	genModel   string

	chunkSize      int
	chunkOverlap   int
	embedBatchSize int

	logger *zap.Logger
}

// Option configures the client.
type Option interface {
	apply(*clientConfig)
}

type optionFunc func(*clientConfig)

func (f optionFunc) apply(cfg *clientConfig) { f(cfg) }

// WithMemoryStore selects the in-process vector store. Data lives only as
// long as the client.
func WithMemoryStore(dimensions int) Option {
	return optionFunc(func(cfg *clientConfig) {
		cfg.driver = "memory"
		cfg.dimensions = dimensions
	})
}

// WithRedisStore selects the Redis FT backend.
func WithRedisStore(dimensions int, addrs ...string) Option {
	return optionFunc(func(cfg *clientConfig) {
		cfg.driver = "redis"
		cfg.dimensions = dimensions
		cfg.addrs = addrs
	})
}

// WithRedisAuth sets credentials for the Redis backend.
func WithRedisAuth(username, password string) Option {
	return optionFunc(func(cfg *clientConfig) {
		cfg.username = username
		cfg.password = password
	})
}

// WithOpenAI configures both providers against api.openai.com.
func WithOpenAI(apiKey, embedModel, genModel string) Option {
	return optionFunc(func(cfg *clientConfig) {
		cfg.embedAPIKey = apiKey
		cfg.embedModel = embedModel
		cfg.genAPIKey = apiKey
		cfg.genModel = genModel
	})
}

// WithEmbeddingProvider points the embedder at an OpenAI-compatible endpoint.
func WithEmbeddingProvider(baseURL, apiKey, model string) Option {
	return optionFunc(func(cfg *clientConfig) {
		cfg.embedBaseURL = baseURL
		cfg.embedAPIKey = apiKey
		cfg.embedModel = model
	})
}

// WithGenerationProvider points the generator at an OpenAI-compatible endpoint.
func WithGenerationProvider(baseURL, apiKey, model string) Option {
	return optionFunc(func(cfg *clientConfig) {
		cfg.genBaseURL = baseURL
		cfg.genAPIKey = apiKey
		cfg.genModel = model
	})
}

// WithChunking overrides the chunk window and overlap, in characters.
func WithChunking(size, overlap int) Option {
	return optionFunc(func(cfg *clientConfig) {
		cfg.chunkSize = size
		cfg.chunkOverlap = overlap
	})
}

// WithLogger supplies a logger; the default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return optionFunc(func(cfg *clientConfig) {
		cfg.logger = logger
	})
}

func (cfg *clientConfig) defaults() {
	if cfg.chunkSize <= 0 {
		cfg.chunkSize = chunker.DefaultChunkSize
	}
	if cfg.chunkOverlap <= 0 {
		cfg.chunkOverlap = chunker.DefaultOverlap
	}
	if cfg.embedBatchSize <= 0 {
		cfg.embedBatchSize = ingest.DefaultEmbedBatchSize
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
}
