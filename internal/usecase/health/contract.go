package health

import "context"

// StoreChecker checks vector store availability.
type StoreChecker interface {
	IsConnected() bool
}

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
