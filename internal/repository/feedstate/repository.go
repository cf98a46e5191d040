// Package feedstate persists the feed registry as a single JSON value so any
// instance can recover the full schedule on startup.
package feedstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/norma-cloud/knowdex/internal/db"
	"github.com/norma-cloud/knowdex/internal/domain/feed"
)

// DefaultKey is the key the registry state lives under.
const DefaultKey = "knowdex:feeds:state"

// Repository stores feed.State as one JSON document in the key-value store.
type Repository struct {
	kv  db.KVStore
	key string
}

// New creates a feed state repository. An empty key uses DefaultKey.
func New(kv db.KVStore, key string) *Repository {
	if key == "" {
		key = DefaultKey
	}
	return &Repository{kv: kv, key: key}
}

// Load reads the persisted state. A missing key yields (nil, nil) so a fresh
// deployment starts with an empty registry.
func (r *Repository) Load(ctx context.Context) (*feed.State, error) {
	raw, err := r.kv.Get(ctx, r.key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load feed state: %w", err)
	}

	var state feed.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode feed state: %w", err)
	}
	return &state, nil
}

// Save writes the full state. Dates serialize as RFC 3339 via time.Time's
// JSON encoding, so Save then Load reproduces them exactly.
func (r *Repository) Save(ctx context.Context, state *feed.State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode feed state: %w", err)
	}
	if err := r.kv.Set(ctx, r.key, raw); err != nil {
		return fmt.Errorf("save feed state: %w", err)
	}
	return nil
}
