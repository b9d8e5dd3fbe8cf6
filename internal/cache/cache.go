// Package cache provides an ephemeral Redis-backed cache for search
// responses. It is strictly a read-through shortcut: a miss or any Redis
// failure falls back to the backend, and entries expire on their own.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/divar-ir/sourcegraph-mcp/internal/sourcegraph"
)

// ErrMiss is returned when no entry exists for the key.
var ErrMiss = errors.New("cache miss")

// Store caches formatted search results keyed by (query, limit).
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for cached entries.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a store connected to the given Redis address.
func New(address string, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{Addr: address})
	return NewFromClient(client, opts...)
}

// NewFromClient creates a store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "sourcegraph-mcp:search:",
		ttl:    time.Minute,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(query string, limit int) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%d:%s", limit, query))
	return s.prefix + hex.EncodeToString(sum[:])
}

// Get returns the cached results for the query, or ErrMiss.
func (s *Store) Get(ctx context.Context, query string, limit int) ([]sourcegraph.FormattedResult, error) {
	val, err := s.client.Get(ctx, s.key(query, limit)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var results []sourcegraph.FormattedResult
	if err := json.Unmarshal([]byte(val), &results); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached results: %w", err)
	}
	return results, nil
}

// Set stores the results for the query with the configured TTL.
func (s *Store) Set(ctx context.Context, query string, limit int, results []sourcegraph.FormattedResult) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	if err := s.client.Set(ctx, s.key(query, limit), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
