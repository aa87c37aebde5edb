package domain

import "context"

// Cache defines the interface for caching sealed outputs
type Cache interface {
	// Get retrieves a sealed document from the cache by key
	Get(ctx context.Context, key string) (*SealedDocument, bool)

	// Set stores a sealed document in the cache with the given key
	Set(ctx context.Context, key string, value *SealedDocument) error

	// Delete removes a value from the cache by key
	Delete(ctx context.Context, key string) error

	// CleanExpired removes all expired items from the cache
	CleanExpired(ctx context.Context) error
}
