package idempotency

import "time"

// config holds the configuration for an IdempotentFacilitator.
type config struct {
	ttl          time.Duration
	store        SettlementStore
	keyGenerator KeyGenerator
}

// Option configures an IdempotentFacilitator.
type Option func(*config)

// WithTTL sets how long a successful settlement stays cached. Only
// applies to the default store; a store supplied via WithStore manages
// its own TTL.
//
// Default: 10 minutes.
func WithTTL(ttl time.Duration) Option {
	return func(c *config) { c.ttl = ttl }
}

// WithStore supplies a custom SettlementStore, for deployments that need
// deduplication shared across instances (Redis, a database) rather than
// the default in-process cache. WithTTL is ignored when this is set.
func WithStore(store SettlementStore) Option {
	return func(c *config) { c.store = store }
}

// WithKeyGenerator overrides how deduplication keys are derived from a
// payload's bytes. The default hashes with SHA256.
func WithKeyGenerator(gen KeyGenerator) Option {
	return func(c *config) { c.keyGenerator = gen }
}
