// Package idempotency provides settlement deduplication as an opt-in
// wrapper around a Facilitator, for deployments that want to protect
// against a client retrying Settle for the same payment authorization
// while the first attempt is still pending confirmation.
package idempotency

import (
	"context"

	x402 "github.com/x402core/x402"
)

// SettlementStore backs IdempotentFacilitator's deduplication. The core
// package's SettlementCache already implements this shape and is used as
// the default; a distributed deployment can supply its own (Redis, a
// database) via WithStore.
type SettlementStore interface {
	// CheckAndMark atomically checks for a cached result and, if none
	// exists and nothing is in flight, marks key as in-flight.
	CheckAndMark(key string) (x402.SettlementStatus, *x402.SettleResponse, chan struct{})

	// WaitForResult blocks on done until the in-flight settlement
	// identified by key completes or ctx is cancelled.
	WaitForResult(ctx context.Context, key string, done chan struct{}) (*x402.SettleResponse, error)

	// Complete caches response under key and releases waiters on done.
	Complete(key string, response *x402.SettleResponse, done chan struct{})

	// Fail releases waiters on done without caching a result, so a
	// subsequent attempt for key is free to retry.
	Fail(key string, done chan struct{})
}

var _ SettlementStore = (*x402.SettlementCache)(nil)

// KeyGenerator derives a deduplication key from a payment payload's
// canonical JSON bytes.
type KeyGenerator func(payloadBytes []byte) string

// DefaultKeyGenerator hashes payloadBytes with SHA256, relying on the
// payload's signature and nonce for per-attempt uniqueness.
func DefaultKeyGenerator(payloadBytes []byte) string {
	return x402.GenerateSettlementKey(payloadBytes)
}
