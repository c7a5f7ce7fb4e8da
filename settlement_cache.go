package x402

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"
)

// SettlementCache enforces at-most-one successful settlement per validated
// payment authorization by caching successful settlement responses and
// tracking in-flight requests. This prevents duplicate transaction
// submissions when a client retries after a timeout or a network failure.
// Callers that also want to detect a *conflicting* reuse of the same key
// (the same client-chosen identifier attached to a different payload) can
// record a fingerprint alongside the cached result with
// CompleteWithFingerprint and compare later arrivals with CheckReplay;
// extensions/paymentidentifier does exactly this with its payment
// identifier as key and PayloadFingerprint as fingerprint.
type SettlementCache struct {
	mu           sync.Mutex
	results      map[string]*SettleResponse
	expiry       map[string]time.Time
	inFlight     map[string]chan struct{}
	fingerprints map[string]string
	ttl          time.Duration
}

// NewSettlementCache creates a new settlement cache with the specified TTL.
func NewSettlementCache(ttl time.Duration) *SettlementCache {
	return &SettlementCache{
		results:      make(map[string]*SettleResponse),
		expiry:       make(map[string]time.Time),
		inFlight:     make(map[string]chan struct{}),
		fingerprints: make(map[string]string),
		ttl:          ttl,
	}
}

// GenerateSettlementKey creates a unique key from payment payload bytes.
// Uses SHA256 hash of the full payload which includes the authorization
// signature and nonce, ensuring uniqueness per payment attempt.
func GenerateSettlementKey(payloadBytes []byte) string {
	hash := sha256.Sum256(payloadBytes)
	return hex.EncodeToString(hash[:])
}

// GenerateSettlementKeyFor hashes payload's canonical JSON form, for
// callers that hold a decoded PaymentPayload rather than raw header bytes.
func GenerateSettlementKeyFor(payload PaymentPayload) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return GenerateSettlementKey(b), nil
}

// SettlementStatus represents the result of checking the cache.
type SettlementStatus int

const (
	// StatusNotFound means no cached result and no in-flight request.
	StatusNotFound SettlementStatus = iota
	// StatusCached means a cached result was found.
	StatusCached
	// StatusInFlight means another request is currently processing this settlement.
	StatusInFlight
)

// CheckAndMark atomically checks the cache and marks the key as in-flight if needed.
// Returns:
// - StatusCached + result if a cached result exists
// - StatusInFlight + wait channel if another request is processing
// - StatusNotFound + done channel if this request should proceed (now marked in-flight)
func (c *SettlementCache) CheckAndMark(key string) (SettlementStatus, *SettleResponse, chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Check for cached result first
	if expiry, exists := c.expiry[key]; exists {
		if time.Now().Before(expiry) {
			if result, ok := c.results[key]; ok {
				return StatusCached, result, nil
			}
		}
		// Expired - clean it up
		delete(c.results, key)
		delete(c.expiry, key)
	}

	// Check if in-flight
	if done, exists := c.inFlight[key]; exists {
		return StatusInFlight, nil, done
	}

	// Mark as in-flight
	done := make(chan struct{})
	c.inFlight[key] = done
	return StatusNotFound, nil, done
}

// WaitForResult waits for an in-flight request to complete, respecting context cancellation.
// Returns the cached result if available, or nil if the in-flight request failed.
func (c *SettlementCache) WaitForResult(ctx context.Context, key string, done chan struct{}) (*SettleResponse, error) {
	select {
	case <-done:
		// In-flight request completed, check for cached result
		return c.Get(key)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get retrieves a cached settlement response if it exists and hasn't expired.
// Returns the response and nil error if found, nil and nil otherwise.
func (c *SettlementCache) Get(key string) (*SettleResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiry, exists := c.expiry[key]
	if !exists {
		return nil, nil
	}

	if time.Now().After(expiry) {
		// Expired - clean it up
		delete(c.results, key)
		delete(c.expiry, key)
		return nil, nil
	}

	return c.results[key], nil
}

// Complete marks a settlement as complete, caches the response,
// and signals any waiting goroutines.
func (c *SettlementCache) Complete(key string, response *SettleResponse, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Cache the result
	c.results[key] = response
	c.expiry[key] = time.Now().Add(c.ttl)

	// Remove from in-flight
	delete(c.inFlight, key)

	// Signal waiters
	close(done)

	// Lazy cleanup of expired entries
	c.cleanupExpiredLocked()
}

// Fail removes the in-flight marker without caching a result,
// allowing the settlement to be retried.
func (c *SettlementCache) Fail(key string, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Remove from in-flight without caching
	delete(c.inFlight, key)

	// Signal waiters (they'll retry since no result cached)
	close(done)
}

// CompleteWithFingerprint is Complete plus recording the fingerprint of the
// payload that produced response, so a later CheckReplay call against the
// same key can tell an identical replay from a conflicting one.
func (c *SettlementCache) CompleteWithFingerprint(key, fingerprint string, response *SettleResponse, done chan struct{}) {
	c.mu.Lock()
	c.fingerprints[key] = fingerprint
	c.mu.Unlock()
	c.Complete(key, response, done)
}

// CheckReplay compares fingerprint against whatever payload previously
// settled under key. Three outcomes:
//   - cached != nil: key already settled with this exact fingerprint, or
//     settled with no fingerprint recorded; the caller should grant access
//     without re-verifying or re-settling.
//   - conflict == true: key was previously settled with a *different*
//     fingerprint; the caller should reject the request as a conflicting
//     reuse of the same identifier.
//   - both zero values: key has no unexpired settlement to compare against.
func (c *SettlementCache) CheckReplay(key, fingerprint string) (cached *SettleResponse, conflict bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiry, exists := c.expiry[key]
	if !exists || time.Now().After(expiry) {
		return nil, false
	}
	stored, ok := c.fingerprints[key]
	if !ok {
		return c.results[key], false
	}
	if stored != fingerprint {
		return nil, true
	}
	return c.results[key], false
}

// cleanupExpiredLocked removes expired entries. Must be called with lock held.
func (c *SettlementCache) cleanupExpiredLocked() {
	now := time.Now()
	for key, expiry := range c.expiry {
		if now.After(expiry) {
			delete(c.results, key)
			delete(c.expiry, key)
			delete(c.fingerprints, key)
		}
	}
}
