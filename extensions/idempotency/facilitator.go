package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	x402 "github.com/x402core/x402"
)

// IdempotentFacilitator wraps a Facilitator with settlement deduplication.
// Settle checks the store for a cached or in-flight result before
// delegating; Verify and Supported pass straight through, since
// verification is read-only and carries no risk of a duplicate
// transaction.
type IdempotentFacilitator struct {
	inner        *x402.Facilitator
	store        SettlementStore
	keyGenerator KeyGenerator
}

// Wrap returns an IdempotentFacilitator over facilitator. Default
// configuration caches successful settlements for 10 minutes in the
// core package's SettlementCache, keyed by a SHA256 hash of the payload.
func Wrap(facilitator *x402.Facilitator, opts ...Option) *IdempotentFacilitator {
	cfg := &config{
		ttl:          10 * time.Minute,
		keyGenerator: DefaultKeyGenerator,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	store := cfg.store
	if store == nil {
		store = x402.NewSettlementCache(cfg.ttl)
	}

	return &IdempotentFacilitator{
		inner:        facilitator,
		store:        store,
		keyGenerator: cfg.keyGenerator,
	}
}

// Settle deduplicates by payload before delegating to the wrapped
// facilitator. A cached successful result is returned without touching
// the handler; a request already in flight waits on it instead of
// racing it. Failed settlements are never cached, so a legitimate retry
// always gets a fresh attempt.
func (f *IdempotentFacilitator) Settle(ctx context.Context, payload x402.PaymentPayload, requirement x402.PaymentRequirements) (x402.SettleResponse, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return x402.SettleResponse{}, fmt.Errorf("idempotency: marshaling payload: %w", err)
	}
	key := f.keyGenerator(payloadBytes)

	status, cached, done := f.store.CheckAndMark(key)
	switch status {
	case x402.StatusCached:
		if cached != nil {
			return *cached, nil
		}
		return x402.SettleResponse{}, nil

	case x402.StatusInFlight:
		result, err := f.store.WaitForResult(ctx, key, done)
		if err != nil {
			return x402.SettleResponse{}, err
		}
		if result != nil {
			return *result, nil
		}
		// The in-flight attempt failed without caching a result; retry,
		// which claims a fresh in-flight slot.
		return f.Settle(ctx, payload, requirement)
	}

	result, err := f.inner.Settle(ctx, payload, requirement)
	if err != nil {
		f.store.Fail(key, done)
		return x402.SettleResponse{}, err
	}
	if !result.Success {
		f.store.Fail(key, done)
		return result, nil
	}

	f.store.Complete(key, &result, done)
	return result, nil
}

// Verify delegates to the wrapped facilitator.
func (f *IdempotentFacilitator) Verify(ctx context.Context, payload x402.PaymentPayload, requirement x402.PaymentRequirements) (x402.VerifyResponse, error) {
	return f.inner.Verify(ctx, payload, requirement)
}

// Supported delegates to the wrapped facilitator.
func (f *IdempotentFacilitator) Supported() x402.SupportedResponse {
	return f.inner.Supported()
}

// Inner returns the wrapped facilitator, for registering handlers,
// extensions, or hooks directly.
func (f *IdempotentFacilitator) Inner() *x402.Facilitator {
	return f.inner
}

// Register is a convenience method delegating to Inner().Register.
func (f *IdempotentFacilitator) Register(networkPattern string, handler x402.FacilitatorHandler) *IdempotentFacilitator {
	f.inner.Register(networkPattern, handler)
	return f
}

// RegisterExtension is a convenience method delegating to
// Inner().RegisterExtension.
func (f *IdempotentFacilitator) RegisterExtension(id string) *IdempotentFacilitator {
	f.inner.RegisterExtension(id)
	return f
}

func (f *IdempotentFacilitator) OnBeforeVerify(h x402.FacilitatorBeforeVerifyHook) *IdempotentFacilitator {
	f.inner.OnBeforeVerify(h)
	return f
}

func (f *IdempotentFacilitator) OnAfterVerify(h x402.FacilitatorAfterVerifyHook) *IdempotentFacilitator {
	f.inner.OnAfterVerify(h)
	return f
}

func (f *IdempotentFacilitator) OnVerifyFailure(h x402.FacilitatorOnVerifyFailureHook) *IdempotentFacilitator {
	f.inner.OnVerifyFailure(h)
	return f
}

func (f *IdempotentFacilitator) OnBeforeSettle(h x402.FacilitatorBeforeSettleHook) *IdempotentFacilitator {
	f.inner.OnBeforeSettle(h)
	return f
}

func (f *IdempotentFacilitator) OnAfterSettle(h x402.FacilitatorAfterSettleHook) *IdempotentFacilitator {
	f.inner.OnAfterSettle(h)
	return f
}

func (f *IdempotentFacilitator) OnSettleFailure(h x402.FacilitatorOnSettleFailureHook) *IdempotentFacilitator {
	f.inner.OnSettleFailure(h)
	return f
}
