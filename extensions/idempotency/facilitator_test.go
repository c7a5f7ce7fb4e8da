package idempotency

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	x402 "github.com/x402core/x402"
)

type stubHandler struct {
	scheme x402.Scheme
	calls  int32
	delay  time.Duration
	result x402.SettleResponse
	err    error
}

func (h *stubHandler) Scheme() x402.Scheme { return h.scheme }

func (h *stubHandler) Verify(ctx context.Context, payload x402.PaymentPayload, requirement x402.PaymentRequirements) (x402.VerifyResponse, error) {
	return x402.VerifyResponse{IsValid: true}, nil
}

func (h *stubHandler) Settle(ctx context.Context, payload x402.PaymentPayload, requirement x402.PaymentRequirements) (x402.SettleResponse, error) {
	atomic.AddInt32(&h.calls, 1)
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	return h.result, h.err
}

func testPayload() x402.PaymentPayload {
	return x402.PaymentPayload{
		Scheme:  "exact",
		Network: "eip155:8453",
		Payload: map[string]interface{}{"nonce": "fixed-nonce"},
	}
}

func testRequirement() x402.PaymentRequirements {
	return x402.PaymentRequirements{Scheme: "exact", Network: "eip155:8453"}
}

func TestIdempotentFacilitatorCachesSuccessfulSettlement(t *testing.T) {
	handler := &stubHandler{scheme: "exact", result: x402.SettleResponse{Success: true, Transaction: "0xabc"}}
	base := x402.NewFacilitator().Register("eip155:*", handler)
	wrapped := Wrap(base, WithTTL(time.Minute))

	result1, err := wrapped.Settle(context.Background(), testPayload(), testRequirement())
	require.NoError(t, err)
	require.True(t, result1.Success)

	result2, err := wrapped.Settle(context.Background(), testPayload(), testRequirement())
	require.NoError(t, err)
	require.Equal(t, result1.Transaction, result2.Transaction)

	require.EqualValues(t, 1, handler.calls)
}

func TestIdempotentFacilitatorDoesNotCacheFailure(t *testing.T) {
	handler := &stubHandler{scheme: "exact", result: x402.SettleResponse{Success: false, ErrorReason: x402.TransactionFailed}}
	base := x402.NewFacilitator().Register("eip155:*", handler)
	wrapped := Wrap(base)

	_, err := wrapped.Settle(context.Background(), testPayload(), testRequirement())
	require.NoError(t, err)
	_, err = wrapped.Settle(context.Background(), testPayload(), testRequirement())
	require.NoError(t, err)

	require.EqualValues(t, 2, handler.calls)
}

func TestIdempotentFacilitatorDeduplicatesConcurrentSettles(t *testing.T) {
	handler := &stubHandler{scheme: "exact", delay: 20 * time.Millisecond, result: x402.SettleResponse{Success: true, Transaction: "0xdef"}}
	base := x402.NewFacilitator().Register("eip155:*", handler)
	wrapped := Wrap(base)

	var wg sync.WaitGroup
	results := make([]x402.SettleResponse, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := wrapped.Settle(context.Background(), testPayload(), testRequirement())
			require.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		require.Equal(t, "0xdef", r.Transaction)
	}
	require.EqualValues(t, 1, handler.calls)
}

func TestIdempotentFacilitatorVerifyDelegates(t *testing.T) {
	handler := &stubHandler{scheme: "exact"}
	base := x402.NewFacilitator().Register("eip155:*", handler)
	wrapped := Wrap(base)

	result, err := wrapped.Verify(context.Background(), testPayload(), testRequirement())
	require.NoError(t, err)
	require.True(t, result.IsValid)
}

func TestIdempotentFacilitatorCustomKeyGenerator(t *testing.T) {
	handler := &stubHandler{scheme: "exact", result: x402.SettleResponse{Success: true, Transaction: "0x1"}}
	base := x402.NewFacilitator().Register("eip155:*", handler)
	calls := 0
	wrapped := Wrap(base, WithKeyGenerator(func(payloadBytes []byte) string {
		calls++
		return "fixed-key"
	}))

	_, err := wrapped.Settle(context.Background(), testPayload(), testRequirement())
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestIdempotentFacilitatorRegisterChaining(t *testing.T) {
	base := x402.NewFacilitator()
	wrapped := Wrap(base)

	result := wrapped.RegisterExtension("payment-identifier")
	require.Same(t, wrapped, result)
	require.Contains(t, wrapped.Supported().Extensions, "payment-identifier")
}
