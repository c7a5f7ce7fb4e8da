package svm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	x402 "github.com/x402core/x402"
)

func TestSvmServerHandlerParsePrice(t *testing.T) {
	h := NewSvmServerHandler()
	amount, err := h.ParsePrice(context.Background(), "$0.01 USDC", SolanaDevnetCAIP2)
	require.NoError(t, err)
	require.Equal(t, "10000", amount.Amount)
	require.Equal(t, NetworkConfigs[SolanaDevnetCAIP2].DefaultAsset.Address, amount.Asset)
}

func TestSvmServerHandlerEnhanceRequirementsCopiesFeePayer(t *testing.T) {
	h := NewSvmServerHandler()
	base := x402.PaymentRequirements{Network: SolanaDevnetCAIP2, Amount: "10000"}
	kind := x402.SupportedKind{Extra: map[string]interface{}{"feePayer": "facilitator-address"}}
	enhanced, err := h.EnhanceRequirements(context.Background(), base, kind, nil)
	require.NoError(t, err)
	require.Equal(t, NetworkConfigs[SolanaDevnetCAIP2].DefaultAsset.Address, enhanced.Asset)
	require.Equal(t, "facilitator-address", enhanced.Extra["feePayer"])
}

func TestSvmFacilitatorHandlerVerifyRejectsMalformedPayload(t *testing.T) {
	h := NewSvmFacilitatorHandler(nil)
	requirement := x402.PaymentRequirements{
		Network: SolanaDevnetCAIP2,
		Asset:   NetworkConfigs[SolanaDevnetCAIP2].DefaultAsset.Address,
		PayTo:   "11111111111111111111111111111111",
		Amount:  "10000",
	}
	payload := x402.PaymentPayload{
		Scheme:  SchemeExact,
		Network: SolanaDevnetCAIP2,
		Payload: map[string]interface{}{},
	}
	result, err := h.Verify(context.Background(), payload, requirement)
	require.NoError(t, err)
	require.False(t, result.IsValid)
	require.Equal(t, x402.InvalidPayload, result.InvalidReason)
}
