package paymentidentifier

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	x402 "github.com/x402core/x402"
)

func payloadWithIdentifier(id, network string) x402.PaymentPayload {
	return x402.PaymentPayload{
		X402Version: 2,
		Scheme:      "exact",
		Network:     x402.Network(network),
		Extensions: map[string]interface{}{
			PAYMENT_IDENTIFIER: PaymentIdentifierExtension{Info: PaymentIdentifierInfo{Required: true, ID: id}},
		},
	}
}

func TestReplayGuardPassesThroughUnseenIdentifier(t *testing.T) {
	guard := NewReplayGuard(time.Minute)
	payload := payloadWithIdentifier("pay_abcdefabcdefabcdef", "eip155:8453")

	result, err := guard.ProtectedRequestHook()(x402.ProtectedRequestContext{
		Ctx:     context.Background(),
		Payload: &payload,
	})
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestReplayGuardPassesThroughWithoutIdentifier(t *testing.T) {
	guard := NewReplayGuard(time.Minute)
	payload := x402.PaymentPayload{X402Version: 2, Scheme: "exact", Network: "eip155:8453"}

	result, err := guard.ProtectedRequestHook()(x402.ProtectedRequestContext{
		Ctx:     context.Background(),
		Payload: &payload,
	})
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestReplayGuardGrantsAccessForIdenticalReplay(t *testing.T) {
	guard := NewReplayGuard(time.Minute)
	payload := payloadWithIdentifier("pay_abcdefabcdefabcdef", "eip155:8453")
	settled := x402.SettleResponse{Success: true, Transaction: "0xsettled", Network: "eip155:8453"}

	err := guard.AfterSettleHook()(x402.ServerSettleResultContext{
		ServerSettleContext: x402.ServerSettleContext{Ctx: context.Background(), Payload: payload},
		Result:              settled,
	})
	require.NoError(t, err)

	result, err := guard.ProtectedRequestHook()(x402.ProtectedRequestContext{
		Ctx:     context.Background(),
		Payload: &payload,
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	require.True(t, result.GrantAccess)
	require.Equal(t, &settled, result.CachedSettleResponse)
}

func TestReplayGuardConflictsOnDifferentPayload(t *testing.T) {
	guard := NewReplayGuard(time.Minute)
	original := payloadWithIdentifier("pay_abcdefabcdefabcdef", "eip155:8453")
	settled := x402.SettleResponse{Success: true, Transaction: "0xsettled", Network: "eip155:8453"}

	err := guard.AfterSettleHook()(x402.ServerSettleResultContext{
		ServerSettleContext: x402.ServerSettleContext{Ctx: context.Background(), Payload: original},
		Result:              settled,
	})
	require.NoError(t, err)

	replayed := payloadWithIdentifier("pay_abcdefabcdefabcdef", "eip155:84532")
	result, err := guard.ProtectedRequestHook()(x402.ProtectedRequestContext{
		Ctx:     context.Background(),
		Payload: &replayed,
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	require.True(t, result.Conflict)
	require.NotEmpty(t, result.Reason)
}

func TestReplayGuardIgnoresFailedSettlement(t *testing.T) {
	guard := NewReplayGuard(time.Minute)
	payload := payloadWithIdentifier("pay_abcdefabcdefabcdef", "eip155:8453")

	err := guard.AfterSettleHook()(x402.ServerSettleResultContext{
		ServerSettleContext: x402.ServerSettleContext{Ctx: context.Background(), Payload: payload},
		Result:              x402.SettleResponse{Success: false},
	})
	require.NoError(t, err)

	result, err := guard.ProtectedRequestHook()(x402.ProtectedRequestContext{
		Ctx:     context.Background(),
		Payload: &payload,
	})
	require.NoError(t, err)
	require.Nil(t, result)
}
