package x402

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type mockClientHandler struct {
	scheme Scheme
	create func(ctx context.Context, version int, requirement PaymentRequirements) (PaymentPayload, error)
}

func (m *mockClientHandler) Scheme() Scheme { return m.scheme }

func (m *mockClientHandler) CreatePaymentPayload(ctx context.Context, version int, requirement PaymentRequirements) (PaymentPayload, error) {
	if m.create != nil {
		return m.create(ctx, version, requirement)
	}
	return PaymentPayload{X402Version: version, Scheme: requirement.Scheme, Network: requirement.Network, Payload: map[string]interface{}{"signature": "0xsig"}}, nil
}

func testPaymentRequired(accepts ...PaymentRequirements) PaymentRequired {
	return PaymentRequired{X402Version: 2, Accepts: accepts}
}

func TestPaymentClientCanPay(t *testing.T) {
	c := NewPaymentClient()
	c.Register("eip155:84532", &mockClientHandler{scheme: "exact"})

	require.True(t, c.CanPay(testPaymentRequired(PaymentRequirements{Scheme: "exact", Network: "eip155:84532"})))
	require.False(t, c.CanPay(testPaymentRequired(PaymentRequirements{Scheme: "exact", Network: "eip155:1"})))
}

func TestPaymentClientSelectPaymentRequirementsFiltersUnsupported(t *testing.T) {
	c := NewPaymentClient()
	c.Register("eip155:84532", &mockClientHandler{scheme: "exact"})

	required := testPaymentRequired(
		PaymentRequirements{Scheme: "exact", Network: "solana:mainnet"},
		PaymentRequirements{Scheme: "exact", Network: "eip155:84532"},
	)
	selected, err := c.SelectPaymentRequirements(required)
	require.NoError(t, err)
	require.Equal(t, Network("eip155:84532"), selected.Network)
}

func TestPaymentClientSelectPaymentRequirementsNoSupportedScheme(t *testing.T) {
	c := NewPaymentClient()
	_, err := c.SelectPaymentRequirements(testPaymentRequired(PaymentRequirements{Scheme: "exact", Network: "eip155:1"}))
	require.Error(t, err)
}

func TestPaymentClientPolicyFiltersCandidates(t *testing.T) {
	c := NewPaymentClient()
	c.Register("eip155:84532", &mockClientHandler{scheme: "exact"})
	c.Register("solana:mainnet", &mockClientHandler{scheme: "exact"})
	c.RegisterPolicy(func(version int, candidates []PaymentRequirements) []PaymentRequirements {
		var out []PaymentRequirements
		for _, c := range candidates {
			if c.Network.Namespace() == "solana" {
				out = append(out, c)
			}
		}
		return out
	})

	required := testPaymentRequired(
		PaymentRequirements{Scheme: "exact", Network: "eip155:84532"},
		PaymentRequirements{Scheme: "exact", Network: "solana:mainnet"},
	)
	selected, err := c.SelectPaymentRequirements(required)
	require.NoError(t, err)
	require.Equal(t, Network("solana:mainnet"), selected.Network)
}

func TestPaymentClientCreatePaymentForRequiredHappyPath(t *testing.T) {
	ctx := context.Background()
	c := NewPaymentClient()
	c.Register("eip155:84532", &mockClientHandler{scheme: "exact"})

	required := testPaymentRequired(PaymentRequirements{Scheme: "exact", Network: "eip155:84532", Amount: "1000000"})
	payload, err := c.CreatePaymentForRequired(ctx, required)
	require.NoError(t, err)
	require.Equal(t, Scheme("exact"), payload.Scheme)
	require.Equal(t, Network("eip155:84532"), payload.Network)
}

func TestPaymentClientBeforeHookAborts(t *testing.T) {
	ctx := context.Background()
	c := NewPaymentClient()
	c.Register("eip155:84532", &mockClientHandler{scheme: "exact"})
	c.OnBeforePaymentCreation(func(PaymentCreationContext) (*PaymentCreationHookResult, error) {
		return &PaymentCreationHookResult{Abort: true, Reason: "spend limit exceeded"}, nil
	})

	required := testPaymentRequired(PaymentRequirements{Scheme: "exact", Network: "eip155:84532"})
	_, err := c.CreatePaymentForRequired(ctx, required)
	require.Error(t, err)
}

func TestPaymentClientFailureHookRecovers(t *testing.T) {
	ctx := context.Background()
	c := NewPaymentClient()
	c.Register("eip155:84532", &mockClientHandler{
		scheme: "exact",
		create: func(ctx context.Context, version int, requirement PaymentRequirements) (PaymentPayload, error) {
			return PaymentPayload{}, assertErr
		},
	})
	c.OnPaymentCreationFailure(func(PaymentCreationFailureContext) (*PaymentCreationFailureHookResult, error) {
		return &PaymentCreationFailureHookResult{Recovered: true, Payload: PaymentPayload{Scheme: "exact", Network: "eip155:84532"}}, nil
	})

	required := testPaymentRequired(PaymentRequirements{Scheme: "exact", Network: "eip155:84532"})
	payload, err := c.CreatePaymentForRequired(ctx, required)
	require.NoError(t, err)
	require.Equal(t, Network("eip155:84532"), payload.Network)
}

func TestPaymentClientAfterHookRuns(t *testing.T) {
	ctx := context.Background()
	c := NewPaymentClient()
	c.Register("eip155:84532", &mockClientHandler{scheme: "exact"})

	var ran bool
	c.OnAfterPaymentCreation(func(PaymentCreatedContext) error {
		ran = true
		return nil
	})

	required := testPaymentRequired(PaymentRequirements{Scheme: "exact", Network: "eip155:84532"})
	_, err := c.CreatePaymentForRequired(ctx, required)
	require.NoError(t, err)
	require.True(t, ran)
}
