package x402

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type mockServerHandler struct {
	scheme Scheme
}

func (m *mockServerHandler) Scheme() Scheme { return m.scheme }

func (m *mockServerHandler) ParsePrice(ctx context.Context, price string, network Network) (AssetAmount, error) {
	return AssetAmount{Amount: "1000000", Asset: "USDC"}, nil
}

func (m *mockServerHandler) EnhanceRequirements(ctx context.Context, base PaymentRequirements, kind SupportedKind, extensionKeys []string) (PaymentRequirements, error) {
	return base, nil
}

func testRouteBinding() RouteBinding {
	return RouteBinding{
		Method: "GET",
		Path:   "/paid",
		Accepts: RouteAccepts{Static: []RouteAcceptEntry{
			{Scheme: "exact", Network: "eip155:84532", PayTo: "0xrecipient", Price: "$0.01"},
		}},
	}
}

func newTestServer(t *testing.T, client FacilitatorClient) *ResourceServer {
	t.Helper()
	s := NewResourceServer(
		WithSchemeServer("eip155:*", &mockServerHandler{scheme: "exact"}),
		WithFacilitatorClient(client),
	)
	require.NoError(t, s.Initialize(context.Background()))
	return s
}

func TestResourceServerRegisterRouteAndFindRoute(t *testing.T) {
	f := NewFacilitator()
	f.Register("eip155:84532", &mockFacilitatorHandler{scheme: "exact"})
	s := newTestServer(t, NewLocalFacilitatorClient(f))
	s.RegisterRoute(testRouteBinding())

	binding, ok := s.FindRoute("GET", "/paid")
	require.True(t, ok)
	require.Equal(t, "/paid", binding.Path)

	_, ok = s.FindRoute("GET", "/missing")
	require.False(t, ok)
}

func TestResourceServerFindRouteWildcard(t *testing.T) {
	f := NewFacilitator()
	f.Register("eip155:84532", &mockFacilitatorHandler{scheme: "exact"})
	s := newTestServer(t, NewLocalFacilitatorClient(f))
	s.RegisterRoute(RouteBinding{Method: "GET", Path: "/files/*", Accepts: testRouteBinding().Accepts})

	binding, ok := s.FindRoute("GET", "/files/report.pdf")
	require.True(t, ok)
	require.Equal(t, "/files/*", binding.Path)
}

func TestResourceServerInitializeFailsWithoutFacilitators(t *testing.T) {
	s := NewResourceServer(WithSchemeServer("eip155:*", &mockServerHandler{scheme: "exact"}))
	err := s.Initialize(context.Background())
	require.Error(t, err)
}

func TestResourceServerBuildPaymentRequirements(t *testing.T) {
	f := NewFacilitator()
	f.Register("eip155:84532", &mockFacilitatorHandler{scheme: "exact"})
	s := newTestServer(t, NewLocalFacilitatorClient(f))

	reqCtx := &RequestContext{Method: "GET", Path: "/paid"}
	accepts, err := s.BuildPaymentRequirements(context.Background(), testRouteBinding(), reqCtx)
	require.NoError(t, err)
	require.Len(t, accepts, 1)
	require.Equal(t, "1000000", accepts[0].Amount)
	require.Equal(t, "0xrecipient", accepts[0].PayTo)
}

func TestResourceServerProcessPaymentRequestNoPayment(t *testing.T) {
	f := NewFacilitator()
	f.Register("eip155:84532", &mockFacilitatorHandler{scheme: "exact"})
	s := newTestServer(t, NewLocalFacilitatorClient(f))

	result, err := s.ProcessPaymentRequest(context.Background(), testRouteBinding(), &RequestContext{Method: "GET", Path: "/paid"}, nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeNoPayment, result.Outcome)
	require.NotNil(t, result.PaymentRequired)
	require.Len(t, result.PaymentRequired.Accepts, 1)
}

func TestResourceServerProcessPaymentRequestVerified(t *testing.T) {
	f := NewFacilitator()
	f.Register("eip155:84532", &mockFacilitatorHandler{scheme: "exact"})
	s := newTestServer(t, NewLocalFacilitatorClient(f))

	payload := &PaymentPayload{X402Version: 2, Scheme: "exact", Network: "eip155:84532", Payload: map[string]interface{}{"signature": "0xsig"}}
	result, err := s.ProcessPaymentRequest(context.Background(), testRouteBinding(), &RequestContext{Method: "GET", Path: "/paid"}, payload)
	require.NoError(t, err)
	require.Equal(t, OutcomePaymentVerified, result.Outcome)
	require.NotNil(t, result.Requirement)
	require.Equal(t, "0xrecipient", result.Requirement.PayTo)
}

func TestResourceServerProcessPaymentRequestInvalidScheme(t *testing.T) {
	f := NewFacilitator()
	f.Register("eip155:84532", &mockFacilitatorHandler{scheme: "exact"})
	s := newTestServer(t, NewLocalFacilitatorClient(f))

	payload := &PaymentPayload{X402Version: 2, Scheme: "exact", Network: "eip155:1"}
	result, err := s.ProcessPaymentRequest(context.Background(), testRouteBinding(), &RequestContext{Method: "GET", Path: "/paid"}, payload)
	require.NoError(t, err)
	require.Equal(t, OutcomePaymentError, result.Outcome)
}

func TestResourceServerProcessPaymentRequestVerifyFails(t *testing.T) {
	f := NewFacilitator()
	f.Register("eip155:84532", &mockFacilitatorHandler{
		scheme: "exact",
		verify: func(ctx context.Context, p PaymentPayload, r PaymentRequirements) (VerifyResponse, error) {
			return VerifyResponse{IsValid: false, InvalidReason: InsufficientAmount}, nil
		},
	})
	s := newTestServer(t, NewLocalFacilitatorClient(f))

	payload := &PaymentPayload{X402Version: 2, Scheme: "exact", Network: "eip155:84532"}
	result, err := s.ProcessPaymentRequest(context.Background(), testRouteBinding(), &RequestContext{Method: "GET", Path: "/paid"}, payload)
	require.NoError(t, err)
	require.Equal(t, OutcomePaymentError, result.Outcome)
	require.Equal(t, InsufficientAmount, result.Verification.InvalidReason)
}

func TestResourceServerOnProtectedRequestAborts(t *testing.T) {
	f := NewFacilitator()
	f.Register("eip155:84532", &mockFacilitatorHandler{scheme: "exact"})
	s := newTestServer(t, NewLocalFacilitatorClient(f))
	s.OnProtectedRequest(func(ProtectedRequestContext) (*ProtectedRequestHookResult, error) {
		return &ProtectedRequestHookResult{Abort: true, Reason: "rate_limited"}, nil
	})

	result, err := s.ProcessPaymentRequest(context.Background(), testRouteBinding(), &RequestContext{Method: "GET", Path: "/paid"}, nil)
	require.NoError(t, err)
	require.Equal(t, OutcomePaymentError, result.Outcome)
	require.Equal(t, "rate_limited", result.PaymentRequired.Error)
}

func TestResourceServerOnProtectedRequestGrantsAccess(t *testing.T) {
	f := NewFacilitator()
	f.Register("eip155:84532", &mockFacilitatorHandler{scheme: "exact"})
	s := newTestServer(t, NewLocalFacilitatorClient(f))
	cached := &SettleResponse{Success: true, Transaction: "0xcached", Network: "eip155:84532"}
	s.OnProtectedRequest(func(ProtectedRequestContext) (*ProtectedRequestHookResult, error) {
		return &ProtectedRequestHookResult{GrantAccess: true, CachedSettleResponse: cached}, nil
	})

	result, err := s.ProcessPaymentRequest(context.Background(), testRouteBinding(), &RequestContext{Method: "GET", Path: "/paid"}, nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeAccessGranted, result.Outcome)
	require.Equal(t, cached, result.CachedSettleResponse)
}

func TestResourceServerOnProtectedRequestConflict(t *testing.T) {
	f := NewFacilitator()
	f.Register("eip155:84532", &mockFacilitatorHandler{scheme: "exact"})
	s := newTestServer(t, NewLocalFacilitatorClient(f))
	s.OnProtectedRequest(func(ProtectedRequestContext) (*ProtectedRequestHookResult, error) {
		return &ProtectedRequestHookResult{Conflict: true, Reason: "payment_identifier_conflict"}, nil
	})

	result, err := s.ProcessPaymentRequest(context.Background(), testRouteBinding(), &RequestContext{Method: "GET", Path: "/paid"}, nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeConflict, result.Outcome)
	require.Equal(t, "payment_identifier_conflict", result.ConflictReason)
}

func TestResourceServerSettlePayment(t *testing.T) {
	f := NewFacilitator()
	f.Register("eip155:84532", &mockFacilitatorHandler{scheme: "exact"})
	s := newTestServer(t, NewLocalFacilitatorClient(f))

	req := testRequirement()
	payload := PaymentPayload{X402Version: 2, Scheme: "exact", Network: "eip155:84532"}
	resp, err := s.SettlePayment(context.Background(), payload, req)
	require.NoError(t, err)
	require.True(t, resp.Success)
}

func TestResourceServerSelectFacilitatorPrefersExactMatch(t *testing.T) {
	primary := NewFacilitator()
	primary.Register("eip155:84532", &mockFacilitatorHandler{scheme: "exact"})
	secondary := NewFacilitator()
	secondary.Register("eip155:*", &mockFacilitatorHandler{scheme: "exact"})

	s := NewResourceServer(
		WithSchemeServer("eip155:*", &mockServerHandler{scheme: "exact"}),
		WithFacilitatorClient(NewLocalFacilitatorClient(secondary)),
		WithFacilitatorClient(NewLocalFacilitatorClient(primary)),
	)
	require.NoError(t, s.Initialize(context.Background()))

	client, ok := s.SelectFacilitator("exact", "eip155:84532")
	require.True(t, ok)
	require.Same(t, primary, client.(*LocalFacilitatorClient).Facilitator)
}
