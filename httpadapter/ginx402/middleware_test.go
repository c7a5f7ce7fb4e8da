package ginx402

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	x402 "github.com/x402core/x402"
	"github.com/x402core/x402/httpadapter"
)

type stubServerHandler struct{ scheme x402.Scheme }

func (h *stubServerHandler) Scheme() x402.Scheme { return h.scheme }

func (h *stubServerHandler) ParsePrice(ctx context.Context, price string, network x402.Network) (x402.AssetAmount, error) {
	return x402.AssetAmount{Amount: "1000000", Asset: "USDC"}, nil
}

func (h *stubServerHandler) EnhanceRequirements(ctx context.Context, base x402.PaymentRequirements, kind x402.SupportedKind, extensionKeys []string) (x402.PaymentRequirements, error) {
	return base, nil
}

type stubFacilitatorClient struct {
	verify func(context.Context, x402.PaymentPayload, x402.PaymentRequirements) (x402.VerifyResponse, error)
	settle func(context.Context, x402.PaymentPayload, x402.PaymentRequirements) (x402.SettleResponse, error)
}

func (c *stubFacilitatorClient) Verify(ctx context.Context, p x402.PaymentPayload, r x402.PaymentRequirements) (x402.VerifyResponse, error) {
	return c.verify(ctx, p, r)
}

func (c *stubFacilitatorClient) Settle(ctx context.Context, p x402.PaymentPayload, r x402.PaymentRequirements) (x402.SettleResponse, error) {
	return c.settle(ctx, p, r)
}

func (c *stubFacilitatorClient) GetSupported(ctx context.Context) (x402.SupportedResponse, error) {
	return x402.SupportedResponse{Kinds: []x402.SupportedKind{{X402Version: 2, Scheme: "exact", Network: "eip155:84532"}}}, nil
}

func testBinding() x402.RouteBinding {
	return x402.RouteBinding{
		Method: "GET",
		Path:   "/paid",
		Accepts: x402.RouteAccepts{Static: []x402.RouteAcceptEntry{
			{Scheme: "exact", Network: "eip155:84532", PayTo: "0xrecipient", Price: "$0.01"},
		}},
	}
}

func newTestServer(t *testing.T, client x402.FacilitatorClient) *x402.ResourceServer {
	t.Helper()
	s := x402.NewResourceServer(
		x402.WithSchemeServer("eip155:*", &stubServerHandler{scheme: "exact"}),
		x402.WithFacilitatorClient(client),
	)
	require.NoError(t, s.Initialize(context.Background()))
	s.RegisterRoute(testBinding())
	return s
}

func newRouter(t *testing.T, server *x402.ResourceServer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/paid", Middleware(Config{Server: server, Binding: testBinding()}), func(c *gin.Context) {
		c.String(http.StatusOK, "secret data")
	})
	return r
}

func TestMiddlewareReturns402WithoutPaymentHeader(t *testing.T) {
	client := &stubFacilitatorClient{}
	server := newTestServer(t, client)
	router := newRouter(t, server)

	req := httptest.NewRequest("GET", "/paid", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusPaymentRequired, w.Code)
}

func TestMiddlewarePassesThroughOnVerifiedPayment(t *testing.T) {
	client := &stubFacilitatorClient{
		verify: func(ctx context.Context, p x402.PaymentPayload, r x402.PaymentRequirements) (x402.VerifyResponse, error) {
			return x402.VerifyResponse{IsValid: true, Payer: "0xpayer"}, nil
		},
		settle: func(ctx context.Context, p x402.PaymentPayload, r x402.PaymentRequirements) (x402.SettleResponse, error) {
			return x402.SettleResponse{Success: true, Transaction: "0xtx", Network: r.Network}, nil
		},
	}
	server := newTestServer(t, client)
	router := newRouter(t, server)

	payload := x402.PaymentPayload{X402Version: 2, Scheme: "exact", Network: "eip155:84532", Payload: map[string]interface{}{"signature": "0xsig"}}
	header, err := httpadapter.EncodePaymentHeader(payload)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/paid", nil)
	req.Header.Set("X-PAYMENT", header)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "secret data", w.Body.String())
	require.NotEmpty(t, w.Header().Get("X-PAYMENT-RESPONSE"))
}

func TestMiddlewareRejectsFailedSettlement(t *testing.T) {
	client := &stubFacilitatorClient{
		verify: func(ctx context.Context, p x402.PaymentPayload, r x402.PaymentRequirements) (x402.VerifyResponse, error) {
			return x402.VerifyResponse{IsValid: true, Payer: "0xpayer"}, nil
		},
		settle: func(ctx context.Context, p x402.PaymentPayload, r x402.PaymentRequirements) (x402.SettleResponse, error) {
			return x402.SettleResponse{Success: false, ErrorReason: "insufficient_funds"}, nil
		},
	}
	server := newTestServer(t, client)
	router := newRouter(t, server)

	payload := x402.PaymentPayload{X402Version: 2, Scheme: "exact", Network: "eip155:84532", Payload: map[string]interface{}{"signature": "0xsig"}}
	header, err := httpadapter.EncodePaymentHeader(payload)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/paid", nil)
	req.Header.Set("X-PAYMENT", header)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusPaymentRequired, w.Code)
}
