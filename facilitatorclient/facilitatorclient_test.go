package facilitatorclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	x402 "github.com/x402core/x402"
)

func TestClientVerify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/verify", r.URL.Path)
		var req verifyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "exact", string(req.PaymentPayload.Scheme))

		json.NewEncoder(w).Encode(x402.VerifyResponse{IsValid: true, Payer: "0xpayer"})
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL})
	result, err := client.Verify(context.Background(), x402.PaymentPayload{Scheme: "exact"}, x402.PaymentRequirements{})
	require.NoError(t, err)
	require.True(t, result.IsValid)
	require.Equal(t, "0xpayer", result.Payer)
}

func TestClientSettleError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("facilitator unavailable"))
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL})
	_, err := client.Settle(context.Background(), x402.PaymentPayload{}, x402.PaymentRequirements{})
	require.Error(t, err)
}

func TestClientGetSupported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		json.NewEncoder(w).Encode(x402.SupportedResponse{
			Kinds: []x402.SupportedKind{{X402Version: 2, Scheme: "exact", Network: "eip155:8453"}},
		})
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL})
	result, err := client.GetSupported(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Kinds, 1)
}

func TestClientSendsAuthHeaders(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(x402.SettleResponse{Success: true})
	}))
	defer server.Close()

	client := NewClient(Config{
		URL: server.URL,
		CreateAuthHeaders: func() (map[string]map[string]string, error) {
			return map[string]map[string]string{"settle": {"Authorization": "Bearer token123"}}, nil
		},
	})

	_, err := client.Settle(context.Background(), x402.PaymentPayload{}, x402.PaymentRequirements{})
	require.NoError(t, err)
	require.Equal(t, "Bearer token123", gotAuth)
}
