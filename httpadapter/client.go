package httpadapter

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	x402 "github.com/x402core/x402"
)

// PaymentRoundTripper wraps an http.RoundTripper so a 402 response is
// answered automatically: it decodes the challenge, asks client to sign a
// payload for one of the offered requirements, and retries the request
// once with the X-PAYMENT header attached. A second 402 after the retry is
// returned to the caller as-is rather than retried again, since a client
// that just paid and was challenged again is not going to succeed by
// paying a second time with the same handler set.
type PaymentRoundTripper struct {
	Transport http.RoundTripper
	Client    *x402.PaymentClient

	retried sync.Map // *http.Request -> struct{}, guards against re-retrying the same request value
}

// RoundTrip implements http.RoundTripper.
func (t *PaymentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	transport := t.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	resp, err := transport.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusPaymentRequired {
		return resp, err
	}
	if _, already := t.retried.LoadOrStore(req, struct{}{}); already {
		return resp, nil
	}
	defer t.retried.Delete(req)

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("httpadapter: reading 402 body: %w", err)
	}

	var required x402.PaymentRequired
	if err := json.Unmarshal(body, &required); err != nil {
		return nil, fmt.Errorf("httpadapter: parsing 402 body: %w", err)
	}

	ctx := req.Context()
	payload, err := t.Client.CreatePaymentForRequired(ctx, required)
	if err != nil {
		return nil, fmt.Errorf("httpadapter: creating payment: %w", err)
	}

	encoded, err := EncodePaymentHeader(payload)
	if err != nil {
		return nil, err
	}

	retryReq := req.Clone(ctx)
	retryReq.Header.Set(PaymentHeader, encoded)
	return transport.RoundTrip(retryReq)
}

// WrapClient returns a copy of client whose Transport automatically pays
// x402 challenges using paymentClient.
func WrapClient(client *http.Client, paymentClient *x402.PaymentClient) *http.Client {
	if client == nil {
		client = &http.Client{}
	}
	wrapped := *client
	wrapped.Transport = &PaymentRoundTripper{Transport: client.Transport, Client: paymentClient}
	return &wrapped
}

// GetWithPayment issues a GET request, paying any 402 challenge automatically.
func GetWithPayment(client *http.Client, paymentClient *x402.PaymentClient, url string) (*http.Response, error) {
	return WrapClient(client, paymentClient).Get(url)
}
