// Package httpadapter binds the transport-agnostic x402 core to
// net/http: header names, base64/JSON payload framing, a 402-response
// builder, an HTML paywall for browsers, and an http.RoundTripper that
// answers challenges automatically on the client side.
package httpadapter

// Header names used by the x402 wire protocol. PaymentHeaderV1 is the
// legacy alias some v1-only clients still send instead of X-PAYMENT.
const (
	PaymentHeader         = "X-PAYMENT"
	PaymentHeaderV1       = "payment-signature"
	PaymentResponseHeader = "X-PAYMENT-RESPONSE"
	PaymentResponseHeaderV1 = "PAYMENT-RESPONSE"
)

// paymentHeaderNames is the order adapters probe an inbound request in.
var paymentHeaderNames = []string{PaymentHeader, PaymentHeaderV1}
