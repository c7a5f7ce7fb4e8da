package httpadapter

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"

	x402 "github.com/x402core/x402"
)

// base64Regex rejects header values that are not plausibly base64 before
// attempting the more expensive decode.
var base64Regex = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)

// DecodePaymentHeader base64-decodes and validates headerValue into a
// PaymentPayload. It checks the required top-level fields by hand before
// unmarshaling into the typed struct, so a malformed header produces a
// specific, actionable error rather than a generic json: cannot unmarshal.
func DecodePaymentHeader(headerValue string) (*x402.PaymentPayload, error) {
	if headerValue == "" {
		return nil, fmt.Errorf("httpadapter: payment header is empty")
	}
	if !base64Regex.MatchString(headerValue) {
		return nil, fmt.Errorf("httpadapter: payment header is not valid base64")
	}

	decoded, err := base64.StdEncoding.DecodeString(headerValue)
	if err != nil {
		return nil, fmt.Errorf("httpadapter: base64 decode failed: %w", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(decoded, &raw); err != nil {
		return nil, fmt.Errorf("httpadapter: payment header is not valid JSON: %w", err)
	}

	if _, ok := raw["x402Version"]; !ok {
		return nil, fmt.Errorf("httpadapter: payment header missing x402Version")
	}
	if _, ok := raw["scheme"]; !ok {
		return nil, fmt.Errorf("httpadapter: payment header missing scheme")
	}
	if _, ok := raw["network"]; !ok {
		return nil, fmt.Errorf("httpadapter: payment header missing network")
	}
	if _, ok := raw["payload"].(map[string]interface{}); !ok {
		return nil, fmt.Errorf("httpadapter: payment header missing or malformed payload")
	}

	var payload x402.PaymentPayload
	if err := json.Unmarshal(decoded, &payload); err != nil {
		return nil, fmt.Errorf("httpadapter: failed to parse payment payload: %w", err)
	}
	return &payload, nil
}

// EncodePaymentHeader base64-encodes payload's canonical JSON form for
// transmission in the X-PAYMENT header.
func EncodePaymentHeader(payload x402.PaymentPayload) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// EncodeSettleResponse base64-encodes resp's canonical JSON form for the
// X-PAYMENT-RESPONSE header.
func EncodeSettleResponse(resp x402.SettleResponse) (string, error) {
	b, err := json.Marshal(resp)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// DecodeSettleResponse is the client-side inverse of EncodeSettleResponse,
// used to read the X-PAYMENT-RESPONSE header after a successful retry.
func DecodeSettleResponse(headerValue string) (*x402.SettleResponse, error) {
	decoded, err := base64.StdEncoding.DecodeString(headerValue)
	if err != nil {
		return nil, fmt.Errorf("httpadapter: base64 decode failed: %w", err)
	}
	var resp x402.SettleResponse
	if err := json.Unmarshal(decoded, &resp); err != nil {
		return nil, fmt.Errorf("httpadapter: failed to parse settle response: %w", err)
	}
	return &resp, nil
}
