package x402

import (
	"fmt"
	"math/big"
)

// ValidatePaymentPayload performs basic structural validation on a decoded
// payment payload, independent of any scheme/network-specific handler.
func ValidatePaymentPayload(p PaymentPayload) error {
	if p.X402Version < 1 || p.X402Version > 2 {
		return fmt.Errorf("unsupported x402 version: %d", p.X402Version)
	}
	if p.Scheme == "" {
		return fmt.Errorf("payment scheme is required")
	}
	if p.Network == "" {
		return fmt.Errorf("payment network is required")
	}
	if p.Payload == nil {
		return fmt.Errorf("payment payload body is required")
	}
	return nil
}

// ValidatePaymentRequirements performs basic structural validation on a
// requirement before it is ever handed to a handler.
func ValidatePaymentRequirements(r PaymentRequirements) error {
	if r.Scheme == "" {
		return fmt.Errorf("payment scheme is required")
	}
	if r.Network == "" {
		return fmt.Errorf("payment network is required")
	}
	if r.Asset == "" {
		return fmt.Errorf("payment asset is required")
	}
	if r.PayTo == "" {
		return fmt.Errorf("payment recipient is required")
	}
	if r.Amount != "" {
		if n, ok := new(big.Int).SetString(r.Amount, 10); !ok || n.Sign() < 0 {
			return fmt.Errorf("amount %q is not a nonnegative integer", r.Amount)
		}
	}
	return nil
}

// IsNonNegativeInteger reports whether s parses as a base-10 nonnegative
// integer, the wire shape every atomic amount must have.
func IsNonNegativeInteger(s string) bool {
	n, ok := new(big.Int).SetString(s, 10)
	return ok && n.Sign() >= 0
}
