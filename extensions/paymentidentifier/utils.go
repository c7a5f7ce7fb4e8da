package paymentidentifier

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	x402 "github.com/x402core/x402"
)

// GeneratePaymentID returns prefix followed by a hyphen-stripped UUID v4,
// e.g. "pay_7d5d747be160e280504c099d984bcfe0". An empty prefix defaults to
// "pay_".
func GeneratePaymentID(prefix string) string {
	if prefix == "" {
		prefix = "pay_"
	}
	return prefix + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// PayloadFingerprint hashes payload so two requests carrying the same
// payment identifier can be compared for an exact-match replay versus a
// conflicting one.
func PayloadFingerprint(payload x402.PaymentPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("paymentidentifier: marshaling payload: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// IsValidPaymentID reports whether id is within length bounds and matches
// PAYMENT_ID_PATTERN.
func IsValidPaymentID(id string) bool {
	if len(id) < PAYMENT_ID_MIN_LENGTH || len(id) > PAYMENT_ID_MAX_LENGTH {
		return false
	}
	return PAYMENT_ID_PATTERN.MatchString(id)
}
