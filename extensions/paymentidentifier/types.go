// Package paymentidentifier implements the payment-identifier extension:
// a client-supplied ID a server can use to deduplicate payment requests
// ahead of verification and settlement, distinct from the protocol's own
// signature-derived idempotency key.
package paymentidentifier

import "regexp"

// PAYMENT_IDENTIFIER is the extension key carried in PaymentRequired's,
// PaymentRequirements', and PaymentPayload's Extensions maps.
const PAYMENT_IDENTIFIER = "payment-identifier"

const (
	PAYMENT_ID_MIN_LENGTH = 16
	PAYMENT_ID_MAX_LENGTH = 128
)

// PAYMENT_ID_PATTERN matches IDs of alphanumeric characters, hyphens, and
// underscores only.
var PAYMENT_ID_PATTERN = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// PaymentIdentifierExtension is the extension object a server declares in
// a route's requirements, and a client echoes (with Info.ID filled in) in
// its payment payload.
type PaymentIdentifierExtension struct {
	Info PaymentIdentifierInfo `json:"info"`
}

// PaymentIdentifierInfo carries whether the server requires an ID, and
// (when supplied by a client) the ID itself.
type PaymentIdentifierInfo struct {
	Required bool   `json:"required"`
	ID       string `json:"id,omitempty"`
}

// ValidationResult is the outcome of validating a payment-identifier
// extension object or a client-supplied ID.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// DeclarePaymentIdentifierExtension builds the extension object a server
// attaches to a route's requirements, advertising whether clients must
// supply a payment identifier.
func DeclarePaymentIdentifierExtension(required bool) PaymentIdentifierExtension {
	return PaymentIdentifierExtension{Info: PaymentIdentifierInfo{Required: required}}
}
