package x402

import "fmt"

// PaymentError carries a structured code/message/details triple. It is the
// shape both VerifyResponse.InvalidReason and SettleResponse.ErrorReason
// are drawn from when a handler needs to report more than the bare code.
type PaymentError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewPaymentError creates a new payment error.
func NewPaymentError(code, message string, details map[string]interface{}) *PaymentError {
	return &PaymentError{Code: code, Message: message, Details: details}
}

// Verify-side reasons (VerifyResponse.InvalidReason).
const (
	InvalidScheme              InvalidReason = "invalid_scheme"
	InvalidNetwork             InvalidReason = "invalid_network"
	InvalidPayload             InvalidReason = "invalid_payload"
	InvalidPaymentRequirements InvalidReason = "invalid_payment_requirements"
	InsufficientAmount         InvalidReason = "insufficient_amount"
	PaymentExpired             InvalidReason = "payment_expired"
	InvalidSignature           InvalidReason = "invalid_signature"
	InvalidAsset               InvalidReason = "invalid_asset"
	InvalidPayer               InvalidReason = "invalid_payer"
	NonceAlreadyUsed           InvalidReason = "nonce_already_used"
	UnexpectedVerifyError      InvalidReason = "unexpected_verify_error"
)

// Settle-side reasons (SettleResponse.ErrorReason).
const (
	TransactionFailed     ErrorReason = "transaction_failed"
	InsufficientBalance   ErrorReason = "insufficient_balance"
	GasEstimationFailed   ErrorReason = "gas_estimation_failed"
	TransactionReverted   ErrorReason = "transaction_reverted"
	NetworkError          ErrorReason = "network_error"
	Timeout               ErrorReason = "timeout"
	ServiceUnavailable    ErrorReason = "service_unavailable"
	UnexpectedSettleError ErrorReason = "unexpected_settle_error"
)

// ConfigError is a programmer error: missing handler registration, a
// malformed route binding, or any other misconfiguration that should fail
// loudly at construction time rather than surface per request.
type ConfigError struct {
	Component string
	Reason    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("x402: misconfigured %s: %s", e.Component, e.Reason)
}

func configPanic(component, reason string) {
	panic(&ConfigError{Component: component, Reason: reason})
}

// knownInvalidReasons and knownErrorReasons let the propagation policy in
// facilitator.go distinguish a recognized handler error from one that must
// be wrapped as unexpected_*.
var knownInvalidReasons = map[InvalidReason]bool{
	InvalidScheme: true, InvalidNetwork: true, InvalidPayload: true,
	InvalidPaymentRequirements: true, InsufficientAmount: true,
	PaymentExpired: true, InvalidSignature: true, InvalidAsset: true,
	InvalidPayer: true, NonceAlreadyUsed: true, UnexpectedVerifyError: true,
}

var knownErrorReasons = map[ErrorReason]bool{
	TransactionFailed: true, InsufficientBalance: true, GasEstimationFailed: true,
	TransactionReverted: true, NetworkError: true, Timeout: true,
	ServiceUnavailable: true, UnexpectedSettleError: true,
}
