package paymentidentifier

import (
	"encoding/json"
	"fmt"

	x402 "github.com/x402core/x402"
)

func parseExtension(extension interface{}) (*PaymentIdentifierExtension, error) {
	raw, err := json.Marshal(extension)
	if err != nil {
		return nil, fmt.Errorf("paymentidentifier: marshaling extension: %w", err)
	}
	var ext PaymentIdentifierExtension
	if err := json.Unmarshal(raw, &ext); err != nil {
		return nil, fmt.Errorf("paymentidentifier: unmarshaling extension: %w", err)
	}
	return &ext, nil
}

func getPaymentIdentifierExtension(payload x402.PaymentPayload) (interface{}, bool) {
	if payload.Extensions == nil {
		return nil, false
	}
	ext, ok := payload.Extensions[PAYMENT_IDENTIFIER]
	return ext, ok
}

// IsPaymentIdentifierExtension reports whether extension has the
// {info: {required: bool}} shape a payment-identifier declaration needs,
// without validating an ID if one is present.
func IsPaymentIdentifierExtension(extension interface{}) bool {
	if extension == nil {
		return false
	}
	var raw struct {
		Info *struct {
			Required *bool `json:"required"`
		} `json:"info"`
	}
	data, err := json.Marshal(extension)
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return false
	}
	return raw.Info != nil && raw.Info.Required != nil
}

// ValidatePaymentIdentifier checks extension's structure and, if an ID is
// present, its format.
func ValidatePaymentIdentifier(extension interface{}) ValidationResult {
	if extension == nil {
		return ValidationResult{Valid: false, Errors: []string{"extension must be an object"}}
	}
	ext, err := parseExtension(extension)
	if err != nil {
		return ValidationResult{Valid: false, Errors: []string{err.Error()}}
	}
	if ext.Info.ID != "" && !IsValidPaymentID(ext.Info.ID) {
		return ValidationResult{Valid: false, Errors: []string{invalidIDMessage()}}
	}
	return ValidationResult{Valid: true}
}

// ExtractPaymentIdentifier returns the ID a client attached to payload, or
// "" if none is present. With validate set, a malformed ID is an error
// rather than returned as-is.
func ExtractPaymentIdentifier(payload x402.PaymentPayload, validate bool) (string, error) {
	raw, ok := getPaymentIdentifierExtension(payload)
	if !ok {
		return "", nil
	}
	ext, err := parseExtension(raw)
	if err != nil {
		return "", err
	}
	if ext.Info.ID == "" {
		return "", nil
	}
	if validate && !IsValidPaymentID(ext.Info.ID) {
		return "", fmt.Errorf("paymentidentifier: invalid payment id format")
	}
	return ext.Info.ID, nil
}

// ExtractPaymentIdentifierFromBytes is ExtractPaymentIdentifier for a
// facilitator that only has the raw wire bytes. A v1 payload has no
// extensions and always returns "".
func ExtractPaymentIdentifierFromBytes(payloadBytes []byte, validate bool) (string, error) {
	version, err := x402.DetectVersion(payloadBytes)
	if err != nil {
		return "", fmt.Errorf("paymentidentifier: detecting version: %w", err)
	}
	if version == 1 {
		return "", nil
	}
	var payload x402.PaymentPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return "", fmt.Errorf("paymentidentifier: unmarshaling payload: %w", err)
	}
	return ExtractPaymentIdentifier(payload, validate)
}

// HasPaymentIdentifier reports whether payload carries the extension at
// all, regardless of whether it validates.
func HasPaymentIdentifier(payload x402.PaymentPayload) bool {
	_, ok := getPaymentIdentifierExtension(payload)
	return ok
}

// IsPaymentIdentifierRequired reads the required flag off a declared
// extension (from either a PaymentRequired's requirements or an echoed
// payload).
func IsPaymentIdentifierRequired(extension interface{}) bool {
	if extension == nil {
		return false
	}
	ext, err := parseExtension(extension)
	if err != nil {
		return false
	}
	return ext.Info.Required
}

// ValidatePaymentIdentifierRequirement checks payload against a server's
// declared requirement: valid trivially if serverRequired is false,
// otherwise payload must carry a well-formed ID.
func ValidatePaymentIdentifierRequirement(payload x402.PaymentPayload, serverRequired bool) ValidationResult {
	if !serverRequired {
		return ValidationResult{Valid: true}
	}
	id, err := ExtractPaymentIdentifier(payload, false)
	if err != nil {
		return ValidationResult{Valid: false, Errors: []string{err.Error()}}
	}
	if id == "" {
		return ValidationResult{Valid: false, Errors: []string{"server requires a payment identifier but none was provided"}}
	}
	if !IsValidPaymentID(id) {
		return ValidationResult{Valid: false, Errors: []string{invalidIDMessage()}}
	}
	return ValidationResult{Valid: true}
}

func invalidIDMessage() string {
	return fmt.Sprintf("payment id must be %d-%d characters of letters, digits, hyphens, or underscores", PAYMENT_ID_MIN_LENGTH, PAYMENT_ID_MAX_LENGTH)
}
