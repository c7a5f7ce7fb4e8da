package paymentidentifier

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	x402 "github.com/x402core/x402"
)

func TestGeneratePaymentIDFormat(t *testing.T) {
	id := GeneratePaymentID("")
	require.True(t, len(id) >= PAYMENT_ID_MIN_LENGTH)
	require.True(t, IsValidPaymentID(id))
	require.Regexp(t, `^pay_[0-9a-f]{32}$`, id)
}

func TestGeneratePaymentIDCustomPrefix(t *testing.T) {
	id := GeneratePaymentID("order_")
	require.True(t, len(id) > len("order_"))
	require.Contains(t, id, "order_")
}

func TestIsValidPaymentIDRejectsOutOfRangeLength(t *testing.T) {
	require.False(t, IsValidPaymentID("short"))
	require.False(t, IsValidPaymentID(string(make([]byte, PAYMENT_ID_MAX_LENGTH+1))))
}

func TestIsValidPaymentIDRejectsInvalidCharacters(t *testing.T) {
	require.False(t, IsValidPaymentID("has a space in it 1234"))
}

func TestHasPaymentIdentifierAndExtract(t *testing.T) {
	ext := PaymentIdentifierExtension{Info: PaymentIdentifierInfo{Required: true, ID: "pay_abcdefabcdefabcdef"}}
	payload := x402.PaymentPayload{
		Extensions: map[string]interface{}{PAYMENT_IDENTIFIER: ext},
	}

	require.True(t, HasPaymentIdentifier(payload))

	id, err := ExtractPaymentIdentifier(payload, true)
	require.NoError(t, err)
	require.Equal(t, "pay_abcdefabcdefabcdef", id)
}

func TestExtractPaymentIdentifierAbsent(t *testing.T) {
	id, err := ExtractPaymentIdentifier(x402.PaymentPayload{}, false)
	require.NoError(t, err)
	require.Empty(t, id)
}

func TestValidatePaymentIdentifierRequirementMissingWhenRequired(t *testing.T) {
	result := ValidatePaymentIdentifierRequirement(x402.PaymentPayload{}, true)
	require.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
}

func TestValidatePaymentIdentifierRequirementSatisfied(t *testing.T) {
	ext := PaymentIdentifierExtension{Info: PaymentIdentifierInfo{ID: "pay_abcdefabcdefabcdef"}}
	payload := x402.PaymentPayload{Extensions: map[string]interface{}{PAYMENT_IDENTIFIER: ext}}

	result := ValidatePaymentIdentifierRequirement(payload, true)
	require.True(t, result.Valid)
}

func TestExtractPaymentIdentifierFromBytesV2(t *testing.T) {
	ext := PaymentIdentifierExtension{Info: PaymentIdentifierInfo{ID: "pay_abcdefabcdefabcdef"}}
	payload := x402.PaymentPayload{
		X402Version: 2,
		Scheme:      "exact",
		Network:     "eip155:8453",
		Extensions:  map[string]interface{}{PAYMENT_IDENTIFIER: ext},
	}
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	id, err := ExtractPaymentIdentifierFromBytes(data, true)
	require.NoError(t, err)
	require.Equal(t, "pay_abcdefabcdefabcdef", id)
}

func TestDeclarePaymentIdentifierExtensionIsValid(t *testing.T) {
	ext := DeclarePaymentIdentifierExtension(true)
	require.True(t, IsPaymentIdentifierExtension(ext))
	require.True(t, IsPaymentIdentifierRequired(ext))
}

func TestPayloadFingerprintDeterministic(t *testing.T) {
	payload := x402.PaymentPayload{Scheme: "exact", Network: "eip155:8453"}
	f1, err := PayloadFingerprint(payload)
	require.NoError(t, err)
	f2, err := PayloadFingerprint(payload)
	require.NoError(t, err)
	require.Equal(t, f1, f2)
}
