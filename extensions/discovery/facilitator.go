package discovery

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	x402 "github.com/x402core/x402"
)

// ValidationResult is the outcome of validating a discovery extension's
// info against its own schema.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// ValidateDiscoveryExtension checks extension.Info against extension.Schema.
func ValidateDiscoveryExtension(extension DiscoveryExtension) ValidationResult {
	schemaJSON, err := json.Marshal(extension.Schema)
	if err != nil {
		return ValidationResult{Valid: false, Errors: []string{fmt.Sprintf("marshaling schema: %v", err)}}
	}
	infoJSON, err := json.Marshal(extension.Info)
	if err != nil {
		return ValidationResult{Valid: false, Errors: []string{fmt.Sprintf("marshaling info: %v", err)}}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaJSON), gojsonschema.NewBytesLoader(infoJSON))
	if err != nil {
		return ValidationResult{Valid: false, Errors: []string{fmt.Sprintf("schema validation failed: %v", err)}}
	}
	if result.Valid() {
		return ValidationResult{Valid: true}
	}

	errs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		errs = append(errs, fmt.Sprintf("%s: %s", desc.Context().String(), desc.Description()))
	}
	return ValidationResult{Valid: false, Errors: errs}
}

// ExtractDiscoveryInfo reads the discovery extension off a payment
// payload's Extensions map, validating it against its own schema unless
// validate is false. Returns nil, nil if the payload carries no discovery
// extension.
func ExtractDiscoveryInfo(payload x402.PaymentPayload, validate bool) (*DiscoveryInfo, error) {
	if payload.Extensions == nil {
		return nil, nil
	}
	raw, ok := payload.Extensions[DISCOVERY]
	if !ok {
		return nil, nil
	}

	extensionJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshaling discovery extension: %w", err)
	}
	var extension DiscoveryExtension
	if err := json.Unmarshal(extensionJSON, &extension); err != nil {
		return nil, fmt.Errorf("unmarshaling discovery extension: %w", err)
	}

	if validate {
		if result := ValidateDiscoveryExtension(extension); !result.Valid {
			return nil, fmt.Errorf("invalid discovery extension: %v", result.Errors)
		}
	}
	return &extension.Info, nil
}

// ExtractDiscoveryInfoFromExtension is the lower-level form of
// ExtractDiscoveryInfo for callers that already hold the extension object.
func ExtractDiscoveryInfoFromExtension(extension DiscoveryExtension, validate bool) (*DiscoveryInfo, error) {
	if validate {
		result := ValidateDiscoveryExtension(extension)
		if !result.Valid {
			return nil, fmt.Errorf("invalid discovery extension: %v", result.Errors)
		}
	}
	return &extension.Info, nil
}

// ValidateAndExtract validates extension and, if valid, returns its info
// in the same call.
func ValidateAndExtract(extension DiscoveryExtension) (ValidationResult, *DiscoveryInfo) {
	result := ValidateDiscoveryExtension(extension)
	if !result.Valid {
		return result, nil
	}
	return result, &extension.Info
}
