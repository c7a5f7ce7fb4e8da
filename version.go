package x402

import (
	"encoding/json"
	"fmt"
)

// versionEnvelope is the minimal shape read from an arbitrary x402 JSON
// document purely to decide which protocol version it carries, without
// committing to a full PaymentPayload/PaymentRequired unmarshal.
type versionEnvelope struct {
	X402Version int             `json:"x402Version"`
	Scheme      string          `json:"scheme,omitempty"`
	Network     string          `json:"network,omitempty"`
	Accepted    json.RawMessage `json:"accepted,omitempty"`
}

// DetectVersion reports the x402 protocol version carried by raw JSON
// bytes representing a PaymentPayload or PaymentRequirements document.
//
// Version 2 places scheme/network inside the document itself (this
// package's PaymentPayload does this directly); version 1 sources instead
// nest them under a top-level "accepted" object. Both are disambiguated by
// the explicit x402Version field when present, which this package always
// writes; the structural checks below exist only to classify payloads that
// arrive from a legacy (v1-only) client that omits the nested scheme at
// the top level.
func DetectVersion(data []byte) (int, error) {
	var env versionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return 0, fmt.Errorf("x402: cannot detect version: %w", err)
	}
	switch env.X402Version {
	case 1, 2:
		return env.X402Version, nil
	case 0:
		// No explicit version: fall back to structural inference.
		if len(env.Accepted) > 0 {
			return 1, nil
		}
		if env.Scheme != "" && env.Network != "" {
			return 2, nil
		}
		return 0, fmt.Errorf("x402: cannot detect version: no x402Version field and no recognizable structure")
	default:
		return 0, fmt.Errorf("x402: unsupported x402Version %d", env.X402Version)
	}
}

// NegotiateVersion picks the response x402Version given the version a
// caller's request advertised and the maximum version this server
// supports. The server always answers in the version the caller itself
// used, clamped down to whatever the server supports, never up: a v1
// client must never be handed a v2-only document it cannot parse.
func NegotiateVersion(requested, maxSupported int) int {
	if requested <= 0 {
		return maxSupported
	}
	if requested > maxSupported {
		return maxSupported
	}
	return requested
}

// MatchesPayload reports whether payload authorizes exactly requirement:
// same scheme, same network. This is the structural half of spec
// invariant 1; amount/payer matching is a handler concern.
func MatchesPayload(payload PaymentPayload, requirement PaymentRequirements) bool {
	return payload.Scheme == requirement.Scheme && payload.Network == requirement.Network
}

// FindMatchingRequirement returns the first requirement in accepts whose
// (scheme, network) matches payload, used by the Resource Server to
// re-associate a payload with the requirement the client picked. (The
// Facilitator checks its single requirement with MatchesPayload directly.)
func FindMatchingRequirement(payload PaymentPayload, accepts []PaymentRequirements) (PaymentRequirements, bool) {
	for _, r := range accepts {
		if MatchesPayload(payload, r) {
			return r, true
		}
	}
	return PaymentRequirements{}, false
}
