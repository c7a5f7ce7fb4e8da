// Package x402 implements the core of the x402 HTTP micropayment protocol:
// a Resource Server that gates routes behind a 402 challenge, a Payment
// Client that answers the challenge, and a Facilitator that verifies and
// settles the resulting payment, all coordinated through a Scheme Registry
// dispatching on (scheme, network) pairs to pluggable handlers.
package x402

import (
	"encoding/json"
	"strings"
)

// Network is a CAIP-2 chain identifier ("eip155:84532", "solana:...") or,
// under protocol version 1, a short alias ("base-sepolia"). The core treats
// it as an opaque string except for registry wildcard matching.
type Network string

// Match reports whether n satisfies pattern, where pattern is either an
// exact network ("eip155:84532") or a namespace wildcard ("eip155:*").
func (n Network) Match(pattern string) bool {
	if string(n) == pattern {
		return true
	}
	ns, ok := strings.CutSuffix(pattern, ":*")
	if !ok {
		return false
	}
	return strings.HasPrefix(string(n), ns+":")
}

// Namespace returns the CAIP-2 namespace portion of n ("eip155" for
// "eip155:84532"). For a bare v1 alias with no colon, it returns n itself.
func (n Network) Namespace() string {
	if i := strings.IndexByte(string(n), ':'); i >= 0 {
		return string(n)[:i]
	}
	return string(n)
}

// Scheme names the method by which a payment amount is authorized.
// "exact" (pay exactly this amount, once) is the only scheme defined by
// this package; others are reserved for handler packages to register.
type Scheme string

// AssetAmount is a human-facing or canonicalized (amount, asset) pair, the
// return shape of a ServerHandler's ParsePrice.
type AssetAmount struct {
	Amount string                 `json:"amount"`
	Asset  string                 `json:"asset"`
	Extra  map[string]interface{} `json:"extra,omitempty"`
}

// ResourceInfo describes the protected resource a payment unlocks.
type ResourceInfo struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// PaymentRequirements is one acceptable way to pay for a resource.
//
// Amount is always an atomic, decimal-string, nonnegative integer in the
// asset's smallest unit; it is never a JSON number, to preserve exactness.
type PaymentRequirements struct {
	Scheme            Scheme                 `json:"scheme"`
	Network           Network                `json:"network"`
	PayTo             string                 `json:"payTo"`
	Asset             string                 `json:"asset"`
	Amount            string                 `json:"amount"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds,omitempty"`
	Resource          string                 `json:"resource,omitempty"`
	Description       string                 `json:"description,omitempty"`
	MimeType          string                 `json:"mimeType,omitempty"`
	OutputSchema      json.RawMessage        `json:"outputSchema,omitempty"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
	Extensions        map[string]interface{} `json:"extensions,omitempty"`
}

// PaymentRequired is the body of a 402 response.
type PaymentRequired struct {
	X402Version int                    `json:"x402Version"`
	Error       string                 `json:"error,omitempty"`
	Resource    *ResourceInfo          `json:"resource,omitempty"`
	Accepts     []PaymentRequirements  `json:"accepts"`
	Extensions  map[string]interface{} `json:"extensions,omitempty"`
}

// PaymentPayload is the decoded contents of the X-PAYMENT header. Payload
// is entirely scheme-opaque to the core: the core passes it through to the
// matching handler and never introspects it.
type PaymentPayload struct {
	X402Version int                    `json:"x402Version"`
	Scheme      Scheme                 `json:"scheme"`
	Network     Network                `json:"network"`
	Payload     map[string]interface{} `json:"payload"`
	Resource    *ResourceInfo          `json:"resource,omitempty"`
	Extensions  map[string]interface{} `json:"extensions,omitempty"`
}

// InvalidReason enumerates why verify failed, per the flat taxonomy in
// errors.go.
type InvalidReason string

// ErrorReason enumerates why settle failed, per the flat taxonomy in
// errors.go.
type ErrorReason string

// VerifyResponse is the result of a FacilitatorHandler.Verify call.
type VerifyResponse struct {
	IsValid       bool          `json:"isValid"`
	InvalidReason InvalidReason `json:"invalidReason,omitempty"`
	Payer         string        `json:"payer,omitempty"`
}

// SettleResponse is the result of a FacilitatorHandler.Settle call. It is
// also the shape carried base64-encoded in the X-PAYMENT-RESPONSE header.
type SettleResponse struct {
	Success     bool        `json:"success"`
	ErrorReason ErrorReason `json:"errorReason,omitempty"`
	Transaction string      `json:"transaction"`
	Network     Network     `json:"network"`
	Payer       string      `json:"payer"`
}

// SupportedKind describes one (scheme, network) pair a facilitator can
// verify and settle.
type SupportedKind struct {
	X402Version int                    `json:"x402Version"`
	Scheme      Scheme                 `json:"scheme"`
	Network     Network                `json:"network"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// SupportedResponse is the body of GET /supported.
type SupportedResponse struct {
	Kinds      []SupportedKind `json:"kinds"`
	Extensions []string        `json:"extensions,omitempty"`
}

// RouteAcceptEntry names one (scheme, network, payTo) combination a route
// is willing to accept payment through, priced in human-facing units.
type RouteAcceptEntry struct {
	Scheme  Scheme
	Network Network
	PayTo   string
	Price   string // human units, e.g. "$0.001"; canonicalized by ServerHandler.ParsePrice
	Asset   string // optional explicit asset override
}

// RouteAccepts resolves the list of acceptable payment kinds for a route,
// either statically or as a function of the incoming request context. Func
// takes precedence over Static when both are set.
type RouteAccepts struct {
	Static []RouteAcceptEntry
	Func   func(ctx *RequestContext) []RouteAcceptEntry
}

// Resolve returns the accept entries for ctx.
func (a RouteAccepts) Resolve(ctx *RequestContext) []RouteAcceptEntry {
	if a.Func != nil {
		return a.Func(ctx)
	}
	return a.Static
}

// RouteBinding maps one (method, path) pair to its payment configuration.
type RouteBinding struct {
	Method      string
	Path        string
	Accepts     RouteAccepts
	Description string
	MimeType    string
	Extensions  []string
}

// RequestContext is the minimal, transport-agnostic view of an inbound
// request the core needs: enough to match a route, locate a payment header,
// and negotiate a response format. HTTP adapters populate it from the
// concrete request type of their host framework.
type RequestContext struct {
	Method        string
	Path          string
	Header        map[string]string
	PaymentHeader string
	AcceptsHTML   bool
	Extra         map[string]interface{}
}

// HeaderValue does a case-insensitive lookup into Header.
func (c *RequestContext) HeaderValue(name string) string {
	for k, v := range c.Header {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// DeepEqualJSON reports whether a and b marshal to the same JSON value,
// independent of struct field order or map key order.
func DeepEqualJSON(a, b interface{}) (bool, error) {
	aj, err := json.Marshal(a)
	if err != nil {
		return false, err
	}
	bj, err := json.Marshal(b)
	if err != nil {
		return false, err
	}
	var av, bv interface{}
	if err := json.Unmarshal(aj, &av); err != nil {
		return false, err
	}
	if err := json.Unmarshal(bj, &bv); err != nil {
		return false, err
	}
	an, err := json.Marshal(av)
	if err != nil {
		return false, err
	}
	bn, err := json.Marshal(bv)
	if err != nil {
		return false, err
	}
	return string(an) == string(bn), nil
}
