// Package discovery implements the discovery extension: a server
// advertises, alongside its payment requirements, a JSON-schema-described
// shape for how to call the resource once paid for, so a catalog crawler
// or an agent can learn a route's calling convention without a human
// reading its documentation.
package discovery

// DISCOVERY is the extension key carried in PaymentRequired's and
// PaymentPayload's Extensions maps.
const DISCOVERY = "discovery"

// DiscoveryExtension pairs a machine-checkable schema with the concrete
// info a server declares for one route.
type DiscoveryExtension struct {
	Info   DiscoveryInfo          `json:"info"`
	Schema map[string]interface{} `json:"schema"`
}

// DiscoveryInfo describes how to call a route once payment is settled.
type DiscoveryInfo struct {
	Input       interface{} `json:"input"`
	Output      interface{} `json:"output,omitempty"`
	Description string      `json:"description,omitempty"`
}

// QueryParamMethods is the set of HTTP methods compatible with a
// query-parameter calling convention.
type QueryParamMethods string

const (
	QueryMethodGET    QueryParamMethods = "GET"
	QueryMethodDELETE QueryParamMethods = "DELETE"
)

// QueryInput describes a route called via URL query parameters.
type QueryInput struct {
	Method     QueryParamMethods      `json:"method"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// BodyMethods is the set of HTTP methods compatible with a request-body
// calling convention.
type BodyMethods string

const (
	BodyMethodPOST BodyMethods = "POST"
	BodyMethodPUT  BodyMethods = "PUT"
	BodyMethodPATCH BodyMethods = "PATCH"
)

// BodyInput describes a route called with a JSON request body.
type BodyInput struct {
	Method BodyMethods            `json:"method"`
	Body   map[string]interface{} `json:"body,omitempty"`
}
