package discovery

import x402 "github.com/x402core/x402"

// ResourceServerExtension fills in a route's declared discovery extension
// with the one piece of information only the resource server's routing
// table knows at enrichment time: which HTTP method reaches the route.
// The ResourceServer does not call it; callers invoke EnrichDeclaration
// directly.
type ResourceServerExtension struct{}

func (e *ResourceServerExtension) Key() string { return DISCOVERY }

// EnrichDeclaration fills in Input.Method from method before the
// extension is advertised in a route's PaymentRequired response.
// declaration is returned unchanged if it isn't a DiscoveryExtension.
func (e *ResourceServerExtension) EnrichDeclaration(declaration interface{}, method string) interface{} {
	extension, ok := declaration.(DiscoveryExtension)
	if !ok {
		return declaration
	}

	switch input := extension.Info.Input.(type) {
	case QueryInput:
		input.Method = QueryParamMethods(method)
		extension.Info.Input = input
	case BodyInput:
		input.Method = BodyMethods(method)
		extension.Info.Input = input
	}

	if properties, ok := extension.Schema["properties"].(map[string]interface{}); ok {
		if inputSchema, ok := properties["input"].(map[string]interface{}); ok {
			required, _ := inputSchema["required"].([]interface{})
			hasMethod := false
			for _, r := range required {
				if s, ok := r.(string); ok && s == "method" {
					hasMethod = true
					break
				}
			}
			if !hasMethod {
				inputSchema["required"] = append(required, "method")
			}
		}
	}

	return extension
}

// DiscoveryResourceServerExtension is the package's shared enrichment
// extension instance.
var DiscoveryResourceServerExtension = &ResourceServerExtension{}

var _ x402.Extension = (*ResourceServerExtension)(nil)
