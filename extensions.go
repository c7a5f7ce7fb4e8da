package x402

// ExtensionCategory classifies how strictly a route's extension binds a
// client, per an extension's own declared info (typically a "required"
// flag embedded in that extension's info object).
type ExtensionCategory int

const (
	// ExtensionInformational extensions carry metadata only (discovery
	// schemas) and impose no obligation on either side.
	ExtensionInformational ExtensionCategory = iota
	// ExtensionOptional extensions a client may use but need not.
	ExtensionOptional
	// ExtensionRequired extensions a client must honor for its payload
	// to be accepted (for example payment-identifier with required=true).
	ExtensionRequired
)

// Extension is the interface an extension package implements to enrich a
// route's declared extension object (filling in transport-specific
// details like an HTTP method). The cores do not hold Extension values:
// Facilitator.RegisterExtension and ResourceServer.RegisterExtension take
// only an ID string, and no core calls EnrichDeclaration, so a caller
// that wants enrichment invokes it itself. A ResourceServer passes its
// registered IDs to each ServerHandler's EnhanceRequirements; it does not
// fill PaymentRequired.Extensions, and it never interprets an extension's
// info.
type Extension interface {
	// Key is the stable string ID this extension is addressed by in an
	// Extensions map.
	Key() string

	// EnrichDeclaration fills in details only the caller's layer knows
	// (for instance, a route's HTTP method) before declaration is
	// advertised in a PaymentRequired response. Implementations that
	// don't recognize declaration's concrete type return it unchanged.
	EnrichDeclaration(declaration interface{}, method string) interface{}
}
