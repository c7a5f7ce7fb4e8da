package x402

import "context"

// MoneyParser converts a human-readable price ("$0.001", "0.5") into a
// canonical AssetAmount for network. It returns (nil, nil) when it does
// not know how to handle this price/network pair, allowing a chain of
// parsers to be tried in order; the first non-nil result wins. Exactly one
// parser in the chain, the handler's default, must always produce a
// result for prices it claims to support. Floating point never crosses
// this boundary as the output: Amount is always a decimal-string integer.
type MoneyParser func(price string, network Network) (*AssetAmount, error)

// ClientHandler is the capability a chain-specific package exposes to the
// Payment Client core: producing a signed, scheme-specific payload for a
// chosen requirement.
type ClientHandler interface {
	// Scheme identifies which scheme this handler authorizes payments for.
	Scheme() Scheme

	// CreatePaymentPayload produces a signed payload for requirement at the
	// given protocol version. Fails with InvalidScheme, InvalidNetwork, or a
	// handler-defined error wrapped as UnexpectedVerifyError-shaped detail
	// when requirement.Extra is missing a field the handler needs.
	CreatePaymentPayload(ctx context.Context, version int, requirement PaymentRequirements) (PaymentPayload, error)
}

// ServerHandler is the capability a chain-specific package exposes to the
// Resource Server core: canonicalizing a human price and decorating a
// requirement with whatever metadata its ClientHandler counterpart needs.
type ServerHandler interface {
	// Scheme identifies which scheme this handler builds requirements for.
	Scheme() Scheme

	// ParsePrice converts price (either a human string like "$0.001" or an
	// already-canonical AssetAmount-shaped value) into atomic units for
	// network's default asset. The core calls ParsePrice directly and runs
	// no MoneyParser chain of its own; the reference handlers in
	// mechanisms/evm and mechanisms/svm apply only their own default rule
	// and offer no way to register a MoneyParser.
	ParsePrice(ctx context.Context, price string, network Network) (AssetAmount, error)

	// EnhanceRequirements decorates base with whatever extra metadata the
	// matching ClientHandler will need to sign against it (EIP-712 domain,
	// fee payer, etc.), and threads the advertised extension keys through.
	EnhanceRequirements(ctx context.Context, base PaymentRequirements, kind SupportedKind, extensionKeys []string) (PaymentRequirements, error)
}

// FacilitatorHandler is the capability a chain-specific package exposes to
// the Facilitator core: verifying and settling payloads. Both methods must
// be safe to call concurrently on disjoint payloads; Verify must be
// side-effect-free on the chain, Settle may submit a transaction and wait
// for confirmation up to requirement.MaxTimeoutSeconds.
type FacilitatorHandler interface {
	Scheme() Scheme
	Verify(ctx context.Context, payload PaymentPayload, requirement PaymentRequirements) (VerifyResponse, error)
	Settle(ctx context.Context, payload PaymentPayload, requirement PaymentRequirements) (SettleResponse, error)
}

// FacilitatorClient is the boundary a Resource Server uses to talk to a
// facilitator, whether it is composed in-process (see Facilitator in
// facilitator.go) or reached over HTTP (see package facilitatorclient).
type FacilitatorClient interface {
	Verify(ctx context.Context, payload PaymentPayload, requirement PaymentRequirements) (VerifyResponse, error)
	Settle(ctx context.Context, payload PaymentPayload, requirement PaymentRequirements) (SettleResponse, error)
	GetSupported(ctx context.Context) (SupportedResponse, error)
}
