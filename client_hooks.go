package x402

import "context"

// ============================================================================
// Payment Client Hook Context Types
// ============================================================================

// PaymentRequiredContext is passed to onPaymentRequired, the moment a 402
// challenge has just been received and no requirement has been selected
// yet.
type PaymentRequiredContext struct {
	Ctx             context.Context
	PaymentRequired PaymentRequired
}

// PaymentCreationContext is passed to every payment-creation hook. It
// captures the SELECTED state of the client's per-request state machine:
// a 402 has been received and a requirement has been selected, but no
// payload has been signed yet.
type PaymentCreationContext struct {
	Ctx                  context.Context
	PaymentRequired      PaymentRequired
	SelectedRequirements PaymentRequirements
}

// PaymentCreatedContext is passed to onAfterPaymentCreation, once the
// client has reached the SIGNED state.
type PaymentCreatedContext struct {
	PaymentCreationContext
	PaymentPayload PaymentPayload
}

// PaymentCreationFailureContext is passed to onPaymentCreationFailure when
// the selected ClientHandler's CreatePaymentPayload call errors.
type PaymentCreationFailureContext struct {
	PaymentCreationContext
	Error error
}

// ============================================================================
// Payment Client Hook Result Types
// ============================================================================

// PaymentRequiredHookResult lets an onPaymentRequired hook either abort the
// whole flow before a requirement is even selected, or substitute an
// already-available PaymentPayload (e.g. one pulled from a client-side
// cache) so selection and signing are skipped entirely.
type PaymentRequiredHookResult struct {
	Abort      bool
	Reason     string
	Substitute *PaymentPayload
}

// PaymentCreationHookResult short-circuits payload creation when Abort is
// true, e.g. a spend-limit policy refusing to sign.
type PaymentCreationHookResult struct {
	Abort  bool
	Reason string
}

// PaymentCreationFailureHookResult lets an onPaymentCreationFailure hook
// recover from a handler error by substituting an already-built payload
// (a cached retry, for instance).
type PaymentCreationFailureHookResult struct {
	Recovered bool
	Payload   PaymentPayload
}

// ============================================================================
// Payment Client Hook Function Types
// ============================================================================

// OnPaymentRequiredHook runs as soon as a 402 challenge arrives, before
// SelectPaymentRequirements. It is the attachment point for a client-side
// extension that wants to substitute a cached payment or refuse to engage
// with the challenge at all.
type OnPaymentRequiredHook func(PaymentRequiredContext) (*PaymentRequiredHookResult, error)

// BeforePaymentCreationHook runs once a requirement has been selected, just
// before the matching ClientHandler is asked to sign.
type BeforePaymentCreationHook func(PaymentCreationContext) (*PaymentCreationHookResult, error)

// AfterPaymentCreationHook runs once a payload has been successfully signed.
type AfterPaymentCreationHook func(PaymentCreatedContext) error

// OnPaymentCreationFailureHook runs when the handler's CreatePaymentPayload
// call errors.
type OnPaymentCreationFailureHook func(PaymentCreationFailureContext) (*PaymentCreationFailureHookResult, error)
