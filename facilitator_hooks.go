package x402

import (
	"context"
	"time"
)

// ============================================================================
// Facilitator Hook Context Types
// ============================================================================

// FacilitatorVerifyContext is passed to every verify hook.
type FacilitatorVerifyContext struct {
	Ctx             context.Context
	PaymentPayload  PaymentPayload
	Requirement     PaymentRequirements
	Timestamp       time.Time
	RequestMetadata map[string]interface{}
}

// FacilitatorVerifyResultContext is passed to onAfterVerify.
type FacilitatorVerifyResultContext struct {
	FacilitatorVerifyContext
	Result   VerifyResponse
	Duration time.Duration
}

// FacilitatorVerifyFailureContext is passed to onVerifyFailure.
type FacilitatorVerifyFailureContext struct {
	FacilitatorVerifyContext
	Error    error
	Duration time.Duration
}

// FacilitatorSettleContext is passed to every settle hook.
type FacilitatorSettleContext struct {
	Ctx             context.Context
	PaymentPayload  PaymentPayload
	Requirement     PaymentRequirements
	Timestamp       time.Time
	RequestMetadata map[string]interface{}
}

// FacilitatorSettleResultContext is passed to onAfterSettle.
type FacilitatorSettleResultContext struct {
	FacilitatorSettleContext
	Result   SettleResponse
	Duration time.Duration
}

// FacilitatorSettleFailureContext is passed to onSettleFailure.
type FacilitatorSettleFailureContext struct {
	FacilitatorSettleContext
	Error    error
	Duration time.Duration
}

// ============================================================================
// Facilitator Hook Result Types
// ============================================================================

// FacilitatorBeforeHookResult short-circuits the pipeline when Abort is true.
type FacilitatorBeforeHookResult struct {
	Abort  bool
	Reason string
}

// FacilitatorVerifyFailureHookResult lets an onVerifyFailure hook recover
// from an error by substituting a successful-shaped VerifyResponse.
type FacilitatorVerifyFailureHookResult struct {
	Recovered bool
	Result    VerifyResponse
}

// FacilitatorSettleFailureHookResult is the settle-side equivalent.
type FacilitatorSettleFailureHookResult struct {
	Recovered bool
	Result    SettleResponse
}

// ============================================================================
// Facilitator Hook Function Types
// ============================================================================

// FacilitatorBeforeVerifyHook runs before verify. Abort=true short-circuits
// with an invalid VerifyResponse carrying Reason.
type FacilitatorBeforeVerifyHook func(FacilitatorVerifyContext) (*FacilitatorBeforeHookResult, error)

// FacilitatorAfterVerifyHook runs after a verify that returned without
// error, whether the payment was valid or not. Its error is logged, never
// surfaced to the caller.
type FacilitatorAfterVerifyHook func(FacilitatorVerifyResultContext) error

// FacilitatorOnVerifyFailureHook runs when the handler's Verify call itself
// errors (not merely returns isValid=false). Recovered=true substitutes Result.
type FacilitatorOnVerifyFailureHook func(FacilitatorVerifyFailureContext) (*FacilitatorVerifyFailureHookResult, error)

// FacilitatorBeforeSettleHook is the settle-side equivalent of
// FacilitatorBeforeVerifyHook.
type FacilitatorBeforeSettleHook func(FacilitatorSettleContext) (*FacilitatorBeforeHookResult, error)

// FacilitatorAfterSettleHook runs after a settle that returned without
// error, whether or not Result.Success is true.
type FacilitatorAfterSettleHook func(FacilitatorSettleResultContext) error

// FacilitatorOnSettleFailureHook runs when the handler's Settle call errors.
type FacilitatorOnSettleFailureHook func(FacilitatorSettleFailureContext) (*FacilitatorSettleFailureHookResult, error)
