package x402

import (
	"context"
	"time"
)

// ============================================================================
// Resource Server Hook Context Types
// ============================================================================

// ServerVerifyContext is passed to every server-side verify hook. It
// wraps the same (payload, requirement) pair the Resource Server is about
// to forward to a FacilitatorClient.
type ServerVerifyContext struct {
	Ctx             context.Context
	Payload         PaymentPayload
	Requirement     PaymentRequirements
	Timestamp       time.Time
	RequestMetadata map[string]interface{}
}

// ServerVerifyResultContext is passed to onAfterVerify.
type ServerVerifyResultContext struct {
	ServerVerifyContext
	Result   VerifyResponse
	Duration time.Duration
}

// ServerVerifyFailureContext is passed to onVerifyFailure.
type ServerVerifyFailureContext struct {
	ServerVerifyContext
	Error    error
	Duration time.Duration
}

// ServerSettleContext is passed to every server-side settle hook.
type ServerSettleContext struct {
	Ctx             context.Context
	Payload         PaymentPayload
	Requirement     PaymentRequirements
	Timestamp       time.Time
	RequestMetadata map[string]interface{}
}

// ServerSettleResultContext is passed to onAfterSettle.
type ServerSettleResultContext struct {
	ServerSettleContext
	Result   SettleResponse
	Duration time.Duration
}

// ServerSettleFailureContext is passed to onSettleFailure.
type ServerSettleFailureContext struct {
	ServerSettleContext
	Error    error
	Duration time.Duration
}

// ProtectedRequestContext is passed to onProtectedRequest, once per inbound
// request to a registered route, before requirement matching and
// verification. Payload is the already-decoded payment header, or nil if
// the request carried none.
type ProtectedRequestContext struct {
	Ctx     context.Context
	Request *RequestContext
	Binding RouteBinding
	Payload *PaymentPayload
}

// ============================================================================
// Resource Server Hook Result Types
// ============================================================================

// ServerBeforeHookResult short-circuits the verify/settle pipeline when
// Abort is true.
type ServerBeforeHookResult struct {
	Abort  bool
	Reason string
}

// ProtectedRequestHookResult is onProtectedRequest's result. Abort rejects
// the request with a 402 challenge before payment processing begins, e.g.
// for rate limiting. GrantAccess skips verification and settlement
// entirely and, if CachedSettleResponse is set, has the transport adapter
// report it as this request's settlement outcome, e.g. for an idempotency
// cache hit. Conflict rejects the request with a 409 instead of a 402,
// for a replayed identifier whose payload no longer matches what was
// cached against it.
type ProtectedRequestHookResult struct {
	Abort                bool
	Reason               string
	GrantAccess          bool
	CachedSettleResponse *SettleResponse
	Conflict             bool
}

// ServerVerifyFailureHookResult lets an onVerifyFailure hook recover from a
// FacilitatorClient error by substituting a result.
type ServerVerifyFailureHookResult struct {
	Recovered bool
	Result    VerifyResponse
}

// ServerSettleFailureHookResult is the settle-side equivalent.
type ServerSettleFailureHookResult struct {
	Recovered bool
	Result    SettleResponse
}

// ============================================================================
// Resource Server Hook Function Types
// ============================================================================

// ServerBeforeVerifyHook runs before the Resource Server calls out to a
// FacilitatorClient's Verify.
type ServerBeforeVerifyHook func(ServerVerifyContext) (*ServerBeforeHookResult, error)

// ServerAfterVerifyHook runs after a verify call that returned without
// error, whether the payment was valid or not. Its error is logged only.
type ServerAfterVerifyHook func(ServerVerifyResultContext) error

// ServerOnVerifyFailureHook runs when the FacilitatorClient call itself
// errors (transport failure, timeout).
type ServerOnVerifyFailureHook func(ServerVerifyFailureContext) (*ServerVerifyFailureHookResult, error)

// ServerBeforeSettleHook runs before the Resource Server calls out to a
// FacilitatorClient's Settle.
type ServerBeforeSettleHook func(ServerSettleContext) (*ServerBeforeHookResult, error)

// ServerAfterSettleHook runs after a settle call that returned without
// error, whether or not Result.Success is true.
type ServerAfterSettleHook func(ServerSettleResultContext) error

// ServerOnSettleFailureHook runs when the FacilitatorClient's Settle call
// errors.
type ServerOnSettleFailureHook func(ServerSettleFailureContext) (*ServerSettleFailureHookResult, error)

// OnProtectedRequestHook runs once per inbound request to a registered
// route, before requirement matching and verification. See ProtectedRequestHookResult
// for the three ways it can short-circuit the payment pipeline.
type OnProtectedRequestHook func(ProtectedRequestContext) (*ProtectedRequestHookResult, error)

// ============================================================================
// Resource Server Hook Registration Methods
// ============================================================================

func (s *ResourceServer) OnBeforeVerify(h ServerBeforeVerifyHook) *ResourceServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeVerify = append(s.beforeVerify, h)
	return s
}

func (s *ResourceServer) OnAfterVerify(h ServerAfterVerifyHook) *ResourceServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.afterVerify = append(s.afterVerify, h)
	return s
}

func (s *ResourceServer) OnVerifyFailure(h ServerOnVerifyFailureHook) *ResourceServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifyFail = append(s.verifyFail, h)
	return s
}

func (s *ResourceServer) OnBeforeSettle(h ServerBeforeSettleHook) *ResourceServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeSettle = append(s.beforeSettle, h)
	return s
}

func (s *ResourceServer) OnAfterSettle(h ServerAfterSettleHook) *ResourceServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.afterSettle = append(s.afterSettle, h)
	return s
}

func (s *ResourceServer) OnSettleFailure(h ServerOnSettleFailureHook) *ResourceServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settleFail = append(s.settleFail, h)
	return s
}

// OnProtectedRequest registers a hook run once per inbound request to a
// registered route, ahead of requirement matching and verification.
func (s *ResourceServer) OnProtectedRequest(h OnProtectedRequestHook) *ResourceServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onProtectedRequest = append(s.onProtectedRequest, h)
	return s
}
