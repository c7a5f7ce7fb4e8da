package x402

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Facilitator is a thin dispatcher over a SchemeRegistry of
// FacilitatorHandler implementations, coordinating verify/settle hook
// pipelines. It is stateless beyond the registry and the hook chains; it
// never retries a settle automatically (retry policy belongs to the
// handler, which alone knows whether a failure is idempotent).
type Facilitator struct {
	registry   *SchemeRegistry[FacilitatorHandler]
	extensions []string
	log        zerolog.Logger

	mu sync.RWMutex

	beforeVerify []FacilitatorBeforeVerifyHook
	afterVerify  []FacilitatorAfterVerifyHook
	verifyFail   []FacilitatorOnVerifyFailureHook

	beforeSettle []FacilitatorBeforeSettleHook
	afterSettle  []FacilitatorAfterSettleHook
	settleFail   []FacilitatorOnSettleFailureHook
}

// FacilitatorOption configures a Facilitator at construction time.
type FacilitatorOption func(*Facilitator)

// WithFacilitatorLogger attaches a structured logger. The default is
// disabled, so the core stays silent unless a host opts in.
func WithFacilitatorLogger(log zerolog.Logger) FacilitatorOption {
	return func(f *Facilitator) { f.log = log }
}

// NewFacilitator constructs an empty Facilitator.
func NewFacilitator(opts ...FacilitatorOption) *Facilitator {
	f := &Facilitator{
		registry: NewSchemeRegistry[FacilitatorHandler](),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Register binds handler to (scheme, networkPattern). Re-registering the
// same pattern overwrites the previous handler rather than erroring.
func (f *Facilitator) Register(networkPattern string, handler FacilitatorHandler) *Facilitator {
	f.registry.Register(handler.Scheme(), networkPattern, handler)
	f.log.Debug().Str("scheme", string(handler.Scheme())).Str("network", networkPattern).Msg("facilitator: registered handler")
	return f
}

// RegisterExtension declares an extension ID this facilitator advertises in
// Supported's Extensions list.
func (f *Facilitator) RegisterExtension(id string) *Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.extensions {
		if e == id {
			return f
		}
	}
	f.extensions = append(f.extensions, id)
	return f
}

// Hook registration methods. Order of registration is order of execution.

func (f *Facilitator) OnBeforeVerify(h FacilitatorBeforeVerifyHook) *Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beforeVerify = append(f.beforeVerify, h)
	return f
}

func (f *Facilitator) OnAfterVerify(h FacilitatorAfterVerifyHook) *Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.afterVerify = append(f.afterVerify, h)
	return f
}

func (f *Facilitator) OnVerifyFailure(h FacilitatorOnVerifyFailureHook) *Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyFail = append(f.verifyFail, h)
	return f
}

func (f *Facilitator) OnBeforeSettle(h FacilitatorBeforeSettleHook) *Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beforeSettle = append(f.beforeSettle, h)
	return f
}

func (f *Facilitator) OnAfterSettle(h FacilitatorAfterSettleHook) *Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.afterSettle = append(f.afterSettle, h)
	return f
}

func (f *Facilitator) OnSettleFailure(h FacilitatorOnSettleFailureHook) *Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settleFail = append(f.settleFail, h)
	return f
}

// Verify validates payload against requirement and invokes the matching
// handler, running the onBeforeVerify/onVerifyFailure/onAfterVerify hook
// chains. Enforces spec invariant 1: a true result implies scheme/network
// agreement between payload and requirement.
func (f *Facilitator) Verify(ctx context.Context, payload PaymentPayload, requirement PaymentRequirements) (VerifyResponse, error) {
	if !MatchesPayload(payload, requirement) {
		return VerifyResponse{IsValid: false, InvalidReason: InvalidScheme}, nil
	}

	hookCtx := FacilitatorVerifyContext{
		Ctx: ctx, PaymentPayload: payload, Requirement: requirement,
		Timestamp: time.Now(), RequestMetadata: map[string]interface{}{},
	}

	f.mu.RLock()
	beforeHooks := append([]FacilitatorBeforeVerifyHook(nil), f.beforeVerify...)
	afterHooks := append([]FacilitatorAfterVerifyHook(nil), f.afterVerify...)
	failHooks := append([]FacilitatorOnVerifyFailureHook(nil), f.verifyFail...)
	f.mu.RUnlock()

	for _, h := range beforeHooks {
		result, err := h(hookCtx)
		if err != nil {
			return VerifyResponse{IsValid: false, InvalidReason: UnexpectedVerifyError}, err
		}
		if result != nil && result.Abort {
			return VerifyResponse{IsValid: false, InvalidReason: InvalidReason(result.Reason)}, nil
		}
	}

	handler, ok := f.registry.Lookup(requirement.Scheme, requirement.Network)
	if !ok {
		return VerifyResponse{IsValid: false, InvalidReason: InvalidScheme}, fmt.Errorf("x402: no facilitator handler for %s/%s", requirement.Scheme, requirement.Network)
	}

	start := time.Now()
	result, err := handler.Verify(ctx, payload, requirement)
	duration := time.Since(start)

	if err != nil {
		failCtx := FacilitatorVerifyFailureContext{FacilitatorVerifyContext: hookCtx, Error: err, Duration: duration}
		for _, h := range failHooks {
			recovery, hookErr := h(failCtx)
			if hookErr != nil {
				f.log.Warn().Err(hookErr).Msg("facilitator: onVerifyFailure hook error")
				continue
			}
			if recovery != nil && recovery.Recovered {
				return recovery.Result, nil
			}
		}
		f.log.Debug().Err(err).Msg("facilitator: verify error, not recovered")
		return VerifyResponse{IsValid: false, InvalidReason: UnexpectedVerifyError}, err
	}

	if result.IsValid && result.InvalidReason == "" && !MatchesPayload(payload, requirement) {
		// Defensive: a handler must never assert validity across a
		// scheme/network mismatch the dispatcher already rejected above.
		result = VerifyResponse{IsValid: false, InvalidReason: InvalidScheme}
	}

	resultCtx := FacilitatorVerifyResultContext{FacilitatorVerifyContext: hookCtx, Result: result, Duration: duration}
	for _, h := range afterHooks {
		if hookErr := h(resultCtx); hookErr != nil {
			f.log.Warn().Err(hookErr).Msg("facilitator: onAfterVerify hook error")
		}
	}

	return result, nil
}

// Settle submits payload for settlement against requirement, running the
// onBeforeSettle/onSettleFailure/onAfterSettle hook chains. Like Verify,
// this is invoked at most once per request lifecycle by the caller (the
// dispatcher itself never retries); at-most-once enforcement across
// retried requests is the caller's responsibility, typically via
// SettlementCache.
func (f *Facilitator) Settle(ctx context.Context, payload PaymentPayload, requirement PaymentRequirements) (SettleResponse, error) {
	if !MatchesPayload(payload, requirement) {
		return SettleResponse{Success: false, ErrorReason: TransactionFailed, Network: requirement.Network}, nil
	}

	hookCtx := FacilitatorSettleContext{
		Ctx: ctx, PaymentPayload: payload, Requirement: requirement,
		Timestamp: time.Now(), RequestMetadata: map[string]interface{}{},
	}

	f.mu.RLock()
	beforeHooks := append([]FacilitatorBeforeSettleHook(nil), f.beforeSettle...)
	afterHooks := append([]FacilitatorAfterSettleHook(nil), f.afterSettle...)
	failHooks := append([]FacilitatorOnSettleFailureHook(nil), f.settleFail...)
	f.mu.RUnlock()

	for _, h := range beforeHooks {
		result, err := h(hookCtx)
		if err != nil {
			return SettleResponse{Success: false, ErrorReason: UnexpectedSettleError, Network: requirement.Network}, err
		}
		if result != nil && result.Abort {
			return SettleResponse{Success: false, ErrorReason: ErrorReason(result.Reason), Network: requirement.Network}, nil
		}
	}

	handler, ok := f.registry.Lookup(requirement.Scheme, requirement.Network)
	if !ok {
		return SettleResponse{Success: false, ErrorReason: TransactionFailed, Network: requirement.Network}, fmt.Errorf("x402: no facilitator handler for %s/%s", requirement.Scheme, requirement.Network)
	}

	timeout := time.Duration(requirement.MaxTimeoutSeconds) * time.Second
	settleCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		settleCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := handler.Settle(settleCtx, payload, requirement)
	duration := time.Since(start)

	if err != nil {
		failCtx := FacilitatorSettleFailureContext{FacilitatorSettleContext: hookCtx, Error: err, Duration: duration}
		for _, h := range failHooks {
			recovery, hookErr := h(failCtx)
			if hookErr != nil {
				f.log.Warn().Err(hookErr).Msg("facilitator: onSettleFailure hook error")
				continue
			}
			if recovery != nil && recovery.Recovered {
				return recovery.Result, nil
			}
		}
		f.log.Debug().Err(err).Msg("facilitator: settle error, not recovered")
		return SettleResponse{Success: false, ErrorReason: UnexpectedSettleError, Network: requirement.Network}, err
	}

	resultCtx := FacilitatorSettleResultContext{FacilitatorSettleContext: hookCtx, Result: result, Duration: duration}
	for _, h := range afterHooks {
		if hookErr := h(resultCtx); hookErr != nil {
			f.log.Warn().Err(hookErr).Msg("facilitator: onAfterSettle hook error")
		}
	}

	return result, nil
}

// Supported assembles the set of (scheme, network) pairs this facilitator
// can verify/settle, plus its advertised extensions.
func (f *Facilitator) Supported() SupportedResponse {
	f.mu.RLock()
	extensions := append([]string(nil), f.extensions...)
	f.mu.RUnlock()

	resp := SupportedResponse{Extensions: extensions}
	for _, entry := range f.registry.List() {
		resp.Kinds = append(resp.Kinds, SupportedKind{
			X402Version: 2,
			Scheme:      entry.Scheme,
			Network:     Network(entry.Pattern),
		})
	}
	return resp
}

// CanHandle reports whether a handler is registered for (scheme, network).
func (f *Facilitator) CanHandle(scheme Scheme, network Network) bool {
	_, ok := f.registry.Lookup(scheme, network)
	return ok
}

// LocalFacilitatorClient adapts an in-process Facilitator to the
// FacilitatorClient interface, so a ResourceServer can treat a
// composed-in facilitator identically to a remote one reached over HTTP.
type LocalFacilitatorClient struct {
	Facilitator *Facilitator
}

// NewLocalFacilitatorClient wraps facilitator for in-process use.
func NewLocalFacilitatorClient(facilitator *Facilitator) *LocalFacilitatorClient {
	return &LocalFacilitatorClient{Facilitator: facilitator}
}

func (c *LocalFacilitatorClient) Verify(ctx context.Context, payload PaymentPayload, requirement PaymentRequirements) (VerifyResponse, error) {
	return c.Facilitator.Verify(ctx, payload, requirement)
}

func (c *LocalFacilitatorClient) Settle(ctx context.Context, payload PaymentPayload, requirement PaymentRequirements) (SettleResponse, error) {
	return c.Facilitator.Settle(ctx, payload, requirement)
}

func (c *LocalFacilitatorClient) GetSupported(ctx context.Context) (SupportedResponse, error) {
	return c.Facilitator.Supported(), nil
}

var _ FacilitatorClient = (*LocalFacilitatorClient)(nil)
