package x402

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// PaymentClient answers a 402 challenge: given a PaymentRequired response,
// it selects one of the offered PaymentRequirements and asks the
// ClientHandler registered for that (scheme, network) to sign a
// PaymentPayload. It implements the CHALLENGED -> SELECTED -> SIGNED leg of
// the client-side state machine; SENT and RETRIED belong to the transport
// adapter that actually issues the HTTP request.
type PaymentClient struct {
	registry *SchemeRegistry[ClientHandler]
	log      zerolog.Logger

	mu sync.RWMutex

	selector PaymentRequirementsSelector
	policies []PaymentPolicy

	paymentRequired []OnPaymentRequiredHook
	beforeCreate    []BeforePaymentCreationHook
	afterCreate     []AfterPaymentCreationHook
	createFail      []OnPaymentCreationFailureHook
}

// PaymentRequirementsSelector chooses one PaymentRequirements among several
// a route accepts, after PaymentPolicy filtering has run.
type PaymentRequirementsSelector func(version int, candidates []PaymentRequirements) PaymentRequirements

// PaymentPolicy filters or reorders candidates before selection runs, e.g.
// to exclude networks a wallet has no balance on, or to prefer the
// cheapest asset.
type PaymentPolicy func(version int, candidates []PaymentRequirements) []PaymentRequirements

// ClientOption configures a PaymentClient at construction time.
type ClientOption func(*PaymentClient)

// WithPaymentSelector overrides the default first-match selector.
func WithPaymentSelector(selector PaymentRequirementsSelector) ClientOption {
	return func(c *PaymentClient) { c.selector = selector }
}

// WithPolicy registers a PaymentPolicy at construction time.
func WithPolicy(policy PaymentPolicy) ClientOption {
	return func(c *PaymentClient) { c.policies = append(c.policies, policy) }
}

// WithClientScheme registers a ClientHandler at construction time.
func WithClientScheme(networkPattern string, handler ClientHandler) ClientOption {
	return func(c *PaymentClient) { c.Register(networkPattern, handler) }
}

// WithClientLogger attaches a structured logger. The default is disabled.
func WithClientLogger(log zerolog.Logger) ClientOption {
	return func(c *PaymentClient) { c.log = log }
}

// NewPaymentClient constructs a PaymentClient.
func NewPaymentClient(opts ...ClientOption) *PaymentClient {
	c := &PaymentClient{
		registry: NewSchemeRegistry[ClientHandler](),
		selector: firstMatchSelector,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func firstMatchSelector(_ int, candidates []PaymentRequirements) PaymentRequirements {
	return candidates[0]
}

// Register binds handler to (handler.Scheme(), networkPattern).
func (c *PaymentClient) Register(networkPattern string, handler ClientHandler) *PaymentClient {
	c.registry.Register(handler.Scheme(), networkPattern, handler)
	c.log.Debug().Str("scheme", string(handler.Scheme())).Str("network", networkPattern).Msg("payment client: registered handler")
	return c
}

// RegisterPolicy appends a PaymentPolicy. Policies run in registration order.
func (c *PaymentClient) RegisterPolicy(policy PaymentPolicy) *PaymentClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policies = append(c.policies, policy)
	return c
}

// OnPaymentRequired registers a hook run the instant a 402 challenge is
// received, before a requirement has been selected.
func (c *PaymentClient) OnPaymentRequired(h OnPaymentRequiredHook) *PaymentClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paymentRequired = append(c.paymentRequired, h)
	return c
}

func (c *PaymentClient) OnBeforePaymentCreation(h BeforePaymentCreationHook) *PaymentClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.beforeCreate = append(c.beforeCreate, h)
	return c
}

func (c *PaymentClient) OnAfterPaymentCreation(h AfterPaymentCreationHook) *PaymentClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.afterCreate = append(c.afterCreate, h)
	return c
}

func (c *PaymentClient) OnPaymentCreationFailure(h OnPaymentCreationFailureHook) *PaymentClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.createFail = append(c.createFail, h)
	return c
}

// CanPay reports whether a registered ClientHandler exists for at least one
// of required's offered kinds.
func (c *PaymentClient) CanPay(required PaymentRequired) bool {
	for _, r := range required.Accepts {
		if _, ok := c.registry.Lookup(r.Scheme, r.Network); ok {
			return true
		}
	}
	return false
}

// SelectPaymentRequirements narrows required.Accepts to the ones a
// registered handler can sign, runs every PaymentPolicy in registration
// order, then asks the selector to choose exactly one. This is the CHALLENGED ->
// SELECTED transition of the client state machine.
func (c *PaymentClient) SelectPaymentRequirements(required PaymentRequired) (PaymentRequirements, error) {
	c.mu.RLock()
	policies := append([]PaymentPolicy(nil), c.policies...)
	selector := c.selector
	c.mu.RUnlock()

	var supported []PaymentRequirements
	for _, r := range required.Accepts {
		if _, ok := c.registry.Lookup(r.Scheme, r.Network); ok {
			supported = append(supported, r)
		}
	}
	if len(supported) == 0 {
		return PaymentRequirements{}, NewPaymentError("unsupported_scheme", "no registered client handler can pay any offered requirement", map[string]interface{}{
			"x402Version": required.X402Version,
		})
	}

	filtered := supported
	for _, policy := range policies {
		filtered = policy(required.X402Version, filtered)
		if len(filtered) == 0 {
			return PaymentRequirements{}, NewPaymentError("unsupported_scheme", "all offered requirements were filtered out by policy", nil)
		}
	}

	return selector(required.X402Version, filtered), nil
}

// CreatePaymentForRequired runs the full CHALLENGED -> SELECTED -> SIGNED
// transition: it first gives onPaymentRequired a chance to abort or
// substitute a cached payload, then selects a requirement via
// SelectPaymentRequirements, then asks the matching ClientHandler to sign a
// PaymentPayload, running the before/after/failure hook chains around the
// call.
func (c *PaymentClient) CreatePaymentForRequired(ctx context.Context, required PaymentRequired) (PaymentPayload, error) {
	c.mu.RLock()
	requiredHooks := append([]OnPaymentRequiredHook(nil), c.paymentRequired...)
	c.mu.RUnlock()

	requiredCtx := PaymentRequiredContext{Ctx: ctx, PaymentRequired: required}
	for _, h := range requiredHooks {
		result, err := h(requiredCtx)
		if err != nil {
			return PaymentPayload{}, err
		}
		if result == nil {
			continue
		}
		if result.Abort {
			return PaymentPayload{}, fmt.Errorf("x402: payment required hook aborted: %s", result.Reason)
		}
		if result.Substitute != nil {
			return *result.Substitute, nil
		}
	}

	selected, err := c.SelectPaymentRequirements(required)
	if err != nil {
		return PaymentPayload{}, err
	}

	hookCtx := PaymentCreationContext{Ctx: ctx, PaymentRequired: required, SelectedRequirements: selected}

	c.mu.RLock()
	beforeHooks := append([]BeforePaymentCreationHook(nil), c.beforeCreate...)
	afterHooks := append([]AfterPaymentCreationHook(nil), c.afterCreate...)
	failHooks := append([]OnPaymentCreationFailureHook(nil), c.createFail...)
	c.mu.RUnlock()

	for _, h := range beforeHooks {
		result, err := h(hookCtx)
		if err != nil {
			return PaymentPayload{}, err
		}
		if result != nil && result.Abort {
			return PaymentPayload{}, fmt.Errorf("x402: payment creation aborted: %s", result.Reason)
		}
	}

	handler, ok := c.registry.Lookup(selected.Scheme, selected.Network)
	if !ok {
		return PaymentPayload{}, fmt.Errorf("x402: no client handler registered for %s/%s", selected.Scheme, selected.Network)
	}

	payload, err := handler.CreatePaymentPayload(ctx, required.X402Version, selected)
	if err != nil {
		failCtx := PaymentCreationFailureContext{PaymentCreationContext: hookCtx, Error: err}
		for _, h := range failHooks {
			recovery, hookErr := h(failCtx)
			if hookErr != nil {
				c.log.Warn().Err(hookErr).Msg("payment client: onPaymentCreationFailure hook error")
				continue
			}
			if recovery != nil && recovery.Recovered {
				return recovery.Payload, nil
			}
		}
		return PaymentPayload{}, err
	}

	createdCtx := PaymentCreatedContext{PaymentCreationContext: hookCtx, PaymentPayload: payload}
	for _, h := range afterHooks {
		if hookErr := h(createdCtx); hookErr != nil {
			c.log.Warn().Err(hookErr).Msg("payment client: onAfterPaymentCreation hook error")
		}
	}

	return payload, nil
}
