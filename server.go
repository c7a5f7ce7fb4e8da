package x402

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// defaultMaxTimeoutSeconds is applied to every PaymentRequirements built by
// BuildPaymentRequirements; RouteBinding has no field that overrides it.
const defaultMaxTimeoutSeconds = 300

// ResourceServer gates routes behind a 402 challenge: it owns the routing
// table, a registry of ServerHandler implementations (one per scheme), and
// zero or more FacilitatorClients it consults to verify and settle the
// payments those routes receive. It is the only core of the three that
// talks to facilitators purely as a client — it never implements Verify or
// Settle itself.
type ResourceServer struct {
	registry *SchemeRegistry[ServerHandler]
	routes   map[string]RouteBinding // "METHOD path" -> binding

	facilitators         []FacilitatorClient
	facilitatorByKind    map[Scheme]map[Network][]FacilitatorClient // populated by Initialize
	registeredExtensions map[string]bool

	log zerolog.Logger

	mu sync.RWMutex

	beforeVerify []ServerBeforeVerifyHook
	afterVerify  []ServerAfterVerifyHook
	verifyFail   []ServerOnVerifyFailureHook

	beforeSettle []ServerBeforeSettleHook
	afterSettle  []ServerAfterSettleHook
	settleFail   []ServerOnSettleFailureHook

	onProtectedRequest []OnProtectedRequestHook
}

// ResourceServerOption configures a ResourceServer at construction time.
type ResourceServerOption func(*ResourceServer)

// WithFacilitatorClient adds a facilitator this server may route verify/
// settle calls to. Clients are tried in the order added; the first one
// that advertises support for a route's (scheme, network) wins, via
// Initialize's precomputed index.
func WithFacilitatorClient(client FacilitatorClient) ResourceServerOption {
	return func(s *ResourceServer) { s.facilitators = append(s.facilitators, client) }
}

// WithSchemeServer registers a ServerHandler for networkPattern at
// construction time, equivalent to calling Register after NewResourceServer.
func WithSchemeServer(networkPattern string, handler ServerHandler) ResourceServerOption {
	return func(s *ResourceServer) { s.Register(networkPattern, handler) }
}

// WithServerLogger attaches a structured logger. The default is disabled.
func WithServerLogger(log zerolog.Logger) ResourceServerOption {
	return func(s *ResourceServer) { s.log = log }
}

// NewResourceServer constructs a ResourceServer. Callers must call
// Initialize before serving any request, so the facilitator support index
// is populated.
func NewResourceServer(opts ...ResourceServerOption) *ResourceServer {
	s := &ResourceServer{
		registry:             NewSchemeRegistry[ServerHandler](),
		routes:               make(map[string]RouteBinding),
		registeredExtensions: make(map[string]bool),
		log:                  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func routeKey(method, path string) string { return method + " " + path }

// Register binds a ServerHandler to (handler.Scheme(), networkPattern).
func (s *ResourceServer) Register(networkPattern string, handler ServerHandler) *ResourceServer {
	s.registry.Register(handler.Scheme(), networkPattern, handler)
	s.log.Debug().Str("scheme", string(handler.Scheme())).Str("network", networkPattern).Msg("resource server: registered handler")
	return s
}

// RegisterRoute adds a protected route to the routing table. Re-registering
// the same (method, path) overwrites the prior binding.
func (s *ResourceServer) RegisterRoute(binding RouteBinding) *ResourceServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[routeKey(binding.Method, binding.Path)] = binding
	return s
}

// RegisterExtension declares an extension ID this server may attach to
// outgoing PaymentRequired/PaymentRequirements documents.
func (s *ResourceServer) RegisterExtension(id string) *ResourceServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registeredExtensions[id] = true
	return s
}

// FindRoute looks up the binding for (method, path), matching a trailing
// "/*" wildcard suffix if no exact entry exists.
func (s *ResourceServer) FindRoute(method, path string) (RouteBinding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.routes[routeKey(method, path)]; ok {
		return b, true
	}
	for _, b := range s.routes {
		if b.Method != method {
			continue
		}
		if prefix, ok := wildcardPrefix(b.Path); ok && len(path) >= len(prefix) && path[:len(prefix)] == prefix {
			return b, true
		}
	}
	return RouteBinding{}, false
}

func wildcardPrefix(pattern string) (string, bool) {
	const suffix = "/*"
	if len(pattern) < len(suffix) || pattern[len(pattern)-len(suffix):] != suffix {
		return "", false
	}
	return pattern[:len(pattern)-1], true // keep the trailing slash
}

// Initialize probes every registered FacilitatorClient's GetSupported
// concurrently and builds the (scheme, network) -> clients index used by
// SelectFacilitator. Facilitators are probed in parallel since each is an
// independent network round trip; a facilitator that errors is logged and
// excluded, it does not fail Initialize as a whole unless every
// facilitator errors.
func (s *ResourceServer) Initialize(ctx context.Context) error {
	if len(s.facilitators) == 0 {
		return &ConfigError{Component: "ResourceServer", Reason: "no facilitator clients registered"}
	}

	type probeResult struct {
		client FacilitatorClient
		kinds  []SupportedKind
	}
	results := make([]probeResult, len(s.facilitators))

	g, gctx := errgroup.WithContext(ctx)
	for i, client := range s.facilitators {
		i, client := i, client
		g.Go(func() error {
			supported, err := client.GetSupported(gctx)
			if err != nil {
				s.log.Warn().Err(err).Int("facilitator_index", i).Msg("resource server: facilitator supported probe failed")
				return nil // excluded below, not fatal
			}
			results[i] = probeResult{client: client, kinds: supported.Kinds}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	index := make(map[Scheme]map[Network][]FacilitatorClient)
	anySucceeded := false
	for _, r := range results {
		if r.client == nil {
			continue
		}
		anySucceeded = true
		for _, kind := range r.kinds {
			if index[kind.Scheme] == nil {
				index[kind.Scheme] = make(map[Network][]FacilitatorClient)
			}
			index[kind.Scheme][kind.Network] = append(index[kind.Scheme][kind.Network], r.client)
		}
	}
	if !anySucceeded {
		return fmt.Errorf("x402: resource server initialize: all facilitators failed to report supported kinds")
	}

	s.mu.Lock()
	s.facilitatorByKind = index
	s.mu.Unlock()
	return nil
}

// SelectFacilitator returns the first FacilitatorClient that advertised
// exact support for (scheme, network) during Initialize, falling back to
// any facilitator whose support list carries a matching namespace
// wildcard, and finally to the first configured facilitator whenever the
// index holds no match (e.g. Initialize has not run or every probe failed
// for this kind but the handler set still matches locally).
func (s *ResourceServer) SelectFacilitator(scheme Scheme, network Network) (FacilitatorClient, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if byNetwork, ok := s.facilitatorByKind[scheme]; ok {
		if clients, ok := byNetwork[network]; ok && len(clients) > 0 {
			return clients[0], true
		}
		for n, clients := range byNetwork {
			if network.Match(string(n)) && len(clients) > 0 {
				return clients[0], true
			}
		}
	}
	if len(s.facilitators) > 0 {
		return s.facilitators[0], true
	}
	return nil, false
}

// BuildPaymentRequirements assembles the PaymentRequirements for each entry
// in binding's resolved accepts list, by dispatching to the ServerHandler
// registered for that entry's (scheme, network).
func (s *ResourceServer) BuildPaymentRequirements(ctx context.Context, binding RouteBinding, reqCtx *RequestContext) ([]PaymentRequirements, error) {
	entries := binding.Accepts.Resolve(reqCtx)
	if len(entries) == 0 {
		return nil, &ConfigError{Component: "ResourceServer", Reason: fmt.Sprintf("route %s %s has no accepted payment kinds", binding.Method, binding.Path)}
	}

	extensionKeys := s.extensionKeys()

	out := make([]PaymentRequirements, 0, len(entries))
	for _, entry := range entries {
		handler, ok := s.registry.Lookup(entry.Scheme, entry.Network)
		if !ok {
			return nil, fmt.Errorf("x402: no server handler registered for %s/%s", entry.Scheme, entry.Network)
		}

		amount, err := handler.ParsePrice(ctx, entry.Price, entry.Network)
		if err != nil {
			return nil, fmt.Errorf("x402: parse price for %s/%s: %w", entry.Scheme, entry.Network, err)
		}
		asset := entry.Asset
		if asset == "" {
			asset = amount.Asset
		}

		base := PaymentRequirements{
			Scheme:            entry.Scheme,
			Network:           entry.Network,
			PayTo:             entry.PayTo,
			Asset:             asset,
			Amount:            amount.Amount,
			MaxTimeoutSeconds: defaultMaxTimeoutSeconds,
			Resource:          binding.Path,
			Description:       binding.Description,
			MimeType:          binding.MimeType,
			Extra:             amount.Extra,
		}

		enriched, err := handler.EnhanceRequirements(ctx, base, SupportedKind{Scheme: entry.Scheme, Network: entry.Network}, extensionKeys)
		if err != nil {
			return nil, fmt.Errorf("x402: enhance requirements for %s/%s: %w", entry.Scheme, entry.Network, err)
		}
		out = append(out, enriched)
	}
	return out, nil
}

func (s *ResourceServer) extensionKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.registeredExtensions))
	for k := range s.registeredExtensions {
		keys = append(keys, k)
	}
	return keys
}

// CreatePaymentRequiredResponse builds the 402 body for a request that
// reached binding without a valid payment.
func (s *ResourceServer) CreatePaymentRequiredResponse(ctx context.Context, binding RouteBinding, reqCtx *RequestContext, version int, errReason string) (PaymentRequired, error) {
	accepts, err := s.BuildPaymentRequirements(ctx, binding, reqCtx)
	if err != nil {
		return PaymentRequired{}, err
	}
	resp := PaymentRequired{
		X402Version: version,
		Error:       errReason,
		Accepts:     accepts,
	}
	if binding.Description != "" || binding.MimeType != "" {
		resp.Resource = &ResourceInfo{URL: binding.Path, Description: binding.Description, MimeType: binding.MimeType}
	}
	return resp, nil
}

// RequestOutcome enumerates the five shapes ProcessPaymentRequest can
// resolve a request to.
type RequestOutcome int

const (
	// OutcomeNoPayment means the request carried no payment header and
	// must be answered with a 402 challenge (PaymentRequired is set).
	OutcomeNoPayment RequestOutcome = iota
	// OutcomePaymentError means a payment header was present but invalid,
	// expired, or rejected by verify, or an onProtectedRequest hook
	// aborted it (PaymentRequired is set; Verification is set only when
	// the payload was matched against a requirement or verified).
	OutcomePaymentError
	// OutcomePaymentVerified means the payment passed verification and
	// the caller should proceed to settlement and then the protected
	// handler.
	OutcomePaymentVerified
	// OutcomeAccessGranted means an onProtectedRequest hook granted
	// access without verification or settlement running at all (e.g. an
	// idempotency cache hit on a replayed payment identifier). The
	// caller should proceed straight to the protected handler;
	// CachedSettleResponse, if set, is what a transport adapter should
	// report as this request's settlement outcome instead of calling
	// SettlePayment.
	OutcomeAccessGranted
	// OutcomeConflict means an onProtectedRequest hook rejected the
	// request as a conflicting replay (e.g. the same payment identifier
	// reused with a different payload) and it should be answered with a
	// 409 rather than a 402.
	OutcomeConflict
)

// ProcessResult is what a transport adapter needs to respond to one
// inbound request: either a 402 challenge to emit, a 409 conflict, or
// confirmation that the request's payment passed verification (or was
// granted access outright) and the matched requirement it paid against.
type ProcessResult struct {
	Outcome              RequestOutcome
	PaymentRequired      *PaymentRequired
	Verification         *VerifyResponse
	MatchedPayload       *PaymentPayload
	Requirement          *PaymentRequirements
	CachedSettleResponse *SettleResponse
	ConflictReason       string
}

// ProcessPaymentRequest is the core operation a transport adapter calls
// once per request to a protected route. It never touches wire framing:
// payload, if non-nil, is expected already decoded by the adapter from
// whatever header carries it (X-PAYMENT, payment-signature); the core does
// not know about header names.
func (s *ResourceServer) ProcessPaymentRequest(ctx context.Context, binding RouteBinding, reqCtx *RequestContext, payload *PaymentPayload) (*ProcessResult, error) {
	for _, h := range s.snapshotProtectedRequestHooks() {
		result, err := h(ProtectedRequestContext{Ctx: ctx, Request: reqCtx, Binding: binding, Payload: payload})
		if err != nil {
			return nil, err
		}
		if result == nil {
			continue
		}
		if result.GrantAccess {
			return &ProcessResult{
				Outcome:              OutcomeAccessGranted,
				MatchedPayload:       payload,
				CachedSettleResponse: result.CachedSettleResponse,
			}, nil
		}
		if result.Conflict {
			return &ProcessResult{Outcome: OutcomeConflict, ConflictReason: result.Reason}, nil
		}
		if result.Abort {
			pr, buildErr := s.CreatePaymentRequiredResponse(ctx, binding, reqCtx, 2, result.Reason)
			if buildErr != nil {
				return nil, buildErr
			}
			return &ProcessResult{Outcome: OutcomePaymentError, PaymentRequired: &pr}, nil
		}
	}

	accepts, err := s.BuildPaymentRequirements(ctx, binding, reqCtx)
	if err != nil {
		return nil, err
	}

	if payload == nil {
		pr := PaymentRequired{X402Version: 2, Accepts: accepts}
		if binding.Description != "" || binding.MimeType != "" {
			pr.Resource = &ResourceInfo{URL: binding.Path, Description: binding.Description, MimeType: binding.MimeType}
		}
		return &ProcessResult{Outcome: OutcomeNoPayment, PaymentRequired: &pr}, nil
	}

	requirement, ok := FindMatchingRequirement(*payload, accepts)
	if !ok {
		pr, buildErr := s.CreatePaymentRequiredResponse(ctx, binding, reqCtx, NegotiateVersion(payload.X402Version, 2), string(InvalidScheme))
		if buildErr != nil {
			return nil, buildErr
		}
		invalid := VerifyResponse{IsValid: false, InvalidReason: InvalidScheme}
		return &ProcessResult{Outcome: OutcomePaymentError, PaymentRequired: &pr, Verification: &invalid}, nil
	}

	verification, err := s.VerifyPayment(ctx, *payload, requirement)
	if err != nil {
		return nil, err
	}
	if !verification.IsValid {
		pr, buildErr := s.CreatePaymentRequiredResponse(ctx, binding, reqCtx, NegotiateVersion(payload.X402Version, 2), string(verification.InvalidReason))
		if buildErr != nil {
			return nil, buildErr
		}
		return &ProcessResult{Outcome: OutcomePaymentError, PaymentRequired: &pr, Verification: &verification}, nil
	}

	return &ProcessResult{
		Outcome:        OutcomePaymentVerified,
		Verification:   &verification,
		MatchedPayload: payload,
		Requirement:    &requirement,
	}, nil
}

func (s *ResourceServer) snapshotProtectedRequestHooks() []OnProtectedRequestHook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]OnProtectedRequestHook(nil), s.onProtectedRequest...)
}

// VerifyPayment routes (payload, requirement) to the selected
// FacilitatorClient's Verify, running the server-side before/after/failure
// hook chains around the call.
func (s *ResourceServer) VerifyPayment(ctx context.Context, payload PaymentPayload, requirement PaymentRequirements) (VerifyResponse, error) {
	hookCtx := ServerVerifyContext{Ctx: ctx, Payload: payload, Requirement: requirement, Timestamp: time.Now(), RequestMetadata: map[string]interface{}{}}

	s.mu.RLock()
	beforeHooks := append([]ServerBeforeVerifyHook(nil), s.beforeVerify...)
	afterHooks := append([]ServerAfterVerifyHook(nil), s.afterVerify...)
	failHooks := append([]ServerOnVerifyFailureHook(nil), s.verifyFail...)
	s.mu.RUnlock()

	for _, h := range beforeHooks {
		result, err := h(hookCtx)
		if err != nil {
			return VerifyResponse{IsValid: false, InvalidReason: UnexpectedVerifyError}, err
		}
		if result != nil && result.Abort {
			return VerifyResponse{IsValid: false, InvalidReason: InvalidReason(result.Reason)}, nil
		}
	}

	client, ok := s.SelectFacilitator(requirement.Scheme, requirement.Network)
	if !ok {
		return VerifyResponse{IsValid: false, InvalidReason: InvalidScheme}, fmt.Errorf("x402: no facilitator available for %s/%s", requirement.Scheme, requirement.Network)
	}

	start := time.Now()
	result, err := client.Verify(ctx, payload, requirement)
	duration := time.Since(start)

	if err != nil {
		failCtx := ServerVerifyFailureContext{ServerVerifyContext: hookCtx, Error: err, Duration: duration}
		for _, h := range failHooks {
			recovery, hookErr := h(failCtx)
			if hookErr != nil {
				s.log.Warn().Err(hookErr).Msg("resource server: onVerifyFailure hook error")
				continue
			}
			if recovery != nil && recovery.Recovered {
				return recovery.Result, nil
			}
		}
		return VerifyResponse{IsValid: false, InvalidReason: UnexpectedVerifyError}, err
	}

	resultCtx := ServerVerifyResultContext{ServerVerifyContext: hookCtx, Result: result, Duration: duration}
	for _, h := range afterHooks {
		if hookErr := h(resultCtx); hookErr != nil {
			s.log.Warn().Err(hookErr).Msg("resource server: onAfterVerify hook error")
		}
	}
	return result, nil
}

// SettlePayment routes (payload, requirement) to the selected
// FacilitatorClient's Settle, running the server-side before/after/failure
// hook chains around the call. Callers are responsible for enforcing
// at-most-once submission across retries (see SettlementCache); this
// method performs exactly one settle attempt.
func (s *ResourceServer) SettlePayment(ctx context.Context, payload PaymentPayload, requirement PaymentRequirements) (SettleResponse, error) {
	hookCtx := ServerSettleContext{Ctx: ctx, Payload: payload, Requirement: requirement, Timestamp: time.Now(), RequestMetadata: map[string]interface{}{}}

	s.mu.RLock()
	beforeHooks := append([]ServerBeforeSettleHook(nil), s.beforeSettle...)
	afterHooks := append([]ServerAfterSettleHook(nil), s.afterSettle...)
	failHooks := append([]ServerOnSettleFailureHook(nil), s.settleFail...)
	s.mu.RUnlock()

	for _, h := range beforeHooks {
		result, err := h(hookCtx)
		if err != nil {
			return SettleResponse{Success: false, ErrorReason: UnexpectedSettleError, Network: requirement.Network}, err
		}
		if result != nil && result.Abort {
			return SettleResponse{Success: false, ErrorReason: ErrorReason(result.Reason), Network: requirement.Network}, nil
		}
	}

	client, ok := s.SelectFacilitator(requirement.Scheme, requirement.Network)
	if !ok {
		return SettleResponse{Success: false, ErrorReason: TransactionFailed, Network: requirement.Network}, fmt.Errorf("x402: no facilitator available for %s/%s", requirement.Scheme, requirement.Network)
	}

	start := time.Now()
	result, err := client.Settle(ctx, payload, requirement)
	duration := time.Since(start)

	if err != nil {
		failCtx := ServerSettleFailureContext{ServerSettleContext: hookCtx, Error: err, Duration: duration}
		for _, h := range failHooks {
			recovery, hookErr := h(failCtx)
			if hookErr != nil {
				s.log.Warn().Err(hookErr).Msg("resource server: onSettleFailure hook error")
				continue
			}
			if recovery != nil && recovery.Recovered {
				return recovery.Result, nil
			}
		}
		return SettleResponse{Success: false, ErrorReason: UnexpectedSettleError, Network: requirement.Network}, err
	}

	resultCtx := ServerSettleResultContext{ServerSettleContext: hookCtx, Result: result, Duration: duration}
	for _, h := range afterHooks {
		if hookErr := h(resultCtx); hookErr != nil {
			s.log.Warn().Err(hookErr).Msg("resource server: onAfterSettle hook error")
		}
	}
	return result, nil
}
