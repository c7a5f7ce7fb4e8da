package paymentidentifier

import (
	"time"

	x402 "github.com/x402core/x402"
)

// ReplayGuard implements the server half of the payment identifier
// extension: skip verification and settlement for a request that repeats
// an already-settled identifier with the exact same payload (grantAccess),
// and reject with a conflict a request that reuses the identifier with a
// different payload. It is backed by the core's own SettlementCache, keyed
// by payment identifier instead of a payload hash, with PayloadFingerprint
// standing in for the "is this the same payment" comparison a raw payload
// hash would otherwise do.
type ReplayGuard struct {
	cache *x402.SettlementCache
}

// NewReplayGuard returns a ReplayGuard that remembers settled identifiers
// for ttl.
func NewReplayGuard(ttl time.Duration) *ReplayGuard {
	return &ReplayGuard{cache: x402.NewSettlementCache(ttl)}
}

// ProtectedRequestHook returns an x402.OnProtectedRequestHook suitable for
// ResourceServer.OnProtectedRequest. A request with no payment identifier,
// or one for an identifier this guard hasn't seen settle yet, passes
// through unchanged (nil, nil) and proceeds through normal verify/settle.
func (g *ReplayGuard) ProtectedRequestHook() x402.OnProtectedRequestHook {
	return func(reqCtx x402.ProtectedRequestContext) (*x402.ProtectedRequestHookResult, error) {
		if reqCtx.Payload == nil {
			return nil, nil
		}
		id, err := ExtractPaymentIdentifier(*reqCtx.Payload, true)
		if err != nil {
			return &x402.ProtectedRequestHookResult{Conflict: true, Reason: err.Error()}, nil
		}
		if id == "" {
			return nil, nil
		}
		fingerprint, err := PayloadFingerprint(*reqCtx.Payload)
		if err != nil {
			return nil, err
		}

		cached, conflict := g.cache.CheckReplay(id, fingerprint)
		if conflict {
			return &x402.ProtectedRequestHookResult{
				Conflict: true,
				Reason:   "payment identifier " + id + " was already used with a different payment",
			}, nil
		}
		if cached != nil {
			return &x402.ProtectedRequestHookResult{GrantAccess: true, CachedSettleResponse: cached}, nil
		}
		return nil, nil
	}
}

// AfterSettleHook returns an x402.ServerAfterSettleHook that records a
// successful settlement against its payload's payment identifier, if any,
// so a later replay of that identifier can be recognized by
// ProtectedRequestHook. Requests without the extension are ignored.
func (g *ReplayGuard) AfterSettleHook() x402.ServerAfterSettleHook {
	return func(resultCtx x402.ServerSettleResultContext) error {
		if !resultCtx.Result.Success {
			return nil
		}
		id, err := ExtractPaymentIdentifier(resultCtx.Payload, false)
		if err != nil || id == "" {
			return nil
		}
		fingerprint, err := PayloadFingerprint(resultCtx.Payload)
		if err != nil {
			return nil
		}

		status, _, done := g.cache.CheckAndMark(id)
		if status != x402.StatusNotFound {
			// Already cached or being completed by a concurrent settle of
			// the same identifier; nothing more to record.
			return nil
		}
		result := resultCtx.Result
		g.cache.CompleteWithFingerprint(id, fingerprint, &result, done)
		return nil
	}
}

// Install registers both of the guard's hooks on server.
func (g *ReplayGuard) Install(server *x402.ResourceServer) {
	server.OnProtectedRequest(g.ProtectedRequestHook())
	server.OnAfterSettle(g.AfterSettleHook())
}
