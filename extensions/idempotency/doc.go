// Package idempotency adds settlement deduplication to a Facilitator as
// an opt-in wrapper, rather than a core behavior, so that deployments
// without a need for it (single-shot Lambda handlers, for instance)
// don't pay for a cache they don't use.
//
// # Usage
//
//	base := x402.NewFacilitator().Register("eip155:*", evmHandler)
//	facilitator := idempotency.Wrap(base, idempotency.WithTTL(30*time.Minute))
//
// For a deployment spread across multiple instances, supply a shared
// store instead of the default in-process cache:
//
//	facilitator := idempotency.Wrap(base, idempotency.WithStore(redisStore))
//
// # How it works
//
// Settle hashes the payment payload to a deduplication key. If a prior
// settlement for that key succeeded, its cached SettleResponse is
// returned without invoking the handler. If one is still in flight, the
// call blocks on it instead of racing a second on-chain transaction.
// Failed settlements are never cached, so a legitimate retry proceeds
// normally.
package idempotency
