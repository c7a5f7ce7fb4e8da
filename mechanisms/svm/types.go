// Package svm is a reference implementation of the "exact" scheme over
// solana:* networks, authorizing payment with a signed SPL Token
// TransferChecked transaction.
package svm

import (
	"context"

	solana "github.com/gagliardetto/solana-go"
)

// SchemeExact is the only scheme this package registers.
const SchemeExact = "exact"

// ExactSvmPayload is the scheme-specific payload carried inside
// PaymentPayload.Payload: a fully signed, not-yet-submitted transaction
// encoding exactly one SPL TransferChecked instruction.
type ExactSvmPayload struct {
	Transaction string `json:"transaction"` // base64-encoded, signed solana.Transaction
}

// AssetInfo describes an SPL token mint.
type AssetInfo struct {
	Address  string // base58 mint address
	Decimals uint8
}

// NetworkConfig is the per-cluster configuration keyed by CAIP-2 network ID
// in NetworkConfigs.
type NetworkConfig struct {
	CAIP2        string
	DefaultAsset AssetInfo
}

// ClientSigner is the capability a wallet integration exposes to
// SvmClientHandler: an address, a recent blockhash source, and the ability
// to sign a transaction.
type ClientSigner interface {
	PublicKey() solana.PublicKey
	RecentBlockhash(ctx context.Context) (solana.Hash, error)
	SignTransaction(ctx context.Context, tx *solana.Transaction) error
}

// FacilitatorSubmitter is the capability a chain integration exposes to
// SvmFacilitatorHandler: submitting a signed transaction and waiting for
// its confirmation.
type FacilitatorSubmitter interface {
	SubmitTransaction(ctx context.Context, tx *solana.Transaction) (signature string, err error)
	ConfirmTransaction(ctx context.Context, signature string) (confirmed bool, err error)
}
