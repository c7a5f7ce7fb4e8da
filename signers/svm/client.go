// Package svm provides an Ed25519-backed implementation of the ClientSigner
// interface mechanisms/svm registers for wallet-side transaction signing.
package svm

import (
	"context"
	"fmt"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	x402svm "github.com/x402core/x402/mechanisms/svm"
)

// SignTransactionFunc signs tx in place, adding the signer's signature at
// its account index.
type SignTransactionFunc func(ctx context.Context, tx *solana.Transaction) error

// ClientSigner implements x402svm.ClientSigner using a signing callback and
// an RPC client for fetching recent blockhashes.
type ClientSigner struct {
	publicKey       solana.PublicKey
	signTransaction SignTransactionFunc
	rpcClient       *rpc.Client
}

// NewClientSigner creates a client signer from a public key, a signing
// callback, and an RPC client used to source recent blockhashes.
func NewClientSigner(publicKey solana.PublicKey, signFunc SignTransactionFunc, rpcClient *rpc.Client) (x402svm.ClientSigner, error) {
	if publicKey.IsZero() {
		return nil, fmt.Errorf("public key is required")
	}
	if signFunc == nil {
		return nil, fmt.Errorf("sign callback is required")
	}
	if rpcClient == nil {
		return nil, fmt.Errorf("rpc client is required")
	}
	return &ClientSigner{publicKey: publicKey, signTransaction: signFunc, rpcClient: rpcClient}, nil
}

// NewClientSignerFromPrivateKey creates a client signer from a base58-encoded
// private key, dialing rpcURL for blockhash lookups.
func NewClientSignerFromPrivateKey(privateKeyBase58, rpcURL string) (x402svm.ClientSigner, error) {
	privateKey, err := solana.PrivateKeyFromBase58(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	signFunc := func(_ context.Context, tx *solana.Transaction) error {
		return signTransactionWithPrivateKey(privateKey, tx)
	}
	return NewClientSigner(privateKey.PublicKey(), signFunc, rpc.New(rpcURL))
}

func (s *ClientSigner) PublicKey() solana.PublicKey { return s.publicKey }

// RecentBlockhash fetches the latest blockhash from the configured RPC
// client, used by SvmClientHandler to build a transaction's message.
func (s *ClientSigner) RecentBlockhash(ctx context.Context) (solana.Hash, error) {
	resp, err := s.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("fetching blockhash: %w", err)
	}
	return resp.Value.Blockhash, nil
}

func (s *ClientSigner) SignTransaction(ctx context.Context, tx *solana.Transaction) error {
	return s.signTransaction(ctx, tx)
}

func signTransactionWithPrivateKey(privateKey solana.PrivateKey, tx *solana.Transaction) error {
	messageBytes, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}
	signature, err := privateKey.Sign(messageBytes)
	if err != nil {
		return fmt.Errorf("signing message: %w", err)
	}
	accountIndex, err := tx.GetAccountIndex(privateKey.PublicKey())
	if err != nil {
		return fmt.Errorf("locating account index: %w", err)
	}
	if len(tx.Signatures) <= int(accountIndex) {
		signatures := make([]solana.Signature, accountIndex+1)
		copy(signatures, tx.Signatures)
		tx.Signatures = signatures
	}
	tx.Signatures[accountIndex] = signature
	return nil
}

// FacilitatorSubmitter implements x402svm.FacilitatorSubmitter over an RPC
// client, submitting signed transactions and polling for confirmation.
type FacilitatorSubmitter struct {
	rpcClient *rpc.Client
}

func NewFacilitatorSubmitter(rpcURL string) *FacilitatorSubmitter {
	return &FacilitatorSubmitter{rpcClient: rpc.New(rpcURL)}
}

func (s *FacilitatorSubmitter) SubmitTransaction(ctx context.Context, tx *solana.Transaction) (string, error) {
	sig, err := s.rpcClient.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{SkipPreflight: false})
	if err != nil {
		return "", fmt.Errorf("submitting transaction: %w", err)
	}
	return sig.String(), nil
}

// confirmPollInterval is how long ConfirmTransaction waits between status
// queries; it polls until the transaction is confirmed, fails, or ctx ends.
const confirmPollInterval = 500 * time.Millisecond

func (s *FacilitatorSubmitter) ConfirmTransaction(ctx context.Context, signature string) (bool, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return false, fmt.Errorf("parsing signature: %w", err)
	}
	for {
		statuses, err := s.rpcClient.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			return false, fmt.Errorf("fetching signature status: %w", err)
		}
		if len(statuses.Value) > 0 && statuses.Value[0] != nil {
			status := statuses.Value[0]
			if status.Err != nil {
				return false, fmt.Errorf("transaction failed: %v", status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusFinalized || status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed {
				return true, nil
			}
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(confirmPollInterval):
		}
	}
}
