package evm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// recoverSigner recovers the address that produced signature over hash.
// signature is the standard 65-byte (r, s, v) EOA form with v in {27, 28}
// or the raw recovery id {0, 1}; both are normalized before recovery.
func recoverSigner(hash []byte, signature []byte) (string, error) {
	if len(signature) != 65 {
		return "", fmt.Errorf("evm: signature must be 65 bytes, got %d", len(signature))
	}
	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return "", fmt.Errorf("evm: recovering signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}
