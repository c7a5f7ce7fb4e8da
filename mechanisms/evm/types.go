// Package evm is a reference implementation of the "exact" scheme over
// eip155:* networks, authorizing payment with an EIP-3009
// TransferWithAuthorization signature.
package evm

import (
	"context"
	"fmt"
	"math/big"
)

// ExactEIP3009Authorization is the EIP-3009 TransferWithAuthorization data a
// payer signs.
type ExactEIP3009Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// ExactEIP3009Payload is the scheme-specific payload carried inside
// PaymentPayload.Payload for the exact scheme on eip155:* networks.
type ExactEIP3009Payload struct {
	Signature     string                    `json:"signature,omitempty"`
	Authorization ExactEIP3009Authorization `json:"authorization"`
}

// ToMap converts p to the map[string]interface{} shape PaymentPayload.Payload
// carries over the wire.
func (p *ExactEIP3009Payload) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"authorization": map[string]interface{}{
			"from":        p.Authorization.From,
			"to":          p.Authorization.To,
			"value":       p.Authorization.Value,
			"validAfter":  p.Authorization.ValidAfter,
			"validBefore": p.Authorization.ValidBefore,
			"nonce":       p.Authorization.Nonce,
		},
	}
	if p.Signature != "" {
		result["signature"] = p.Signature
	}
	return result
}

// PayloadFromMap parses a PaymentPayload.Payload map into an
// ExactEIP3009Payload, validating that every required field is present.
func PayloadFromMap(data map[string]interface{}) (*ExactEIP3009Payload, error) {
	payload := &ExactEIP3009Payload{}

	if sig, ok := data["signature"].(string); ok {
		payload.Signature = sig
	}

	auth, ok := data["authorization"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("evm: missing or malformed authorization field")
	}
	fields := map[string]*string{
		"from":        &payload.Authorization.From,
		"to":          &payload.Authorization.To,
		"value":       &payload.Authorization.Value,
		"validAfter":  &payload.Authorization.ValidAfter,
		"validBefore": &payload.Authorization.ValidBefore,
		"nonce":       &payload.Authorization.Nonce,
	}
	for name, dest := range fields {
		v, ok := auth[name].(string)
		if !ok {
			return nil, fmt.Errorf("evm: authorization missing %q", name)
		}
		*dest = v
	}
	return payload, nil
}

// ClientSigner is the capability a wallet integration exposes to
// EvmClientHandler: an address and the ability to produce an EIP-712
// signature over a TransferWithAuthorization message.
type ClientSigner interface {
	Address() string
	SignTypedData(ctx context.Context, domain TypedDataDomain, types map[string][]TypedDataField, primaryType string, message map[string]interface{}) ([]byte, error)
}

// FacilitatorSigner is the capability a chain integration exposes to
// EvmFacilitatorHandler: read access to contract state and the ability to
// submit the settling transaction.
type FacilitatorSigner interface {
	ReadContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (interface{}, error)
	WriteContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (string, error)
	WaitForTransactionReceipt(ctx context.Context, txHash string) (*TransactionReceipt, error)
	GetBalance(ctx context.Context, address string, tokenAddress string) (*big.Int, error)
}

// TypedDataDomain is the EIP-712 domain separator.
type TypedDataDomain struct {
	Name              string   `json:"name"`
	Version           string   `json:"version"`
	ChainID           *big.Int `json:"chainId"`
	VerifyingContract string   `json:"verifyingContract"`
}

// TypedDataField is one field of an EIP-712 struct type.
type TypedDataField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TransactionReceipt is the minimal confirmation data Settle needs.
type TransactionReceipt struct {
	Status      uint64 `json:"status"`
	BlockNumber uint64 `json:"blockNumber"`
	TxHash      string `json:"transactionHash"`
}

// AssetInfo describes an EIP-3009-capable ERC-20 token.
type AssetInfo struct {
	Address  string
	Name     string
	Version  string
	Decimals int
}

// NetworkConfig is the per-chain configuration keyed by CAIP-2 network ID
// in NetworkConfigs.
type NetworkConfig struct {
	ChainID      *big.Int
	DefaultAsset AssetInfo
}
