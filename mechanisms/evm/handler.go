package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	x402 "github.com/x402core/x402"
)

// EvmClientHandler signs EIP-3009 authorizations with a ClientSigner.
type EvmClientHandler struct {
	signer ClientSigner
}

func NewEvmClientHandler(signer ClientSigner) *EvmClientHandler {
	return &EvmClientHandler{signer: signer}
}

func (h *EvmClientHandler) Scheme() x402.Scheme { return SchemeExact }

// CreatePaymentPayload signs a fresh TransferWithAuthorization for
// requirement and returns it as the exact scheme's payload.
func (h *EvmClientHandler) CreatePaymentPayload(ctx context.Context, version int, requirement x402.PaymentRequirements) (x402.PaymentPayload, error) {
	network := string(requirement.Network)
	assetInfo, err := GetAssetInfo(network, requirement.Asset)
	if err != nil {
		return x402.PaymentPayload{}, err
	}
	cfg, err := GetNetworkConfig(network)
	if err != nil {
		return x402.PaymentPayload{}, err
	}

	value, ok := new(big.Int).SetString(requirement.Amount, 10)
	if !ok {
		return x402.PaymentPayload{}, fmt.Errorf("evm: invalid amount %q", requirement.Amount)
	}

	nonce, err := CreateNonce()
	if err != nil {
		return x402.PaymentPayload{}, err
	}
	validAfter, validBefore := CreateValidityWindow(DefaultValidityPeriod * time.Second)

	tokenName, tokenVersion := assetExtra(requirement, assetInfo)

	authorization := ExactEIP3009Authorization{
		From:        h.signer.Address(),
		To:          requirement.PayTo,
		Value:       value.String(),
		ValidAfter:  validAfter.String(),
		ValidBefore: validBefore.String(),
		Nonce:       nonce,
	}

	domain := TypedDataDomain{
		Name:              tokenName,
		Version:           tokenVersion,
		ChainID:           cfg.ChainID,
		VerifyingContract: assetInfo.Address,
	}
	message, err := eip3009Message(authorization)
	if err != nil {
		return x402.PaymentPayload{}, err
	}
	signature, err := h.signer.SignTypedData(ctx, domain, eip3009Types, "TransferWithAuthorization", message)
	if err != nil {
		return x402.PaymentPayload{}, fmt.Errorf("evm: signing authorization: %w", err)
	}

	payload := &ExactEIP3009Payload{
		Signature:     BytesToHex(signature),
		Authorization: authorization,
	}
	return x402.PaymentPayload{
		X402Version: version,
		Scheme:      SchemeExact,
		Network:     requirement.Network,
		Payload:     payload.ToMap(),
	}, nil
}

// EvmServerHandler canonicalizes prices and advertises eip155 requirements.
type EvmServerHandler struct{}

func NewEvmServerHandler() *EvmServerHandler { return &EvmServerHandler{} }

func (h *EvmServerHandler) Scheme() x402.Scheme { return SchemeExact }

// ParsePrice accepts a "$0.01"-style price or an already-atomic integer
// string and returns the network's default asset priced in its smallest
// unit.
func (h *EvmServerHandler) ParsePrice(ctx context.Context, price string, network x402.Network) (x402.AssetAmount, error) {
	cfg, err := GetNetworkConfig(string(network))
	if err != nil {
		return x402.AssetAmount{}, err
	}

	trimmed := strings.TrimSpace(price)
	trimmed = strings.TrimPrefix(trimmed, "$")

	if !strings.Contains(trimmed, ".") {
		if amount, ok := new(big.Int).SetString(trimmed, 10); ok {
			return x402.AssetAmount{Amount: amount.String(), Asset: cfg.DefaultAsset.Address}, nil
		}
	}

	amount, err := ParseAmount(trimmed, cfg.DefaultAsset.Decimals)
	if err != nil {
		return x402.AssetAmount{}, fmt.Errorf("evm: parsing price %q: %w", price, err)
	}
	return x402.AssetAmount{Amount: amount.String(), Asset: cfg.DefaultAsset.Address}, nil
}

// EnhanceRequirements fills in the asset and EIP-712 token name/version a
// matching EvmClientHandler needs to sign against base.
func (h *EvmServerHandler) EnhanceRequirements(ctx context.Context, base x402.PaymentRequirements, kind x402.SupportedKind, extensionKeys []string) (x402.PaymentRequirements, error) {
	assetInfo, err := GetAssetInfo(string(base.Network), base.Asset)
	if err != nil {
		return base, err
	}
	if base.Asset == "" {
		base.Asset = assetInfo.Address
	}
	if base.Extra == nil {
		base.Extra = map[string]interface{}{}
	}
	if _, ok := base.Extra["name"]; !ok {
		base.Extra["name"] = assetInfo.Name
	}
	if _, ok := base.Extra["version"]; !ok {
		base.Extra["version"] = assetInfo.Version
	}
	return base, nil
}

// EvmFacilitatorHandler verifies and settles EIP-3009 authorizations
// on-chain via a FacilitatorSigner.
type EvmFacilitatorHandler struct {
	signer FacilitatorSigner
}

func NewEvmFacilitatorHandler(signer FacilitatorSigner) *EvmFacilitatorHandler {
	return &EvmFacilitatorHandler{signer: signer}
}

func (h *EvmFacilitatorHandler) Scheme() x402.Scheme { return SchemeExact }

func (h *EvmFacilitatorHandler) Verify(ctx context.Context, payload x402.PaymentPayload, requirement x402.PaymentRequirements) (x402.VerifyResponse, error) {
	evmPayload, err := PayloadFromMap(payload.Payload)
	if err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: x402.InvalidPayload}, nil
	}
	if evmPayload.Signature == "" {
		return x402.VerifyResponse{IsValid: false, InvalidReason: x402.InvalidSignature}, nil
	}
	if !strings.EqualFold(evmPayload.Authorization.To, requirement.PayTo) {
		return x402.VerifyResponse{IsValid: false, InvalidReason: x402.InvalidPayer}, nil
	}

	authValue, ok := new(big.Int).SetString(evmPayload.Authorization.Value, 10)
	if !ok {
		return x402.VerifyResponse{IsValid: false, InvalidReason: x402.InvalidPayload}, nil
	}
	requiredValue, ok := new(big.Int).SetString(requirement.Amount, 10)
	if !ok {
		return x402.VerifyResponse{}, fmt.Errorf("evm: invalid required amount %q", requirement.Amount)
	}
	if authValue.Cmp(requiredValue) < 0 {
		return x402.VerifyResponse{IsValid: false, InvalidReason: x402.InsufficientAmount}, nil
	}

	assetInfo, err := GetAssetInfo(string(requirement.Network), requirement.Asset)
	if err != nil {
		return x402.VerifyResponse{}, err
	}

	used, err := h.authorizationUsed(ctx, evmPayload.Authorization, assetInfo.Address)
	if err != nil {
		return x402.VerifyResponse{}, fmt.Errorf("evm: checking nonce: %w", err)
	}
	if used {
		return x402.VerifyResponse{IsValid: false, InvalidReason: x402.NonceAlreadyUsed}, nil
	}

	balance, err := h.signer.GetBalance(ctx, evmPayload.Authorization.From, assetInfo.Address)
	if err != nil {
		return x402.VerifyResponse{}, fmt.Errorf("evm: reading balance: %w", err)
	}
	if balance.Cmp(authValue) < 0 {
		return x402.VerifyResponse{IsValid: false, InvalidReason: x402.InsufficientAmount}, nil
	}

	cfg, err := GetNetworkConfig(string(requirement.Network))
	if err != nil {
		return x402.VerifyResponse{}, err
	}
	tokenName, tokenVersion := assetExtra(requirement, assetInfo)
	hash, err := HashEIP3009Authorization(evmPayload.Authorization, cfg.ChainID, assetInfo.Address, tokenName, tokenVersion)
	if err != nil {
		return x402.VerifyResponse{}, err
	}
	signature, err := HexToBytes(evmPayload.Signature)
	if err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: x402.InvalidSignature}, nil
	}
	signer, err := recoverSigner(hash, signature)
	if err != nil || !strings.EqualFold(signer, evmPayload.Authorization.From) {
		return x402.VerifyResponse{IsValid: false, InvalidReason: x402.InvalidSignature}, nil
	}

	return x402.VerifyResponse{IsValid: true, Payer: evmPayload.Authorization.From}, nil
}

func (h *EvmFacilitatorHandler) Settle(ctx context.Context, payload x402.PaymentPayload, requirement x402.PaymentRequirements) (x402.SettleResponse, error) {
	verifyResp, err := h.Verify(ctx, payload, requirement)
	if err != nil {
		return x402.SettleResponse{}, err
	}
	if !verifyResp.IsValid {
		return x402.SettleResponse{Success: false, ErrorReason: x402.ErrorReason(verifyResp.InvalidReason), Network: payload.Network}, nil
	}

	evmPayload, err := PayloadFromMap(payload.Payload)
	if err != nil {
		return x402.SettleResponse{}, err
	}
	assetInfo, err := GetAssetInfo(string(requirement.Network), requirement.Asset)
	if err != nil {
		return x402.SettleResponse{}, err
	}

	signatureBytes, err := HexToBytes(evmPayload.Signature)
	if err != nil || len(signatureBytes) != 65 {
		return x402.SettleResponse{Success: false, ErrorReason: x402.UnexpectedSettleError}, nil
	}
	r := signatureBytes[0:32]
	s := signatureBytes[32:64]
	v := signatureBytes[64]

	value, _ := new(big.Int).SetString(evmPayload.Authorization.Value, 10)
	validAfter, _ := new(big.Int).SetString(evmPayload.Authorization.ValidAfter, 10)
	validBefore, _ := new(big.Int).SetString(evmPayload.Authorization.ValidBefore, 10)
	nonceBytes, err := HexToBytes(evmPayload.Authorization.Nonce)
	if err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: x402.UnexpectedSettleError}, nil
	}
	var nonce [32]byte
	copy(nonce[:], nonceBytes)
	var rArr, sArr [32]byte
	copy(rArr[:], r)
	copy(sArr[:], s)

	txHash, err := h.signer.WriteContract(
		ctx,
		assetInfo.Address,
		TransferWithAuthorizationABI,
		FunctionTransferWithAuthorization,
		evmPayload.Authorization.From,
		evmPayload.Authorization.To,
		value, validAfter, validBefore, nonce, v, rArr, sArr,
	)
	if err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: x402.TransactionFailed, Network: payload.Network}, nil
	}

	receipt, err := h.signer.WaitForTransactionReceipt(ctx, txHash)
	if err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: x402.Timeout, Transaction: txHash, Network: payload.Network}, nil
	}
	if receipt.Status != TxStatusSuccess {
		return x402.SettleResponse{Success: false, ErrorReason: x402.TransactionReverted, Transaction: txHash, Network: payload.Network}, nil
	}

	return x402.SettleResponse{
		Success:     true,
		Transaction: txHash,
		Network:     payload.Network,
		Payer:       evmPayload.Authorization.From,
	}, nil
}

func (h *EvmFacilitatorHandler) authorizationUsed(ctx context.Context, authorization ExactEIP3009Authorization, tokenAddress string) (bool, error) {
	nonceBytes, err := HexToBytes(authorization.Nonce)
	if err != nil {
		return false, err
	}
	var nonce [32]byte
	copy(nonce[:], nonceBytes)

	result, err := h.signer.ReadContract(ctx, tokenAddress, AuthorizationStateABI, FunctionAuthorizationState, authorization.From, nonce)
	if err != nil {
		return false, err
	}
	used, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("evm: unexpected authorizationState result type %T", result)
	}
	return used, nil
}

// assetExtra reads the token name/version a ServerHandler stashed in
// requirement.Extra, falling back to assetInfo's defaults.
func assetExtra(requirement x402.PaymentRequirements, assetInfo AssetInfo) (name string, version string) {
	name, version = assetInfo.Name, assetInfo.Version
	if requirement.Extra == nil {
		return
	}
	if v, ok := requirement.Extra["name"].(string); ok {
		name = v
	}
	if v, ok := requirement.Extra["version"].(string); ok {
		version = v
	}
	return
}
