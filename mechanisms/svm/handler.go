package svm

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	x402 "github.com/x402core/x402"
)

// splTransferCheckedDiscriminator is the SPL Token / Token-2022
// TransferChecked instruction discriminator.
const splTransferCheckedDiscriminator byte = 12

// SvmClientHandler builds and signs a TransferChecked transaction for each
// payment.
type SvmClientHandler struct {
	signer ClientSigner
}

func NewSvmClientHandler(signer ClientSigner) *SvmClientHandler {
	return &SvmClientHandler{signer: signer}
}

func (h *SvmClientHandler) Scheme() x402.Scheme { return SchemeExact }

func (h *SvmClientHandler) CreatePaymentPayload(ctx context.Context, version int, requirement x402.PaymentRequirements) (x402.PaymentPayload, error) {
	assetInfo, err := GetAssetInfo(string(requirement.Network), requirement.Asset)
	if err != nil {
		return x402.PaymentPayload{}, err
	}
	amount, err := strconv.ParseUint(requirement.Amount, 10, 64)
	if err != nil {
		return x402.PaymentPayload{}, fmt.Errorf("svm: invalid amount %q", requirement.Amount)
	}

	mint, err := solana.PublicKeyFromBase58(assetInfo.Address)
	if err != nil {
		return x402.PaymentPayload{}, fmt.Errorf("svm: invalid mint %q: %w", assetInfo.Address, err)
	}
	payTo, err := solana.PublicKeyFromBase58(requirement.PayTo)
	if err != nil {
		return x402.PaymentPayload{}, fmt.Errorf("svm: invalid payTo %q: %w", requirement.PayTo, err)
	}
	payer := h.signer.PublicKey()

	source, _, err := solana.FindAssociatedTokenAddress(payer, mint)
	if err != nil {
		return x402.PaymentPayload{}, fmt.Errorf("svm: deriving source ATA: %w", err)
	}
	destination, _, err := solana.FindAssociatedTokenAddress(payTo, mint)
	if err != nil {
		return x402.PaymentPayload{}, fmt.Errorf("svm: deriving destination ATA: %w", err)
	}

	transfer := token.NewTransferCheckedInstruction(
		amount,
		assetInfo.Decimals,
		source,
		mint,
		destination,
		payer,
		nil,
	).Build()

	blockhash, err := h.signer.RecentBlockhash(ctx)
	if err != nil {
		return x402.PaymentPayload{}, fmt.Errorf("svm: fetching recent blockhash: %w", err)
	}

	tx, err := solana.NewTransaction([]solana.Instruction{transfer}, blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return x402.PaymentPayload{}, fmt.Errorf("svm: building transaction: %w", err)
	}
	if err := h.signer.SignTransaction(ctx, tx); err != nil {
		return x402.PaymentPayload{}, fmt.Errorf("svm: signing transaction: %w", err)
	}

	encoded, err := tx.ToBase64()
	if err != nil {
		return x402.PaymentPayload{}, fmt.Errorf("svm: encoding transaction: %w", err)
	}

	payload := ExactSvmPayload{Transaction: encoded}
	return x402.PaymentPayload{
		X402Version: version,
		Scheme:      SchemeExact,
		Network:     requirement.Network,
		Payload:     map[string]interface{}{"transaction": payload.Transaction},
	}, nil
}

// SvmServerHandler canonicalizes prices and advertises solana requirements.
type SvmServerHandler struct{}

func NewSvmServerHandler() *SvmServerHandler { return &SvmServerHandler{} }

func (h *SvmServerHandler) Scheme() x402.Scheme { return SchemeExact }

// ParsePrice accepts "$0.01 USDC", "$0.01", or an already-atomic integer
// string and returns the network's default asset priced in its smallest
// unit.
func (h *SvmServerHandler) ParsePrice(ctx context.Context, price string, network x402.Network) (x402.AssetAmount, error) {
	cfg, err := GetNetworkConfig(string(network))
	if err != nil {
		return x402.AssetAmount{}, err
	}

	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(price), "$"))
	fields := strings.Fields(trimmed)
	amountStr := fields[0]
	if !strings.Contains(amountStr, ".") {
		if amount, ok := parseUintOK(amountStr); ok {
			return x402.AssetAmount{Amount: strconv.FormatUint(amount, 10), Asset: cfg.DefaultAsset.Address}, nil
		}
	}

	amount, err := ParseAmount(amountStr, cfg.DefaultAsset.Decimals)
	if err != nil {
		return x402.AssetAmount{}, fmt.Errorf("svm: parsing price %q: %w", price, err)
	}
	return x402.AssetAmount{Amount: strconv.FormatUint(amount, 10), Asset: cfg.DefaultAsset.Address}, nil
}

func parseUintOK(s string) (uint64, bool) {
	v, err := strconv.ParseUint(s, 10, 64)
	return v, err == nil
}

func (h *SvmServerHandler) EnhanceRequirements(ctx context.Context, base x402.PaymentRequirements, kind x402.SupportedKind, extensionKeys []string) (x402.PaymentRequirements, error) {
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
	if kind.Extra != nil {
		if feePayer, ok := kind.Extra["feePayer"]; ok {
			base.Extra["feePayer"] = feePayer
		}
	}
	return base, nil
}

// SvmFacilitatorHandler verifies a signed TransferChecked transaction and
// submits it on-chain.
type SvmFacilitatorHandler struct {
	submitter FacilitatorSubmitter
}

func NewSvmFacilitatorHandler(submitter FacilitatorSubmitter) *SvmFacilitatorHandler {
	return &SvmFacilitatorHandler{submitter: submitter}
}

func (h *SvmFacilitatorHandler) Scheme() x402.Scheme { return SchemeExact }

// decodeAndValidate parses payload's transaction and checks it carries a
// TransferChecked instruction satisfying requirement, returning the payer
// (transaction fee payer / transfer authority) on success.
func decodeAndValidate(payload x402.PaymentPayload, requirement x402.PaymentRequirements) (*solana.Transaction, string, x402.InvalidReason) {
	txBase64, ok := payload.Payload["transaction"].(string)
	if !ok || txBase64 == "" {
		return nil, "", x402.InvalidPayload
	}
	tx, err := solana.TransactionFromBase64(txBase64)
	if err != nil {
		return nil, "", x402.InvalidPayload
	}
	if err := tx.VerifySignatures(); err != nil {
		return nil, "", x402.InvalidSignature
	}

	assetInfo, err := GetAssetInfo(string(requirement.Network), requirement.Asset)
	if err != nil {
		return nil, "", x402.InvalidAsset
	}
	mint, err := solana.PublicKeyFromBase58(assetInfo.Address)
	if err != nil {
		return nil, "", x402.InvalidAsset
	}
	payTo, err := solana.PublicKeyFromBase58(requirement.PayTo)
	if err != nil {
		return nil, "", x402.InvalidPaymentRequirements
	}
	expectedDest, _, err := solana.FindAssociatedTokenAddress(payTo, mint)
	if err != nil {
		return nil, "", x402.InvalidPaymentRequirements
	}
	requiredAmount, err := strconv.ParseUint(requirement.Amount, 10, 64)
	if err != nil {
		return nil, "", x402.InvalidPaymentRequirements
	}

	for _, inst := range tx.Message.Instructions {
		if int(inst.ProgramIDIndex) >= len(tx.Message.AccountKeys) {
			continue
		}
		progID := tx.Message.AccountKeys[inst.ProgramIDIndex]
		if progID != solana.TokenProgramID && progID != solana.Token2022ProgramID {
			continue
		}
		if len(inst.Data) < 10 || inst.Data[0] != splTransferCheckedDiscriminator {
			continue
		}
		if len(inst.Accounts) < 4 {
			continue
		}
		mintIdx, destIdx, authorityIdx := inst.Accounts[1], inst.Accounts[2], inst.Accounts[3]
		if int(mintIdx) >= len(tx.Message.AccountKeys) || int(destIdx) >= len(tx.Message.AccountKeys) || int(authorityIdx) >= len(tx.Message.AccountKeys) {
			continue
		}
		if tx.Message.AccountKeys[mintIdx] != mint {
			return nil, "", x402.InvalidAsset
		}
		if tx.Message.AccountKeys[destIdx] != expectedDest {
			return nil, "", x402.InvalidPayer
		}
		amount := binary.LittleEndian.Uint64(inst.Data[1:9])
		if amount < requiredAmount {
			return nil, "", x402.InsufficientAmount
		}
		return tx, tx.Message.AccountKeys[authorityIdx].String(), ""
	}
	return nil, "", x402.InvalidPayload
}

func (h *SvmFacilitatorHandler) Verify(ctx context.Context, payload x402.PaymentPayload, requirement x402.PaymentRequirements) (x402.VerifyResponse, error) {
	_, payer, reason := decodeAndValidate(payload, requirement)
	if reason != "" {
		return x402.VerifyResponse{IsValid: false, InvalidReason: reason}, nil
	}
	return x402.VerifyResponse{IsValid: true, Payer: payer}, nil
}

func (h *SvmFacilitatorHandler) Settle(ctx context.Context, payload x402.PaymentPayload, requirement x402.PaymentRequirements) (x402.SettleResponse, error) {
	tx, payer, reason := decodeAndValidate(payload, requirement)
	if reason != "" {
		return x402.SettleResponse{Success: false, ErrorReason: x402.ErrorReason(reason), Network: payload.Network}, nil
	}

	signature, err := h.submitter.SubmitTransaction(ctx, tx)
	if err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: x402.TransactionFailed, Network: payload.Network}, nil
	}
	confirmed, err := h.submitter.ConfirmTransaction(ctx, signature)
	if err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: x402.Timeout, Transaction: signature, Network: payload.Network}, nil
	}
	if !confirmed {
		return x402.SettleResponse{Success: false, ErrorReason: x402.TransactionReverted, Transaction: signature, Network: payload.Network}, nil
	}

	return x402.SettleResponse{
		Success:     true,
		Transaction: signature,
		Network:     payload.Network,
		Payer:       payer,
	}, nil
}
