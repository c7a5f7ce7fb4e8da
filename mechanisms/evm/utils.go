package evm

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// HexToBytes decodes a 0x-prefixed or bare hex string.
func HexToBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("evm: invalid hex %q: %w", s, err)
	}
	return b, nil
}

// BytesToHex encodes b as a 0x-prefixed hex string.
func BytesToHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// CreateNonce generates a random 32-byte EIP-3009 nonce as a hex string.
func CreateNonce() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("evm: generating nonce: %w", err)
	}
	return BytesToHex(b), nil
}

// CreateValidityWindow returns (validAfter, validBefore) for an
// authorization usable immediately and expiring after period.
func CreateValidityWindow(period time.Duration) (*big.Int, *big.Int) {
	now := time.Now()
	return big.NewInt(now.Unix()), big.NewInt(now.Add(period).Unix())
}

// ParseAmount converts a decimal string like "0.01" into the token's
// smallest unit at decimals precision, rejecting more fractional digits
// than the asset supports.
func ParseAmount(decimal string, decimals int) (*big.Int, error) {
	parts := strings.SplitN(decimal, ".", 2)
	whole := parts[0]
	if whole == "" {
		whole = "0"
	}
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("evm: amount %q has more precision than %d decimals", decimal, decimals)
	}
	frac = frac + strings.Repeat("0", decimals-len(frac))

	amount, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("evm: invalid decimal amount %q", decimal)
	}
	return amount, nil
}

// IsValidNetwork reports whether network has a registered NetworkConfig.
func IsValidNetwork(network string) bool {
	_, ok := NetworkConfigs[network]
	return ok
}

// GetNetworkConfig looks up network's NetworkConfig.
func GetNetworkConfig(network string) (NetworkConfig, error) {
	cfg, ok := NetworkConfigs[network]
	if !ok {
		return NetworkConfig{}, fmt.Errorf("evm: unsupported network %q", network)
	}
	return cfg, nil
}

// GetAssetInfo resolves assetAddress on network to its AssetInfo, falling
// back to the network's default asset when assetAddress is empty or
// matches the default asset's address case-insensitively.
func GetAssetInfo(network string, assetAddress string) (AssetInfo, error) {
	cfg, err := GetNetworkConfig(network)
	if err != nil {
		return AssetInfo{}, err
	}
	if assetAddress == "" || strings.EqualFold(assetAddress, cfg.DefaultAsset.Address) {
		return cfg.DefaultAsset, nil
	}
	// This reference implementation only prices the network's default
	// stablecoin; a production facilitator would look up metadata for
	// arbitrary ERC-20s here.
	return AssetInfo{}, fmt.Errorf("evm: unsupported asset %q on %q", assetAddress, network)
}
