package svm

import (
	"fmt"
	"strconv"
	"strings"
)

// IsValidNetwork reports whether network has a registered NetworkConfig.
func IsValidNetwork(network string) bool {
	_, ok := NetworkConfigs[network]
	return ok
}

// GetNetworkConfig looks up network's NetworkConfig.
func GetNetworkConfig(network string) (NetworkConfig, error) {
	cfg, ok := NetworkConfigs[network]
	if !ok {
		return NetworkConfig{}, fmt.Errorf("svm: unsupported network %q", network)
	}
	return cfg, nil
}

// GetAssetInfo resolves assetAddress on network to its AssetInfo, falling
// back to the network's default asset when assetAddress is empty or
// matches the default mint.
func GetAssetInfo(network string, assetAddress string) (AssetInfo, error) {
	cfg, err := GetNetworkConfig(network)
	if err != nil {
		return AssetInfo{}, err
	}
	if assetAddress == "" || assetAddress == cfg.DefaultAsset.Address {
		return cfg.DefaultAsset, nil
	}
	return AssetInfo{}, fmt.Errorf("svm: unsupported asset %q on %q", assetAddress, network)
}

// ParseAmount converts a decimal string like "0.01" into the token's
// smallest unit at decimals precision.
func ParseAmount(decimal string, decimals uint8) (uint64, error) {
	parts := strings.SplitN(decimal, ".", 2)
	whole := parts[0]
	if whole == "" {
		whole = "0"
	}
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	if len(frac) > int(decimals) {
		return 0, fmt.Errorf("svm: amount %q has more precision than %d decimals", decimal, decimals)
	}
	frac = frac + strings.Repeat("0", int(decimals)-len(frac))

	amount, err := strconv.ParseUint(whole+frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("svm: invalid decimal amount %q", decimal)
	}
	return amount, nil
}
