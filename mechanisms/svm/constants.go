package svm

const (
	SolanaMainnetCAIP2 = "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdpKuc147dw2N9d"
	SolanaDevnetCAIP2  = "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1"

	// DefaultDecimals matches USDC's decimal count on Solana.
	DefaultDecimals = 6
)

// NetworkConfigs maps a CAIP-2 network identifier to its default
// settlement asset. Extend this map to support additional clusters; no
// code outside this file needs to change.
var NetworkConfigs = map[string]NetworkConfig{
	SolanaMainnetCAIP2: {
		CAIP2: SolanaMainnetCAIP2,
		DefaultAsset: AssetInfo{
			Address:  "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", // USDC
			Decimals: DefaultDecimals,
		},
	},
	SolanaDevnetCAIP2: {
		CAIP2: SolanaDevnetCAIP2,
		DefaultAsset: AssetInfo{
			Address:  "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU", // USDC (devnet)
			Decimals: DefaultDecimals,
		},
	},
}
