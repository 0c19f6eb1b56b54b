package types

import "strings"

// ChainType represents supported blockchain types
type ChainType string

const (
	// EVM represents Ethereum Virtual Machine based chains (e.g. Ethereum, Arbitrum, Base, etc.)
	EVM ChainType = "EVM"
	// SOLANA represents Solana chain, where allowances are SPL token delegations.
	SOLANA ChainType = "SOLANA"
	// UNKNOWN represents unknown or unsupported chain type in the system.
	UNKNOWN ChainType = "UNKNOWN"
)

// String converts ChainType to string representation
func (t ChainType) String() string {
	return string(t)
}

// ParseChainType converts string to ChainType representation. Matching is case-insensitive.
func ParseChainType(s string) ChainType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case EVM.String():
		return EVM
	case SOLANA.String():
		return SOLANA
	default:
		return UNKNOWN
	}
}
