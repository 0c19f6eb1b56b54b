package utils

import (
	sol "github.com/gagliardetto/solana-go"
)

// SolanaMetadata is kept on a submitted approval so the watcher can detect blockhash expiry.
type SolanaMetadata struct {
	Blockhash            sol.Hash
	BlockhashSlot        uint64
	LastValidBlockHeight uint64
}
