package types

import "math/big"

// Transaction represents a submitted approval transaction.
//
// Fields:
// - Hash: the hash (or signature) of the transaction.
// - From: the address from which the transaction is sent.
// - To: the address the transaction calls (token contract or token program).
// - Token: the token whose allowance is changed.
// - Spender: the address being approved.
// - Amount: the approved amount as a base-10 string.
// - Nonce: the nonce of the transaction.
// - ChainID: the unique identifier for the chain where the transaction was sent.
// - Metadata: chain specific data needed by the watcher.
type Transaction struct {
	Hash     string
	From     string
	To       string
	Token    string
	Spender  string
	Amount   string
	Nonce    uint64
	ChainID  uint64
	Metadata interface{}
}

// ApprovalIntent describes an approval the owner wants on chain.
//
// Fields:
// - Token: the token contract (or mint) address.
// - Spender: the address to approve.
// - Amount: the allowance to grant.
type ApprovalIntent struct {
	Token   string
	Spender string
	Amount  *big.Int
}
