package types

import (
	"context"
	"math/big"
)

// ChainConfig holds the configuration for a specific chain implementation.
//
// Fields:
// - Name: the name of the chain.
// - ChainType: the type of the chain.
// - ChainID: the unique identifier for the chain.
// - RpcUrl: the URL for the chain's RPC endpoint.
// - TxType: the type of transactions supported by the chain.
// - WaitNBlocks: the number of blocks to wait for transaction confirmation.
// - PrivateKey: the private key of the wallet owner, used for signing approvals.
type ChainConfig struct {
	Name        string
	ChainType   ChainType
	ChainID     uint64
	RpcUrl      string
	TxType      uint64
	WaitNBlocks uint64
	PrivateKey  string
}

// GasEstimator provides gas estimation functionality.
type GasEstimator interface {
	// EstimateGas estimates the gas required for a transaction.
	//
	// Parameters:
	// - ctx: the context for managing the request.
	// - to: the recipient address of the transaction.
	// - value: the amount of native currency to send with the transaction.
	// - data: the input data for the transaction.
	//
	// Returns:
	// - uint64: the estimated gas amount.
	// - error: an error if the gas estimation fails.
	EstimateGas(ctx context.Context, to string, value *big.Int, data []byte) (uint64, error)
}

// AllowanceReader reads token allowances from the chain.
type AllowanceReader interface {
	// GetAllowance returns the amount spender may move from owner's token balance.
	//
	// Parameters:
	// - ctx: the context for managing the request.
	// - owner: the token holder address.
	// - token: the token contract (or mint) address.
	// - spender: the spender address.
	//
	// Returns:
	// - *big.Int: the current allowance.
	// - error: an error if the read fails.
	GetAllowance(ctx context.Context, owner, token, spender string) (*big.Int, error)
}

// ApprovalSender submits approval transactions.
type ApprovalSender interface {
	// SendApproval signs and broadcasts an approval transaction for the given intent.
	// A returned transaction is accepted by the node but not final.
	//
	// Parameters:
	// - ctx: the context for managing the request.
	// - intent: the approval details.
	//
	// Returns:
	// - *Transaction: the submitted transaction handle.
	// - error: an error if building, signing or sending fails.
	SendApproval(ctx context.Context, intent *ApprovalIntent) (*Transaction, error)
}

// TransactionWatcher provides transaction confirmation functionality.
type TransactionWatcher interface {
	// WaitTransactionConfirmation waits for the confirmation of a transaction.
	//
	// Parameters:
	// - ctx: the context for managing the request.
	// - tx: the transaction to wait for confirmation.
	//
	// Returns:
	// - TransactionStatus: the final (or retry) status of the transaction.
	// - error: an error if the transaction confirmation fails.
	WaitTransactionConfirmation(ctx context.Context, tx *Transaction) (TransactionStatus, error)
}

// ApprovalWatcher streams on-chain approval events for an owner.
type ApprovalWatcher interface {
	// WatchApprovals starts delivering approval events emitted for owner to eventChan.
	//
	// Parameters:
	// - ctx: the context for managing the lifecycle of the watcher.
	// - owner: the token holder whose approvals are watched.
	// - eventChan: the channel to receive approval events.
	//
	// Returns:
	// - error: an error if the watcher cannot be started.
	WatchApprovals(ctx context.Context, owner string, eventChan chan ApprovalEvent) error

	// ShutdownListeners stops all active subscriptions and pollers.
	ShutdownListeners()
}

// OwnerProvider exposes the address of the key configured for the chain.
type OwnerProvider interface {
	// OwnerAddress returns the owner address, or an empty string for read-only chains.
	OwnerAddress() string
}

// Chain combines all chain-specific functionality.
type Chain interface {
	GasEstimator
	AllowanceReader
	ApprovalSender
	TransactionWatcher
	ApprovalWatcher
	OwnerProvider

	// GetConfig returns the chain configuration.
	GetConfig() *ChainConfig
}

// ChainRegistry manages multiple chains.
type ChainRegistry interface {
	// Add adds a new chain to the registry.
	//
	// Parameters:
	// - ctx: the context passed to the chain constructor.
	// - config: the configuration for the chain to add.
	//
	// Returns:
	// - error: an error if adding the chain fails.
	Add(ctx context.Context, config *ChainConfig) error

	// Get retrieves a chain from the registry by its chain ID.
	//
	// Parameters:
	// - chainID: the unique identifier for the chain to retrieve.
	//
	// Returns:
	// - Chain: the retrieved chain instance, or nil.
	Get(chainID uint64) Chain

	// Remove removes a chain from the registry by its chain ID.
	//
	// Parameters:
	// - chainID: the unique identifier for the chain to remove.
	Remove(chainID uint64)

	// ChainIDs returns the registered chain IDs in ascending order.
	ChainIDs() []uint64
}
