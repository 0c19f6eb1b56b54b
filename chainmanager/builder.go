package chainmanager

import (
	"github.com/ClipFinance/approval-lib/common/types"
)

// ChainBuilder is a builder pattern implementation for chain configuration.
// It allows setting the components of the chain such as the allowance reader,
// approval sender, transaction watcher and approval watcher.
type ChainBuilder struct {
	config    *types.ChainConfig       // Chain configuration.
	estimator types.GasEstimator       // Gas estimator implementation.
	reader    types.AllowanceReader    // Allowance reader implementation.
	sender    types.ApprovalSender     // Approval sender implementation.
	watcher   types.TransactionWatcher // Transaction watcher implementation.
	approvals types.ApprovalWatcher    // Approval event watcher implementation.
	owner     types.OwnerProvider      // Owner address provider implementation.
}

// NewChainBuilder creates a new chain builder instance.
//
// Parameters:
// - config: the chain configuration.
//
// Returns:
// - *ChainBuilder: a new ChainBuilder instance.
func NewChainBuilder(config *types.ChainConfig) *ChainBuilder {
	return &ChainBuilder{
		config: config,
	}
}

// WithGasEstimator sets gas estimator implementation.
func (b *ChainBuilder) WithGasEstimator(estimator types.GasEstimator) *ChainBuilder {
	b.estimator = estimator
	return b
}

// WithAllowanceReader sets allowance reader implementation.
func (b *ChainBuilder) WithAllowanceReader(reader types.AllowanceReader) *ChainBuilder {
	b.reader = reader
	return b
}

// WithApprovalSender sets approval sender implementation.
// Chains built without one are read-only.
func (b *ChainBuilder) WithApprovalSender(sender types.ApprovalSender) *ChainBuilder {
	b.sender = sender
	return b
}

// WithTransactionWatcher sets transaction watcher implementation.
func (b *ChainBuilder) WithTransactionWatcher(watcher types.TransactionWatcher) *ChainBuilder {
	b.watcher = watcher
	return b
}

// WithApprovalWatcher sets approval event watcher implementation.
func (b *ChainBuilder) WithApprovalWatcher(approvals types.ApprovalWatcher) *ChainBuilder {
	b.approvals = approvals
	return b
}

// WithOwnerProvider sets owner address provider implementation.
func (b *ChainBuilder) WithOwnerProvider(owner types.OwnerProvider) *ChainBuilder {
	b.owner = owner
	return b
}

// Build creates a new chain instance with configured implementations.
//
// Returns:
// - *Chain: a new Chain instance with the configured implementations.
func (b *ChainBuilder) Build() *Chain {
	return NewChain(b.config, b.estimator, b.reader, b.sender, b.watcher, b.approvals, b.owner)
}
