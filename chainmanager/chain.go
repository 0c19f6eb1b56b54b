package chainmanager

import (
	"context"
	"math/big"
	"sync"

	commonerrors "github.com/ClipFinance/approval-lib/common/errors"
	"github.com/ClipFinance/approval-lib/common/types"
)

// Chain implements types.Chain interface with thread-safe access to dependencies.
// Each dependency is protected by a read-write mutex; a missing dependency makes
// the matching operation return ErrNotImplemented.
type Chain struct {
	config    *types.ChainConfig       // Chain configuration.
	estimator types.GasEstimator       // Gas estimator implementation.
	reader    types.AllowanceReader    // Allowance reader implementation.
	sender    types.ApprovalSender     // Approval sender implementation.
	watcher   types.TransactionWatcher // Transaction watcher implementation.
	approvals types.ApprovalWatcher    // Approval event watcher implementation.
	owner     types.OwnerProvider      // Owner address provider implementation.

	// Mutexes for thread-safe access to dependencies.
	estimatorMutex sync.RWMutex
	readerMutex    sync.RWMutex
	senderMutex    sync.RWMutex
	watcherMutex   sync.RWMutex
	approvalsMutex sync.RWMutex
	ownerMutex     sync.RWMutex
}

// NewChain creates a new Chain instance.
//
// Parameters:
// - config: the chain configuration.
// - estimator: the gas estimator implementation.
// - reader: the allowance reader implementation.
// - sender: the approval sender implementation.
// - watcher: the transaction watcher implementation.
// - approvals: the approval event watcher implementation.
// - owner: the owner address provider.
//
// Returns:
// - *Chain: a new Chain instance.
func NewChain(
	config *types.ChainConfig,
	estimator types.GasEstimator,
	reader types.AllowanceReader,
	sender types.ApprovalSender,
	watcher types.TransactionWatcher,
	approvals types.ApprovalWatcher,
	owner types.OwnerProvider,
) *Chain {
	return &Chain{
		config:    config,
		estimator: estimator,
		reader:    reader,
		sender:    sender,
		watcher:   watcher,
		approvals: approvals,
		owner:     owner,
	}
}

// EstimateGas estimates transaction gas with thread-safe access.
//
// Parameters:
// - ctx: context for managing the lifecycle of the gas estimation.
// - to: the recipient address of the transaction.
// - value: the amount of value to be sent in the transaction.
// - data: the input data for the transaction.
//
// Returns:
// - uint64: the estimated gas amount.
// - error: an error if the estimator is not implemented or if any issue occurs during estimation.
func (c *Chain) EstimateGas(ctx context.Context, to string, value *big.Int, data []byte) (uint64, error) {
	c.estimatorMutex.RLock()
	estimator := c.estimator
	c.estimatorMutex.RUnlock()

	if estimator == nil {
		return 0, commonerrors.ErrNotImplemented
	}
	return estimator.EstimateGas(ctx, to, value, data)
}

// GetAllowance reads the current allowance with thread-safe access.
//
// Parameters:
// - ctx: context for managing the request.
// - owner: the token holder.
// - token: the token address.
// - spender: the spender address.
//
// Returns:
// - *big.Int: the allowance.
// - error: an error if the reader is not implemented or the read fails.
func (c *Chain) GetAllowance(ctx context.Context, owner, token, spender string) (*big.Int, error) {
	c.readerMutex.RLock()
	reader := c.reader
	c.readerMutex.RUnlock()

	if reader == nil {
		return nil, commonerrors.ErrNotImplemented
	}
	return reader.GetAllowance(ctx, owner, token, spender)
}

// SendApproval submits an approval transaction with thread-safe access.
//
// Parameters:
// - ctx: context for managing the request.
// - intent: the approval to submit.
//
// Returns:
// - *types.Transaction: the submitted transaction.
// - error: an error if the chain is read-only or the submission fails.
func (c *Chain) SendApproval(ctx context.Context, intent *types.ApprovalIntent) (*types.Transaction, error) {
	c.senderMutex.RLock()
	sender := c.sender
	c.senderMutex.RUnlock()

	if sender == nil {
		return nil, commonerrors.ErrNotImplemented
	}
	return sender.SendApproval(ctx, intent)
}

// WaitTransactionConfirmation waits for transaction confirmation with thread-safe access.
//
// Parameters:
// - ctx: context for managing the lifecycle of the transaction confirmation.
// - tx: the transaction to be confirmed.
//
// Returns:
// - types.TransactionStatus: the transaction status.
// - error: an error if the watcher is not implemented or if any issue occurs during confirmation.
func (c *Chain) WaitTransactionConfirmation(ctx context.Context, tx *types.Transaction) (types.TransactionStatus, error) {
	c.watcherMutex.RLock()
	watcher := c.watcher
	c.watcherMutex.RUnlock()

	if watcher == nil {
		return types.TxFailed, commonerrors.ErrNotImplemented
	}
	return watcher.WaitTransactionConfirmation(ctx, tx)
}

// WatchApprovals starts the approval event watcher with thread-safe access.
func (c *Chain) WatchApprovals(ctx context.Context, owner string, eventChan chan types.ApprovalEvent) error {
	c.approvalsMutex.RLock()
	defer c.approvalsMutex.RUnlock()

	if c.approvals == nil {
		return commonerrors.ErrNotImplemented
	}
	return c.approvals.WatchApprovals(ctx, owner, eventChan)
}

// ShutdownListeners stops all active subscriptions and pollers.
func (c *Chain) ShutdownListeners() {
	c.approvalsMutex.RLock()
	defer c.approvalsMutex.RUnlock()

	if c.approvals != nil {
		c.approvals.ShutdownListeners()
	}
}

// OwnerAddress returns the configured owner address, or "" for read-only chains.
func (c *Chain) OwnerAddress() string {
	c.ownerMutex.RLock()
	owner := c.owner
	c.ownerMutex.RUnlock()

	if owner == nil {
		return ""
	}
	return owner.OwnerAddress()
}

// GetConfig returns chain configuration.
func (c *Chain) GetConfig() *types.ChainConfig {
	return c.config
}

// GetSender returns the approval sender with thread-safe access.
func (c *Chain) GetSender() types.ApprovalSender {
	c.senderMutex.RLock()
	defer c.senderMutex.RUnlock()
	return c.sender
}

// GetWatcher returns the transaction watcher with thread-safe access.
func (c *Chain) GetWatcher() types.TransactionWatcher {
	c.watcherMutex.RLock()
	defer c.watcherMutex.RUnlock()
	return c.watcher
}
