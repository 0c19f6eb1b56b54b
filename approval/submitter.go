package approval

import (
	"context"

	commonerrors "github.com/ClipFinance/approval-lib/common/errors"
	"github.com/ClipFinance/approval-lib/common/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// maxReplacements bounds how often a stuck approval may be replaced while awaiting finality.
const maxReplacements = 5

// ChainSource resolves chains by id. types.ChainRegistry satisfies it.
type ChainSource interface {
	Get(chainID uint64) types.Chain
}

// RegistrySubmitter submits approvals through the chains of a registry.
type RegistrySubmitter struct {
	chains ChainSource
	logger *logrus.Logger
}

// NewRegistrySubmitter creates a submitter over chains.
func NewRegistrySubmitter(chains ChainSource, logger *logrus.Logger) *RegistrySubmitter {
	return &RegistrySubmitter{
		chains: chains,
		logger: logger,
	}
}

// Submit signs and sends the approval on chainID.
//
// Parameters:
// - ctx: the context for managing the request.
// - chainID: the chain to send on.
// - intent: the token, spender and amount to approve.
//
// Returns:
// - *types.Transaction: the accepted, not yet final, transaction.
// - error: an error if the chain is unknown or sending fails.
func (s *RegistrySubmitter) Submit(ctx context.Context, chainID uint64, intent *types.ApprovalIntent) (*types.Transaction, error) {
	chain := s.chains.Get(chainID)
	if chain == nil {
		return nil, errors.Wrapf(commonerrors.ErrChainNotFound, "chain %d", chainID)
	}

	tx, err := chain.SendApproval(ctx, intent)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send approval")
	}
	if tx.ChainID == 0 {
		tx.ChainID = chainID
	}

	return tx, nil
}

// AwaitFinality blocks until tx is final. A replaced transaction is followed
// under its new hash.
//
// Parameters:
// - ctx: the context for managing the request.
// - tx: the transaction returned by Submit.
//
// Returns:
// - error: an error if the transaction failed, was cancelled or could not be confirmed.
func (s *RegistrySubmitter) AwaitFinality(ctx context.Context, tx *types.Transaction) error {
	chain := s.chains.Get(tx.ChainID)
	if chain == nil {
		return errors.Wrapf(commonerrors.ErrChainNotFound, "chain %d", tx.ChainID)
	}

	for attempt := 0; ; attempt++ {
		status, err := chain.WaitTransactionConfirmation(ctx, tx)
		if err != nil {
			return errors.Wrapf(err, "failed to confirm transaction %s", tx.Hash)
		}

		switch status {
		case types.TxDone:
			return nil
		case types.TxFailed:
			return errors.Errorf("transaction %s failed", tx.Hash)
		case types.TxNeedsRetry:
			if attempt >= maxReplacements {
				return errors.Errorf("transaction %s still pending after %d replacements", tx.Hash, maxReplacements)
			}
			s.logger.WithFields(logrus.Fields{
				"chainId": tx.ChainID,
				"txHash":  tx.Hash,
				"attempt": attempt + 1,
			}).Info("Approval transaction replaced, waiting again")
		default:
			return errors.Errorf("unexpected transaction status %q", status)
		}
	}
}
