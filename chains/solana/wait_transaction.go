package solana

import (
	"context"
	"time"

	"github.com/ClipFinance/approval-lib/chains/solana/utils"
	commonerrors "github.com/ClipFinance/approval-lib/common/errors"
	"github.com/ClipFinance/approval-lib/common/types"
	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// statusPollInterval is the delay between signature status checks.
var statusPollInterval = time.Second

// WaitTransactionConfirmation polls the signature status until the approval
// is finalized, or confirmed when WaitNBlocks is zero. A transaction that has
// not landed once its blockhash expired is reported as failed.
//
// Parameters:
// - ctx: the context for managing the request.
// - tx: the transaction to wait for confirmation.
//
// Returns:
// - types.TransactionStatus: TxDone on success, TxFailed otherwise.
// - error: an error if the signature is malformed or the wait is aborted.
func (s *solana) WaitTransactionConfirmation(ctx context.Context, tx *types.Transaction) (types.TransactionStatus, error) {
	sig, err := sol.SignatureFromBase58(tx.Hash)
	if err != nil {
		return types.TxFailed, errors.Wrap(err, "failed to parse signature")
	}

	var lastValidBlockHeight uint64
	if metadata, ok := tx.Metadata.(utils.SolanaMetadata); ok {
		lastValidBlockHeight = metadata.LastValidBlockHeight
	}

	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.WithField("signature", tx.Hash).Warn("WaitTransactionConfirmation: context done")
			return types.TxFailed, ctx.Err()

		case <-ticker.C:
			status, done, err := s.checkSignature(ctx, sig, lastValidBlockHeight)
			if done {
				return status, err
			}
			if err != nil {
				s.logger.WithField("signature", tx.Hash).WithError(err).Warn("Failed to check signature status")
			}
		}
	}
}

// checkSignature runs one status check.
//
// Returns:
// - types.TransactionStatus: the status to report when done is true.
// - bool: whether the wait is over.
// - error: a transient error when done is false, the final error otherwise.
func (s *solana) checkSignature(ctx context.Context, sig sol.Signature, lastValidBlockHeight uint64) (types.TransactionStatus, bool, error) {
	client := s.getClient()
	if client == nil {
		return "", false, commonerrors.ErrClientNotReady
	}

	result, err := client.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return "", false, errors.Wrap(err, "failed to get signature status")
	}

	var status *rpc.SignatureStatusesResult
	if result != nil && len(result.Value) > 0 {
		status = result.Value[0]
	}

	if status == nil {
		if lastValidBlockHeight == 0 {
			return "", false, nil
		}
		height, err := s.currentBlockHeight(ctx)
		if err != nil {
			return "", false, err
		}
		if height > lastValidBlockHeight {
			return types.TxFailed, true, errors.New("blockhash expired before the transaction landed")
		}
		return "", false, nil
	}

	if status.Err != nil {
		s.logger.WithFields(logrus.Fields{
			"chain":     s.config.Name,
			"signature": sig.String(),
			"slot":      status.Slot,
			"error":     status.Err,
		}).Warn("Approval transaction failed")
		return types.TxFailed, true, nil
	}

	switch status.ConfirmationStatus {
	case rpc.ConfirmationStatusFinalized:
		return types.TxDone, true, nil
	case rpc.ConfirmationStatusConfirmed:
		if s.config.WaitNBlocks == 0 {
			return types.TxDone, true, nil
		}
	}

	return "", false, nil
}
