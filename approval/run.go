package approval

import (
	"math/big"
	"strings"

	"github.com/ClipFinance/approval-lib/common/errors"
	"github.com/ClipFinance/approval-lib/common/types"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func (o *Orchestrator) execute(run *RunState, req types.ApprovalRequest, cb Callbacks) error {
	log := o.logger.WithFields(logrus.Fields{
		"runId":           run.ID,
		"token":           req.TokenAddress,
		"requiredChainId": req.RequiredChainID,
	})

	err := o.steps(run, req, cb, log)
	if err != nil {
		o.enter(run, types.PhaseFailed)
		o.update(run, func(s *State) {
			s.Err = err
		})
		o.finish(run)

		entry := log.WithField("kind", errors.KindOf(err))
		if cause := pkgerrors.Unwrap(err); cause != nil {
			entry = entry.WithError(cause)
		}
		entry.Warn("Approval run failed")
		cb.fail(err)
		return err
	}

	o.enter(run, types.PhaseSucceeded)
	o.finish(run)

	log.Info("Approval run succeeded")
	cb.success()
	return nil
}

func (o *Orchestrator) steps(run *RunState, req types.ApprovalRequest, cb Callbacks, log *logrus.Entry) error {
	ctx := run.ctx

	o.enter(run, types.PhaseGuardChecking)

	account, err := o.deps.Wallet.Account(ctx)
	if err != nil || !account.IsConnected || account.Address == "" {
		return errors.ErrNotConnected.WithCause(err)
	}

	spender, err := o.resolveSpender(run, req, account, log)
	if err != nil {
		return err
	}
	if req.TokenAddress == "" || spender == "" {
		return errors.ErrMissingConfiguration
	}
	if err := req.Validate(); err != nil {
		return errors.ErrInvalidAmount.WithCause(err)
	}
	amount := req.AmountToApprove()

	log = log.WithFields(logrus.Fields{
		"owner":   account.Address,
		"spender": spender,
	})

	if req.RequiredChainID != 0 && req.RequiredChainID != account.ChainID {
		o.enter(run, types.PhaseChainSwitching)
		cb.requiresApproval()

		log.WithField("fromChainId", account.ChainID).Info("Switching network")
		if err := o.deps.Wallet.SwitchChain(ctx, req.RequiredChainID); err != nil {
			return errors.ErrChainSwitchFailed.WithCause(err)
		}

		switched, err := o.deps.Wallet.Account(ctx)
		if err != nil {
			return errors.ErrChainSwitchFailed.WithCause(err)
		}
		if !switched.IsConnected || switched.Address == "" {
			return errors.ErrNotConnected
		}
		if switched.ChainID != req.RequiredChainID {
			return errors.ErrChainSwitchFailed.WithCause(
				pkgerrors.Errorf("wallet is on chain %d after switching to %d", switched.ChainID, req.RequiredChainID))
		}
		// The spender was resolved for the pre-switch account.
		if !sameAddress(switched.Address, account.Address) {
			return errors.ErrChainSwitchFailed.WithCause(
				pkgerrors.Errorf("wallet account changed from %s to %s while switching", account.Address, switched.Address))
		}
		account = switched
	}

	o.enter(run, types.PhaseAllowanceVerifying)

	snapshot, err := o.deps.Allowances.Refetch(ctx, account.ChainID, account.Address, req.TokenAddress, spender)
	if err != nil || snapshot == nil || snapshot.Value == nil {
		o.setApproved(run, false)
		return errors.ErrAllowanceVerificationFailed.WithCause(err)
	}

	sufficient := snapshot.Sufficient(amount)
	o.setApproved(run, sufficient)
	if sufficient {
		log.WithField("allowance", snapshot.Value.String()).Debug("Allowance already sufficient")
		return nil
	}

	o.enter(run, types.PhaseApprovalSubmitting)
	cb.requiresApproval()
	return o.approve(run, account, spender, req.TokenAddress, amount, log)
}

func (o *Orchestrator) resolveSpender(run *RunState, req types.ApprovalRequest, account types.AccountContext, log *logrus.Entry) (string, error) {
	if req.SpenderAddress != "" {
		return req.SpenderAddress, nil
	}
	if o.deps.Spenders == nil {
		return "", nil
	}

	assignment, loading, err := o.deps.Spenders.Lookup(run.ctx, account.Address)
	if loading {
		return "", errors.ErrSpenderDetailsLoading
	}
	if err != nil {
		log.WithError(err).Warn("Spender assignment lookup failed")
		return "", errors.ErrMissingConfiguration.WithCause(err)
	}
	if assignment == nil {
		return "", nil
	}
	if assignment.ContractAddress == "" && assignment.Message != "" {
		log.WithField("message", assignment.Message).Info("No spender contract assigned")
	}
	return assignment.ContractAddress, nil
}

func (o *Orchestrator) approve(run *RunState, account types.AccountContext, spender, token string, amount *big.Int, log *logrus.Entry) error {
	ctx := run.ctx

	run.TxPending = true
	defer func() { run.TxPending = false }()

	tx, err := o.deps.Submitter.Submit(ctx, account.ChainID, &types.ApprovalIntent{
		Token:   token,
		Spender: spender,
		Amount:  amount,
	})
	if err != nil {
		return errors.ErrApprovalTransactionFailed.WithCause(err)
	}

	log = log.WithField("txHash", tx.Hash)
	log.Info("Approval transaction submitted")

	o.enter(run, types.PhaseApprovalConfirming)
	if err := o.deps.Submitter.AwaitFinality(ctx, tx); err != nil {
		return errors.ErrApprovalTransactionFailed.WithCause(err)
	}

	if _, err := o.deps.Allowances.Refetch(ctx, account.ChainID, account.Address, token, spender); err != nil {
		log.WithError(err).Warn("Allowance re-read after confirmation failed")
	}

	o.setApproved(run, true)
	return nil
}

// sameAddress compares hex addresses case-insensitively and anything else exactly.
func sameAddress(a, b string) bool {
	if strings.HasPrefix(a, "0x") && strings.HasPrefix(b, "0x") {
		return strings.EqualFold(a, b)
	}
	return a == b
}
