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

// delegatePollInterval is the delay between token account scans.
var delegatePollInterval = 10 * time.Second

type delegation struct {
	mint     sol.PublicKey
	delegate sol.PublicKey
	amount   uint64
}

// delegateWatcher turns changes of token account delegations into approval events.
type delegateWatcher struct {
	chain     *solana
	owner     sol.PublicKey
	eventChan chan types.ApprovalEvent
	cancel    context.CancelFunc
	known     map[sol.PublicKey]delegation
	seeded    bool
}

// WatchApprovals polls the owner's SPL token accounts and emits an approval
// event whenever a delegate or delegated amount changes. A revoked delegation
// is reported with an empty spender and zero value. A previous watcher on this
// chain is replaced.
//
// Parameters:
// - ctx: the context for managing the lifecycle of the watcher.
// - owner: the token holder whose delegations are watched.
// - eventChan: the channel to receive approval events.
//
// Returns:
// - error: an error if owner is malformed or the client is not initialized.
func (s *solana) WatchApprovals(ctx context.Context, owner string, eventChan chan types.ApprovalEvent) error {
	ownerKey, err := sol.PublicKeyFromBase58(owner)
	if err != nil {
		return errors.Wrapf(commonerrors.ErrInvalidAddress, "owner %q", owner)
	}
	if s.getClient() == nil {
		return commonerrors.ErrClientNotReady
	}

	s.watcherMutex.Lock()
	defer s.watcherMutex.Unlock()

	if s.watcher != nil {
		s.watcher.stop()
	}

	watcherCtx, cancel := context.WithCancel(ctx)
	s.watcher = &delegateWatcher{
		chain:     s,
		owner:     ownerKey,
		eventChan: eventChan,
		cancel:    cancel,
		known:     make(map[sol.PublicKey]delegation),
	}

	s.logger.WithFields(logrus.Fields{
		"chain":    s.config.Name,
		"owner":    owner,
		"interval": delegatePollInterval,
	}).Info("Start polling token delegations")

	go s.watcher.run(watcherCtx)
	return nil
}

func (w *delegateWatcher) stop() {
	w.cancel()
}

func (w *delegateWatcher) run(ctx context.Context) {
	ticker := time.NewTicker(delegatePollInterval)
	defer ticker.Stop()

	for {
		if err := w.poll(ctx); err != nil && ctx.Err() == nil {
			w.chain.logger.WithField("chain", w.chain.config.Name).WithError(err).Error("Error polling token delegations")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll scans the owner's token accounts once. The first scan only seeds state.
func (w *delegateWatcher) poll(ctx context.Context) error {
	client := w.chain.getClient()
	if client == nil {
		return commonerrors.ErrClientNotReady
	}

	result, err := client.GetTokenAccountsByOwner(ctx, w.owner,
		&rpc.GetTokenAccountsConfig{ProgramId: sol.TokenProgramID.ToPointer()},
		&rpc.GetTokenAccountsOpts{Commitment: rpc.CommitmentConfirmed, Encoding: sol.EncodingBase64},
	)
	if err != nil {
		return errors.Wrap(err, "failed to get token accounts")
	}

	current := make(map[sol.PublicKey]delegation)
	if result != nil {
		for _, tokenAccount := range result.Value {
			if tokenAccount == nil || tokenAccount.Account.Data == nil {
				continue
			}
			account, err := utils.DecodeTokenAccount(tokenAccount.Account.Data.GetBinary())
			if err != nil {
				w.chain.logger.WithField("account", tokenAccount.Pubkey.String()).WithError(err).Warn("Failed to decode token account")
				continue
			}
			d := delegation{mint: account.Mint}
			if account.Delegate != nil {
				d.delegate = *account.Delegate
				d.amount = account.DelegatedAmount
			}
			current[tokenAccount.Pubkey] = d
		}
	}

	if w.seeded {
		for address, d := range current {
			if previous, ok := w.known[address]; !ok || previous != d {
				w.emit(ctx, d)
			}
		}
		for address, previous := range w.known {
			if _, ok := current[address]; !ok && !previous.delegate.IsZero() {
				w.emit(ctx, delegation{mint: previous.mint})
			}
		}
	}

	w.known = current
	w.seeded = true
	return nil
}

func (w *delegateWatcher) emit(ctx context.Context, d delegation) {
	event := types.ApprovalEvent{
		ChainID: w.chain.config.ChainID,
		Token:   d.mint.String(),
		Owner:   w.owner.String(),
		Value:   allowanceValue(d.amount),
	}
	if !d.delegate.IsZero() {
		event.Spender = d.delegate.String()
	}

	select {
	case w.eventChan <- event:
	case <-ctx.Done():
	}
}
