package evm

import (
	"context"

	"github.com/ClipFinance/approval-lib/chains/evm/handler"
	commonerrors "github.com/ClipFinance/approval-lib/common/errors"
	"github.com/ClipFinance/approval-lib/common/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// WatchApprovals streams ERC20 Approval events emitted for owner. WebSocket
// endpoints use a log subscription, other endpoints are polled. A previous
// watcher on this chain is replaced.
//
// Parameters:
// - ctx: the context for managing the lifecycle of the watcher.
// - owner: the token holder whose approvals are watched.
// - eventChan: the channel to receive approval events.
//
// Returns:
// - error: an error if the client is not initialized or the watcher cannot start.
func (e *evm) WatchApprovals(ctx context.Context, owner string, eventChan chan types.ApprovalEvent) error {
	if !common.IsHexAddress(owner) {
		return errors.Wrapf(commonerrors.ErrInvalidAddress, "%q", owner)
	}

	e.eventHandlerMutex.Lock()
	defer e.eventHandlerMutex.Unlock()

	client := e.GetClient()
	if client == nil {
		return commonerrors.ErrClientNotReady
	}

	if e.eventHandler != nil {
		e.eventHandler.Stop()
		e.eventHandler = nil
	}

	eventHandler := handler.NewEventHandler(ctx, e.config, e.logger, client, owner, eventChan)

	mode := types.GetSubscriptionMode(e.config.RpcUrl)
	var err error
	if mode.Streaming() {
		err = eventHandler.StartWSSubscription()
	} else {
		err = eventHandler.StartHTTPPolling()
	}
	if err != nil {
		eventHandler.Stop()
		return errors.Wrapf(err, "failed to start %s approval watcher", mode)
	}

	e.logger.WithFields(logrus.Fields{
		"chain": e.config.Name,
		"owner": owner,
		"mode":  mode.String(),
	}).Info("Watching approvals")

	e.eventHandler = eventHandler
	return nil
}
