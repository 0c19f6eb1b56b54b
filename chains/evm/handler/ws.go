package handler

import (
	"context"
	"math/big"
	"time"

	commontypes "github.com/ClipFinance/approval-lib/common/types"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// StartWSSubscription subscribes to Approval logs and handles them in a separate goroutine.
//
// Returns:
// - error: an error if any issue occurs during the subscription setup.
func (h *EventHandler) StartWSSubscription() error {
	ctx, sub := h.current()

	if err := h.setupSubscription(ctx, sub); err != nil {
		return errors.Wrap(err, "failed to setup subscription")
	}

	go h.handleEvents(ctx, sub)

	return nil
}

// reconnectSubscription re-creates the approval subscription. It retries up to
// maxReconnectAttempts times, then waits retryTimeout before the next round.
//
// Parameters:
// - ctx: the context of the subscription loop.
// - sub: the subscription to re-create.
//
// Returns:
// - error: an error if the context is cancelled.
func (h *EventHandler) reconnectSubscription(ctx context.Context, sub *commontypes.Subscription) error {
	sub.Close()

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return errors.New("context cancelled during reconnection")
		}

		h.logger.WithFields(logrus.Fields{
			"chain":   h.chainConfig.Name,
			"attempt": attempt,
		}).Info("Attempting to reconnect approval subscription")

		err := h.setupSubscription(ctx, sub)
		if err == nil {
			h.logger.WithField("chain", h.chainConfig.Name).Info("Successfully reconnected approval subscription")
			return nil
		}

		h.logger.WithField("chain", h.chainConfig.Name).WithError(err).Error("Failed to reconnect subscription")

		wait := reconnectTimeout
		if attempt == maxReconnectAttempts {
			h.logger.WithField("chain", h.chainConfig.Name).Warn("Max reconnect attempts reached, waiting for retry timeout")
			attempt = 0
			wait = retryTimeout
		}

		select {
		case <-ctx.Done():
			return errors.New("context cancelled during reconnection")
		case <-time.After(wait):
		}
	}
}

// handleEvents forwards subscribed logs and reconnects on subscription errors.
// It returns once ctx is done or sub is closed.
func (h *EventHandler) handleEvents(ctx context.Context, sub *commontypes.Subscription) {
	for {
		sub.Lock()
		current := sub.Subscription
		logs := sub.EventChan
		sub.Unlock()

		if current == nil {
			return
		}

		select {
		case <-ctx.Done():
			return

		case err := <-current.Err():
			if ctx.Err() != nil {
				return
			}
			h.logger.WithField("chain", h.chainConfig.Name).WithError(err).Error("Approval subscription error")
			if err := h.reconnectSubscription(ctx, sub); err != nil {
				h.logger.WithError(err).Debug("Approval subscription stopped")
				return
			}

		case log := <-logs:
			if err := h.processLog(ctx, log); err != nil {
				h.logger.WithField("chain", h.chainConfig.Name).WithError(err).Warn("Failed to process approval event")
			}
		}
	}
}

// setupSubscription subscribes to Approval logs for the owner from the current head.
//
// Parameters:
// - ctx: the context the subscription lives in.
// - sub: the subscription slot to fill.
//
// Returns:
// - error: an error if any issue occurs during the subscription setup.
func (h *EventHandler) setupSubscription(ctx context.Context, sub *commontypes.Subscription) error {
	client := h.getClient()
	if client == nil {
		return errors.New("client not initialized")
	}

	headCtx, cancel := context.WithTimeout(ctx, contextTimeout)
	defer cancel()

	sub.Lock()
	defer sub.Unlock()

	if sub.Subscription != nil {
		h.logger.WithField("chain", h.chainConfig.Name).Info("Closing approval subscription")
		sub.Subscription.Unsubscribe()
		sub.Subscription = nil
	}

	blockNumber, err := client.BlockNumber(headCtx)
	if err != nil {
		return errors.Wrap(err, "failed to get block number")
	}

	query := h.approvalQuery()
	query.FromBlock = new(big.Int).SetUint64(blockNumber)

	eventChan := make(chan ethtypes.Log)
	sub.Subscription, err = client.SubscribeFilterLogs(ctx, query, eventChan)
	if err != nil {
		sub.Subscription = nil
		return errors.Wrap(err, "failed to subscribe to approval events")
	}
	sub.EventChan = eventChan

	h.logger.WithFields(logrus.Fields{
		"chain":       h.chainConfig.Name,
		"owner":       h.owner.Hex(),
		"blockNumber": blockNumber,
	}).Info("Approval subscription established")

	return nil
}
