package handler

import (
	"context"
	"math/big"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// defaultPollingInterval is the default interval for polling events.
	defaultPollingInterval = 5 * time.Second
	// maxBlockRange is the maximum number of blocks to fetch in a single poll.
	maxBlockRange = uint64(1000)
)

// StartHTTPPolling starts polling for Approval events.
// It initializes a ticker to poll at regular intervals and processes events in a separate goroutine.
//
// Returns:
// - error: an error if any issue occurs during the polling setup.
func (h *EventHandler) StartHTTPPolling() error {
	h.stateMutex.Lock()
	if h.pollingTicker != nil {
		h.pollingTicker.Stop()
	}
	ticker := time.NewTicker(h.pollingInterval)
	h.pollingTicker = ticker
	h.polling = true
	ctx := h.ctx
	h.stateMutex.Unlock()

	h.logger.WithFields(logrus.Fields{
		"chain":    h.chainConfig.Name,
		"owner":    h.owner.Hex(),
		"interval": h.pollingInterval,
	}).Info("Start polling Approval events")

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := h.pollEvents(ctx); err != nil {
					if ctx.Err() != nil {
						return
					}
					h.logger.WithField("chain", h.chainConfig.Name).WithError(err).Error("Error polling events")
				}
			}
		}
	}()

	return nil
}

// pollEvents retrieves the current block number and processes the unseen block range.
// The first poll only records the head so history is never replayed.
//
// Parameters:
// - ctx: the context of the polling loop.
//
// Returns:
// - error: an error if any issue occurs during event polling.
func (h *EventHandler) pollEvents(ctx context.Context) error {
	client := h.getClient()
	if client == nil {
		return errors.New("client not initialized")
	}

	currentBlock, err := client.BlockNumber(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get current block number")
	}

	h.lastBlockMutex.RLock()
	fromBlock := h.lastProcessedBlock
	h.lastBlockMutex.RUnlock()

	if fromBlock == 0 {
		h.lastBlockMutex.Lock()
		h.lastProcessedBlock = currentBlock
		h.lastBlockMutex.Unlock()
		return nil
	}

	if currentBlock <= fromBlock {
		return nil
	}

	toBlock := fromBlock + maxBlockRange
	if toBlock > currentBlock {
		toBlock = currentBlock
	}

	if err := h.processBlockRange(ctx, client, fromBlock+1, toBlock); err != nil {
		return errors.Wrap(err, "failed to process block range")
	}

	h.lastBlockMutex.Lock()
	h.lastProcessedBlock = toBlock
	h.lastBlockMutex.Unlock()

	return nil
}

// processBlockRange queries Approval logs for the owner in the given block range.
//
// Parameters:
// - ctx: the context of the polling loop.
// - client: the node client used by this poll.
// - fromBlock: the starting block number.
// - toBlock: the ending block number.
//
// Returns:
// - error: an error if the log query fails.
func (h *EventHandler) processBlockRange(ctx context.Context, client LogClient, fromBlock, toBlock uint64) error {
	query := h.approvalQuery()
	query.FromBlock = new(big.Int).SetUint64(fromBlock)
	query.ToBlock = new(big.Int).SetUint64(toBlock)

	logs, err := client.FilterLogs(ctx, query)
	if err != nil {
		return errors.Wrap(err, "failed to get approval logs")
	}

	for _, log := range logs {
		if err := h.processLog(ctx, log); err != nil {
			h.logger.WithFields(logrus.Fields{
				"chain":  h.chainConfig.Name,
				"txHash": log.TxHash.Hex(),
				"block":  log.BlockNumber,
			}).WithError(err).Warn("Failed to process approval log")
		}
	}

	return nil
}
