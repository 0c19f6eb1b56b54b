package handler

import (
	"context"
	"sync"
	"time"

	"github.com/ClipFinance/approval-lib/chains/evm/utils"
	commontypes "github.com/ClipFinance/approval-lib/common/types"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
)

// Constants for event handler timeouts and retry attempts.
const (
	contextTimeout       = 30 * time.Second // Timeout for context operations.
	reconnectTimeout     = 5 * time.Second  // Timeout for reconnect attempts.
	retryTimeout         = 5 * time.Minute  // Timeout for retry operations.
	maxReconnectAttempts = 3                // Maximum number of reconnect attempts.
)

// LogClient is the part of the node client the handler needs.
// *ethclient.Client satisfies it.
type LogClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error)
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- ethtypes.Log) (ethereum.Subscription, error)
}

// EventHandler streams ERC20 Approval events emitted for one owner.
// It manages the subscription or the polling loop and client updates.
type EventHandler struct {
	parent               context.Context                // Context passed by the caller; bounds every restart.
	chainConfig          *commontypes.ChainConfig       // Chain configuration.
	logger               *logrus.Logger                 // Logger for logging events.
	owner                common.Address                 // Owner whose approvals are watched.
	eventChan            chan commontypes.ApprovalEvent // Channel for approval events.
	stateMutex           sync.RWMutex                   // Guards the fields below up to pollingTicker.
	ctx                  context.Context                // Context of the current subscription or polling loop.
	cancel               context.CancelFunc             // Cancel function for ctx.
	client               LogClient                      // Node client.
	approvalSubscription *commontypes.Subscription      // Subscription for approval logs.
	polling              bool                           // Whether the handler polls instead of subscribing.
	pollingTicker        *time.Ticker                   // Ticker for polling.
	lastProcessedBlock   uint64                         // Last processed block number.
	lastBlockMutex       sync.RWMutex                   // Mutex for last processed block.
	pollingInterval      time.Duration                  // Interval between polls.
}

// NewEventHandler creates a new event handler instance.
//
// Parameters:
// - ctx: context for managing the lifecycle of the event handler.
// - config: the chain configuration.
// - logger: the logger for logging events.
// - client: the node client.
// - owner: the token holder whose approvals are watched.
// - eventChan: the channel to receive approval events.
//
// Returns:
// - *EventHandler: a new EventHandler instance.
func NewEventHandler(
	ctx context.Context,
	config *commontypes.ChainConfig,
	logger *logrus.Logger,
	client LogClient,
	owner string,
	eventChan chan commontypes.ApprovalEvent,
) *EventHandler {
	handlerCtx, cancel := context.WithCancel(ctx)

	return &EventHandler{
		parent:               ctx,
		chainConfig:          config,
		logger:               logger,
		ctx:                  handlerCtx,
		cancel:               cancel,
		client:               client,
		owner:                common.HexToAddress(owner),
		eventChan:            eventChan,
		approvalSubscription: &commontypes.Subscription{},
		pollingInterval:      defaultPollingInterval,
	}
}

// UpdateClient swaps the node client and restarts the subscription or the polling loop.
// The restarted loop still ends when the context given to NewEventHandler is done.
//
// Parameters:
// - client: the new node client.
func (h *EventHandler) UpdateClient(client LogClient) {
	h.stateMutex.Lock()
	h.cancel()
	previous := h.approvalSubscription
	if h.pollingTicker != nil {
		h.pollingTicker.Stop()
		h.pollingTicker = nil
	}
	h.ctx, h.cancel = context.WithCancel(h.parent)
	h.approvalSubscription = &commontypes.Subscription{}
	h.client = client
	polling := h.polling
	h.stateMutex.Unlock()

	previous.Close()

	if h.parent.Err() != nil {
		return
	}

	if polling {
		if err := h.StartHTTPPolling(); err != nil {
			h.logger.WithField("chain", h.chainConfig.Name).WithError(err).Error("Failed to restart HTTP polling after client update")
		}
		return
	}

	if err := h.StartWSSubscription(); err != nil {
		h.logger.WithField("chain", h.chainConfig.Name).WithError(err).Error("Failed to setup subscription after client update")
	}
}

// Stop stops the event handler and closes the subscription and polling.
func (h *EventHandler) Stop() {
	h.stateMutex.Lock()
	h.cancel()
	sub := h.approvalSubscription
	if h.pollingTicker != nil {
		h.pollingTicker.Stop()
		h.pollingTicker = nil
	}
	h.stateMutex.Unlock()

	sub.Close()
}

// current returns the context and subscription of the running loop.
func (h *EventHandler) current() (context.Context, *commontypes.Subscription) {
	h.stateMutex.RLock()
	defer h.stateMutex.RUnlock()
	return h.ctx, h.approvalSubscription
}

// approvalQuery builds the filter for Approval logs whose owner topic matches.
func (h *EventHandler) approvalQuery() ethereum.FilterQuery {
	return ethereum.FilterQuery{
		Topics: [][]common.Hash{
			{utils.ApprovalEventTopic},
			{common.BytesToHash(h.owner.Bytes())},
		},
	}
}

func (h *EventHandler) getClient() LogClient {
	h.stateMutex.RLock()
	defer h.stateMutex.RUnlock()
	return h.client
}

// processLog decodes an approval log and forwards it to the event channel.
// It gives up on the send once ctx is done.
//
// Parameters:
// - ctx: the context of the loop that received the log.
// - log: the raw log.
//
// Returns:
// - error: an error if the log cannot be decoded.
func (h *EventHandler) processLog(ctx context.Context, log ethtypes.Log) error {
	if log.Removed {
		return nil
	}

	event, err := utils.DecodeApprovalLog(h.chainConfig.ChainID, log)
	if err != nil {
		return err
	}

	h.logger.WithFields(logrus.Fields{
		"chain":   h.chainConfig.Name,
		"token":   event.Token,
		"spender": event.Spender,
		"txHash":  event.TxHash,
	}).Debug("Approval event received")

	select {
	case h.eventChan <- event:
	case <-ctx.Done():
	}
	return nil
}
