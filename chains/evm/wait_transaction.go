package evm

import (
	"context"
	"math/big"
	"sync"
	"time"

	commonerrors "github.com/ClipFinance/approval-lib/common/errors"
	"github.com/ClipFinance/approval-lib/common/types"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// gasIncreaseFactor is the minimum fee bump, in percent, nodes accept for a replacement.
const gasIncreaseFactor = 110

// receiptPollInterval is the delay between receipt checks over HTTP.
var receiptPollInterval = time.Second

// subscriptionHandler manages block header subscriptions
type subscriptionHandler struct {
	subscription ethereum.Subscription
	headerChan   chan *ethtypes.Header
	sync.RWMutex
}

// close unsubscribes. The header channel is left for the garbage collector.
func (h *subscriptionHandler) close() {
	h.Lock()
	defer h.Unlock()
	if h.subscription != nil {
		h.subscription.Unsubscribe()
		h.subscription = nil
	}
}

// WaitTransactionConfirmation waits until the approval is included and
// WaitNBlocks blocks deep. A stuck approval is re-sent with a higher fee and
// TxNeedsRetry is returned with tx.Hash pointing at the replacement.
//
// Parameters:
// - ctx: the context for managing the request.
// - tx: the transaction to wait for confirmation.
//
// Returns:
// - types.TransactionStatus: TxDone on success, TxFailed on revert or cancellation, TxNeedsRetry after a replacement.
// - error: an error if the client is not initialized or the wait is aborted.
func (e *evm) WaitTransactionConfirmation(ctx context.Context, tx *types.Transaction) (types.TransactionStatus, error) {
	client := e.GetClient()
	if client == nil {
		return types.TxFailed, commonerrors.ErrClientNotReady
	}

	start := time.Now()
	blockNumber, err := client.BlockNumber(ctx)
	if err != nil {
		return types.TxFailed, errors.Wrap(err, "failed to get current block number")
	}

	if types.GetSubscriptionMode(e.config.RpcUrl).Streaming() {
		return e.waitTransactionConfirmationWS(ctx, client, tx, blockNumber, start)
	}
	return e.waitTransactionConfirmationHTTP(ctx, client, tx, blockNumber, start)
}

// waitTransactionConfirmationWS waits for transaction confirmation using a new-head subscription.
func (e *evm) waitTransactionConfirmationWS(ctx context.Context, client nodeClient, tx *types.Transaction, startBlock uint64, startTime time.Time) (types.TransactionStatus, error) {
	handler := &subscriptionHandler{
		headerChan: make(chan *ethtypes.Header),
	}
	defer handler.close()

	sub, err := client.SubscribeNewHead(ctx, handler.headerChan)
	if err != nil {
		return types.TxFailed, errors.Wrap(err, "failed to subscribe to new headers")
	}

	handler.Lock()
	handler.subscription = sub
	handler.Unlock()

	for {
		select {
		case <-ctx.Done():
			e.logger.WithField("txHash", tx.Hash).Warn("WaitTransactionConfirmation: context done")
			return types.TxFailed, ctx.Err()

		case err := <-sub.Err():
			return types.TxFailed, errors.Wrap(err, "subscription error")

		case header := <-handler.headerChan:
			if header == nil {
				continue
			}

			status, done, err := e.checkTransaction(ctx, client, tx, header.Number.Uint64(), &startBlock, &startTime)
			if done {
				return status, err
			}
		}
	}
}

// waitTransactionConfirmationHTTP waits for transaction confirmation using HTTP polling.
func (e *evm) waitTransactionConfirmationHTTP(ctx context.Context, client nodeClient, tx *types.Transaction, startBlock uint64, startTime time.Time) (types.TransactionStatus, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.WithField("txHash", tx.Hash).Warn("WaitTransactionConfirmation: context done")
			return types.TxFailed, ctx.Err()

		case <-ticker.C:
			currentBlock, err := client.BlockNumber(ctx)
			if err != nil {
				e.logger.WithField("chain", e.config.Name).WithError(err).Warn("Failed to get current block number")
				continue
			}

			status, done, err := e.checkTransaction(ctx, client, tx, currentBlock, &startBlock, &startTime)
			if done {
				return status, err
			}
		}
	}
}

// checkTransaction runs one confirmation step at currentBlock.
//
// Returns:
// - types.TransactionStatus: the status to report when done is true.
// - bool: whether the wait is over.
// - error: the error to report when done is true.
func (e *evm) checkTransaction(ctx context.Context, client nodeClient, tx *types.Transaction, currentBlock uint64, startBlock *uint64, startTime *time.Time) (types.TransactionStatus, bool, error) {
	receipt, err := client.TransactionReceipt(ctx, common.HexToHash(tx.Hash))
	if err != nil {
		if !errors.Is(err, ethereum.NotFound) {
			return types.TxFailed, true, errors.Wrap(err, "failed to get transaction receipt")
		}

		if time.Since(*startTime) > waitTimeout && currentBlock > *startBlock+2 {
			previousHash := tx.Hash
			status, err := e.handleStuckTransaction(ctx, tx)
			if status != types.TxNeedsRetry || err != nil {
				return status, true, err
			}
			if tx.Hash != previousHash {
				return types.TxNeedsRetry, true, nil
			}
			*startTime = time.Now()
			*startBlock = currentBlock
		}
		return "", false, nil
	}

	if currentBlock < receipt.BlockNumber.Uint64()+e.config.WaitNBlocks {
		return "", false, nil
	}

	if receipt.Status == ethtypes.ReceiptStatusSuccessful {
		return types.TxDone, true, nil
	}

	e.logger.WithFields(logrus.Fields{
		"chain":  e.config.Name,
		"txHash": tx.Hash,
		"block":  receipt.BlockNumber.Uint64(),
	}).Warn("Approval transaction reverted")
	return types.TxFailed, true, nil
}

// handleStuckTransaction replaces a stuck approval with a higher fee, falling back to cancelling it.
func (e *evm) handleStuckTransaction(ctx context.Context, tx *types.Transaction) (types.TransactionStatus, error) {
	if e.GetSigner() == nil {
		return types.TxNeedsRetry, nil
	}

	newTx, err := e.replaceTransaction(ctx, tx)
	if err != nil {
		e.logger.WithField("txHash", tx.Hash).WithError(err).Warn("Failed to replace stuck transaction")

		cancelTx, cancelErr := e.cancelTransaction(ctx, tx)
		if cancelErr != nil {
			return types.TxFailed, errors.Wrap(cancelErr, "failed to cancel stuck transaction")
		}
		if cancelTx != nil {
			e.logger.WithFields(logrus.Fields{
				"originalTx": tx.Hash,
				"cancelTx":   cancelTx.Hash().Hex(),
			}).Info("Transaction cancelled successfully")
			return types.TxFailed, errors.New("transaction cancelled due to timeout")
		}
	}

	if newTx == nil {
		// Mined between the receipt check and the lookup; keep waiting on the same hash.
		return types.TxNeedsRetry, nil
	}

	e.logger.WithFields(logrus.Fields{
		"originalTx": tx.Hash,
		"replacedTx": newTx.Hash().Hex(),
	}).Info("Stuck approval replaced")

	tx.Hash = newTx.Hash().Hex()
	return types.TxNeedsRetry, nil
}

// replaceTransaction replaces a pending transaction with the same one at a higher gas price.
//
// Parameters:
// - ctx: the context for managing the request.
// - tx: the transaction to be replaced.
//
// Returns:
// - *ethtypes.Transaction: the replacement, or nil when the original is no longer pending.
// - error: an error if the transaction lookup or the resend fails.
func (e *evm) replaceTransaction(ctx context.Context, tx *types.Transaction) (*ethtypes.Transaction, error) {
	client := e.GetClient()
	if client == nil {
		return nil, commonerrors.ErrClientNotReady
	}

	oldTx, isPending, err := client.TransactionByHash(ctx, common.HexToHash(tx.Hash))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction by hash")
	}
	if !isPending {
		e.logger.WithFields(logrus.Fields{
			"txHash": tx.Hash,
			"chain":  e.config.Name,
		}).Warn("transaction is not pending")
		return nil, nil
	}

	newGasPrice, err := e.getNewGasPrice(ctx, oldTx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to calculate new gas price")
	}

	var newTx *ethtypes.Transaction

	if e.config.TxType == TxTypeEIP1559 {
		tip := new(big.Int).Div(new(big.Int).Mul(oldTx.GasTipCap(), big.NewInt(gasIncreaseFactor)), big.NewInt(100))
		newTx = ethtypes.NewTx(&ethtypes.DynamicFeeTx{
			ChainID:   oldTx.ChainId(),
			Nonce:     oldTx.Nonce(),
			GasTipCap: tip,
			GasFeeCap: newGasPrice,
			Gas:       oldTx.Gas(),
			To:        oldTx.To(),
			Value:     oldTx.Value(),
			Data:      oldTx.Data(),
		})
	} else {
		newTx = ethtypes.NewTx(&ethtypes.LegacyTx{
			Nonce:    oldTx.Nonce(),
			To:       oldTx.To(),
			Value:    oldTx.Value(),
			Gas:      oldTx.Gas(),
			GasPrice: newGasPrice,
			Data:     oldTx.Data(),
		})
	}

	return e.signAndSendTransaction(ctx, newTx)
}

// cancelTransaction cancels a pending transaction by sending a zero-value self transfer with the same nonce.
//
// Parameters:
// - ctx: the context for managing the request.
// - tx: the transaction to be cancelled.
//
// Returns:
// - *ethtypes.Transaction: the cancelling transaction, or nil when the original is no longer pending.
// - error: an error if the transaction lookup or the resend fails.
func (e *evm) cancelTransaction(ctx context.Context, tx *types.Transaction) (*ethtypes.Transaction, error) {
	client := e.GetClient()
	s := e.GetSigner()
	if client == nil || s == nil {
		return nil, commonerrors.ErrClientNotReady
	}

	transaction, pending, err := client.TransactionByHash(ctx, common.HexToHash(tx.Hash))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction by hash")
	}
	if !pending {
		e.logger.WithFields(logrus.Fields{
			"txHash": tx.Hash,
			"chain":  e.config.Name,
		}).Warn("transaction is not pending")
		return nil, nil
	}

	gasPrice := new(big.Int).Mul(transaction.GasPrice(), big.NewInt(150))
	gasPrice = new(big.Int).Div(gasPrice, big.NewInt(100))

	toAddress := s.Address()

	var newTx *ethtypes.Transaction

	if e.config.TxType == TxTypeEIP1559 {
		tip := new(big.Int).Div(new(big.Int).Mul(transaction.GasTipCap(), big.NewInt(150)), big.NewInt(100))
		newTx = ethtypes.NewTx(&ethtypes.DynamicFeeTx{
			ChainID:   new(big.Int).SetUint64(e.config.ChainID),
			Nonce:     transaction.Nonce(),
			GasTipCap: tip,
			GasFeeCap: gasPrice,
			Gas:       21000,
			To:        &toAddress,
			Value:     big.NewInt(0),
		})
	} else {
		newTx = ethtypes.NewTx(&ethtypes.LegacyTx{
			Nonce:    transaction.Nonce(),
			To:       &toAddress,
			Value:    big.NewInt(0),
			Gas:      21000,
			GasPrice: gasPrice,
		})
	}

	return e.signAndSendTransaction(ctx, newTx)
}

// getNewGasPrice returns the larger of the current network price and 110% of the old price.
func (e *evm) getNewGasPrice(ctx context.Context, oldTx *ethtypes.Transaction) (*big.Int, error) {
	client := e.GetClient()
	if client == nil {
		return nil, commonerrors.ErrClientNotReady
	}

	var currentGasPrice *big.Int

	if e.config.TxType == TxTypeEIP1559 {
		gasPriceData, err := e.getEIP1559GasPrice(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to get EIP-1559 gas price")
		}
		currentGasPrice = gasPriceData.MaxFeePerGas
	} else {
		price, err := client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to get current gas price")
		}
		currentGasPrice = price
	}

	minGasPrice := new(big.Int).Div(
		new(big.Int).Mul(oldTx.GasPrice(), big.NewInt(gasIncreaseFactor)),
		big.NewInt(100),
	)

	if currentGasPrice.Cmp(minGasPrice) > 0 {
		return currentGasPrice, nil
	}

	return minGasPrice, nil
}
