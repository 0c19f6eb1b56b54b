package wallet

import (
	"context"
	"sync"

	commonerrors "github.com/ClipFinance/approval-lib/common/errors"
	"github.com/ClipFinance/approval-lib/common/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrNoOwner is returned when connecting to a chain configured without a key.
var ErrNoOwner = errors.New("chain has no owner key configured")

// ChainSource resolves chains by id. types.ChainRegistry satisfies it.
type ChainSource interface {
	Get(chainID uint64) types.Chain
}

// Wallet exposes the account of the key configured on the active chain.
// Switching chains moves the account to the key of the target chain.
type Wallet struct {
	chains ChainSource
	logger *logrus.Logger

	mu        sync.RWMutex
	connected bool
	chainID   uint64
	address   string

	listenersMu sync.RWMutex
	listeners   []func(types.AccountContext)
}

// New creates a disconnected wallet over chains.
//
// Parameters:
// - chains: the source of configured chains.
// - logger: the logger for logging purposes.
//
// Returns:
// - *Wallet: the new wallet.
func New(chains ChainSource, logger *logrus.Logger) *Wallet {
	return &Wallet{
		chains: chains,
		logger: logger,
	}
}

// OnAccountChange registers fn to be called after every connect, switch and disconnect.
func (w *Wallet) OnAccountChange(fn func(types.AccountContext)) {
	w.listenersMu.Lock()
	defer w.listenersMu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Connect activates chainID and uses its owner key as the account.
//
// Parameters:
// - chainID: the chain to connect on.
//
// Returns:
// - error: ErrChainNotFound for unknown chains, ErrNoOwner for read-only chains.
func (w *Wallet) Connect(chainID uint64) error {
	address, err := w.ownerOf(chainID)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.connected = true
	w.chainID = chainID
	w.address = address
	account := w.accountLocked()
	w.mu.Unlock()

	w.logger.WithFields(logrus.Fields{
		"chainId": chainID,
		"address": address,
	}).Info("Wallet connected")

	w.notify(account)
	return nil
}

// Disconnect clears the account.
func (w *Wallet) Disconnect() {
	w.mu.Lock()
	w.connected = false
	w.address = ""
	account := w.accountLocked()
	w.mu.Unlock()

	w.logger.Info("Wallet disconnected")
	w.notify(account)
}

// Account returns the current account context.
func (w *Wallet) Account(_ context.Context) (types.AccountContext, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.accountLocked(), nil
}

// Chain returns the active chain, or nil when disconnected.
func (w *Wallet) Chain() types.Chain {
	w.mu.RLock()
	chainID, connected := w.chainID, w.connected
	w.mu.RUnlock()

	if !connected {
		return nil
	}
	return w.chains.Get(chainID)
}

// SwitchChain moves the wallet to chainID.
//
// Parameters:
// - ctx: the context for managing the request.
// - chainID: the target chain.
//
// Returns:
// - error: an error if the wallet is disconnected or the chain cannot be used.
func (w *Wallet) SwitchChain(ctx context.Context, chainID uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.RLock()
	connected, current := w.connected, w.chainID
	w.mu.RUnlock()

	if !connected {
		return errors.New("wallet is not connected")
	}
	if current == chainID {
		return nil
	}

	address, err := w.ownerOf(chainID)
	if err != nil {
		w.logger.WithField("chainId", chainID).WithError(err).Warn("Chain switch rejected")
		return err
	}

	w.mu.Lock()
	w.chainID = chainID
	w.address = address
	account := w.accountLocked()
	w.mu.Unlock()

	w.logger.WithFields(logrus.Fields{
		"from": current,
		"to":   chainID,
	}).Info("Switched chain")

	w.notify(account)
	return nil
}

func (w *Wallet) ownerOf(chainID uint64) (string, error) {
	chain := w.chains.Get(chainID)
	if chain == nil {
		return "", errors.Wrapf(commonerrors.ErrChainNotFound, "chain %d", chainID)
	}

	address := chain.OwnerAddress()
	if address == "" {
		return "", errors.Wrapf(ErrNoOwner, "chain %d", chainID)
	}
	return address, nil
}

func (w *Wallet) accountLocked() types.AccountContext {
	return types.AccountContext{
		Address:     w.address,
		ChainID:     w.chainID,
		IsConnected: w.connected,
	}
}

func (w *Wallet) notify(account types.AccountContext) {
	w.listenersMu.RLock()
	listeners := append([]func(types.AccountContext){}, w.listeners...)
	w.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(account)
	}
}
