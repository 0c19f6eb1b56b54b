package evm

import (
	"context"

	"github.com/ClipFinance/approval-lib/connectionmonitor"
	"github.com/pkg/errors"
)

// nodeHealth lets the connection monitor probe and re-dial the node behind an evm chain.
type nodeHealth struct {
	chain *evm
}

// initMonitor starts the connection monitor for the chain.
func (e *evm) initMonitor(ctx context.Context) error {
	e.monitorMutex.Lock()
	defer e.monitorMutex.Unlock()

	e.monitor = connectionmonitor.NewConnectionMonitor(&nodeHealth{chain: e}, e.logger, e.config.Name)
	return e.monitor.Start(ctx)
}

// CheckConnection probes the node with a chain id call, which also catches
// an endpoint that was repointed to another network.
//
// Parameters:
// - ctx: the context for managing the probe.
//
// Returns:
// - error: an error if the client is missing, unreachable or on the wrong chain.
func (n *nodeHealth) CheckConnection(ctx context.Context) error {
	return checkChainID(ctx, n.chain.GetClient(), n.chain.config.ChainID)
}

// Reconnect dials a fresh client and swaps it in only once it answers for the
// configured chain. The approval watcher, if any, is moved to the new client.
//
// Parameters:
// - ctx: the context for managing the reconnection process.
//
// Returns:
// - error: an error if dialing or the chain id check fails.
func (n *nodeHealth) Reconnect(ctx context.Context) error {
	e := n.chain

	client, err := e.dial(e.config.RpcUrl)
	if err != nil {
		return errors.Wrap(err, "failed to dial node")
	}
	if err := checkChainID(ctx, client, e.config.ChainID); err != nil {
		client.Close()
		return err
	}

	e.clientMutex.Lock()
	previous := e.client
	e.client = client
	e.clientMutex.Unlock()

	if previous != nil {
		previous.Close()
	}

	e.eventHandlerMutex.Lock()
	if e.eventHandler != nil {
		e.eventHandler.UpdateClient(client)
	}
	e.eventHandlerMutex.Unlock()

	return nil
}
