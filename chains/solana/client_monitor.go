package solana

import (
	"context"

	commonerrors "github.com/ClipFinance/approval-lib/common/errors"
	"github.com/ClipFinance/approval-lib/connectionmonitor"
	"github.com/gagliardetto/solana-go/rpc"
)

// solanaConnectionManager implements connectionmonitor.BlockchainClient interface
type solanaConnectionManager struct {
	chain *solana
}

// CheckConnection fetches the current slot.
func (m *solanaConnectionManager) CheckConnection(ctx context.Context) error {
	client := m.chain.getClient()
	if client == nil {
		return commonerrors.ErrClientNotReady
	}

	_, err := client.GetSlot(ctx, rpc.CommitmentProcessed)
	return err
}

// Reconnect replaces the rpc client. The delegate watcher reads the client on every poll.
func (m *solanaConnectionManager) Reconnect(_ context.Context) error {
	m.chain.clientMutex.Lock()
	defer m.chain.clientMutex.Unlock()

	if m.chain.client != nil {
		_ = m.chain.client.Close()
	}

	m.chain.client = m.chain.dial(m.chain.config.RpcUrl)
	return nil
}

func (s *solana) initMonitor(ctx context.Context) error {
	s.monitorMutex.Lock()
	defer s.monitorMutex.Unlock()

	connectionManager := &solanaConnectionManager{chain: s}
	s.monitor = connectionmonitor.NewConnectionMonitor(connectionManager, s.logger, s.config.Name)
	return s.monitor.Start(ctx)
}
