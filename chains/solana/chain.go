package solana

import (
	"context"
	"sync"

	"github.com/ClipFinance/approval-lib/chainmanager"
	"github.com/ClipFinance/approval-lib/common/types"
	"github.com/ClipFinance/approval-lib/connectionmonitor"
	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// rpcClient is the subset of *rpc.Client used by the chain.
type rpcClient interface {
	GetAccountInfoWithOpts(ctx context.Context, account sol.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
	GetTokenAccountsByOwner(ctx context.Context, owner sol.PublicKey, conf *rpc.GetTokenAccountsConfig, opts *rpc.GetTokenAccountsOpts) (*rpc.GetTokenAccountsResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	GetBlockHeight(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
	GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...sol.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetRecentPrioritizationFees(ctx context.Context, accounts sol.PublicKeySlice) ([]rpc.PriorizationFeeResult, error)
	SimulateTransaction(ctx context.Context, transaction *sol.Transaction) (*rpc.SimulateTransactionResponse, error)
	SendTransactionWithOpts(ctx context.Context, transaction *sol.Transaction, opts rpc.TransactionOpts) (sol.Signature, error)
	Close() error
}

func newRPCClient(rpcURL string) rpcClient {
	return rpc.New(rpcURL)
}

// solana represents the base Solana chain implementation
type solana struct {
	config *types.ChainConfig
	logger *logrus.Logger
	dial   func(rpcURL string) rpcClient

	// Protected fields with their own mutexes
	clientMutex sync.RWMutex
	client      rpcClient

	signerMutex sync.RWMutex
	signer      *sol.PrivateKey

	watcherMutex sync.RWMutex
	watcher      *delegateWatcher

	monitorMutex sync.RWMutex
	monitor      connectionmonitor.ConnectionMonitor
}

// NewSolanaChain creates a new Solana chain implementation. Allowances on
// Solana are SPL Token delegations of the owner's associated token account.
//
// Parameters:
// - ctx: the context bounding the connection monitor.
// - config: the chain configuration.
// - logger: the logger for logging events.
//
// Returns:
// - types.Chain: a new Solana chain instance.
// - error: an error if any issue occurs during creation.
func NewSolanaChain(ctx context.Context, config *types.ChainConfig, logger *logrus.Logger) (types.Chain, error) {
	chain, err := newSolana(config, logger, newRPCClient)
	if err != nil {
		return nil, err
	}

	if err := chain.initMonitor(ctx); err != nil {
		chain.Close()
		return nil, errors.Wrap(err, "failed to init connection monitor")
	}

	builder := chainmanager.NewChainBuilder(config).
		WithGasEstimator(chain).
		WithAllowanceReader(chain).
		WithTransactionWatcher(chain).
		WithApprovalWatcher(chain).
		WithOwnerProvider(chain)

	if chain.getSigner() != nil {
		builder.WithApprovalSender(chain)
	}

	return builder.Build(), nil
}

// newSolana creates the client and loads the signer without starting background work.
func newSolana(config *types.ChainConfig, logger *logrus.Logger, dial func(string) rpcClient) (*solana, error) {
	chain := &solana{
		config: config,
		logger: logger,
		dial:   dial,
		client: dial(config.RpcUrl),
	}

	if config.PrivateKey != "" {
		signer, err := sol.PrivateKeyFromBase58(config.PrivateKey)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse private key")
		}

		chain.signerMutex.Lock()
		chain.signer = &signer
		chain.signerMutex.Unlock()
	}

	return chain, nil
}

// Close should be called when chain is no longer needed
func (s *solana) Close() {
	s.ShutdownListeners()

	s.clientMutex.Lock()
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.logger.WithField("chain", s.config.Name).WithError(err).Warn("Failed to close rpc client")
		}
		s.client = nil
	}
	s.clientMutex.Unlock()
}

func (s *solana) getClient() rpcClient {
	s.clientMutex.RLock()
	defer s.clientMutex.RUnlock()
	return s.client
}

func (s *solana) getSigner() *sol.PrivateKey {
	s.signerMutex.RLock()
	defer s.signerMutex.RUnlock()
	return s.signer
}

// OwnerAddress returns the base58 public key of the configured signer.
//
// Returns:
// - string: the owner address, or an empty string for read-only chains.
func (s *solana) OwnerAddress() string {
	signer := s.getSigner()
	if signer == nil {
		return ""
	}
	return signer.PublicKey().String()
}

// ShutdownListeners stops the delegate watcher and the connection monitor.
func (s *solana) ShutdownListeners() {
	s.watcherMutex.Lock()
	if s.watcher != nil {
		s.watcher.stop()
		s.watcher = nil
	}
	s.watcherMutex.Unlock()

	s.monitorMutex.Lock()
	if s.monitor != nil {
		s.monitor.Stop()
	}
	s.monitorMutex.Unlock()
}
