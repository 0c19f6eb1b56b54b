package evm

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ClipFinance/approval-lib/chainmanager"
	"github.com/ClipFinance/approval-lib/chains/evm/handler"
	"github.com/ClipFinance/approval-lib/chains/evm/signer"
	"github.com/ClipFinance/approval-lib/chains/evm/utils"
	commonerrors "github.com/ClipFinance/approval-lib/common/errors"
	"github.com/ClipFinance/approval-lib/common/types"
	"github.com/ClipFinance/approval-lib/connectionmonitor"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// TxTypeLegacy represents the legacy transaction type.
	TxTypeLegacy = 0
	// TxTypeEIP1559 represents the EIP-1559 transaction type.
	TxTypeEIP1559 = 2
	// waitTimeout is the time after which a pending approval is considered stuck.
	waitTimeout = 30 * time.Second
)

// nodeClient is the subset of *ethclient.Client used by the chain.
type nodeClient interface {
	handler.LogClient
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error)
	SubscribeNewHead(ctx context.Context, ch chan<- *ethtypes.Header) (ethereum.Subscription, error)
	Close()
}

// dialFunc opens a node client for an RPC URL.
type dialFunc func(rawurl string) (nodeClient, error)

func dialEthClient(rawurl string) (nodeClient, error) {
	return ethclient.Dial(rawurl)
}

// evm represents the base EVM chain implementation.
type evm struct {
	config     *types.ChainConfig // Chain configuration.
	logger     *logrus.Logger     // Logger for logging events.
	tokenABI   abi.ABI            // Parsed ERC20 ABI.
	dial       dialFunc           // Client constructor used on reconnect.
	owner      common.Address     // Owner address derived from the signer.
	ownerMutex sync.RWMutex       // Mutex for owner address.

	// Protected fields with their own mutexes.
	clientMutex sync.RWMutex // Mutex for client.
	client      nodeClient   // Node client.

	signerMutex sync.RWMutex  // Mutex for signer.
	signer      signer.Signer // Signer for signing transactions.

	eventHandlerMutex sync.RWMutex          // Mutex for event handler.
	eventHandler      *handler.EventHandler // Approval event handler.

	monitorMutex sync.RWMutex                        // Mutex for connection monitor.
	monitor      connectionmonitor.ConnectionMonitor // Connection monitor.
}

// NewEvmChain creates a new EVM chain implementation.
// Chains without a private key are read-only: allowance reads and approval
// watching work, approval submission reports not implemented.
//
// Parameters:
// - ctx: the context for managing the request.
// - config: the chain configuration.
// - logger: the logger for logging events.
//
// Returns:
// - types.Chain: a new EVM chain instance.
// - error: an error if any issue occurs during creation.
func NewEvmChain(ctx context.Context, config *types.ChainConfig, logger *logrus.Logger) (types.Chain, error) {
	chain, err := newEvm(config, logger, dialEthClient)
	if err != nil {
		return nil, err
	}

	if err := chain.verifyChainID(ctx); err != nil {
		chain.Close()
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

	if chain.GetSigner() != nil {
		builder.WithApprovalSender(chain)
	}

	return builder.Build(), nil
}

// newEvm dials the node and loads the signer without starting background work.
func newEvm(config *types.ChainConfig, logger *logrus.Logger, dial dialFunc) (*evm, error) {
	tokenABI, err := utils.ParseERC20ABI()
	if err != nil {
		return nil, err
	}

	client, err := dial(config.RpcUrl)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create client")
	}

	chain := &evm{
		config:   config,
		logger:   logger,
		tokenABI: tokenABI,
		dial:     dial,
		client:   client,
	}

	if config.PrivateKey != "" {
		s, err := signer.NewSignerFromHex(config.PrivateKey)
		if err != nil {
			client.Close()
			return nil, errors.Wrap(err, "failed to create signer")
		}

		chain.signerMutex.Lock()
		chain.signer = s
		chain.signerMutex.Unlock()

		chain.ownerMutex.Lock()
		chain.owner = s.Address()
		chain.ownerMutex.Unlock()
	}

	return chain, nil
}

// verifyChainID checks that the node serves the configured chain.
func (e *evm) verifyChainID(ctx context.Context) error {
	return checkChainID(ctx, e.GetClient(), e.config.ChainID)
}

// checkChainID asks client for its chain id and compares it with want.
func checkChainID(ctx context.Context, client nodeClient, want uint64) error {
	if client == nil {
		return commonerrors.ErrClientNotReady
	}
	remote, err := client.ChainID(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get chain id")
	}
	if remote.Uint64() != want {
		return errors.Wrapf(commonerrors.ErrChainIDMismatch, "got %d, configured %d", remote.Uint64(), want)
	}
	return nil
}

// Close should be called when the chain is no longer needed.
// It stops the connection monitor, closes the client, and stops the event handler.
func (e *evm) Close() {
	e.monitorMutex.Lock()
	if e.monitor != nil {
		e.monitor.Stop()
	}
	e.monitorMutex.Unlock()

	e.eventHandlerMutex.Lock()
	if e.eventHandler != nil {
		e.eventHandler.Stop()
		e.eventHandler = nil
	}
	e.eventHandlerMutex.Unlock()

	e.clientMutex.Lock()
	if e.client != nil {
		e.client.Close()
		e.client = nil
	}
	e.clientMutex.Unlock()
}

// GetClient returns the node client.
//
// Returns:
// - nodeClient: the node client, or nil after Close.
func (e *evm) GetClient() nodeClient {
	e.clientMutex.RLock()
	defer e.clientMutex.RUnlock()
	return e.client
}

// GetSigner returns the configured signer, or nil for read-only chains.
func (e *evm) GetSigner() signer.Signer {
	e.signerMutex.RLock()
	defer e.signerMutex.RUnlock()
	return e.signer
}
