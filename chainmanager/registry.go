package chainmanager

import (
	"context"
	"sort"
	"sync"

	commonerrors "github.com/ClipFinance/approval-lib/common/errors"
	"github.com/ClipFinance/approval-lib/common/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ChainCreator builds a chain from its configuration.
type ChainCreator interface {
	CreateChain(ctx context.Context, config *types.ChainConfig, logger *logrus.Logger) (types.Chain, error)
}

type blockchainRegistry struct {
	logger       *logrus.Logger
	chains       map[uint64]types.Chain
	chainsMutex  sync.RWMutex
	factory      ChainCreator
	factoryMutex sync.RWMutex
}

// NewChainRegistry creates a registry that builds chains with factory.
//
// Parameters:
// - factory: the chain creator used by Add.
// - logger: the logger passed to created chains.
//
// Returns:
// - types.ChainRegistry: the new registry.
func NewChainRegistry(factory ChainCreator, logger *logrus.Logger) types.ChainRegistry {
	return &blockchainRegistry{
		chains:  make(map[uint64]types.Chain),
		factory: factory,
		logger:  logger,
	}
}

func (r *blockchainRegistry) Add(ctx context.Context, config *types.ChainConfig) error {
	if config == nil || config.ChainID == 0 {
		return commonerrors.ErrInvalidChainID
	}

	r.chainsMutex.RLock()
	_, exists := r.chains[config.ChainID]
	r.chainsMutex.RUnlock()
	if exists {
		return errors.Wrapf(commonerrors.ErrChainExists, "chain %d", config.ChainID)
	}

	// Lock factory for reading to prevent changes during chain creation.
	r.factoryMutex.RLock()
	factory := r.factory
	r.factoryMutex.RUnlock()

	if factory == nil {
		return commonerrors.ErrFactoryNotProvided
	}

	chain, err := factory.CreateChain(ctx, config, r.logger)
	if err != nil {
		return errors.Wrapf(err, "failed to create chain %s", config.Name)
	}

	r.chainsMutex.Lock()
	r.chains[config.ChainID] = chain
	r.chainsMutex.Unlock()

	r.logger.WithFields(logrus.Fields{
		"chain":   config.Name,
		"chainID": config.ChainID,
		"type":    config.ChainType,
	}).Info("Chain registered")

	return nil
}

func (r *blockchainRegistry) Get(chainID uint64) types.Chain {
	r.chainsMutex.RLock()
	chain := r.chains[chainID]
	r.chainsMutex.RUnlock()
	return chain
}

func (r *blockchainRegistry) Remove(chainID uint64) {
	r.chainsMutex.Lock()
	chain, ok := r.chains[chainID]
	delete(r.chains, chainID)
	r.chainsMutex.Unlock()

	if ok {
		chain.ShutdownListeners()
	}
}

func (r *blockchainRegistry) ChainIDs() []uint64 {
	r.chainsMutex.RLock()
	ids := make([]uint64, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	r.chainsMutex.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
