package commands

import (
	"context"

	"github.com/ClipFinance/approval-lib/allowance"
	"github.com/ClipFinance/approval-lib/approval"
	"github.com/ClipFinance/approval-lib/chainmanager"
	"github.com/ClipFinance/approval-lib/chains"
	"github.com/ClipFinance/approval-lib/common/types"
	"github.com/ClipFinance/approval-lib/config"
	"github.com/ClipFinance/approval-lib/dbconfig"
	"github.com/ClipFinance/approval-lib/spender"
	"github.com/ClipFinance/approval-lib/wallet"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// runtime wires the chains and approval collaborators for one command.
type runtime struct {
	cfg      *config.Config
	logger   *logrus.Logger
	registry types.ChainRegistry
	wallet   *wallet.Wallet
	oracle   *allowance.Oracle
	spenders *spender.Resolver
}

func newRuntime(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*runtime, error) {
	registry := chainmanager.NewChainRegistry(chains.NewChainFactory(), logger)

	chainConfigs, err := loadChainConfigs(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if len(chainConfigs) == 0 {
		return nil, errors.New("no chains configured")
	}

	for _, chainConfig := range chainConfigs {
		if err := registry.Add(ctx, chainConfig); err != nil {
			return nil, errors.Wrapf(err, "failed to add chain %d", chainConfig.ChainID)
		}
	}

	rt := &runtime{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		wallet:   wallet.New(registry, logger),
		oracle:   allowance.NewOracle(registry, logger, allowance.WithStaleTime(cfg.Allowance.StaleTime)),
	}

	if cfg.Spender.APIURL != "" {
		client := spender.NewClient(cfg.Spender.APIURL, nil, logger)
		rt.spenders = spender.NewResolver(client, cfg.Spender.TTL, logger)
		rt.wallet.OnAccountChange(func(account types.AccountContext) {
			if account.IsConnected {
				rt.spenders.Prefetch(account.Address)
			}
		})
	}

	return rt, nil
}

// loadChainConfigs merges chains from the database, when configured, with the
// chains of the config file. File entries win on the same chain id.
func loadChainConfigs(ctx context.Context, cfg *config.Config, logger *logrus.Logger) ([]*types.ChainConfig, error) {
	fileConfigs := cfg.ChainConfigs()
	if cfg.Database.DSN == "" {
		return fileConfigs, nil
	}

	db, err := dbconfig.NewDBConfig(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	dbConfigs, err := db.LoadChainConfigs(ctx, cfg.PrivateKeys())
	if err != nil {
		return nil, errors.Wrap(err, "failed to load chains from database")
	}

	byID := make(map[uint64]bool, len(fileConfigs))
	for _, c := range fileConfigs {
		byID[c.ChainID] = true
	}

	merged := fileConfigs
	for _, c := range dbConfigs {
		if byID[c.ChainID] {
			continue
		}
		merged = append(merged, c)
	}

	logger.WithFields(logrus.Fields{
		"file":     len(fileConfigs),
		"database": len(dbConfigs),
	}).Debug("Chains loaded")

	return merged, nil
}

func (rt *runtime) orchestrator() (*approval.Orchestrator, error) {
	deps := approval.Dependencies{
		Wallet:     rt.wallet,
		Allowances: rt.oracle,
		Submitter:  approval.NewRegistrySubmitter(rt.registry, rt.logger),
	}
	if rt.spenders != nil {
		deps.Spenders = rt.spenders
	}
	return approval.New(deps, rt.logger)
}

// connect attaches the wallet to chainID, or to the first configured chain.
func (rt *runtime) connect(chainID uint64) error {
	if chainID == 0 {
		ids := rt.registry.ChainIDs()
		if len(ids) == 0 {
			return errors.New("no chains configured")
		}
		chainID = ids[0]
	}
	return rt.wallet.Connect(chainID)
}

func (rt *runtime) close() {
	rt.wallet.Disconnect()
	for _, id := range rt.registry.ChainIDs() {
		rt.registry.Remove(id)
	}
}
