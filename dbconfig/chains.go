package dbconfig

import (
	"context"
	"database/sql"

	commonerrors "github.com/ClipFinance/approval-lib/common/errors"
	"github.com/ClipFinance/approval-lib/common/types"
	"github.com/ClipFinance/approval-lib/dbconfig/models"
	"github.com/pkg/errors"
)

const chainColumns = `
          id,
          chain_id,
          name,
          chain_type,
          tx_type,
          wait_n_blocks,
          active,
          created_at,
          updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChain(row rowScanner) (models.Chain, error) {
	var chain models.Chain
	var chainType sql.NullString
	var txType, waitNBlocks sql.NullInt64

	err := row.Scan(
		&chain.ID,
		&chain.ChainID,
		&chain.Name,
		&chainType,
		&txType,
		&waitNBlocks,
		&chain.Active,
		&chain.CreatedAt,
		&chain.UpdatedAt,
	)
	if err != nil {
		return chain, err
	}

	if chainType.Valid {
		chain.Type = types.ParseChainType(chainType.String).String()
	}
	if txType.Valid && txType.Int64 > 0 {
		chain.TxType = uint64(txType.Int64)
	}
	if waitNBlocks.Valid && waitNBlocks.Int64 > 0 {
		chain.WaitNBlocks = uint64(waitNBlocks.Int64)
	}

	return chain, nil
}

// GetChains returns all chains from the database, optionally filtering by active status.
//
// Parameters:
// - ctx: the context for managing the request.
// - activeOnly: a boolean flag to filter only active chains.
//
// Returns:
// - []models.Chain: the chains ordered by chain id.
// - error: an error if the database operation fails.
func (r *DBConfig) GetChains(ctx context.Context, activeOnly bool) ([]models.Chain, error) {
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	query := `SELECT` + chainColumns + `
      FROM chains`

	var args []interface{}
	if activeOnly {
		query += " WHERE active = $1"
		args = append(args, true)
	}

	query += " ORDER BY chain_id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("query chains", err)
	}
	defer rows.Close()

	var chains []models.Chain
	for rows.Next() {
		chain, err := scanChain(rows)
		if err != nil {
			return nil, dbError("scan chain", err)
		}
		chains = append(chains, chain)
	}

	if err = rows.Err(); err != nil {
		return nil, dbError("iterate chains", err)
	}

	return chains, nil
}

// GetChainByID returns one chain.
//
// Parameters:
// - ctx: the context for managing the request.
// - chainID: the unique identifier for the chain.
//
// Returns:
// - *models.Chain: the chain.
// - error: ErrChainNotFound if no row matches, or a database error.
func (r *DBConfig) GetChainByID(ctx context.Context, chainID uint64) (*models.Chain, error) {
	if chainID == 0 {
		return nil, commonerrors.ErrInvalidChainID
	}

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `SELECT`+chainColumns+`
       FROM chains
       WHERE chain_id = $1`, chainID)

	chain, err := scanChain(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(commonerrors.ErrChainNotFound, "chain %d", chainID)
	}
	if err != nil {
		return nil, dbError("query chain", err)
	}

	return &chain, nil
}

// LoadChainConfigs builds chain configurations for every active chain that has
// an active RPC. The highest priority RPC is used. Chains without an RPC are skipped.
//
// Parameters:
// - ctx: the context for managing the request.
// - privateKeys: owner keys by chain id; chains without a key are read-only.
//
// Returns:
// - []*types.ChainConfig: the configurations ordered by chain id.
// - error: an error if the database operation fails.
func (r *DBConfig) LoadChainConfigs(ctx context.Context, privateKeys map[uint64]string) ([]*types.ChainConfig, error) {
	chains, err := r.GetChains(ctx, true)
	if err != nil {
		return nil, err
	}

	configs := make([]*types.ChainConfig, 0, len(chains))
	for _, chain := range chains {
		rpcs, err := r.GetRPCsByChainID(ctx, chain.ChainID, true)
		if err != nil {
			return nil, err
		}
		if len(rpcs) == 0 {
			continue
		}
		configs = append(configs, ToChainConfig(chain, rpcs[0], privateKeys[chain.ChainID]))
	}

	return configs, nil
}

// ToChainConfig combines a chain row and its RPC into a chain configuration.
func ToChainConfig(chain models.Chain, rpc models.RPC, privateKey string) *types.ChainConfig {
	return &types.ChainConfig{
		Name:        chain.Name,
		ChainType:   types.ParseChainType(chain.Type),
		ChainID:     chain.ChainID,
		RpcUrl:      rpc.URL,
		TxType:      chain.TxType,
		WaitNBlocks: chain.WaitNBlocks,
		PrivateKey:  privateKey,
	}
}
