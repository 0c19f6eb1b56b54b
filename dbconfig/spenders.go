package dbconfig

import (
	"context"
	"database/sql"
	"strings"

	commonerrors "github.com/ClipFinance/approval-lib/common/errors"
	"github.com/ClipFinance/approval-lib/dbconfig/models"
	"github.com/pkg/errors"
)

// GetSpenderRiskFactors returns the stored risk factors of a spender on a chain.
// Addresses are matched case-insensitively.
//
// Parameters:
// - ctx: the context for managing the request.
// - chainID: the unique identifier for the chain.
// - address: the spender address.
//
// Returns:
// - []models.RiskFactor: the risk factors, oldest first; empty when none are stored.
// - error: an error if the database operation fails.
func (r *DBConfig) GetSpenderRiskFactors(ctx context.Context, chainID uint64, address string) ([]models.RiskFactor, error) {
	if chainID == 0 {
		return nil, commonerrors.ErrInvalidChainID
	}
	if address == "" {
		return nil, errors.Wrap(commonerrors.ErrInvalidAddress, "empty spender address")
	}

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
       SELECT
           id,
           chain_id,
           address,
           factor_type,
           source,
           data,
           created_at
       FROM spender_risk_factors
       WHERE chain_id = $1 AND lower(address) = $2
       ORDER BY created_at ASC, id ASC
    `, chainID, strings.ToLower(address))
	if err != nil {
		return nil, dbError("query spender risk factors", err)
	}
	defer rows.Close()

	factors := []models.RiskFactor{}
	for rows.Next() {
		var factor models.RiskFactor
		var data sql.NullString

		err := rows.Scan(
			&factor.ID,
			&factor.ChainID,
			&factor.Address,
			&factor.Type,
			&factor.Source,
			&data,
			&factor.CreatedAt,
		)
		if err != nil {
			return nil, dbError("scan spender risk factor", err)
		}

		if data.Valid {
			factor.Data = data.String
		}

		factors = append(factors, factor)
	}

	if err = rows.Err(); err != nil {
		return nil, dbError("iterate spender risk factors", err)
	}

	return factors, nil
}
