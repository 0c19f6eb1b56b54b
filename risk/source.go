package risk

import (
	"context"
	"encoding/json"

	"github.com/ClipFinance/approval-lib/dbconfig/models"
	"github.com/pkg/errors"
)

// Source returns the raw risk factors known for a spender.
type Source interface {
	SpenderRisk(ctx context.Context, chainID uint64, address string) ([]Factor, error)
}

// FactorStore reads stored risk factors. *dbconfig.DBConfig satisfies it.
type FactorStore interface {
	GetSpenderRiskFactors(ctx context.Context, chainID uint64, address string) ([]models.RiskFactor, error)
}

// DBSource serves risk factors from the database.
type DBSource struct {
	store FactorStore
}

// NewDBSource creates a database backed source.
func NewDBSource(store FactorStore) *DBSource {
	return &DBSource{store: store}
}

// SpenderRisk implements Source.
func (s *DBSource) SpenderRisk(ctx context.Context, chainID uint64, address string) ([]Factor, error) {
	rows, err := s.store.GetSpenderRiskFactors(ctx, chainID, address)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load risk factors")
	}

	factors := make([]Factor, 0, len(rows))
	for _, row := range rows {
		factor := Factor{Type: row.Type, Source: row.Source}
		if row.Data != "" && json.Valid([]byte(row.Data)) {
			factor.Data = json.RawMessage(row.Data)
		}
		factors = append(factors, factor)
	}

	return factors, nil
}
