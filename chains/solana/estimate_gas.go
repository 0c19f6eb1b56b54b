package solana

import (
	"context"
	"math/big"
	"slices"

	commonerrors "github.com/ClipFinance/approval-lib/common/errors"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
)

const (
	// defaultComputeUnits is used when simulation fails.
	defaultComputeUnits = uint64(20_000)
	// computeUnitBuffer is the percentage applied to simulated compute units.
	computeUnitBuffer = uint64(120)
	// minPriorityFee is the floor of the compute unit price, in micro-lamports.
	minPriorityFee = uint64(1_000)
)

// EstimateGas is not meaningful on Solana, where fees come from compute units.
// It returns the compute unit budget used for a plain approval.
func (s *solana) EstimateGas(_ context.Context, _ string, _ *big.Int, _ []byte) (uint64, error) {
	return defaultComputeUnits * computeUnitBuffer / 100, nil
}

// getPriorityFee returns the median of recent prioritization fees, never below minPriorityFee.
func (s *solana) getPriorityFee(ctx context.Context) uint64 {
	client := s.getClient()
	if client == nil {
		return minPriorityFee
	}

	fees, err := client.GetRecentPrioritizationFees(ctx, nil)
	if err != nil {
		s.logger.WithField("chain", s.config.Name).WithError(err).Warn("Failed to get prioritization fees")
		return minPriorityFee
	}

	return medianPriorityFee(fees)
}

func medianPriorityFee(fees []rpc.PriorizationFeeResult) uint64 {
	values := make([]uint64, 0, len(fees))
	for _, fee := range fees {
		if fee.PrioritizationFee > 0 {
			values = append(values, fee.PrioritizationFee)
		}
	}
	if len(values) == 0 {
		return minPriorityFee
	}

	slices.Sort(values)

	median := values[len(values)/2]
	if median < minPriorityFee {
		return minPriorityFee
	}
	return median
}

// currentBlockHeight returns the confirmed block height.
func (s *solana) currentBlockHeight(ctx context.Context) (uint64, error) {
	client := s.getClient()
	if client == nil {
		return 0, commonerrors.ErrClientNotReady
	}

	height, err := client.GetBlockHeight(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get block height")
	}
	return height, nil
}
