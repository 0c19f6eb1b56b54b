package solana

import (
	"context"
	"math"
	"math/big"

	"github.com/ClipFinance/approval-lib/chains/solana/utils"
	commonerrors "github.com/ClipFinance/approval-lib/common/errors"
	"github.com/ClipFinance/approval-lib/common/types"
	sol "github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// SendApproval sets spender as the delegate of the owner's associated token
// account. Amounts above the u64 range, such as the unlimited uint256 default,
// are clamped to the largest SPL amount.
//
// Parameters:
// - ctx: the context for managing the request.
// - intent: the approval details.
//
// Returns:
// - *types.Transaction: the transaction details.
// - error: an error if the instructions cannot be built or the transaction is rejected.
func (s *solana) SendApproval(ctx context.Context, intent *types.ApprovalIntent) (*types.Transaction, error) {
	client := s.getClient()
	signer := s.getSigner()
	if client == nil || signer == nil {
		return nil, commonerrors.ErrClientNotReady
	}

	if intent == nil || intent.Amount == nil || intent.Amount.Sign() < 0 {
		return nil, errors.New("approval amount is required")
	}

	mintKey, err := sol.PublicKeyFromBase58(intent.Token)
	if err != nil {
		return nil, errors.Wrapf(commonerrors.ErrInvalidAddress, "token %q", intent.Token)
	}
	delegateKey, err := sol.PublicKeyFromBase58(intent.Spender)
	if err != nil {
		return nil, errors.Wrapf(commonerrors.ErrInvalidAddress, "spender %q", intent.Spender)
	}

	ownerKey := signer.PublicKey()
	sourceATA, err := utils.GetAssociatedTokenAddress(mintKey, ownerKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get associated token address")
	}

	amount := clampToUint64(intent.Amount)

	latestBlockhashResult, err := client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get latest blockhash")
	}
	latestBlockhash := latestBlockhashResult.Value.Blockhash

	instructions, err := s.createApproveInstructions(ctx, client, *signer, sourceATA, delegateKey, amount, latestBlockhash)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create instructions")
	}

	tx, err := utils.NewSignedTransaction(*signer, instructions, latestBlockhash)
	if err != nil {
		return nil, err
	}

	sig, err := client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentProcessed,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to send transaction")
	}

	s.logger.WithFields(logrus.Fields{
		"chain":     s.config.Name,
		"mint":      intent.Token,
		"delegate":  intent.Spender,
		"amount":    amount,
		"signature": sig.String(),
	}).Info("Approval transaction sent")

	return &types.Transaction{
		Hash:    sig.String(),
		From:    ownerKey.String(),
		To:      sol.TokenProgramID.String(),
		Token:   intent.Token,
		Spender: intent.Spender,
		Amount:  new(big.Int).SetUint64(amount).String(),
		ChainID: s.config.ChainID,
		Metadata: utils.SolanaMetadata{
			Blockhash:            latestBlockhash,
			BlockhashSlot:        latestBlockhashResult.Context.Slot,
			LastValidBlockHeight: latestBlockhashResult.Value.LastValidBlockHeight,
		},
	}, nil
}

// createApproveInstructions prefixes the approve instruction with a compute budget.
func (s *solana) createApproveInstructions(
	ctx context.Context,
	client rpcClient,
	signer sol.PrivateKey,
	source sol.PublicKey,
	delegate sol.PublicKey,
	amount uint64,
	latestBlockhash sol.Hash,
) ([]sol.Instruction, error) {
	approve := utils.CreateApproveInstruction(source, delegate, signer.PublicKey(), amount)

	computeUnits, err := utils.SimulateTransaction(ctx, client, signer, []sol.Instruction{approve}, latestBlockhash)
	if err != nil {
		s.logger.WithField("chain", s.config.Name).WithError(err).Warn("Failed to simulate transaction, using default compute units")
		computeUnits = defaultComputeUnits
	}
	computeUnits = computeUnits * computeUnitBuffer / 100

	priorityFee := s.getPriorityFee(ctx)
	s.logger.WithFields(logrus.Fields{
		"computeUnits": computeUnits,
		"priorityFee":  priorityFee,
		"maxFeeInSol":  utils.LamportsToSol(utils.PriorityFeeLamports(priorityFee, computeUnits)),
	}).Debug("Approval compute budget")

	setComputeUnitLimitIx, err := computebudget.NewSetComputeUnitLimitInstruction(uint32(computeUnits)).ValidateAndBuild()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create compute unit limit instruction")
	}

	setPriorityFeeIx, err := computebudget.NewSetComputeUnitPriceInstruction(priorityFee).ValidateAndBuild()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create priority fee instruction")
	}

	return []sol.Instruction{setComputeUnitLimitIx, setPriorityFeeIx, approve}, nil
}

func clampToUint64(amount *big.Int) uint64 {
	if !amount.IsUint64() {
		return math.MaxUint64
	}
	return amount.Uint64()
}
