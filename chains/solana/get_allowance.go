package solana

import (
	"context"
	"math"
	"math/big"

	"github.com/ClipFinance/approval-lib/chains/solana/utils"
	commonerrors "github.com/ClipFinance/approval-lib/common/errors"
	"github.com/ClipFinance/approval-lib/common/types"
	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
)

// GetAllowance returns the amount spender may move from the owner's associated
// token account for mint token. It is zero when the account does not exist or
// spender is not its delegate.
//
// Parameters:
// - ctx: the context for managing the request.
// - owner: the token holder public key.
// - token: the token mint public key.
// - spender: the delegate public key.
//
// Returns:
// - *big.Int: the delegated amount.
// - error: an error if a key is malformed or the account cannot be read.
func (s *solana) GetAllowance(ctx context.Context, owner, token, spender string) (*big.Int, error) {
	client := s.getClient()
	if client == nil {
		return nil, commonerrors.ErrClientNotReady
	}

	ownerKey, err := sol.PublicKeyFromBase58(owner)
	if err != nil {
		return nil, errors.Wrapf(commonerrors.ErrInvalidAddress, "owner %q", owner)
	}
	mintKey, err := sol.PublicKeyFromBase58(token)
	if err != nil {
		return nil, errors.Wrapf(commonerrors.ErrInvalidAddress, "token %q", token)
	}
	spenderKey, err := sol.PublicKeyFromBase58(spender)
	if err != nil {
		return nil, errors.Wrapf(commonerrors.ErrInvalidAddress, "spender %q", spender)
	}

	ata, err := utils.GetAssociatedTokenAddress(mintKey, ownerKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get associated token address")
	}

	result, err := client.GetAccountInfoWithOpts(ctx, ata, &rpc.GetAccountInfoOpts{
		Commitment: rpc.CommitmentConfirmed,
		Encoding:   sol.EncodingBase64,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return big.NewInt(0), nil
		}
		return nil, errors.Wrap(err, "failed to get token account")
	}

	if result == nil || result.Value == nil || result.Value.Data == nil {
		return big.NewInt(0), nil
	}

	account, err := utils.DecodeTokenAccount(result.Value.Data.GetBinary())
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode token account")
	}

	return allowanceValue(account.AllowanceFor(spenderKey)), nil
}

// allowanceValue converts a delegated amount to an allowance. The u64 maximum
// is the SPL infinite approval and maps to MaxUint256.
func allowanceValue(delegated uint64) *big.Int {
	if delegated == math.MaxUint64 {
		return new(big.Int).Set(types.MaxUint256)
	}
	return new(big.Int).SetUint64(delegated)
}
