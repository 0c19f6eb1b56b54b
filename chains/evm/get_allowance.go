package evm

import (
	"context"
	"math/big"

	commonerrors "github.com/ClipFinance/approval-lib/common/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// GetAllowance reads the ERC20 allowance owner granted to spender.
//
// Parameters:
// - ctx: the context for managing the request.
// - owner: the token holder address.
// - token: the token contract address.
// - spender: the spender address.
//
// Returns:
// - *big.Int: the current allowance.
// - error: an error if an address is malformed or the call fails.
func (e *evm) GetAllowance(ctx context.Context, owner, token, spender string) (*big.Int, error) {
	client := e.GetClient()
	if client == nil {
		return nil, commonerrors.ErrClientNotReady
	}

	for _, address := range []string{owner, token, spender} {
		if !common.IsHexAddress(address) {
			return nil, errors.Wrapf(commonerrors.ErrInvalidAddress, "%q", address)
		}
	}

	data, err := e.tokenABI.Pack("allowance", common.HexToAddress(owner), common.HexToAddress(spender))
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack allowance data")
	}

	tokenAddr := common.HexToAddress(token)
	result, err := client.CallContract(ctx, ethereum.CallMsg{
		To:   &tokenAddr,
		Data: data,
	}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to call allowance")
	}

	if len(result) == 0 {
		return nil, errors.Errorf("empty result from allowance call, %s is not a token contract", token)
	}

	out, err := e.tokenABI.Unpack("allowance", result)
	if err != nil {
		return nil, errors.Wrap(err, "failed to unpack allowance")
	}

	allowance, ok := out[0].(*big.Int)
	if !ok {
		return nil, errors.New("unexpected allowance output type")
	}

	return allowance, nil
}
