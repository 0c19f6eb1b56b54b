package evm

import (
	"context"
	"math/big"

	"github.com/ClipFinance/approval-lib/chains/evm/utils"
	commonerrors "github.com/ClipFinance/approval-lib/common/errors"
	"github.com/ClipFinance/approval-lib/common/types"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// SendApproval signs and broadcasts an ERC20 approve(spender, amount) call.
//
// Parameters:
// - ctx: the context for managing the request.
// - intent: the approval details.
//
// Returns:
// - *types.Transaction: the transaction details.
// - error: an error if the client or signer is not initialized or if the transaction fails.
func (e *evm) SendApproval(ctx context.Context, intent *types.ApprovalIntent) (*types.Transaction, error) {
	client := e.GetClient()
	s := e.GetSigner()

	if client == nil || s == nil {
		return nil, commonerrors.ErrClientNotReady
	}

	if intent == nil || intent.Amount == nil {
		return nil, errors.New("approval amount is required")
	}
	if !common.IsHexAddress(intent.Token) || !common.IsHexAddress(intent.Spender) {
		return nil, errors.Wrap(commonerrors.ErrInvalidAddress, "token or spender")
	}

	data, err := e.tokenABI.Pack("approve", common.HexToAddress(intent.Spender), intent.Amount)
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack approve data")
	}

	nonce, err := client.PendingNonceAt(ctx, s.Address())
	if err != nil {
		return nil, errors.Wrap(err, "failed to get nonce")
	}

	tx, err := e.prepareTransaction(ctx, nonce, intent.Token, big.NewInt(0), data)
	if err != nil {
		return nil, err
	}

	signedTx, err := e.signAndSendTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"chain":   e.config.Name,
		"token":   intent.Token,
		"spender": intent.Spender,
		"amount":  intent.Amount.String(),
		"txHash":  signedTx.Hash().Hex(),
	}).Info("Approval transaction sent")

	return &types.Transaction{
		Hash:    signedTx.Hash().Hex(),
		From:    s.Address().Hex(),
		To:      intent.Token,
		Token:   intent.Token,
		Spender: intent.Spender,
		Amount:  intent.Amount.String(),
		Nonce:   nonce,
		ChainID: e.config.ChainID,
		Metadata: utils.EvmMetadata{
			TxType:   uint64(signedTx.Type()),
			GasLimit: signedTx.Gas(),
		},
	}, nil
}

// prepareTransaction prepares a transaction with the given parameters.
//
// Parameters:
// - ctx: the context for managing the request.
// - nonce: the nonce for the transaction.
// - toAddress: the recipient address of the transaction.
// - value: the amount of native currency to send with the transaction.
// - data: the input data for the transaction.
//
// Returns:
// - *ethtypes.Transaction: the prepared transaction.
// - error: an error if the gas estimation, gas price retrieval, or client initialization fails.
func (e *evm) prepareTransaction(ctx context.Context, nonce uint64, toAddress string, value *big.Int, data []byte) (*ethtypes.Transaction, error) {
	estimatedGas, err := e.EstimateGas(ctx, toAddress, value, data)
	if err != nil {
		e.logger.WithField("chain", e.config.Name).WithError(err).Warn("Failed to estimate gas")
		return nil, errors.Wrap(err, "failed to estimate gas")
	}

	gasLimit := estimatedGas * 11 / 10

	to := common.HexToAddress(toAddress)

	client := e.GetClient()
	if client == nil {
		return nil, commonerrors.ErrClientNotReady
	}

	if e.config.TxType == TxTypeEIP1559 {
		gasPriceData, err := e.getEIP1559GasPrice(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to get EIP-1559 gas price")
		}

		return ethtypes.NewTx(&ethtypes.DynamicFeeTx{
			ChainID:   new(big.Int).SetUint64(e.config.ChainID),
			Nonce:     nonce,
			GasFeeCap: gasPriceData.MaxFeePerGas,
			GasTipCap: gasPriceData.MaxPriorityFeePerGas,
			Gas:       gasLimit,
			To:        &to,
			Value:     value,
			Data:      data,
		}), nil
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get gas price")
	}

	gasPrice = new(big.Int).Mul(gasPrice, big.NewInt(150))
	gasPrice = new(big.Int).Div(gasPrice, big.NewInt(100))

	return ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	}), nil
}

// signAndSendTransaction signs and sends the prepared transaction.
//
// Parameters:
// - ctx: the context for managing the request.
// - tx: the prepared transaction to be signed and sent.
//
// Returns:
// - *ethtypes.Transaction: the signed and sent transaction.
// - error: an error if the client or signer is not initialized, or if the signing or sending fails.
func (e *evm) signAndSendTransaction(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Transaction, error) {
	client := e.GetClient()
	s := e.GetSigner()

	if client == nil || s == nil {
		return nil, commonerrors.ErrClientNotReady
	}

	chainID := new(big.Int).SetUint64(e.config.ChainID)

	signedTx, err := s.SignTx(tx, chainID)
	if err != nil {
		e.logger.WithField("chain", e.config.Name).WithError(err).Error("Failed to sign transaction")
		return nil, errors.Wrap(err, "failed to sign transaction")
	}

	if err = client.SendTransaction(ctx, signedTx); err != nil {
		e.logger.WithField("chain", e.config.Name).WithError(err).Error("Failed to send transaction")
		return nil, errors.Wrap(err, "failed to send transaction")
	}

	return signedTx, nil
}
