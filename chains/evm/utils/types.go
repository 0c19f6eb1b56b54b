package utils

import (
	"math/big"
	"strings"

	"github.com/ClipFinance/approval-lib/chains/evm/generated"
	commontypes "github.com/ClipFinance/approval-lib/common/types"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

const (
	// ZeroAddress represents the zero address.
	ZeroAddress = "0x0000000000000000000000000000000000000000"
)

// ApprovalEventTopic is topic0 of the ERC20 Approval(address,address,uint256) event.
var ApprovalEventTopic = crypto.Keccak256Hash([]byte("Approval(address,address,uint256)"))

// EvmMetadata represents the metadata kept on a submitted EVM transaction.
type EvmMetadata struct {
	TxType   uint64
	GasLimit uint64
	LogIndex uint
}

// ParseERC20ABI parses the bundled ERC20 ABI.
//
// Returns:
// - abi.ABI: the parsed ABI.
// - error: an error if the ABI is malformed.
func ParseERC20ABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(generated.ERC20ABI))
	if err != nil {
		return abi.ABI{}, errors.Wrap(err, "failed to parse token ABI")
	}
	return parsed, nil
}

// IsHexAddress reports whether s is a well-formed, non-zero EVM address.
func IsHexAddress(s string) bool {
	return common.IsHexAddress(s) && common.HexToAddress(s) != common.HexToAddress(ZeroAddress)
}

// DecodeApprovalLog converts an ERC20 Approval log into an approval event.
//
// Parameters:
// - chainID: the chain the log was read from.
// - log: the raw log.
//
// Returns:
// - commontypes.ApprovalEvent: the decoded event.
// - error: an error if the log is not an ERC20 Approval event.
func DecodeApprovalLog(chainID uint64, log ethtypes.Log) (commontypes.ApprovalEvent, error) {
	// ERC721 Approval carries the token id as a fourth topic and no data.
	if len(log.Topics) != 3 || log.Topics[0] != ApprovalEventTopic {
		return commontypes.ApprovalEvent{}, errors.New("not an ERC20 approval log")
	}
	if len(log.Data) != 32 {
		return commontypes.ApprovalEvent{}, errors.Errorf("unexpected approval data length %d", len(log.Data))
	}

	return commontypes.ApprovalEvent{
		ChainID:     chainID,
		Token:       log.Address.Hex(),
		Owner:       common.BytesToAddress(log.Topics[1].Bytes()).Hex(),
		Spender:     common.BytesToAddress(log.Topics[2].Bytes()).Hex(),
		Value:       new(big.Int).SetBytes(log.Data),
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
	}, nil
}
