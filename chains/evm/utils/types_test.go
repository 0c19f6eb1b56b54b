package utils

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testToken   = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	testOwner   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testSpender = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestDecodeApprovalLog(t *testing.T) {
	value := big.NewInt(1_000_000)
	log := ethtypes.Log{
		Address: testToken,
		Topics: []common.Hash{
			ApprovalEventTopic,
			common.BytesToHash(testOwner.Bytes()),
			common.BytesToHash(testSpender.Bytes()),
		},
		Data:        common.LeftPadBytes(value.Bytes(), 32),
		BlockNumber: 42,
		TxHash:      common.HexToHash("0xabc"),
	}

	event, err := DecodeApprovalLog(8453, log)
	require.NoError(t, err)

	assert.Equal(t, uint64(8453), event.ChainID)
	assert.Equal(t, testToken.Hex(), event.Token)
	assert.Equal(t, testOwner.Hex(), event.Owner)
	assert.Equal(t, testSpender.Hex(), event.Spender)
	assert.Equal(t, 0, value.Cmp(event.Value))
	assert.Equal(t, uint64(42), event.BlockNumber)
}

func TestDecodeApprovalLog_RejectsForeignLogs(t *testing.T) {
	erc721 := ethtypes.Log{
		Topics: []common.Hash{
			ApprovalEventTopic,
			common.BytesToHash(testOwner.Bytes()),
			common.BytesToHash(testSpender.Bytes()),
			common.BigToHash(big.NewInt(7)),
		},
	}
	_, err := DecodeApprovalLog(1, erc721)
	assert.Error(t, err)

	transfer := ethtypes.Log{
		Topics: []common.Hash{common.HexToHash("0xddf252ad"), {}, {}},
		Data:   make([]byte, 32),
	}
	_, err = DecodeApprovalLog(1, transfer)
	assert.Error(t, err)

	short := ethtypes.Log{
		Topics: []common.Hash{ApprovalEventTopic, {}, {}},
		Data:   make([]byte, 8),
	}
	_, err = DecodeApprovalLog(1, short)
	assert.Error(t, err)
}

func TestParseERC20ABI_PacksApproveAndAllowance(t *testing.T) {
	parsed, err := ParseERC20ABI()
	require.NoError(t, err)

	data, err := parsed.Pack("approve", testSpender, big.NewInt(5))
	require.NoError(t, err)
	// approve(address,uint256) selector
	assert.Equal(t, []byte{0x09, 0x5e, 0xa7, 0xb3}, data[:4])
	assert.Len(t, data, 4+64)

	data, err = parsed.Pack("allowance", testOwner, testSpender)
	require.NoError(t, err)
	// allowance(address,address) selector
	assert.Equal(t, []byte{0xdd, 0x62, 0xed, 0x3e}, data[:4])
}

func TestIsHexAddress(t *testing.T) {
	assert.True(t, IsHexAddress(testToken.Hex()))
	assert.False(t, IsHexAddress(ZeroAddress))
	assert.False(t, IsHexAddress("0x1234"))
	assert.False(t, IsHexAddress(""))
}
