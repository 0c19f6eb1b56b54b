package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/pkg/errors"
)

// MaxUint256 is the largest uint256 value, used as the "infinite" approval amount.
var MaxUint256 = new(big.Int).Set(math.MaxBig256)

var (
	errNegativeAmount = errors.New("approval amount must not be negative")
	errAmountTooLarge = errors.New("approval amount exceeds uint256")
)

// ApprovalRequest is the immutable input of one orchestration run.
//
// Fields:
// - TokenAddress: the token whose allowance is checked.
// - SpenderAddress: the spender to authorize; empty means use the account's assigned contract.
// - Amount: the required allowance; nil means MaxUint256.
// - RequiredChainID: the chain the approval must happen on; zero means any chain.
type ApprovalRequest struct {
	TokenAddress    string
	SpenderAddress  string
	Amount          *big.Int
	RequiredChainID uint64
}

// AmountToApprove returns a copy of the requested amount with the MaxUint256 default applied.
func (r *ApprovalRequest) AmountToApprove() *big.Int {
	if r.Amount == nil {
		return new(big.Int).Set(MaxUint256)
	}
	return new(big.Int).Set(r.Amount)
}

// Validate checks the amount invariants of the request.
//
// Returns:
// - error: an error if the amount is negative or larger than MaxUint256.
func (r *ApprovalRequest) Validate() error {
	if r.Amount == nil {
		return nil
	}
	if r.Amount.Sign() < 0 {
		return errNegativeAmount
	}
	if r.Amount.Cmp(MaxUint256) > 0 {
		return errAmountTooLarge
	}
	return nil
}

// AccountContext is the wallet state observed at one point of a run.
type AccountContext struct {
	Address     string
	ChainID     uint64
	IsConnected bool
}

// AllowanceSnapshot is an allowance value read from the chain.
type AllowanceSnapshot struct {
	Value     *big.Int
	FetchedAt time.Time
}

// Sufficient reports whether the snapshot covers amount. It is the only
// authorization predicate used for approval decisions.
func (s *AllowanceSnapshot) Sufficient(amount *big.Int) bool {
	if s == nil || s.Value == nil {
		return false
	}
	return HasSufficientAllowance(s.Value, amount)
}

// HasSufficientAllowance reports whether allowance >= amount.
func HasSufficientAllowance(allowance, amount *big.Int) bool {
	return allowance.Cmp(amount) >= 0
}

// SpenderAssignment is the contract the backend assigned to a wallet.
type SpenderAssignment struct {
	ContractAddress string `json:"contractAddress"`
	PoolAddress     string `json:"poolAddress"`
	Message         string `json:"message,omitempty"`
}
