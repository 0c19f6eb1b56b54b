package approval

import (
	"context"

	"github.com/ClipFinance/approval-lib/common/types"
)

// Wallet reports the connected account and switches its chain.
type Wallet interface {
	Account(ctx context.Context) (types.AccountContext, error)
	SwitchChain(ctx context.Context, chainID uint64) error
}

// SpenderLookup resolves the spender assigned to a wallet. loading is true
// while a fetch for that wallet is still running.
type SpenderLookup interface {
	Lookup(ctx context.Context, wallet string) (assignment *types.SpenderAssignment, loading bool, err error)
}

// AllowanceOracle forces a fresh allowance read.
type AllowanceOracle interface {
	Refetch(ctx context.Context, chainID uint64, owner, token, spender string) (*types.AllowanceSnapshot, error)
}

// Submitter sends approval transactions and waits for them to become final.
// A successful Submit does not imply finality.
type Submitter interface {
	Submit(ctx context.Context, chainID uint64, intent *types.ApprovalIntent) (*types.Transaction, error)
	AwaitFinality(ctx context.Context, tx *types.Transaction) error
}

// Dependencies are the collaborators of an Orchestrator. Spenders may be nil
// when every request names its spender.
type Dependencies struct {
	Wallet     Wallet
	Spenders   SpenderLookup
	Allowances AllowanceOracle
	Submitter  Submitter
}
