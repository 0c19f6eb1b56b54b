package approval

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"sync"
	"testing"
	"time"

	commonerrors "github.com/ClipFinance/approval-lib/common/errors"
	"github.com/ClipFinance/approval-lib/common/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a fake for every collaborator; it logs calls in order.
type recorder struct {
	mu    sync.Mutex
	calls []string

	account    types.AccountContext
	accountErr error
	switchErr  error
	// switchTo is the chain the wallet reports after a successful switch; zero means the requested one.
	switchTo uint64
	// switchAddress is the account the wallet reports after a successful switch; empty keeps the current one.
	switchAddress string

	assignment *types.SpenderAssignment
	loading    bool
	lookupErr  error

	allowances  []*big.Int
	refetchErrs []error
	refetches   int

	submitErr   error
	finalityErr error
	submitted   []*types.ApprovalIntent

	block chan struct{}
}

func (r *recorder) record(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *recorder) log() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) Account(context.Context) (types.AccountContext, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.account, r.accountErr
}

func (r *recorder) SwitchChain(_ context.Context, chainID uint64) error {
	r.record("switch(%d)", chainID)
	if r.switchErr != nil {
		return r.switchErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.account.ChainID = chainID
	if r.switchTo != 0 {
		r.account.ChainID = r.switchTo
	}
	if r.switchAddress != "" {
		r.account.Address = r.switchAddress
	}
	return nil
}

func (r *recorder) Lookup(_ context.Context, wallet string) (*types.SpenderAssignment, bool, error) {
	r.record("lookup(%s)", wallet)
	return r.assignment, r.loading, r.lookupErr
}

func (r *recorder) Refetch(ctx context.Context, chainID uint64, owner, token, spender string) (*types.AllowanceSnapshot, error) {
	r.record("read(%d,%s,%s,%s)", chainID, owner, token, spender)
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.refetches
	r.refetches++
	if i < len(r.refetchErrs) && r.refetchErrs[i] != nil {
		return nil, r.refetchErrs[i]
	}
	if i >= len(r.allowances) {
		i = len(r.allowances) - 1
	}
	if i < 0 || r.allowances[i] == nil {
		return nil, nil
	}
	return &types.AllowanceSnapshot{Value: r.allowances[i], FetchedAt: time.Now()}, nil
}

func (r *recorder) Submit(_ context.Context, chainID uint64, intent *types.ApprovalIntent) (*types.Transaction, error) {
	r.record("submit(%d,%s,%s)", chainID, intent.Spender, intent.Amount)
	r.mu.Lock()
	r.submitted = append(r.submitted, intent)
	r.mu.Unlock()
	if r.submitErr != nil {
		return nil, r.submitErr
	}
	return &types.Transaction{Hash: "0xhash", ChainID: chainID}, nil
}

func (r *recorder) AwaitFinality(_ context.Context, tx *types.Transaction) error {
	r.record("await(%s)", tx.Hash)
	return r.finalityErr
}

type outcome struct {
	requires  int
	successes int
	errs      []error
	order     []string
}

func (o *outcome) callbacks(r *recorder) Callbacks {
	return Callbacks{
		OnSuccess: func() {
			o.successes++
			o.order = append(o.order, "success")
			r.record("onSuccess")
		},
		OnError: func(err error) {
			o.errs = append(o.errs, err)
			o.order = append(o.order, "error")
			r.record("onError")
		},
		OnRequiresApproval: func() {
			o.requires++
			o.order = append(o.order, "requires")
			r.record("onRequiresApproval")
		},
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func connected(chainID uint64) *recorder {
	return &recorder{
		account:    types.AccountContext{Address: "0xOwner", ChainID: chainID, IsConnected: true},
		assignment: &types.SpenderAssignment{ContractAddress: "0xSpender"},
	}
}

func newOrchestrator(t *testing.T, r *recorder) *Orchestrator {
	o, err := New(Dependencies{Wallet: r, Spenders: r, Allowances: r, Submitter: r}, quietLogger())
	require.NoError(t, err)
	return o
}

func run(t *testing.T, r *recorder, req types.ApprovalRequest) (*Orchestrator, *outcome, error) {
	o := newOrchestrator(t, r)
	out := &outcome{}
	err := o.Run(context.Background(), req, out.callbacks(r))
	return o, out, err
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Dependencies{}, quietLogger())
	assert.True(t, errors.Is(err, commonerrors.ErrInvalidConfig))
}

func TestRun_SufficientAllowanceSucceedsWithoutSubmitting(t *testing.T) {
	r := connected(1)
	r.allowances = []*big.Int{big.NewInt(1000)}

	o, out, err := run(t, r, types.ApprovalRequest{TokenAddress: "0xToken", Amount: big.NewInt(500), RequiredChainID: 1})
	require.NoError(t, err)

	assert.Equal(t, []string{"success"}, out.order)
	assert.Equal(t, []string{
		"lookup(0xOwner)",
		"read(1,0xOwner,0xToken,0xSpender)",
		"onSuccess",
	}, r.log())

	state := o.Snapshot()
	assert.Equal(t, types.PhaseSucceeded, state.Phase)
	require.NotNil(t, state.Approved)
	assert.True(t, *state.Approved)
	assert.False(t, state.IsLoading)
	assert.NoError(t, state.Err)
}

func TestRun_WrongChainInfiniteApproval(t *testing.T) {
	r := connected(1)
	r.allowances = []*big.Int{big.NewInt(0), types.MaxUint256}

	o, out, err := run(t, r, types.ApprovalRequest{TokenAddress: "0xToken", RequiredChainID: 137})
	require.NoError(t, err)

	assert.Equal(t, []string{"requires", "requires", "success"}, out.order)
	assert.Equal(t, []string{
		"lookup(0xOwner)",
		"onRequiresApproval",
		"switch(137)",
		"read(137,0xOwner,0xToken,0xSpender)",
		"onRequiresApproval",
		"submit(137,0xSpender," + types.MaxUint256.String() + ")",
		"await(0xhash)",
		"read(137,0xOwner,0xToken,0xSpender)",
		"onSuccess",
	}, r.log())

	require.Len(t, r.submitted, 1)
	assert.Equal(t, 0, r.submitted[0].Amount.Cmp(types.MaxUint256))
	assert.Equal(t, types.PhaseSucceeded, o.Snapshot().Phase)
}

func TestRun_DisconnectedFailsImmediately(t *testing.T) {
	r := &recorder{}

	o, out, err := run(t, r, types.ApprovalRequest{TokenAddress: "0xToken", SpenderAddress: "0xSpender"})
	require.Error(t, err)

	assert.Equal(t, "Wallet not connected.", err.Error())
	assert.True(t, errors.Is(err, commonerrors.ErrNotConnected))
	assert.Equal(t, []string{"error"}, out.order)
	assert.Equal(t, []string{"onError"}, r.log())

	state := o.Snapshot()
	assert.Equal(t, types.PhaseFailed, state.Phase)
	assert.Equal(t, err, state.Err)
}

func TestRun_ConnectedWithoutAddressIsNotConnected(t *testing.T) {
	r := &recorder{account: types.AccountContext{ChainID: 1, IsConnected: true}}

	_, _, err := run(t, r, types.ApprovalRequest{TokenAddress: "0xToken", SpenderAddress: "0xSpender"})
	assert.Equal(t, commonerrors.KindNotConnected, commonerrors.KindOf(err))
	assert.Empty(t, r.submitted)
}

func TestRun_SpenderLoading(t *testing.T) {
	r := connected(1)
	r.loading = true
	r.assignment = nil

	_, out, err := run(t, r, types.ApprovalRequest{TokenAddress: "0xToken"})
	assert.Equal(t, "Spender details are loading, please wait.", err.Error())
	assert.Equal(t, []string{"error"}, out.order)
	assert.Equal(t, []string{"lookup(0xOwner)", "onError"}, r.log())
}

func TestRun_MissingConfiguration(t *testing.T) {
	tests := []struct {
		name  string
		req   types.ApprovalRequest
		setup func(r *recorder)
	}{
		{"no token", types.ApprovalRequest{}, nil},
		{"no assigned contract", types.ApprovalRequest{TokenAddress: "0xToken"}, func(r *recorder) {
			r.assignment = &types.SpenderAssignment{Message: "User created, but no contract available"}
		}},
		{"lookup failed", types.ApprovalRequest{TokenAddress: "0xToken"}, func(r *recorder) {
			r.assignment = nil
			r.lookupErr = errors.New("backend down")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := connected(1)
			if tt.setup != nil {
				tt.setup(r)
			}
			tt.req.RequiredChainID = 137

			_, out, err := run(t, r, tt.req)
			require.Error(t, err)
			assert.Equal(t, "Configuration error: Token or Spender address is missing.", err.Error())
			assert.Equal(t, []string{"error"}, out.order)
			for _, call := range r.log() {
				assert.NotContains(t, call, "switch")
				assert.NotContains(t, call, "read")
				assert.NotContains(t, call, "submit")
			}
		})
	}
}

func TestRun_ExplicitSpenderSkipsLookup(t *testing.T) {
	r := connected(1)
	r.loading = true
	r.allowances = []*big.Int{big.NewInt(10)}

	_, _, err := run(t, r, types.ApprovalRequest{TokenAddress: "0xToken", SpenderAddress: "0xOther", Amount: big.NewInt(10)})
	require.NoError(t, err)
	assert.Equal(t, []string{"read(1,0xOwner,0xToken,0xOther)", "onSuccess"}, r.log())
}

func TestRun_InvalidAmount(t *testing.T) {
	for _, amount := range []*big.Int{big.NewInt(-1), new(big.Int).Add(types.MaxUint256, big.NewInt(1))} {
		r := connected(1)
		_, _, err := run(t, r, types.ApprovalRequest{TokenAddress: "0xToken", Amount: amount})
		assert.True(t, errors.Is(err, commonerrors.ErrInvalidAmount), amount.String())
		assert.Empty(t, r.submitted)
	}
}

func TestRun_ChainSwitchFailure(t *testing.T) {
	r := connected(1)
	r.switchErr = errors.New("user rejected")

	_, out, err := run(t, r, types.ApprovalRequest{TokenAddress: "0xToken", RequiredChainID: 137})
	require.Error(t, err)

	assert.Equal(t, "Failed to switch network. Please try again.", err.Error())
	assert.Equal(t, "user rejected", errors.Unwrap(err).Error())
	assert.Equal(t, []string{"requires", "error"}, out.order)
	assert.Equal(t, []string{"lookup(0xOwner)", "onRequiresApproval", "switch(137)", "onError"}, r.log())
}

func TestRun_SwitchNotReflectedByWallet(t *testing.T) {
	r := connected(1)
	r.switchTo = 10

	_, _, err := run(t, r, types.ApprovalRequest{TokenAddress: "0xToken", RequiredChainID: 137})
	assert.True(t, errors.Is(err, commonerrors.ErrChainSwitchFailed))
	assert.Equal(t, 0, r.refetches)
}

func TestRun_SwitchChangingAccountFails(t *testing.T) {
	r := connected(1)
	r.assignment = &types.SpenderAssignment{ContractAddress: "0xSpender"}
	r.switchAddress = "0xOtherKey"

	_, out, err := run(t, r, types.ApprovalRequest{TokenAddress: "0xToken", RequiredChainID: 137})
	assert.True(t, errors.Is(err, commonerrors.ErrChainSwitchFailed))
	assert.Equal(t, []string{"requires", "error"}, out.order)
	assert.Equal(t, 0, r.refetches)
	assert.Empty(t, r.submitted)
}

func TestRun_SwitchKeepsAccountDespiteHexCase(t *testing.T) {
	r := connected(1)
	r.account.Address = "0xabcdef0000000000000000000000000000000001"
	r.assignment = &types.SpenderAssignment{ContractAddress: "0xSpender"}
	r.allowances = []*big.Int{new(big.Int).Set(types.MaxUint256)}
	r.switchAddress = "0xABCDEF0000000000000000000000000000000001"

	_, _, err := run(t, r, types.ApprovalRequest{TokenAddress: "0xToken", RequiredChainID: 137})
	require.NoError(t, err)
	assert.Equal(t, 1, r.refetches)
}

func TestRun_AllowanceVerificationFailure(t *testing.T) {
	tests := []struct {
		name string
		r    func() *recorder
	}{
		{"read error", func() *recorder {
			r := connected(1)
			r.refetchErrs = []error{errors.New("rpc down")}
			r.allowances = []*big.Int{big.NewInt(1)}
			return r
		}},
		{"no value", func() *recorder {
			r := connected(1)
			r.allowances = []*big.Int{nil}
			return r
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.r()
			o, out, err := run(t, r, types.ApprovalRequest{TokenAddress: "0xToken"})
			require.Error(t, err)

			assert.Equal(t, "Failed to verify token allowance.", err.Error())
			assert.Equal(t, []string{"error"}, out.order)
			assert.Empty(t, r.submitted)

			state := o.Snapshot()
			require.NotNil(t, state.Approved)
			assert.False(t, *state.Approved)
		})
	}
}

func TestRun_SubmitFailure(t *testing.T) {
	r := connected(1)
	r.allowances = []*big.Int{big.NewInt(0)}
	r.submitErr = errors.New("user denied signature")

	_, out, err := run(t, r, types.ApprovalRequest{TokenAddress: "0xToken", Amount: big.NewInt(5)})
	require.Error(t, err)

	assert.True(t, errors.Is(err, commonerrors.ErrApprovalTransactionFailed))
	assert.Equal(t, commonerrors.SourceWrite, err.(*commonerrors.ApprovalError).Source)
	assert.Equal(t, []string{"requires", "error"}, out.order)
	assert.NotContains(t, r.log(), "await(0xhash)")
}

func TestRun_FinalityFailure(t *testing.T) {
	r := connected(1)
	r.allowances = []*big.Int{big.NewInt(0)}
	r.finalityErr = errors.New("reverted")

	_, out, err := run(t, r, types.ApprovalRequest{TokenAddress: "0xToken", Amount: big.NewInt(5)})
	assert.True(t, errors.Is(err, commonerrors.ErrApprovalTransactionFailed))
	assert.Equal(t, []string{"requires", "error"}, out.order)
	assert.Equal(t, 1, r.refetches, "no re-read after a failed confirmation")
}

func TestRun_ReReadFailureAfterConfirmationStillSucceeds(t *testing.T) {
	r := connected(1)
	r.allowances = []*big.Int{big.NewInt(0)}
	r.refetchErrs = []error{nil, errors.New("flaky")}

	_, out, err := run(t, r, types.ApprovalRequest{TokenAddress: "0xToken", Amount: big.NewInt(5)})
	require.NoError(t, err)
	assert.Equal(t, []string{"requires", "success"}, out.order)
	assert.Equal(t, 2, r.refetches)
}

func TestRun_ZeroAmountIsAlwaysSufficient(t *testing.T) {
	r := connected(1)
	r.allowances = []*big.Int{big.NewInt(0)}

	_, _, err := run(t, r, types.ApprovalRequest{TokenAddress: "0xToken", Amount: big.NewInt(0)})
	require.NoError(t, err)
	assert.Empty(t, r.submitted)
}

func TestSufficient_MatchesComparison(t *testing.T) {
	values := []*big.Int{big.NewInt(0), big.NewInt(1), big.NewInt(500), big.NewInt(1000), types.MaxUint256}
	for _, a := range values {
		for _, c := range values {
			snapshot := &types.AllowanceSnapshot{Value: c}
			assert.Equal(t, c.Cmp(a) >= 0, snapshot.Sufficient(a), "allowance=%s amount=%s", c, a)
		}
	}
}

func TestRun_RejectsConcurrentRun(t *testing.T) {
	r := connected(1)
	r.allowances = []*big.Int{big.NewInt(10)}
	r.block = make(chan struct{})
	o := newOrchestrator(t, r)

	first := o.Start(context.Background(), types.ApprovalRequest{TokenAddress: "0xToken", Amount: big.NewInt(1)})
	require.Eventually(t, func() bool {
		return o.Snapshot().Phase == types.PhaseAllowanceVerifying
	}, time.Second, time.Millisecond)
	firstID := o.Snapshot().RunID

	out := &outcome{}
	err := o.Run(context.Background(), types.ApprovalRequest{TokenAddress: "0xToken"}, out.callbacks(r))
	assert.True(t, errors.Is(err, commonerrors.ErrRunInProgress))
	assert.Equal(t, []string{"error"}, out.order)
	assert.Equal(t, firstID, o.Snapshot().RunID)
	assert.NoError(t, o.Snapshot().Err)

	close(r.block)
	var last Event
	for e := range first {
		last = e
	}
	assert.Equal(t, EventSucceeded, last.Type)
	assert.Equal(t, firstID, last.RunID)

	out = &outcome{}
	require.NoError(t, o.Run(context.Background(), types.ApprovalRequest{TokenAddress: "0xToken", Amount: big.NewInt(1)}, out.callbacks(r)))
	assert.NotEqual(t, firstID, o.Snapshot().RunID)
}

func TestStart_StreamsEvents(t *testing.T) {
	r := connected(1)
	r.allowances = []*big.Int{big.NewInt(0), big.NewInt(5)}
	o := newOrchestrator(t, r)

	var got []EventType
	var phases []types.RunPhase
	for e := range o.Start(context.Background(), types.ApprovalRequest{TokenAddress: "0xToken", Amount: big.NewInt(5), RequiredChainID: 137}) {
		got = append(got, e.Type)
		assert.NotEmpty(t, e.RunID)
		if e.Type == EventRequiresApproval {
			phases = append(phases, e.Phase)
		}
	}
	assert.Equal(t, []EventType{EventRequiresApproval, EventRequiresApproval, EventSucceeded}, got)
	assert.Equal(t, []types.RunPhase{types.PhaseChainSwitching, types.PhaseApprovalSubmitting}, phases)
}

func TestStart_ApprovalOnSameChainIsLabelledAsSubmission(t *testing.T) {
	r := connected(1)
	r.allowances = []*big.Int{big.NewInt(0), big.NewInt(5)}
	o := newOrchestrator(t, r)

	var phases []types.RunPhase
	for e := range o.Start(context.Background(), types.ApprovalRequest{TokenAddress: "0xToken", Amount: big.NewInt(5)}) {
		if e.Type == EventRequiresApproval {
			phases = append(phases, e.Phase)
		}
	}
	assert.Equal(t, []types.RunPhase{types.PhaseApprovalSubmitting}, phases)
}

func TestStart_FailureEventCarriesError(t *testing.T) {
	o := newOrchestrator(t, &recorder{})

	var events []Event
	for e := range o.Start(context.Background(), types.ApprovalRequest{TokenAddress: "0xToken"}) {
		events = append(events, e)
	}
	require.Len(t, events, 1)
	assert.True(t, events[0].Terminal())
	assert.True(t, errors.Is(events[0].Err, commonerrors.ErrNotConnected))
}

func TestRun_AbandonedRunLeavesIdleStateWithoutOutcome(t *testing.T) {
	r := connected(1)
	r.allowances = []*big.Int{big.NewInt(10)}
	r.block = make(chan struct{})
	o := newOrchestrator(t, r)

	ctx, cancel := context.WithCancel(context.Background())
	events := o.Start(ctx, types.ApprovalRequest{TokenAddress: "0xToken", Amount: big.NewInt(1)})
	require.Eventually(t, func() bool {
		return o.Snapshot().Phase == types.PhaseAllowanceVerifying
	}, time.Second, time.Millisecond)

	cancel()
	var last Event
	for e := range events {
		last = e
	}
	assert.Equal(t, EventFailed, last.Type)

	state := o.Snapshot()
	assert.Equal(t, types.PhaseIdle, state.Phase)
	assert.False(t, state.IsLoading)
	assert.False(t, state.IsCheckingAllowance)
	assert.False(t, state.IsApprovingTx)
	assert.NoError(t, state.Err)
	assert.Nil(t, state.Approved)
}

func TestResetError(t *testing.T) {
	o, _, err := run(t, &recorder{}, types.ApprovalRequest{})
	require.Error(t, err)
	require.Error(t, o.Snapshot().Err)

	o.ResetError()
	assert.NoError(t, o.Snapshot().Err)
}
