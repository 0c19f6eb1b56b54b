package approval

import (
	"context"
	"time"

	"github.com/ClipFinance/approval-lib/common/types"
	"github.com/google/uuid"
)

// RunState is owned by one orchestration run.
//
// Fields:
// - ID: the unique run id.
// - Phase: the current phase of the run.
// - TxPending: true between a submitted approval and its finality.
// - StartedAt: when the run was started.
type RunState struct {
	ID        string
	Phase     types.RunPhase
	TxPending bool
	StartedAt time.Time

	ctx context.Context
}

func newRunState(ctx context.Context) *RunState {
	return &RunState{
		ID:        uuid.NewString(),
		Phase:     types.PhaseIdle,
		StartedAt: time.Now(),
		ctx:       ctx,
	}
}

// abandoned reports whether the caller stopped caring about the run.
func (r *RunState) abandoned() bool {
	return r.ctx.Err() != nil
}

// State is the observable state of an Orchestrator.
//
// Fields:
// - RunID: the id of the latest run, empty before the first run.
// - Phase: the phase of the latest run.
// - IsCheckingAllowance: true while the fresh allowance read is running.
// - IsApprovingTx: true while an approval transaction is submitted or awaiting finality.
// - IsLoading: true while any step of a run is in progress.
// - Approved: the last authorization decision; nil until one was made.
// - Err: the last run failure, cleared at the start of every run and by ResetError.
type State struct {
	RunID               string
	Phase               types.RunPhase
	IsCheckingAllowance bool
	IsApprovingTx       bool
	IsLoading           bool
	Approved            *bool
	Err                 error
}
