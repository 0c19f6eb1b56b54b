package approval

import (
	"context"
	"sync"

	commonerrors "github.com/ClipFinance/approval-lib/common/errors"
	"github.com/ClipFinance/approval-lib/common/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Orchestrator checks that a spender may move an amount of a token for the
// connected account and, if it may not, switches the chain and submits an
// approval. Only one run is active at a time; a second run is rejected.
type Orchestrator struct {
	deps   Dependencies
	logger *logrus.Logger

	mu     sync.Mutex
	active *RunState
	state  State
}

// New creates an orchestrator.
//
// Parameters:
// - deps: the wallet, spender lookup, allowance oracle and submitter.
// - logger: the logger for logging purposes.
//
// Returns:
// - *Orchestrator: the new orchestrator.
// - error: an error if a required collaborator is missing.
func New(deps Dependencies, logger *logrus.Logger) (*Orchestrator, error) {
	if deps.Wallet == nil || deps.Allowances == nil || deps.Submitter == nil {
		return nil, errors.Wrap(commonerrors.ErrInvalidConfig, "wallet, allowance oracle and submitter are required")
	}

	return &Orchestrator{
		deps:   deps,
		logger: logger,
		state:  State{Phase: types.PhaseIdle},
	}, nil
}

// Snapshot returns a copy of the observable state.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := o.state
	if s.Approved != nil {
		approved := *s.Approved
		s.Approved = &approved
	}
	return s
}

// ResetError clears the error slot.
func (o *Orchestrator) ResetError() {
	o.mu.Lock()
	o.state.Err = nil
	o.mu.Unlock()
}

// Start runs req in the background and streams its events. The channel gets
// zero or more EventRequiresApproval, then one terminal event, then closes.
//
// Parameters:
// - ctx: the context of the run; cancelling it abandons the run.
// - req: the approval request.
//
// Returns:
// - <-chan Event: the run events.
func (o *Orchestrator) Start(ctx context.Context, req types.ApprovalRequest) <-chan Event {
	events := make(chan Event, maxEventsPerRun)

	run, rejected := o.begin(ctx)
	if rejected != nil {
		events <- Event{Type: EventFailed, Err: rejected}
		close(events)
		return events
	}

	go func() {
		defer close(events)
		o.execute(run, req, Callbacks{
			OnRequiresApproval: func() { events <- Event{Type: EventRequiresApproval, RunID: run.ID, Phase: run.Phase} },
			OnSuccess:          func() { events <- Event{Type: EventSucceeded, RunID: run.ID} },
			OnError:            func(err error) { events <- Event{Type: EventFailed, RunID: run.ID, Err: err} },
		})
	}()

	return events
}

// Run executes req and blocks until it ends. Exactly one of cb.OnSuccess and
// cb.OnError is called before Run returns.
//
// Parameters:
// - ctx: the context of the run; cancelling it abandons the run.
// - req: the approval request.
// - cb: the progress callbacks.
//
// Returns:
// - error: the error passed to cb.OnError, or nil on success.
func (o *Orchestrator) Run(ctx context.Context, req types.ApprovalRequest, cb Callbacks) error {
	run, rejected := o.begin(ctx)
	if rejected != nil {
		cb.fail(rejected)
		return rejected
	}

	return o.execute(run, req, cb)
}

func (o *Orchestrator) begin(ctx context.Context) (*RunState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active != nil {
		o.logger.WithField("runId", o.active.ID).Warn("Approval run rejected, another run is active")
		return nil, commonerrors.ErrRunInProgress
	}

	run := newRunState(ctx)
	o.active = run
	o.state = State{
		RunID:    run.ID,
		Phase:    types.PhaseIdle,
		Approved: o.state.Approved,
	}
	return run, nil
}

// finish releases the active slot. An abandoned run that is still the latest
// one leaves the state idle instead of stuck in its last in-flight phase.
func (o *Orchestrator) finish(run *RunState) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active == run {
		o.active = nil
	}
	if o.state.RunID == run.ID && run.abandoned() {
		o.state.Phase = types.PhaseIdle
		o.state.IsCheckingAllowance = false
		o.state.IsApprovingTx = false
		o.state.IsLoading = false
	}
}

// update applies fn to the shared state unless run is no longer the
// current run or its caller went away.
func (o *Orchestrator) update(run *RunState, fn func(s *State)) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.RunID != run.ID || run.abandoned() {
		return
	}
	fn(&o.state)
}

func (o *Orchestrator) enter(run *RunState, phase types.RunPhase) {
	run.Phase = phase
	o.update(run, func(s *State) {
		s.Phase = phase
		s.IsCheckingAllowance = phase == types.PhaseAllowanceVerifying
		s.IsApprovingTx = phase == types.PhaseApprovalSubmitting || phase == types.PhaseApprovalConfirming
		s.IsLoading = !phase.Terminal() && phase != types.PhaseIdle
	})
}

func (o *Orchestrator) setApproved(run *RunState, approved bool) {
	o.update(run, func(s *State) {
		s.Approved = &approved
	})
}
