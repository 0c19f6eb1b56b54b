package approval

import "github.com/ClipFinance/approval-lib/common/types"

// Callbacks receive the progress of one run. OnRequiresApproval may fire any
// number of times before exactly one of OnSuccess or OnError.
type Callbacks struct {
	OnSuccess          func()
	OnError            func(err error)
	OnRequiresApproval func()
}

// EventType is the kind of an Event.
type EventType string

const (
	EventRequiresApproval EventType = "REQUIRES_APPROVAL"
	EventSucceeded        EventType = "SUCCEEDED"
	EventFailed           EventType = "FAILED"
)

// Event is one step reported by Start.
//
// Fields:
// - Type: the event type.
// - RunID: the run that produced the event.
// - Phase: for EventRequiresApproval, what the wallet is asked for:
//   PhaseChainSwitching or PhaseApprovalSubmitting.
// - Err: the failure, set only for EventFailed.
type Event struct {
	Type  EventType
	RunID string
	Phase types.RunPhase
	Err   error
}

// Terminal reports whether e is the last event of its run.
func (e Event) Terminal() bool {
	return e.Type == EventSucceeded || e.Type == EventFailed
}

// maxEventsPerRun bounds the events a run emits: one per chain switch, one per
// approval transaction and the terminal event.
const maxEventsPerRun = 3

func (c Callbacks) requiresApproval() {
	if c.OnRequiresApproval != nil {
		c.OnRequiresApproval()
	}
}

func (c Callbacks) success() {
	if c.OnSuccess != nil {
		c.OnSuccess()
	}
}

func (c Callbacks) fail(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
}
