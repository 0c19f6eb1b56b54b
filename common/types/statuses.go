package types

// TransactionStatus is the outcome of waiting on a submitted transaction.
type TransactionStatus string

const (
	// TxDone means the transaction was included, confirmed and succeeded.
	TxDone TransactionStatus = "DONE"
	// TxFailed means the transaction reverted, was cancelled or could not be confirmed.
	TxFailed TransactionStatus = "FAILED"
	// TxNeedsRetry means the transaction was replaced and the wait must start over.
	TxNeedsRetry TransactionStatus = "NEEDS_RETRY"
)

// RunPhase is the state of one orchestration run.
type RunPhase string

const (
	PhaseIdle               RunPhase = "IDLE"
	PhaseGuardChecking      RunPhase = "GUARD_CHECKING"
	PhaseChainSwitching     RunPhase = "CHAIN_SWITCHING"
	PhaseAllowanceVerifying RunPhase = "ALLOWANCE_VERIFYING"
	PhaseApprovalSubmitting RunPhase = "APPROVAL_SUBMITTING"
	PhaseApprovalConfirming RunPhase = "APPROVAL_CONFIRMING"
	// PhaseSucceeded and PhaseFailed are terminal.
	PhaseSucceeded RunPhase = "SUCCEEDED"
	PhaseFailed    RunPhase = "FAILED"
)

// Terminal reports whether no further transitions happen from p.
func (p RunPhase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}
