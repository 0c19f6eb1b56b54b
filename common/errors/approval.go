package errors

import "github.com/pkg/errors"

// Kind classifies why an orchestration run ended in failure.
type Kind string

const (
	KindNotConnected                Kind = "NotConnected"
	KindSpenderDetailsLoading       Kind = "SpenderDetailsLoading"
	KindMissingConfiguration        Kind = "MissingConfiguration"
	KindInvalidAmount               Kind = "InvalidAmount"
	KindChainSwitchFailed           Kind = "ChainSwitchFailed"
	KindAllowanceVerificationFailed Kind = "AllowanceVerificationFailed"
	KindApprovalTransactionFailed   Kind = "ApprovalTransactionFailed"
	KindRunInProgress               Kind = "RunInProgress"
)

// Source records which side of the flow produced an error.
type Source string

const (
	SourceGuard  Source = "guard"
	SourceWallet Source = "wallet"
	SourceRead   Source = "read"
	SourceWrite  Source = "write"
)

// ApprovalError is a recoverable, user-facing orchestration failure.
// Message is safe to show to the end user; Err keeps the collaborator detail.
type ApprovalError struct {
	Kind    Kind
	Source  Source
	Message string
	Err     error
}

// Error returns the user-facing message.
func (e *ApprovalError) Error() string {
	return e.Message
}

// Unwrap returns the underlying collaborator error, if any.
func (e *ApprovalError) Unwrap() error {
	return e.Err
}

// Is matches any ApprovalError of the same kind, so the sentinels below work with errors.Is.
func (e *ApprovalError) Is(target error) bool {
	t, ok := target.(*ApprovalError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// WithCause returns a copy of e wrapping cause.
func (e *ApprovalError) WithCause(cause error) *ApprovalError {
	clone := *e
	clone.Err = cause
	return &clone
}

var (
	ErrNotConnected = &ApprovalError{
		Kind: KindNotConnected, Source: SourceGuard,
		Message: "Wallet not connected.",
	}
	ErrSpenderDetailsLoading = &ApprovalError{
		Kind: KindSpenderDetailsLoading, Source: SourceGuard,
		Message: "Spender details are loading, please wait.",
	}
	ErrMissingConfiguration = &ApprovalError{
		Kind: KindMissingConfiguration, Source: SourceGuard,
		Message: "Configuration error: Token or Spender address is missing.",
	}
	ErrInvalidAmount = &ApprovalError{
		Kind: KindInvalidAmount, Source: SourceGuard,
		Message: "Configuration error: approval amount is out of range.",
	}
	ErrChainSwitchFailed = &ApprovalError{
		Kind: KindChainSwitchFailed, Source: SourceWallet,
		Message: "Failed to switch network. Please try again.",
	}
	ErrAllowanceVerificationFailed = &ApprovalError{
		Kind: KindAllowanceVerificationFailed, Source: SourceRead,
		Message: "Failed to verify token allowance.",
	}
	ErrApprovalTransactionFailed = &ApprovalError{
		Kind: KindApprovalTransactionFailed, Source: SourceWrite,
		Message: "Approval transaction failed. Please try again.",
	}
	ErrRunInProgress = &ApprovalError{
		Kind: KindRunInProgress, Source: SourceGuard,
		Message: "An approval is already in progress.",
	}
)

// KindOf returns the kind of the first ApprovalError in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var approvalErr *ApprovalError
	if errors.As(err, &approvalErr) {
		return approvalErr.Kind
	}
	return ""
}
