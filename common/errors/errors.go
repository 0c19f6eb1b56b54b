package errors

import "github.com/pkg/errors"

// Registry and configuration errors.
var (
	ErrChainNotFound      = errors.New("chain not found")
	ErrChainExists        = errors.New("chain already exists in registry")
	ErrFactoryNotProvided = errors.New("chain factory not provided")
	ErrInvalidChainType   = errors.New("invalid chain type")
	ErrInvalidChainID     = errors.New("invalid chain id")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrDatabaseConnect    = errors.New("failed to connect to database")
)

// Chain client errors.
var (
	ErrClientNotReady  = errors.New("client not initialized")
	ErrChainIDMismatch = errors.New("rpc endpoint serves a different chain")
	ErrInvalidAddress  = errors.New("invalid address")
	ErrNotImplemented  = errors.New("functionality not implemented")
)
