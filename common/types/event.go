package types

import (
	"math/big"
	"sync"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

// ApprovalEvent represents an on-chain allowance change.
//
// Fields:
// - ChainID: the unique identifier for the chain where the event occurred.
// - Token: the token contract that emitted the event.
// - Owner: the token holder.
// - Spender: the approved address.
// - Value: the new allowance.
// - BlockNumber: the block number where the event was included.
// - TxHash: the transaction hash associated with the event.
type ApprovalEvent struct {
	ChainID     uint64
	Token       string
	Owner       string
	Spender     string
	Value       *big.Int
	BlockNumber uint64
	TxHash      string
}

// Subscription wraps event subscription data.
//
// Fields:
// - Subscription: the event subscription.
// - EventChan: the channel to receive Ethereum logs.
// - sync.Mutex: the mutex to protect access to the subscription data.
type Subscription struct {
	Subscription event.Subscription
	EventChan    chan ethtypes.Log
	sync.Mutex
}

// Close unsubscribes and releases the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.Lock()
	defer s.Unlock()

	if s.Subscription != nil {
		s.Subscription.Unsubscribe()
		s.Subscription = nil
	}

	// EventChan is written by the RPC client, so it is never closed here.
	s.EventChan = nil
}
