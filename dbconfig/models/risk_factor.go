package models

import "time"

// RiskFactor is one finding about a spender, as stored by the risk importers.
type RiskFactor struct {
	ID        int64
	ChainID   uint64
	Address   string
	Type      string
	Source    string
	Data      string
	CreatedAt time.Time
}
