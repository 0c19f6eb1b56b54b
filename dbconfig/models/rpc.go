package models

import "time"

// RPC is one endpoint of a chain. Lower Priority values are tried first.
type RPC struct {
	ID        int64
	ChainID   uint64
	URL       string
	Provider  string
	Priority  int
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
