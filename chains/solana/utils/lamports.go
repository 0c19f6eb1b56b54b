package utils

const (
	lamportsPerSol      = 1_000_000_000
	microLamportsPerLam = 1_000_000
)

// LamportsToSol converts lamports to SOL for display.
func LamportsToSol(lamports uint64) float64 {
	return float64(lamports) / lamportsPerSol
}

// PriorityFeeLamports is the priority fee paid for computeUnits at a price in
// micro-lamports per compute unit, rounded up.
func PriorityFeeLamports(microLamportsPerUnit, computeUnits uint64) uint64 {
	total := microLamportsPerUnit * computeUnits
	fee := total / microLamportsPerLam
	if total%microLamportsPerLam != 0 {
		fee++
	}
	return fee
}
