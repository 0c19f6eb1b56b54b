package evm

import "github.com/ethereum/go-ethereum/common"

// OwnerAddress returns the address of the configured signer.
//
// Returns:
// - string: the owner address, or an empty string for read-only chains.
func (e *evm) OwnerAddress() string {
	e.ownerMutex.RLock()
	defer e.ownerMutex.RUnlock()

	if e.owner == (common.Address{}) {
		return ""
	}
	return e.owner.Hex()
}
