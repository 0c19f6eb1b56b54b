package utils

import (
	bin "github.com/gagliardetto/binary"
	sol "github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

// TokenAccountSize is the length of an SPL Token account.
const TokenAccountSize = 165

// TokenAccount is the part of an SPL Token account relevant to delegation.
type TokenAccount struct {
	Mint            sol.PublicKey
	Owner           sol.PublicKey
	Amount          uint64
	Delegate        *sol.PublicKey
	DelegatedAmount uint64
}

// AllowanceFor returns the amount spender may move out of the account.
// Only the single SPL delegate holds an allowance.
func (a *TokenAccount) AllowanceFor(spender sol.PublicKey) uint64 {
	if a.Delegate == nil || !a.Delegate.Equals(spender) {
		return 0
	}
	return a.DelegatedAmount
}

// DecodeTokenAccount decodes the SPL Token account layout.
//
// Parameters:
// - data: the raw account data.
//
// Returns:
// - *TokenAccount: the decoded account.
// - error: an error if data is not a token account.
func DecodeTokenAccount(data []byte) (*TokenAccount, error) {
	if len(data) < TokenAccountSize {
		return nil, errors.Errorf("token account data too short: %d bytes", len(data))
	}

	decoder := bin.NewBinDecoder(data)
	account := &TokenAccount{}

	mint, err := decoder.ReadNBytes(32)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read mint")
	}
	account.Mint = sol.PublicKeyFromBytes(mint)

	owner, err := decoder.ReadNBytes(32)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read owner")
	}
	account.Owner = sol.PublicKeyFromBytes(owner)

	if account.Amount, err = decoder.ReadUint64(bin.LE); err != nil {
		return nil, errors.Wrap(err, "failed to read amount")
	}

	delegateTag, err := decoder.ReadUint32(bin.LE)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read delegate option")
	}
	delegate, err := decoder.ReadNBytes(32)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read delegate")
	}
	if delegateTag == 1 {
		key := sol.PublicKeyFromBytes(delegate)
		account.Delegate = &key
	}

	// state (u8) and is_native (COption<u64>)
	if err := decoder.SkipBytes(1 + 4 + 8); err != nil {
		return nil, errors.Wrap(err, "failed to skip state")
	}

	if account.DelegatedAmount, err = decoder.ReadUint64(bin.LE); err != nil {
		return nil, errors.Wrap(err, "failed to read delegated amount")
	}

	return account, nil
}
