package utils

import (
	"context"

	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
)

// Simulator simulates transactions. *rpc.Client satisfies it.
type Simulator interface {
	SimulateTransaction(ctx context.Context, transaction *sol.Transaction) (*rpc.SimulateTransactionResponse, error)
}

// GetAssociatedTokenAddress returns the token account address for a given token and owner.
// This is a deterministic address that follows Solana's Associated Token Account Program conventions.
func GetAssociatedTokenAddress(tokenMint, owner sol.PublicKey) (sol.PublicKey, error) {
	seeds := [][]byte{
		owner.Bytes(),
		sol.TokenProgramID.Bytes(),
		tokenMint.Bytes(),
	}

	addr, _, err := sol.FindProgramAddress(
		seeds,
		sol.SPLAssociatedTokenAccountProgramID,
	)

	return addr, err
}

// CreateApproveInstruction creates an SPL Token Approve instruction that lets
// delegate move up to amount tokens out of source.
//
// Parameters:
// - source: the owner's token account.
// - delegate: the address being approved.
// - owner: the owner of the source account, who signs.
// - amount: the delegated amount.
//
// Returns:
// - sol.Instruction: the approve instruction.
func CreateApproveInstruction(
	source sol.PublicKey,
	delegate sol.PublicKey,
	owner sol.PublicKey,
	amount uint64,
) sol.Instruction {
	return token.NewApproveInstruction(amount, source, delegate, owner, nil).Build()
}

// NewSignedTransaction builds a transaction paid by signer and signs it.
func NewSignedTransaction(signer sol.PrivateKey, instructions []sol.Instruction, latestBlockHash sol.Hash) (*sol.Transaction, error) {
	tx, err := sol.NewTransaction(
		instructions,
		latestBlockHash,
		sol.TransactionPayer(signer.PublicKey()),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create transaction")
	}

	_, err = tx.Sign(func(key sol.PublicKey) *sol.PrivateKey {
		if signer.PublicKey().Equals(key) {
			return &signer
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign transaction")
	}

	return tx, nil
}

// SimulateTransaction simulates transaction to calculate required compute units
func SimulateTransaction(ctx context.Context, client Simulator, signer sol.PrivateKey, instructions []sol.Instruction, latestBlockHash sol.Hash) (uint64, error) {
	tx, err := NewSignedTransaction(signer, instructions, latestBlockHash)
	if err != nil {
		return 0, err
	}

	sim, err := client.SimulateTransaction(ctx, tx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to simulate transaction")
	}

	if sim == nil || sim.Value == nil {
		return 0, errors.New("empty simulation result")
	}

	if sim.Value.Err != nil {
		return 0, errors.Errorf("simulation failed: %v", sim.Value.Err)
	}

	if sim.Value.UnitsConsumed == nil {
		return 0, errors.New("simulation did not report compute units")
	}

	return *sim.Value.UnitsConsumed, nil
}
