package commands

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"os/signal"
	"syscall"
	"time"

	"github.com/ClipFinance/approval-lib/common/types"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

type allowanceOptions struct {
	chainID  uint64
	owner    string
	token    string
	spender  string
	decimals int32
	watch    time.Duration
}

func NewAllowanceCmd() *cobra.Command {
	opts := &allowanceOptions{}

	cmd := &cobra.Command{
		Use:   "allowance",
		Short: "Read the allowance of a spender, optionally following approval events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAllowance(cmd, opts)
		},
	}

	cmd.Flags().Uint64Var(&opts.chainID, "chain", 0, "Chain id (default: first configured)")
	cmd.Flags().StringVar(&opts.owner, "owner", "", "Token holder (default: the configured key of the chain)")
	cmd.Flags().StringVar(&opts.token, "token", "", "Token address (default: approval.token)")
	cmd.Flags().StringVar(&opts.spender, "spender", "", "Spender address (default: approval.spender or the assigned contract)")
	cmd.Flags().Int32Var(&opts.decimals, "decimals", 0, "Token decimals used to format the amount")
	cmd.Flags().DurationVar(&opts.watch, "watch", 0, "Keep printing approval events of the owner for this long")

	return cmd
}

func runAllowance(cmd *cobra.Command, opts *allowanceOptions) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.connect(opts.chainID); err != nil && opts.owner == "" {
		return errors.Wrap(err, "no --owner given and the wallet cannot connect")
	}
	chainID := opts.chainID
	owner := opts.owner
	if account, _ := rt.wallet.Account(ctx); account.IsConnected {
		chainID = account.ChainID
		if owner == "" {
			owner = account.Address
		}
	}

	token := firstNonEmpty(opts.token, cfg.Approval.Token)
	spenderAddress := firstNonEmpty(opts.spender, cfg.Approval.Spender)
	if spenderAddress == "" && rt.spenders != nil {
		assignment, err := rt.spenders.Resolve(ctx, owner)
		if err != nil {
			return err
		}
		spenderAddress = assignment.ContractAddress
	}
	if token == "" || spenderAddress == "" {
		return errors.New("token and spender are required")
	}

	snapshot, err := rt.oracle.Refetch(ctx, chainID, owner, token, spenderAddress)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "chain=%d owner=%s token=%s spender=%s\n", chainID, owner, token, spenderAddress)
	fmt.Fprintf(out, "allowance=%s\n", formatAmount(snapshot.Value, opts.decimals))

	if opts.watch <= 0 {
		return nil
	}
	return watchAllowance(ctx, rt, out, chainID, owner, token, spenderAddress, opts)
}

func watchAllowance(ctx context.Context, rt *runtime, out io.Writer, chainID uint64, owner, token, spenderAddress string, opts *allowanceOptions) error {
	ctx, cancel := context.WithTimeout(ctx, opts.watch)
	defer cancel()

	chain := rt.registry.Get(chainID)
	if chain == nil {
		return errors.Errorf("chain %d not configured", chainID)
	}

	events := make(chan types.ApprovalEvent, 16)
	if err := chain.WatchApprovals(ctx, owner, events); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-events:
			rt.oracle.InvalidateToken(event.ChainID, event.Owner, event.Token)

			fmt.Fprintf(out, "block=%d tx=%s token=%s spender=%s value=%s\n",
				event.BlockNumber, event.TxHash, event.Token, event.Spender, formatAmount(event.Value, opts.decimals))

			snapshot, err := rt.oracle.Read(ctx, chainID, owner, token, spenderAddress)
			if err != nil {
				rt.logger.WithError(err).Warn("Failed to re-read allowance")
				continue
			}
			fmt.Fprintf(out, "allowance=%s\n", formatAmount(snapshot.Value, opts.decimals))
		}
	}
}

// formatAmount renders base units with the given decimals; MaxUint256 renders as "max".
func formatAmount(value *big.Int, decimals int32) string {
	if value == nil {
		return "0"
	}
	if value.Cmp(types.MaxUint256) == 0 {
		return "max"
	}
	if decimals <= 0 {
		return value.String()
	}
	return decimal.NewFromBigInt(value, -decimals).String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
