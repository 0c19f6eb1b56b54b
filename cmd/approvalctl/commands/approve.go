package commands

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/ClipFinance/approval-lib/approval"
	"github.com/ClipFinance/approval-lib/common/types"
	"github.com/ClipFinance/approval-lib/config"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type approveOptions struct {
	chainID         uint64
	token           string
	spender         string
	amount          string
	requiredChainID uint64
}

func NewApproveCmd() *cobra.Command {
	opts := &approveOptions{}

	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Make sure a spender may move a token amount, approving it if needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApprove(cmd, opts)
		},
	}

	cmd.Flags().Uint64Var(&opts.chainID, "chain", 0, "Chain to connect the wallet to (default: required chain or first configured)")
	cmd.Flags().StringVar(&opts.token, "token", "", "Token address (default: approval.token)")
	cmd.Flags().StringVar(&opts.spender, "spender", "", "Spender address (default: the contract assigned to the wallet)")
	cmd.Flags().StringVar(&opts.amount, "amount", "", "Amount in base units, or max (default: approval.amount)")
	cmd.Flags().Uint64Var(&opts.requiredChainID, "required-chain", 0, "Chain the approval must happen on (default: approval.required_chain_id)")

	return cmd
}

// buildRequest merges command flags over the configured approval defaults.
func buildRequest(cfg config.ApprovalConfig, opts *approveOptions) (types.ApprovalRequest, error) {
	req := types.ApprovalRequest{
		TokenAddress:    cfg.Token,
		SpenderAddress:  cfg.Spender,
		RequiredChainID: cfg.RequiredChainID,
	}
	amount := cfg.Amount

	if opts.token != "" {
		req.TokenAddress = opts.token
	}
	if opts.spender != "" {
		req.SpenderAddress = opts.spender
	}
	if opts.amount != "" {
		amount = opts.amount
	}
	if opts.requiredChainID != 0 {
		req.RequiredChainID = opts.requiredChainID
	}

	parsed, err := config.ParseAmount(amount)
	if err != nil {
		return req, errors.Wrap(err, "invalid --amount")
	}
	req.Amount = parsed

	return req, nil
}

func runApprove(cmd *cobra.Command, opts *approveOptions) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	req, err := buildRequest(cfg.Approval, opts)
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

	chainID := opts.chainID
	if chainID == 0 {
		chainID = req.RequiredChainID
	}
	if err := rt.connect(chainID); err != nil {
		return err
	}

	if req.SpenderAddress == "" && rt.spenders != nil {
		if err := warmSpender(ctx, rt.wallet, rt.spenders, logger); err != nil {
			return err
		}
	}

	orchestrator, err := rt.orchestrator()
	if err != nil {
		return err
	}

	return printEvents(cmd.OutOrStdout(), orchestrator.Start(ctx, req))
}

type accountReader interface {
	Account(ctx context.Context) (types.AccountContext, error)
}

type spenderResolver interface {
	Resolve(ctx context.Context, wallet string) (*types.SpenderAssignment, error)
}

// warmSpender waits for the spender assignment of the connected account so the
// run does not fail with a loading error. A missing assignment is only logged.
func warmSpender(ctx context.Context, accounts accountReader, spenders spenderResolver, logger *logrus.Logger) error {
	account, err := accounts.Account(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to read wallet account")
	}
	if _, err := spenders.Resolve(ctx, account.Address); err != nil {
		logger.WithError(err).Warn("Spender assignment not available")
	}
	return nil
}

// printEvents reports run events and returns the failure of the run, if any.
func printEvents(out io.Writer, events <-chan approval.Event) error {
	var failure error

	for event := range events {
		switch event.Type {
		case approval.EventRequiresApproval:
			if event.Phase == types.PhaseChainSwitching {
				fmt.Fprintln(out, "Switching network in wallet...")
			} else {
				fmt.Fprintln(out, "Submitting approval transaction...")
			}
		case approval.EventSucceeded:
			fmt.Fprintln(out, "Approved.")
		case approval.EventFailed:
			fmt.Fprintf(out, "Error: %v\n", event.Err)
			failure = event.Err
		}
	}

	return failure
}

