package commands

import (
	"github.com/ClipFinance/approval-lib/config"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath       string
	logLevelOverride string
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "approvalctl",
		Short:         "Token approval tooling",
		Long:          `approvalctl checks token allowances, drives approval transactions and serves spender risk data.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ./approval.yaml if present)")
	cmd.PersistentFlags().StringVar(&logLevelOverride, "log-level", "", "Override log level (debug|info|warn|error)")

	cmd.AddCommand(
		NewApproveCmd(),
		NewAllowanceCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return cmd
}

// loadConfig reads the configuration and builds the logger.
func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevelOverride != "" {
		cfg.Log.Level = logLevelOverride
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to configure logger")
	}
	return cfg, logger, nil
}
