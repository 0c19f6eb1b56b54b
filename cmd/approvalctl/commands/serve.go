package commands

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ClipFinance/approval-lib/dbconfig"
	"github.com/ClipFinance/approval-lib/risk"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func NewServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve spender risk data over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, listen)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default: risk.listen)")

	return cmd
}

func runServe(cmd *cobra.Command, listen string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.DSN == "" {
		return errors.New("database.dsn is required to serve risk data")
	}
	if listen == "" {
		listen = cfg.Risk.Listen
	}

	db, err := dbconfig.NewDBConfig(cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.Ping(ctx); err != nil {
		return err
	}

	server := risk.NewServer(
		risk.NewDBSource(db),
		risk.TokenSession(cfg.Risk.SessionToken),
		risk.NewClientRateLimiter(cfg.Risk.RateLimit, cfg.Risk.Burst, cfg.Risk.ClientIdle),
		logger,
	)

	httpServer := &http.Server{
		Addr:              listen,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("listen", listen).Info("Risk server started")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "risk server failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.Info("Shutting down risk server")
	return httpServer.Shutdown(shutdownCtx)
}
