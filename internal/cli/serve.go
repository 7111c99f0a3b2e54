package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/wabridge/internal/config"
	"github.com/harun/wabridge/internal/credstore"
	"github.com/harun/wabridge/internal/httpapi"
	"github.com/harun/wabridge/internal/logger"
	"github.com/harun/wabridge/internal/metrics"
	"github.com/harun/wabridge/internal/session"
	"github.com/harun/wabridge/internal/supervisor"
	"github.com/harun/wabridge/internal/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge API server",
	Long: `Run the bridge in the foreground: start the HTTP API, then restore
every session with persisted credentials in the background. Remaining
sessions connect lazily on first use.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	lg, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: true,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer lg.Close()
	log := lg.GetZerolog()

	m := metrics.NewMetrics()

	store, err := credstore.New(cfg.Sessions.Dir)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}

	dialer, err := transport.NewWSDialer(transport.WSDialerOptions{
		URL:              cfg.Transport.URL,
		HandshakeTimeout: time.Duration(cfg.Transport.HandshakeTimeoutSeconds) * time.Second,
		RequestTimeout:   time.Duration(cfg.Transport.RequestTimeoutSeconds) * time.Second,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create transport dialer: %w", err)
	}

	sup, err := supervisor.New(supervisor.Options{
		PairingWaitTimeout: time.Duration(cfg.Sessions.PairingWaitSeconds) * time.Second,
		IdleTimeout:        time.Duration(cfg.Sessions.IdleTimeoutMinutes) * time.Minute,
		RestoreStagger:     time.Duration(cfg.Sessions.RestoreStaggerSeconds) * time.Second,
		ReservedSessionID:  cfg.Sessions.ReservedID,
	}, session.NewRegistry(), store, dialer, m, log)
	if err != nil {
		return fmt.Errorf("failed to create supervisor: %w", err)
	}

	server, err := httpapi.NewServer(httpapi.ServerOptions{
		Host:               cfg.Server.Host,
		Port:               cfg.Server.Port,
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
	}, sup, m, log)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Restore persisted sessions without blocking readiness; everything
	// else connects lazily on first use.
	log.Info().Str("dir", cfg.Sessions.Dir).Msg("Sessions will connect on demand")
	go sup.RestoreAll(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("API server shutdown error")
	}
	sup.Shutdown()
	return nil
}
