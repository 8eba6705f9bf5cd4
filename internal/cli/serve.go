package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/learnhub/payhook/internal/database"
	"github.com/learnhub/payhook/internal/server"
)

var (
	servePort int
	serveHost string
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long: `Start the payhook HTTP server.

The server will:
  - Load and validate configuration (the bank store key is required)
  - Open the database and apply pending migrations
  - Serve the payment webhook, hash generation, health and metrics endpoints
  - Prune the delivery audit log on its schedule

With store.driver 'sqlite' (the default) purchases are settled in the local
reference store and must exist as pending before their webhook arrives; seed
them with 'payhook purchases create'. Point store.driver at 'rpc' to settle
against the marketplace database instead.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (overrides config)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}

	setupLogging(os.Stderr, cfg.Logging)

	db, err := database.Open(&cfg.Database)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open database")
		return err
	}
	defer db.Close()

	srv, err := server.New(cfg, db, server.WithVersion(version))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		log.Info().Msg("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Graceful shutdown failed")
		}
	}()

	log.Info().
		Str("version", version).
		Str("webhook", cfg.Server.WebhookPath).
		Str("hash", cfg.Server.HashPath).
		Str("database", cfg.Database.Path).
		Msg("payhook ready")

	if err := srv.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Server error")
		return err
	}

	// Start returns as soon as shutdown begins; wait for in-flight requests.
	<-shutdownDone
	return nil
}
