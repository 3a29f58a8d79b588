/*
serve.go - HTTP server startup

STARTUP SEQUENCE:
  1. Load configuration (defaults, TOML, SPORTWALLET_* env)
  2. Open the store (SQLite, or memory for ":memory:")
  3. Build the wallet and wishlist engines
  4. Start the day rollover scheduler
  5. Serve the router with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests (http.shutdown_timeout)
  3. Stop the scheduler
  4. Close the database
*/
package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sportwallet/engine/api"
)

var flagAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API, the live wallet stream and the midnight day rollover.
Admin routes are served only when admin.password_hash is configured.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "Listen address, overrides http.addr")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	if flagAddr != "" {
		a.cfg.HTTP.Addr = flagAddr
	}
	log := a.log

	if err := a.wallet.EnsureTodayInitialized(cmd.Context()); err != nil {
		return err
	}

	var scheduler *api.DayRolloverScheduler
	if a.cfg.Scheduler.Enabled {
		scheduler = api.NewDayRolloverScheduler(a.wallet, a.cfg.Scheduler.Spec, a.clock.Location(), log.WithField("component", "scheduler"))
		if err := scheduler.Start(); err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	handler := api.NewHandler(a.wallet, a.wishlist, log.WithField("component", "api"))
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins:    a.cfg.HTTP.AllowedOrigins,
		AdminPasswordHash: a.cfg.Admin.PasswordHash,
		Metrics:           a.cfg.HTTP.Metrics,
	})
	if !a.cfg.AdminEnabled() {
		log.Warn("admin.password_hash not set, admin routes disabled")
	}

	server := &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Server starting on %s (db: %s)", a.cfg.HTTP.Addr, a.cfg.Database.Path)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case sig := <-quit:
		log.Infof("Received %s, shutting down server...", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return err
	}
	log.Info("Server stopped")
	return nil
}
