package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/learnizone/enrollcore/pkg/api"
	"github.com/learnizone/enrollcore/pkg/events"
	"github.com/learnizone/enrollcore/pkg/log"
	"github.com/learnizone/enrollcore/pkg/metrics"
	"github.com/learnizone/enrollcore/pkg/reconciler"
	"github.com/learnizone/enrollcore/pkg/scheduler"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const reconcileJob = "reconcile"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Start the enrollment HTTP API together with the metrics collector and,
when enabled in configuration, the scheduled reconciliation job.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address override")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := open(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	cfg := rt.cfg
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.API.Addr = addr
	}
	logger := log.WithComponent("serve")

	tokens, err := api.NewTokenManager(cfg.API.JWTSecret, cfg.API.JWTIssuer, api.DefaultTokenTTL)
	if err != nil {
		return fmt.Errorf("api.jwtSecret must be configured to serve: %w", err)
	}

	metrics.SetVersion(Version)
	metrics.RegisterComponent("store", true, "")
	metrics.RegisterCheck("store", rt.store.Ping)
	if rt.cache != nil {
		metrics.RegisterComponent("cache", true, "")
		metrics.RegisterCheck("cache", rt.cache.Ping)
	}

	audit := rt.broker.Subscribe()
	go logEvents(audit, log.WithComponent("audit"))
	defer rt.broker.Unsubscribe(audit)

	collector := metrics.NewCollector(rt.svc, 30*time.Second)
	collector.Start()
	defer collector.Stop()

	sched := scheduler.NewScheduler(0)
	if cfg.Reconciler.Enabled {
		recon := reconciler.NewReconciler(rt.store, rt.svc, cfg.Reconciler.Repair)
		if err := sched.AddJob(reconcileJob, cfg.Reconciler.Schedule, recon); err != nil {
			return err
		}
	}
	sched.Start()
	defer sched.Stop()

	server := api.NewServer(rt.svc, tokens, api.Config{})
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.API.Addr); err != nil {
			errCh <- fmt.Errorf("API server error: %w", err)
		}
	}()
	metrics.RegisterComponent("api", true, "")

	logger.Info().
		Str("addr", cfg.API.Addr).
		Str("store", cfg.Store.Driver).
		Bool("cache", rt.cache != nil).
		Bool("reconciler", cfg.Reconciler.Enabled).
		Msg("Enrollcore is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		logger.Info().Msg("Shutting down")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("API server stopped")
	}

	metrics.UpdateComponent("api", false, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Graceful shutdown failed")
	}
	return runErr
}

// logEvents writes one audit line per committed enrollment event until sub
// is closed
func logEvents(sub events.Subscriber, logger zerolog.Logger) {
	for event := range sub {
		logger.Info().
			Str("event", string(event.Type)).
			Str("event_id", event.ID).
			Str(log.FieldUserID, event.Metadata[events.MetaUserID]).
			Str(log.FieldCourseID, event.Metadata[events.MetaCourseID]).
			Str(log.FieldEnrollmentID, event.Metadata[events.MetaEnrollmentID]).
			Msg(event.Message)
	}
}
