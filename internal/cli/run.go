package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lumenhq/offworker/internal/bucket"
	"github.com/lumenhq/offworker/internal/clients"
	"github.com/lumenhq/offworker/internal/config"
	"github.com/lumenhq/offworker/internal/notify"
	"github.com/lumenhq/offworker/internal/record"
	"github.com/lumenhq/offworker/internal/router"
	"github.com/lumenhq/offworker/internal/store"
	"github.com/lumenhq/offworker/internal/syncq"
	"github.com/lumenhq/offworker/internal/worker"
)

// shutdownGrace bounds how long in-flight gateway requests get to finish
// after a stop signal.
const shutdownGrace = 10 * time.Second

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigPath string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the agent",
		Long: `Start the offline agent: open the database, install and activate the
configured cache bucket, and serve the gateway and control API.

Example:
  offworker run --config ./offworker.yaml
  offworker run --config ./offworker.yaml --verbose`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config (required)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runAgent(opts *RunOptions, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		var invalid *config.InvalidConfigError
		if errors.As(err, &invalid) {
			return WrapExitError(ExitFailure, "config validation failed", err)
		}
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	origin, err := cfg.OriginURL()
	if err != nil {
		return WrapExitError(ExitFailure, "invalid config", err)
	}
	interval, err := cfg.ReminderInterval()
	if err != nil {
		return WrapExitError(ExitFailure, "invalid config", err)
	}

	log.Info("opening database", "path", cfg.DB)
	st, err := store.Open(cfg.DB)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	// Resume the logical clock past everything already in the log.
	lastSeq, err := st.LastSeq(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read event log", err)
	}
	clock := worker.NewClockAt(lastSeq)

	ids := worker.UUIDv7Generator{}
	registry := clients.NewRegistry(ids)
	notifier := notify.NewTrayNotifier(log)
	dispatcher := notify.NewDispatcher(notifier, registry, log)
	renderer := notify.NewRenderer(cfg.Notification.Locale)

	gateway := router.New(st, nil, origin, cfg.Offline, clock, log)
	lifecycle := bucket.New(st, nil, origin, cfg.Version, cfg.Assets, cfg.Offline,
		registry, gateway, clock, log)
	syncer := syncq.New(st, nil, origin, dispatcher, renderer, log)

	agent := worker.New(st, lifecycle, dispatcher, renderer, syncer, ids, log,
		worker.WithClock(clock),
		worker.WithSyncTags(cfg.Sync.BackgroundTag, cfg.Sync.PeriodicTag),
	)
	control := router.NewControlAPI(agent, registry, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	gatewaySrv := &http.Server{Addr: cfg.Listen.Gateway, Handler: gateway}
	controlSrv := &http.Server{Addr: cfg.Listen.Control, Handler: control.Routes()}
	serveErr := make(chan error, 2)
	go serve(gatewaySrv, "gateway", log, serveErr)
	go serve(controlSrv, "control", log, serveErr)

	// The reminder cadence drives periodic sync; background sync fires on
	// demand through the control API.
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ticker.C:
				agent.Enqueue(worker.Event{Kind: record.EventPeriodicSync, Tag: cfg.Sync.PeriodicTag})
			case <-ctx.Done():
				return
			}
		}
	}()

	agent.Enqueue(worker.Event{Kind: record.EventInstall})

	log.Info("agent starting",
		"version", cfg.Version,
		"origin", origin.String(),
		"gateway", cfg.Listen.Gateway,
		"control", cfg.Listen.Control,
	)
	fmt.Fprintln(cmd.OutOrStdout(), "Agent started. Press Ctrl-C to stop.")

	runErr := make(chan error, 1)
	go func() { runErr <- agent.Run(ctx) }()

	var fatal error
	select {
	case err := <-serveErr:
		log.Error("server failed", "error", err)
		fatal = err
		cancel()
		<-runErr
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			fatal = err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	if err := gatewaySrv.Shutdown(shutdownCtx); err != nil {
		log.Error("gateway shutdown", "error", err)
	}
	if err := controlSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("control shutdown", "error", err)
	}

	if fatal != nil {
		return WrapExitError(ExitFailure, "agent error", fatal)
	}
	log.Info("agent stopped gracefully")
	return nil
}

func serve(srv *http.Server, name string, log *slog.Logger, errCh chan<- error) {
	log.Info("listening", "server", name, "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("%s server: %w", name, err)
	}
}
