package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/mailrules/internal/metrics"
	"github.com/joshsymonds/mailrules/internal/schedule"
)

const metricsShutdownTimeout = 5 * time.Second

func newRunCmd(a *app) *cobra.Command {
	var (
		now         bool
		dryRun      bool
		metricsAddr string
		poll        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Apply rules on the schedule stored in settings",
		Long: `Run stays in the foreground and keeps one scheduled pass in sync with the
stored settings: installed every autoApplyIntervalHours while auto-apply is
enabled, removed otherwise. Settings saved by another process are picked up
on the next poll. A badger store is opened only for each read or write, so
other commands can use it while run is active.

Examples:
  mailrules run
  mailrules run --now --metrics-addr 127.0.0.1:9464`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a.shared = true
			svc, stop, err := a.engine(cmd, dryRun)
			if err != nil {
				return err
			}
			defer stop()

			m := metrics.New()
			svc.Metrics = m

			if !cmd.Flags().Changed("metrics-addr") {
				metricsAddr = a.cfg.Metrics.Addr
			}
			if !cmd.Flags().Changed("settings-poll") {
				poll = a.cfg.Daemon.SettingsPoll.Duration
			}
			if poll <= 0 {
				poll = time.Minute
			}

			job := func(ctx context.Context) error {
				_, err := svc.Run(ctx)
				return err
			}
			if now {
				if err := job(ctx); err != nil {
					a.logger.ErrorContext(ctx, "initial pass failed", "error", err)
				}
			}

			settingsStore, err := a.settingsStore()
			if err != nil {
				return err
			}
			trigger := schedule.New(job, a.logger)

			watchCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			errc := make(chan error, 1)
			if metricsAddr != "" {
				srv := &http.Server{
					Addr:              metricsAddr,
					Handler:           metricsMux(m),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					a.logger.InfoContext(ctx, "serving metrics", "addr", metricsAddr)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						errc <- fmt.Errorf("metrics server: %w", err)
						cancel()
					}
				}()
				defer func() {
					shutdownCtx, release := context.WithTimeout(context.WithoutCancel(ctx), metricsShutdownTimeout)
					defer release()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			a.logger.InfoContext(ctx, "scheduler started", "settings_poll", poll, "dry_run", dryRun)
			if err := trigger.Watch(watchCtx, settingsStore.Load, poll); err != nil {
				return err
			}
			select {
			case err := <-errc:
				return err
			default:
			}
			a.logger.InfoContext(ctx, "scheduler stopped")
			return nil
		},
	}
	flags := cmd.Flags()
	flags.BoolVar(&now, "now", false, "run one pass before waiting for the schedule")
	flags.BoolVar(&dryRun, "dry-run", false, "report matches without changing the mailbox")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flags.DurationVar(&poll, "settings-poll", 0, "how often stored settings are re-read")
	return cmd
}

func metricsMux(m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}
