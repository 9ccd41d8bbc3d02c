package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rickgao/market-backfill/internal/backfill"
	"github.com/rickgao/market-backfill/internal/config"
	"github.com/rickgao/market-backfill/internal/metrics"
	"github.com/rickgao/market-backfill/internal/notify"
	"github.com/rickgao/market-backfill/internal/scheduler"
	"github.com/rickgao/market-backfill/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/backfiller.local.yaml", "path to config file")
	envPath := flag.String("env", ".env", "path to dotenv file (optional)")
	once := flag.Bool("once", false, "run every job once and exit")
	jobID := flag.String("job", "", "run only the job with this id")
	flag.Parse()

	if err := config.LoadEnv(*envPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Set up structured logging
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting backfiller",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
	)

	// Resolve jobs; configuration errors are fatal before any fetch.
	jobs, err := backfill.JobsFromConfig(cfg)
	if err != nil {
		logger.Error("invalid job configuration", "err", err)
		os.Exit(1)
	}
	if *jobID != "" {
		jobs = filterJobs(jobs, *jobID)
		if len(jobs) == 0 {
			logger.Error("unknown job", "job", *jobID)
			os.Exit(1)
		}
	}
	if !cfg.Backfill.UploadEnabled() {
		logger.Warn("uploads disabled, running in dry-run mode")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Notifications
	var sink notify.Sink = notify.Nop{}
	var webhook *notify.Webhook
	if cfg.Notifier.WebhookURL != "" {
		webhook = notify.NewWebhook(cfg.Notifier.WebhookURL, cfg.Notifier.AppName, cfg.Notifier.Timeout, notify.DeploymentFromEnv(), logger)
		sink = webhook
	}
	board := newStatusBoard(sink)

	settings := backfill.SettingsFromConfig(cfg)
	schedJobs := make([]scheduler.Job, 0, len(jobs))
	for _, job := range jobs {
		schedJobs = append(schedJobs, scheduler.Job{
			ID:  job.ID,
			Run: runJob(cfg, settings, job, logger),
		})
	}

	sched := scheduler.New(scheduler.Config{
		Hour:          cfg.Schedule.TriggerHour(),
		MaxConcurrent: cfg.Schedule.MaxConcurrentJobs,
		RunOnStart:    cfg.Schedule.RunOnStart,
	}, schedJobs, board, logger)

	if *once {
		err := sched.RunOnce(ctx)
		if webhook != nil {
			webhook.Wait()
		}
		if err != nil {
			logger.Error("run failed", "err", err)
			os.Exit(1)
		}
		return
	}

	// Start health and metrics server
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, metrics.Handler())
	mux.Handle("/health", board)
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: mux,
	}
	go func() {
		logger.Info("starting health server", "port", cfg.Metrics.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "err", err)
		}
	}()

	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "err", err)
		os.Exit(1)
	}

	logger.Info("backfiller running",
		"jobs", len(schedJobs),
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler did not stop in time", "err", err)
	}
	healthServer.Shutdown(shutdownCtx)
	if webhook != nil {
		webhook.Wait()
	}

	logger.Info("backfiller stopped")
}

// runJob opens a fresh run context for every run of job.
func runJob(cfg *config.BackfillerConfig, settings backfill.Settings, job backfill.Job, logger *slog.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		rc, err := backfill.Open(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("open run for %s: %w", job.ID, err)
		}
		defer rc.Close()

		_, err = backfill.NewRunner(rc, settings, logger).Run(ctx, job)
		return err
	}
}

func filterJobs(jobs []backfill.Job, id string) []backfill.Job {
	for _, j := range jobs {
		if j.ID == id {
			return []backfill.Job{j}
		}
	}
	return nil
}

// statusBoard records the last outcome of every job for /health and forwards
// notifications to the configured sink.
type statusBoard struct {
	sink notify.Sink

	mu   sync.Mutex
	last map[string]jobStatus
}

type jobStatus struct {
	Status   string    `json:"status"`
	Class    string    `json:"class,omitempty"`
	Error    string    `json:"error,omitempty"`
	Finished time.Time `json:"finished"`
}

func newStatusBoard(sink notify.Sink) *statusBoard {
	return &statusBoard{sink: sink, last: make(map[string]jobStatus)}
}

func (b *statusBoard) Notify(jobID string, err error) {
	st := jobStatus{Status: "ok", Finished: time.Now().UTC()}
	if err != nil {
		st.Status = "failed"
		st.Class = string(backfill.Classify(err))
		st.Error = err.Error()
	}

	b.mu.Lock()
	b.last[jobID] = st
	b.mu.Unlock()

	b.sink.Notify(jobID, err)
}

func (b *statusBoard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	health := struct {
		Status string               `json:"status"`
		Jobs   map[string]jobStatus `json:"jobs"`
	}{
		Status: "healthy",
		Jobs:   make(map[string]jobStatus, len(b.last)),
	}
	for id, st := range b.last {
		health.Jobs[id] = st
		if st.Status != "ok" {
			health.Status = "degraded"
		}
	}
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}
