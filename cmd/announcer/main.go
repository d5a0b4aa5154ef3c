package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/plexwatch/announcer/internal/api"
	"github.com/plexwatch/announcer/internal/config"
	"github.com/plexwatch/announcer/internal/db"
	"github.com/plexwatch/announcer/internal/discord"
	"github.com/plexwatch/announcer/internal/format"
	"github.com/plexwatch/announcer/internal/metrics"
	"github.com/plexwatch/announcer/internal/pipeline"
	"github.com/plexwatch/announcer/internal/plex"
	"github.com/plexwatch/announcer/internal/scheduler"
	"github.com/plexwatch/announcer/internal/store"
	"github.com/plexwatch/announcer/internal/uptime"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if cfg.Discord.TestingMode {
		logger.Warn("testing mode active: announcements go to the testing webhook")
	}

	// ---- database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Store)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.Store.DatabaseURL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	seenStore := store.NewPgSeenStore(pool)

	source := plex.NewBreakerSource(plex.NewClient(cfg.Plex), cfg.Plex, logger)
	formatter := format.New(cfg.Discord.Embed, cfg.Plex.URL, cfg.Plex.Token)
	sink := discord.NewWebhookSink(cfg.WebhookURL(), cfg.Discord.Timeout)
	dispatcher := discord.NewDispatcher(sink, cfg.Discord, logger.Named("dispatcher"))
	pinger := uptime.New(cfg.Uptime.URL, logger.Named("uptime"))

	onAnnounced, onFailed, onCycle := m.PipelineHooks()
	runner := pipeline.NewRunner(
		seenStore, source, formatter, dispatcher,
		cfg.ActiveSections(),
		pingerOrNil(pinger),
		logger.Named("pipeline"),
		pipeline.MetricHooks{
			OnAnnounced: onAnnounced,
			OnFailed:    onFailed,
			OnCycle:     onCycle,
		},
	)

	// ---- scheduler ----
	// Context for the polling loop; cancelled on shutdown signal.
	schedCtx, cancelSched := context.WithCancel(ctx)
	defer cancelSched()

	sched := scheduler.New(runner, cfg.Scheduler, logger.Named("scheduler"))
	schedDone := make(chan error, 1)
	go func() {
		schedDone <- sched.Run(schedCtx)
	}()

	// ---- HTTP server ----
	router := api.NewRouter(sched, seenStore, reg, logger.Named("http"))
	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	schedExited := false
	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-schedDone:
		// The scheduler only exits on its own when the failure threshold
		// was exceeded.
		schedExited = true
		logger.Error("scheduler gave up", zap.Error(err))
	}

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Signal the scheduler to stop; it finishes (and commits) the item
	//    in flight before returning.
	cancelSched()
	if !schedExited {
		<-schedDone
	}

	logger.Info("announcer stopped cleanly")
}

// pingerOrNil keeps the typed-nil *uptime.Pinger from masquerading as a
// non-nil pipeline.Pinger interface value.
func pingerOrNil(p *uptime.Pinger) pipeline.Pinger {
	if p == nil {
		return nil
	}
	return p
}
