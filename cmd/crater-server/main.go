package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crater-dist/crater/internal/agents"
	"github.com/crater-dist/crater/internal/assign"
	"github.com/crater-dist/crater/internal/auth"
	"github.com/crater-dist/crater/internal/coordinator"
	"github.com/crater-dist/crater/internal/external"
	"github.com/crater-dist/crater/internal/liveness"
	"github.com/crater-dist/crater/internal/logging"
	"github.com/crater-dist/crater/internal/notify"
	"github.com/crater-dist/crater/internal/store"
)

// gitRevision is stamped at build time via -ldflags -X.
var gitRevision = "unknown"

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	dbPath := flag.String("db", "data/crater.db", "SQLite database path")
	tokensPath := flag.String("tokens", "configs/tokens.yaml", "Token/ACL file path")
	notifyPort := flag.Int("notify-port", -1, "internal NATS port (-1 for ephemeral)")
	webhookURL := flag.String("webhook-url", "", "collaborator webhook URL (empty disables, falls back to log-only)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	livenessInterval := flag.Duration("liveness-interval", 10*time.Minute, "liveness sweep interval")
	staleThreshold := flag.Duration("stale-threshold", 10*time.Minute, "agent heartbeat staleness threshold")
	flag.Parse()

	log := logging.New(*logLevel)

	db, err := store.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	tokens, err := auth.Load(*tokensPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load tokens: %v\n", err)
		os.Exit(1)
	}

	registry := agents.New(db)

	bus, err := notify.NewBus(notify.ServerConfig{Port: *notifyPort}, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start notification bus: %v\n", err)
		os.Exit(1)
	}
	defer bus.Close()

	var bot external.Bot
	if *webhookURL != "" {
		bot = external.NewWebhookBot(*webhookURL, log)
	} else {
		bot = external.NewLogBot(log)
	}
	reportSignal := external.NewLogReportSignal(log)

	unsubRunning, err := notify.DrainRunning(bus.ClientURL(), func(ev notify.RunningEvent) {
		if err := bot.PostNowRunning(ev.GithubIssue, ev.Experiment, ev.Agent); err != nil {
			log.Error("bot notification failed", "experiment", ev.Experiment, "error", err)
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "subscribe running events: %v\n", err)
		os.Exit(1)
	}
	defer unsubRunning()

	unsubNeedsReport, err := notify.DrainNeedsReport(bus.ClientURL(), func(ev notify.NeedsReportEvent) {
		if err := reportSignal.ReportNeeded(ev.Experiment); err != nil {
			log.Error("report signal failed", "experiment", ev.Experiment, "error", err)
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "subscribe needs-report events: %v\n", err)
		os.Exit(1)
	}
	defer unsubNeedsReport()

	engine := assign.New(db, registry, bus)

	srv := coordinator.New(coordinator.Config{
		Addr:         *addr,
		ServerHeader: "crater/" + gitRevision,
	}, engine, registry, db, tokens, log)

	sweeper := liveness.New(engine, log, *livenessInterval, *staleThreshold)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweeper.Run(ctx)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			log.Error("coordinator server failed", "error", err)
			os.Exit(1)
		}
	case sig := <-shutdown:
		log.Info("shutting down", "signal", sig.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
	}
}
