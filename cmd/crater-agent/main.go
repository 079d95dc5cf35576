package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/crater-dist/crater/internal/agentclient"
	"github.com/crater-dist/crater/internal/logging"
	"github.com/crater-dist/crater/internal/wire"
)

// idlePoll is how long the agent sleeps between next-experiment polls
// when the coordinator has no work available.
const idlePoll = 120 * time.Second

func main() {
	coordinatorURL := flag.String("coordinator", "http://localhost:8080", "coordinator base URL")
	token := flag.String("token", "", "bearer token (falls back to CRATER_TOKEN env var)")
	capabilitiesFlag := flag.String("capabilities", "linux", "comma-separated capability list")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	log := logging.New(*logLevel)

	resolvedToken := *token
	if resolvedToken == "" {
		resolvedToken = os.Getenv("CRATER_TOKEN")
	}
	if resolvedToken == "" {
		fmt.Fprintln(os.Stderr, "no token provided: pass -token or set CRATER_TOKEN")
		os.Exit(1)
	}

	capabilities := strings.Split(*capabilitiesFlag, ",")

	client := agentclient.New(*coordinatorURL, resolvedToken)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if _, err := client.Config(ctx, capabilities); err != nil {
		log.Error("initial config handshake failed", "error", err)
	}

	go heartbeatLoop(ctx, client, log)

	run(ctx, client, log)
	log.Info("agent shutting down")
}

func heartbeatLoop(ctx context.Context, client *agentclient.Client, log *slog.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(ctx); err != nil {
				log.Error("heartbeat failed", "error", err)
			}
		}
	}
}

// run is the agent's main work loop: block for the next experiment,
// work through its items one at a time via next-crate, report progress,
// and fall back to an idle sleep whenever the coordinator has nothing to
// hand out (spec §4.6's blocking next_experiment poll).
func run(ctx context.Context, client *agentclient.Client, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		exp, err := client.NextExperiment(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("next-experiment failed", "error", err)
			sleepOrDone(ctx, idlePoll)
			continue
		}
		if exp == nil {
			sleepOrDone(ctx, idlePoll)
			continue
		}

		log.Info("claimed experiment", "experiment", exp.Experiment.Name, "items", len(exp.Items))
		runExperiment(ctx, client, log, exp)
	}
}

// runExperiment pulls one item at a time from next-crate, rather than
// walking the batch next-experiment returned (spec §2/§4.6: next-crate is
// what actually hands out work; next-experiment's item list just reports
// what's in flight or uncompleted at claim time). A null next-crate result
// means this agent has no remaining work in the experiment — time to poll
// next-experiment again.
func runExperiment(ctx context.Context, client *agentclient.Client, log *slog.Logger, exp *wire.ExperimentResult) {
	runner := newSandboxRunner()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		item, err := client.NextCrate(ctx, exp.Experiment.Name)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("next-crate failed", "experiment", exp.Experiment.Name, "error", err)
			return
		}
		if item == "" {
			return
		}

		entries := make([]wire.ResultEntry, 0, 2)
		for _, toolchain := range []string{"baseline", "candidate"} {
			outcome, logB64, err := runner.Run(ctx, exp.Experiment.Toolchains[toolchainIndex(toolchain)], item)
			if err != nil {
				log.Error("crate run failed", "experiment", exp.Experiment.Name, "item", item, "toolchain", toolchain, "error", err)
				if reportErr := client.ReportError(ctx, exp.Experiment.Name, err.Error()); reportErr != nil {
					log.Error("report-error failed", "error", reportErr)
				}
				return
			}
			entries = append(entries, wire.ResultEntry{
				Crate:     item,
				Toolchain: toolchain,
				Result:    outcome,
				Log:       logB64,
			})
		}

		if err := client.RecordProgress(ctx, wire.ProgressRequest{
			ExperimentName: exp.Experiment.Name,
			Results:        entries,
		}); err != nil {
			log.Error("record-progress failed", "experiment", exp.Experiment.Name, "item", item, "error", err)
		}
	}
}

func toolchainIndex(name string) int {
	if name == "candidate" {
		return 1
	}
	return 0
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
