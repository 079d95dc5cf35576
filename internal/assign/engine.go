// Package assign implements the assignment engine (spec component C4):
// the single serialization point for claim, record-progress, and
// reclaim decisions, matching the process-wide mutex design spec §5
// mandates at minimum over a database-level SELECT ... FOR UPDATE scheme.
package assign

import (
	"fmt"
	"sync"
	"time"

	"github.com/crater-dist/crater/internal/agents"
	"github.com/crater-dist/crater/internal/notify"
	"github.com/crater-dist/crater/internal/store"
)

// Engine owns the assignment lock. Every exported method holds it across
// all of its store reads and writes (Claim and Record release it before
// publishing to the bus; ReclaimStale lists stale agents before taking
// it), so two goroutines calling Claim/Record/Fail concurrently
// never interleave their read-then-write sequences against the store —
// the property spec §8 invariant 4 (claim uniqueness) depends on.
//
// Engine only ever talks to the notification bus, never directly to the
// external.Bot/ReportSignal collaborators (spec §9 design note): those are
// consumed by dedicated drain workers wired up in cmd/crater-server, kept
// fully decoupled from the assignment lock's critical path.
type Engine struct {
	mu       sync.Mutex
	db       *store.DB
	registry *agents.Registry
	bus      *notify.Bus
}

func New(db *store.DB, registry *agents.Registry, bus *notify.Bus) *Engine {
	return &Engine{db: db, registry: registry, bus: bus}
}

// ClaimResult is what Claim hands back to the HTTP layer to build the
// next-experiment response (spec §4.5's ExperimentResult wire type).
type ClaimResult struct {
	Experiment *store.Experiment
	Items      []string // running items if resumed, uncompleted items if newly claimed
}

// Claim implements endpoint_next_experiment (spec §4.4/§4.5): resume an
// in-flight claim for this agent, or hand out the best-tie-broken queued
// experiment. Notification of a newly-claimed, GitHub-linked experiment is
// published to the bus after the lock is released — it must never block
// this method or hold the lock past the store round-trip (spec §4.3
// design note).
func (e *Engine) Claim(agent string) (*ClaimResult, error) {
	e.mu.Lock()

	exp, newlyClaimed, err := e.db.ClaimNextFor(agent)
	if err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("claim next for %s: %w", agent, err)
	}
	if exp == nil {
		e.mu.Unlock()
		return nil, store.ErrNoClaimableWork
	}

	var items []string
	if newlyClaimed {
		items, err = e.db.UncompletedItemsFor(exp.Name)
		if err != nil {
			e.mu.Unlock()
			return nil, fmt.Errorf("uncompleted items for %s: %w", exp.Name, err)
		}
		if err := e.db.DispatchItems(exp.Name, agent, items); err != nil {
			e.mu.Unlock()
			return nil, fmt.Errorf("dispatch items for %s: %w", exp.Name, err)
		}
	} else {
		items, err = e.db.RunningItemsFor(exp.Name, agent)
		if err != nil {
			e.mu.Unlock()
			return nil, fmt.Errorf("running items for %s: %w", exp.Name, err)
		}
	}

	e.mu.Unlock()

	if newlyClaimed && exp.GithubIssue != "" {
		e.bus.NotifyRunning(exp.Name, exp.GithubIssue, agent)
	}

	return &ClaimResult{Experiment: exp, Items: items}, nil
}

// RecordOutcome is one (item, toolchain) result as reported by
// record-progress (spec §4.5/§4.6).
type RecordOutcome struct {
	Item          string
	Toolchain     string
	Outcome       string
	Log           []byte
	VersionBefore string
	VersionAfter  string
}

// Record implements endpoint_record_progress: store each reported
// outcome, then check whether the experiment has become fully complete
// and should transition to needs-report. The report-worker wake signal
// (spec §4.3) is fired outside the lock's critical section for the store
// write, same non-blocking rule as the GitHub notification. An unknown
// experiment is rejected before anything is stored, and the transition is
// made only while the experiment is running, so repeating the completing
// report stores its results again without failing.
func (e *Engine) Record(agent, experiment string, outcomes []RecordOutcome) error {
	e.mu.Lock()

	exp, err := e.db.GetExperiment(experiment)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("get experiment %s: %w", experiment, err)
	}

	for _, o := range outcomes {
		if err := e.db.StoreResult(agent, store.Result{
			Experiment: experiment, Item: o.Item, Toolchain: o.Toolchain,
			Outcome: o.Outcome, LogCompressed: o.Log,
			VersionBefore: o.VersionBefore, VersionAfter: o.VersionAfter,
		}); err != nil {
			e.mu.Unlock()
			return fmt.Errorf("store result %s/%s: %w", o.Item, o.Toolchain, err)
		}
	}

	completed, total, err := e.db.Progress(experiment)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("progress for %s: %w", experiment, err)
	}
	needsReport := exp.Status == store.StatusRunning && total > 0 && completed == total
	if needsReport {
		if err := e.db.SetStatus(experiment, store.StatusNeedsReport); err != nil {
			e.mu.Unlock()
			return fmt.Errorf("transition %s to needs-report: %w", experiment, err)
		}
	}

	e.mu.Unlock()

	if needsReport {
		e.bus.NotifyNeedsReport(experiment)
	}
	return nil
}

// Fail implements the agent-failure path (spec §3's running->running
// self-loop): clear the failed agent's in-flight dispatch rows so another
// claim can pick the items back up, without touching stored results.
func (e *Engine) Fail(agent, experiment string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.db.HandleAgentFailure(experiment, agent); err != nil {
		return fmt.Errorf("handle agent failure: %w", err)
	}
	return nil
}

// ReclaimStale sweeps every agent the registry considers dead (spec
// §4.7's liveness cron) and releases their in-flight work. It is the only
// Engine method meant to be driven by a ticker rather than an inbound
// request.
func (e *Engine) ReclaimStale(now time.Time, staleThreshold time.Duration) (reclaimed int, err error) {
	stale, err := e.registry.ListStale(now, staleThreshold)
	if err != nil {
		return 0, fmt.Errorf("list stale agents: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, agent := range stale {
		running, err := e.db.ListByStatus(store.StatusRunning)
		if err != nil {
			return reclaimed, fmt.Errorf("list running experiments: %w", err)
		}
		for _, exp := range running {
			name, ok := exp.Assignee.AgentName()
			if !ok || name != agent.Name {
				continue
			}
			if err := e.db.HandleAgentFailure(exp.Name, agent.Name); err != nil {
				return reclaimed, fmt.Errorf("reclaim %s from %s: %w", exp.Name, agent.Name, err)
			}
			reclaimed++
		}
	}
	return reclaimed, nil
}
