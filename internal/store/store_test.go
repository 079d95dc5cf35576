package store

import (
	"path/filepath"
	"testing"
	"time"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "crater-test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedExperiment(t *testing.T, db *DB, e *Experiment) {
	t.Helper()
	if err := db.CreateExperiment(e); err != nil {
		t.Fatalf("create experiment %s: %v", e.Name, err)
	}
}

func TestClaimNextForUnassignedQueued(t *testing.T) {
	db := setupTestDB(t)
	seedExperiment(t, db, &Experiment{
		Name: "foo-ecosystem", ToolchainBaseline: "stable", ToolchainCandidate: "beta",
		Items: []string{"crate-a", "crate-b"},
	})

	exp, newly, err := db.ClaimNextFor("agent-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !newly {
		t.Fatal("expected newly claimed")
	}
	if exp.Status != StatusRunning {
		t.Errorf("status = %s, want running", exp.Status)
	}
	if name, ok := exp.Assignee.AgentName(); !ok || name != "agent-1" {
		t.Errorf("assignee = %s, want agent:agent-1", exp.Assignee)
	}
}

func TestClaimNextForResumesOwnRunningExperiment(t *testing.T) {
	db := setupTestDB(t)
	seedExperiment(t, db, &Experiment{
		Name: "foo-ecosystem", ToolchainBaseline: "stable", ToolchainCandidate: "beta",
		Items: []string{"crate-a"},
	})

	first, _, err := db.ClaimNextFor("agent-1")
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}

	second, newly, err := db.ClaimNextFor("agent-1")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if newly {
		t.Error("expected resumed claim, not newly claimed")
	}
	if second.Name != first.Name {
		t.Errorf("resumed wrong experiment: %s", second.Name)
	}
}

func TestClaimNextForNoWorkForAnotherAgent(t *testing.T) {
	db := setupTestDB(t)
	seedExperiment(t, db, &Experiment{
		Name: "foo-ecosystem", ToolchainBaseline: "stable", ToolchainCandidate: "beta",
		Items: []string{"crate-a"},
	})

	if _, _, err := db.ClaimNextFor("agent-1"); err != nil {
		t.Fatalf("claim by agent-1: %v", err)
	}

	exp, newly, err := db.ClaimNextFor("agent-2")
	if err != nil {
		t.Fatalf("claim by agent-2: %v", err)
	}
	if exp != nil || newly {
		t.Errorf("expected no claimable work for agent-2, got %+v newly=%v", exp, newly)
	}
}

func TestClaimNextForTieBreakOrder(t *testing.T) {
	db := setupTestDB(t)
	seedExperiment(t, db, &Experiment{
		Name: "zzz-low-priority", Priority: 1, ToolchainBaseline: "stable", ToolchainCandidate: "beta",
		Items: []string{"crate-a"},
	})
	seedExperiment(t, db, &Experiment{
		Name: "aaa-high-priority", Priority: 5, ToolchainBaseline: "stable", ToolchainCandidate: "beta",
		Items: []string{"crate-a"},
	})

	exp, _, err := db.ClaimNextFor("agent-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if exp.Name != "aaa-high-priority" {
		t.Errorf("claimed %s, want aaa-high-priority (priority DESC tie-break)", exp.Name)
	}
}

func TestSetStatusRejectsIllegalTransition(t *testing.T) {
	db := setupTestDB(t)
	seedExperiment(t, db, &Experiment{
		Name: "foo-ecosystem", ToolchainBaseline: "stable", ToolchainCandidate: "beta",
		Items: []string{"crate-a"},
	})

	if err := db.SetStatus("foo-ecosystem", StatusCompleted); err == nil {
		t.Fatal("expected illegal transition queued->completed to fail")
	}

	if _, _, err := db.ClaimNextFor("agent-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := db.SetStatus("foo-ecosystem", StatusNeedsReport); err != nil {
		t.Fatalf("running->needs-report: %v", err)
	}
}

func TestHandleAgentFailureClearsDispatchNotResults(t *testing.T) {
	db := setupTestDB(t)
	seedExperiment(t, db, &Experiment{
		Name: "foo-ecosystem", ToolchainBaseline: "stable", ToolchainCandidate: "beta",
		Items: []string{"crate-a", "crate-b"},
	})
	if _, _, err := db.ClaimNextFor("agent-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := db.DispatchItems("foo-ecosystem", "agent-1", []string{"crate-a", "crate-b"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if err := db.StoreResult("agent-1", Result{
		Experiment: "foo-ecosystem", Item: "crate-a", Toolchain: ToolchainBaseline, Outcome: "build-pass",
	}); err != nil {
		t.Fatalf("store result: %v", err)
	}

	if err := db.HandleAgentFailure("foo-ecosystem", "agent-1"); err != nil {
		t.Fatalf("handle failure: %v", err)
	}

	running, err := db.RunningItemsFor("foo-ecosystem", "agent-1")
	if err != nil {
		t.Fatalf("running items: %v", err)
	}
	if len(running) != 0 {
		t.Errorf("expected dispatch log cleared, got %v", running)
	}

	results, err := db.ResultsFor("foo-ecosystem")
	if err != nil {
		t.Fatalf("results for: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected the stored result to survive agent failure, got %d rows", len(results))
	}
}

func TestStoreResultIdempotent(t *testing.T) {
	db := setupTestDB(t)
	seedExperiment(t, db, &Experiment{
		Name: "foo-ecosystem", ToolchainBaseline: "stable", ToolchainCandidate: "beta",
		Items: []string{"crate-a"},
	})

	result := Result{Experiment: "foo-ecosystem", Item: "crate-a", Toolchain: ToolchainBaseline, Outcome: "build-pass", LogCompressed: []byte("ok")}
	if err := db.StoreResult("agent-1", result); err != nil {
		t.Fatalf("first store: %v", err)
	}
	result.Outcome = "build-fail"
	if err := db.StoreResult("agent-1", result); err != nil {
		t.Fatalf("second store: %v", err)
	}

	results, err := db.ResultsFor("foo-ecosystem")
	if err != nil {
		t.Fatalf("results for: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly one row after re-recording, got %d", len(results))
	}
	if results[0].Outcome != "build-fail" {
		t.Errorf("outcome = %s, want last-write-wins build-fail", results[0].Outcome)
	}
}

func TestProgressCountsBothToolchains(t *testing.T) {
	db := setupTestDB(t)
	seedExperiment(t, db, &Experiment{
		Name: "foo-ecosystem", ToolchainBaseline: "stable", ToolchainCandidate: "beta",
		Items: []string{"crate-a", "crate-b"},
	})

	for _, tc := range []struct{ item, toolchain string }{
		{"crate-a", ToolchainBaseline},
		{"crate-a", ToolchainCandidate},
		{"crate-b", ToolchainBaseline},
	} {
		if err := db.StoreResult("agent-1", Result{Experiment: "foo-ecosystem", Item: tc.item, Toolchain: tc.toolchain, Outcome: "build-pass"}); err != nil {
			t.Fatalf("store result %s/%s: %v", tc.item, tc.toolchain, err)
		}
	}

	completed, total, err := db.Progress("foo-ecosystem")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if total != 2 {
		t.Errorf("total = %d, want 2", total)
	}
	if completed != 1 {
		t.Errorf("completed = %d, want 1 (only crate-a has both toolchains)", completed)
	}
}

func TestUncompletedItemsFor(t *testing.T) {
	db := setupTestDB(t)
	seedExperiment(t, db, &Experiment{
		Name: "foo-ecosystem", ToolchainBaseline: "stable", ToolchainCandidate: "beta",
		Items: []string{"crate-a", "crate-b", "crate-c"},
	})
	if err := db.StoreResult("agent-1", Result{Experiment: "foo-ecosystem", Item: "crate-a", Toolchain: ToolchainBaseline, Outcome: "build-pass"}); err != nil {
		t.Fatalf("store result: %v", err)
	}

	// crate-a only has a baseline result, so it's still uncompleted: its
	// candidate-toolchain run hasn't happened yet.
	remaining, err := db.UncompletedItemsFor("foo-ecosystem")
	if err != nil {
		t.Fatalf("uncompleted items: %v", err)
	}
	if len(remaining) != 3 {
		t.Fatalf("remaining = %v, want 3 items (crate-a needs its candidate run)", remaining)
	}

	if err := db.StoreResult("agent-1", Result{Experiment: "foo-ecosystem", Item: "crate-a", Toolchain: ToolchainCandidate, Outcome: "build-pass"}); err != nil {
		t.Fatalf("store result: %v", err)
	}

	remaining, err = db.UncompletedItemsFor("foo-ecosystem")
	if err != nil {
		t.Fatalf("uncompleted items: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("remaining = %v, want 2 items now crate-a has both toolchains", remaining)
	}
}

// TestStoreResultKeepsDispatchLogUntilBothToolchainsDone covers spec §8
// invariant 5: a dispatch row must survive a first-toolchain result so the
// item's second toolchain is still findable as "running" rather than
// silently dropped.
func TestStoreResultKeepsDispatchLogUntilBothToolchainsDone(t *testing.T) {
	db := setupTestDB(t)
	seedExperiment(t, db, &Experiment{
		Name: "foo-ecosystem", ToolchainBaseline: "stable", ToolchainCandidate: "beta",
		Items: []string{"crate-a"},
	})
	if err := db.DispatchItems("foo-ecosystem", "agent-1", []string{"crate-a"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if err := db.StoreResult("agent-1", Result{Experiment: "foo-ecosystem", Item: "crate-a", Toolchain: ToolchainBaseline, Outcome: "build-pass"}); err != nil {
		t.Fatalf("store baseline result: %v", err)
	}

	running, err := db.RunningItemsFor("foo-ecosystem", "agent-1")
	if err != nil {
		t.Fatalf("running items: %v", err)
	}
	if len(running) != 1 || running[0] != "crate-a" {
		t.Fatalf("running = %v, want [crate-a] still in flight after one toolchain", running)
	}

	if err := db.StoreResult("agent-1", Result{Experiment: "foo-ecosystem", Item: "crate-a", Toolchain: ToolchainCandidate, Outcome: "build-pass"}); err != nil {
		t.Fatalf("store candidate result: %v", err)
	}

	running, err = db.RunningItemsFor("foo-ecosystem", "agent-1")
	if err != nil {
		t.Fatalf("running items: %v", err)
	}
	if len(running) != 0 {
		t.Fatalf("running = %v, want dispatch cleared once both toolchains recorded", running)
	}
}

func TestLogRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	seedExperiment(t, db, &Experiment{
		Name: "foo-ecosystem", ToolchainBaseline: "stable", ToolchainCandidate: "beta",
		Items: []string{"crate-a"},
	})

	raw := []byte("warning: unused import\nerror: compilation failed\n")
	if err := db.StoreResult("agent-1", Result{
		Experiment: "foo-ecosystem", Item: "crate-a", Toolchain: ToolchainBaseline,
		Outcome: "build-fail", LogCompressed: raw,
	}); err != nil {
		t.Fatalf("store result: %v", err)
	}

	results, err := db.ResultsFor("foo-ecosystem")
	if err != nil {
		t.Fatalf("results for: %v", err)
	}
	got, err := DecompressLog(results[0].LogCompressed)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(got) != string(raw) {
		t.Errorf("log mismatch after round trip: %q != %q", got, raw)
	}
}

func TestAgentRegistryHeartbeat(t *testing.T) {
	db := setupTestDB(t)
	now := time.Now()
	if _, err := db.SQL.Exec(`INSERT INTO agents (name, last_heartbeat) VALUES (?, ?)`, "agent-1", now); err != nil {
		t.Fatalf("seed agent: %v", err)
	}
	var got time.Time
	if err := db.SQL.QueryRow(`SELECT last_heartbeat FROM agents WHERE name = ?`, "agent-1").Scan(&got); err != nil {
		t.Fatalf("read heartbeat: %v", err)
	}
}
