package agents

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/crater-dist/crater/internal/store"
)

func setupTestRegistry(t *testing.T) *Registry {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "agents-test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func TestUpsertCapabilitiesThenGet(t *testing.T) {
	r := setupTestRegistry(t)

	if err := r.UpsertCapabilities("agent-1", []string{"linux", "docker"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	agent, err := r.Get("agent-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(agent.Capabilities) != 2 || agent.Capabilities[0] != "linux" {
		t.Errorf("capabilities = %v, want [linux docker]", agent.Capabilities)
	}
}

func TestGetUnknownAgent(t *testing.T) {
	r := setupTestRegistry(t)
	if _, err := r.Get("ghost"); err != store.ErrUnknownAgent {
		t.Fatalf("err = %v, want ErrUnknownAgent", err)
	}
}

func TestListStaleExcludesFreshHeartbeats(t *testing.T) {
	r := setupTestRegistry(t)
	now := time.Now()

	if err := r.RecordHeartbeat("fresh-agent", now); err != nil {
		t.Fatalf("heartbeat fresh: %v", err)
	}
	if err := r.RecordHeartbeat("stale-agent", now.Add(-10*time.Minute)); err != nil {
		t.Fatalf("heartbeat stale: %v", err)
	}

	stale, err := r.ListStale(now, 5*time.Minute)
	if err != nil {
		t.Fatalf("list stale: %v", err)
	}
	if len(stale) != 1 || stale[0].Name != "stale-agent" {
		t.Errorf("stale = %v, want exactly [stale-agent]", stale)
	}

	live, err := r.ListLive(now, 5*time.Minute)
	if err != nil {
		t.Fatalf("list live: %v", err)
	}
	if len(live) != 1 || live[0].Name != "fresh-agent" {
		t.Errorf("live = %v, want exactly [fresh-agent]", live)
	}
}

func TestSetGitRevision(t *testing.T) {
	r := setupTestRegistry(t)
	if err := r.RecordHeartbeat("agent-1", time.Now()); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if err := r.SetGitRevision("agent-1", "abc1234"); err != nil {
		t.Fatalf("set git revision: %v", err)
	}
	agent, err := r.Get("agent-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if agent.GitRevision != "abc1234" {
		t.Errorf("git revision = %q, want abc1234", agent.GitRevision)
	}
}
