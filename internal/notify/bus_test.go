package notify

import (
	"log/slog"
	"sync"
	"testing"
	"time"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	bus, err := NewBus(ServerConfig{Port: -1}, slog.Default())
	if err != nil {
		t.Fatalf("new bus: %v", err)
	}
	t.Cleanup(bus.Close)
	return bus
}

func TestNotifyRunningDelivered(t *testing.T) {
	bus := newTestBus(t)

	var mu sync.Mutex
	var got RunningEvent
	done := make(chan struct{})

	unsubscribe, err := DrainRunning(bus.ClientURL(), func(ev RunningEvent) {
		mu.Lock()
		got = ev
		mu.Unlock()
		close(done)
	})
	if err != nil {
		t.Fatalf("drain running: %v", err)
	}
	defer unsubscribe()

	bus.NotifyRunning("foo-ecosystem", "crate-dist/crater#42", "agent-1")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for running event")
	}

	mu.Lock()
	defer mu.Unlock()
	if got.Experiment != "foo-ecosystem" || got.GithubIssue != "crate-dist/crater#42" || got.Agent != "agent-1" {
		t.Errorf("event = %+v, want {foo-ecosystem crate-dist/crater#42 agent-1}", got)
	}
	if got.ID == "" {
		t.Error("expected a non-empty event ID")
	}
}

func TestNotifyNeedsReportDelivered(t *testing.T) {
	bus := newTestBus(t)

	done := make(chan NeedsReportEvent, 1)
	unsubscribe, err := DrainNeedsReport(bus.ClientURL(), func(ev NeedsReportEvent) {
		done <- ev
	})
	if err != nil {
		t.Fatalf("drain needs-report: %v", err)
	}
	defer unsubscribe()

	bus.NotifyNeedsReport("foo-ecosystem")

	select {
	case ev := <-done:
		if ev.Experiment != "foo-ecosystem" {
			t.Errorf("experiment = %q, want foo-ecosystem", ev.Experiment)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for needs-report event")
	}
}
