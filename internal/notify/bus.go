package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// RunningEvent is published on SubjectRunning.
type RunningEvent struct {
	ID          string `json:"id"`
	Experiment  string `json:"experiment"`
	GithubIssue string `json:"github-issue"`
	Agent       string `json:"agent"`
}

// NeedsReportEvent is published on SubjectNeedsReport.
type NeedsReportEvent struct {
	ID         string `json:"id"`
	Experiment string `json:"experiment"`
}

// Bus is the publish side the assignment engine holds. Publishing never
// blocks on a subscriber: NATS core (non-JetStream) pub/sub is fire-and
// forget, which is exactly the "best effort, non-blocking" behavior spec
// §9 requires for both the bot notification and the report-worker wake
// signal.
type Bus struct {
	srv *Server
	cli *client
	log *slog.Logger
}

// NewBus starts an embedded broker and connects a publisher client to it.
func NewBus(cfg ServerConfig, log *slog.Logger) (*Bus, error) {
	srv := NewServer(cfg)
	if err := srv.Start(); err != nil {
		return nil, fmt.Errorf("start notify bus: %w", err)
	}
	cli, err := newClient(srv.ClientURL())
	if err != nil {
		srv.Shutdown()
		return nil, fmt.Errorf("connect notify bus publisher: %w", err)
	}
	return &Bus{srv: srv, cli: cli, log: log}, nil
}

// NotifyRunning publishes a RunningEvent. Errors are logged, not
// returned — the caller (assign.Engine.Claim) must not treat a bus hiccup
// as a claim failure.
func (b *Bus) NotifyRunning(experiment, githubIssue, agent string) {
	data, err := json.Marshal(RunningEvent{
		ID: uuid.New().String(), Experiment: experiment, GithubIssue: githubIssue, Agent: agent,
	})
	if err != nil {
		b.log.Error("encode running event", "error", err)
		return
	}
	if err := b.cli.publish(SubjectRunning, data); err != nil {
		b.log.Warn("publish running event", "experiment", experiment, "error", err)
	}
}

// NotifyNeedsReport publishes a NeedsReportEvent.
func (b *Bus) NotifyNeedsReport(experiment string) {
	data, err := json.Marshal(NeedsReportEvent{ID: uuid.New().String(), Experiment: experiment})
	if err != nil {
		b.log.Error("encode needs-report event", "error", err)
		return
	}
	if err := b.cli.publish(SubjectNeedsReport, data); err != nil {
		b.log.Warn("publish needs-report event", "experiment", experiment, "error", err)
	}
}

// ClientURL exposes the embedded broker's URL so a drain worker can
// connect its own subscriber client.
func (b *Bus) ClientURL() string {
	return b.srv.ClientURL()
}

// Close shuts down the publisher connection and the embedded broker.
func (b *Bus) Close() {
	b.cli.close()
	b.srv.Shutdown()
}

// DrainRunning subscribes to SubjectRunning and invokes handle for every
// event until the returned unsubscribe func is called. This is the
// "dedicated worker" spec §9 describes: it runs independently of the
// request that published the event, so a slow or failing bot call never
// backs up the coordinator's HTTP handlers.
func DrainRunning(url string, handle func(RunningEvent)) (unsubscribe func(), err error) {
	return drain(url, SubjectRunning, func(data []byte) {
		var ev RunningEvent
		if err := json.Unmarshal(data, &ev); err == nil {
			handle(ev)
		}
	})
}

// DrainNeedsReport subscribes to SubjectNeedsReport.
func DrainNeedsReport(url string, handle func(NeedsReportEvent)) (unsubscribe func(), err error) {
	return drain(url, SubjectNeedsReport, func(data []byte) {
		var ev NeedsReportEvent
		if err := json.Unmarshal(data, &ev); err == nil {
			handle(ev)
		}
	})
}

func drain(url, subject string, handle func([]byte)) (func(), error) {
	cli, err := newClient(url)
	if err != nil {
		return nil, err
	}
	sub, err := cli.subscribe(subject, handle)
	if err != nil {
		cli.close()
		return nil, err
	}
	return func() {
		sub.Unsubscribe()
		cli.close()
	}, nil
}
