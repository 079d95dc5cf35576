// Package external holds the collaborator-facing side effects the spec
// names but deliberately keeps outside the dispatch core's transaction
// boundary (spec §4.3/§9 design note): posting a "now running" comment on
// the experiment's tracking issue, and waking the separate report-worker
// process. Both are best-effort; a failure here must never roll back or
// retry the store write that triggered it, matching the shape of the
// pack's SlackNotifier/DiscordNotifier webhook senders.
package external

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Bot posts collaborator-visible notifications about experiment state
// changes (spec's GitHub issue comment, abstracted over the specific
// tracker so a test or a headless deployment can swap in a no-op).
type Bot interface {
	PostNowRunning(issueRef, experiment, agent string) error
}

// WebhookBot posts a JSON payload to a configured webhook URL, in the
// shape of the pack's SlackNotifier: a single POST, no retries, errors
// logged and swallowed by the caller.
type WebhookBot struct {
	webhookURL string
	client     *http.Client
	log        *slog.Logger
}

func NewWebhookBot(webhookURL string, log *slog.Logger) *WebhookBot {
	return &WebhookBot{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

func (b *WebhookBot) PostNowRunning(issueRef, experiment, agent string) error {
	if b.webhookURL == "" {
		return nil
	}
	payload := map[string]string{
		"text":       fmt.Sprintf("Experiment %s is now running on %s", experiment, agent),
		"issue":      issueRef,
		"experiment": experiment,
		"agent":      agent,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal bot payload: %w", err)
	}

	resp, err := b.client.Post(b.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post bot notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bot webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// LogBot is the default Bot: it logs the notification instead of posting
// anywhere. Used whenever no webhook URL is configured.
type LogBot struct {
	log *slog.Logger
}

func NewLogBot(log *slog.Logger) *LogBot {
	return &LogBot{log: log}
}

func (b *LogBot) PostNowRunning(issueRef, experiment, agent string) error {
	b.log.Info("experiment now running", "issue", issueRef, "experiment", experiment, "agent", agent)
	return nil
}
