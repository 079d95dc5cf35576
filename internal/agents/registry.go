// Package agents implements the agent registry (spec component C2):
// capability tracking and heartbeat bookkeeping for remote agent clients,
// consulted by the assignment engine's stale-agent reclaim (driven by the
// liveness cron, spec §4.7) to detect dead agents. Claim selection does
// not read it.
package agents

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/crater-dist/crater/internal/store"
)

// Registry is the C2 agent registry, backed by the same SQLite connection
// as the experiment store.
type Registry struct {
	db *store.DB
}

func New(db *store.DB) *Registry {
	return &Registry{db: db}
}

// UpsertCapabilities records (or updates) the capability set an agent
// reported in its config handshake (spec §4.6, ExperimentData config).
func (r *Registry) UpsertCapabilities(name string, capabilities []string) error {
	capsJSON, err := json.Marshal(capabilities)
	if err != nil {
		return fmt.Errorf("encode capabilities: %w", err)
	}
	_, err = r.db.SQL.Exec(`
		INSERT INTO agents (name, capabilities) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET capabilities = excluded.capabilities`,
		name, string(capsJSON))
	if err != nil {
		return fmt.Errorf("upsert capabilities: %w", err)
	}
	return nil
}

// RecordHeartbeat stamps the agent's last_heartbeat to at (the heartbeat
// handler passes the current time) (spec §4.2/§4.7
// — the liveness cron's sole signal of whether an agent is alive).
func (r *Registry) RecordHeartbeat(name string, at time.Time) error {
	res, err := r.db.SQL.Exec(`
		INSERT INTO agents (name, last_heartbeat) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET last_heartbeat = excluded.last_heartbeat`,
		name, at)
	if err != nil {
		return fmt.Errorf("record heartbeat: %w", err)
	}
	_, err = res.RowsAffected()
	return err
}

// SetGitRevision records the crater-agent binary revision for an agent
// (spec §4.6's optional git_revision field), surfaced for operator
// diagnostics. No coordinator endpoint calls it.
func (r *Registry) SetGitRevision(name, revision string) error {
	_, err := r.db.SQL.Exec(`
		INSERT INTO agents (name, git_revision) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET git_revision = excluded.git_revision`,
		name, revision)
	if err != nil {
		return fmt.Errorf("set git revision: %w", err)
	}
	return nil
}

// Get returns the registry row for name, or store.ErrUnknownAgent if it
// has never reported in.
func (r *Registry) Get(name string) (*store.Agent, error) {
	row := r.db.SQL.QueryRow(`
		SELECT name, capabilities, last_heartbeat, git_revision FROM agents WHERE name = ?`, name)
	return scanAgent(row)
}

func scanAgent(row *sql.Row) (*store.Agent, error) {
	var a store.Agent
	var capsJSON string
	var lastHeartbeat sql.NullTime
	var gitRevision sql.NullString
	if err := row.Scan(&a.Name, &capsJSON, &lastHeartbeat, &gitRevision); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrUnknownAgent
		}
		return nil, fmt.Errorf("scan agent: %w", err)
	}
	if err := json.Unmarshal([]byte(capsJSON), &a.Capabilities); err != nil {
		return nil, fmt.Errorf("decode capabilities: %w", err)
	}
	if lastHeartbeat.Valid {
		a.LastHeartbeat = &lastHeartbeat.Time
	}
	a.GitRevision = gitRevision.String
	return &a, nil
}

// ListStale returns every agent whose last heartbeat is older than
// threshold (or who has never reported one) as of now — the set the
// liveness cron (spec §4.7) must reclaim work from.
func (r *Registry) ListStale(now time.Time, threshold time.Duration) ([]*store.Agent, error) {
	cutoff := now.Add(-threshold)
	rows, err := r.db.SQL.Query(`
		SELECT name, capabilities, last_heartbeat, git_revision FROM agents
		WHERE last_heartbeat IS NULL OR last_heartbeat < ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale agents: %w", err)
	}
	defer rows.Close()
	return scanAgents(rows)
}

// ListLive returns every agent whose last heartbeat is within threshold of
// now; capabilities are not considered.
func (r *Registry) ListLive(now time.Time, threshold time.Duration) ([]*store.Agent, error) {
	cutoff := now.Add(-threshold)
	rows, err := r.db.SQL.Query(`
		SELECT name, capabilities, last_heartbeat, git_revision FROM agents
		WHERE last_heartbeat >= ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list live agents: %w", err)
	}
	defer rows.Close()
	return scanAgents(rows)
}

func scanAgents(rows *sql.Rows) ([]*store.Agent, error) {
	var out []*store.Agent
	for rows.Next() {
		var a store.Agent
		var capsJSON string
		var lastHeartbeat sql.NullTime
		var gitRevision sql.NullString
		if err := rows.Scan(&a.Name, &capsJSON, &lastHeartbeat, &gitRevision); err != nil {
			return nil, fmt.Errorf("scan agent row: %w", err)
		}
		if err := json.Unmarshal([]byte(capsJSON), &a.Capabilities); err != nil {
			return nil, fmt.Errorf("decode capabilities: %w", err)
		}
		if lastHeartbeat.Valid {
			a.LastHeartbeat = &lastHeartbeat.Time
		}
		a.GitRevision = gitRevision.String
		out = append(out, &a)
	}
	return out, rows.Err()
}
