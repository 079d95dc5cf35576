package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// GetExperiment returns an experiment by name.
func (db *DB) GetExperiment(name string) (*Experiment, error) {
	row := db.SQL.QueryRow(`
		SELECT name, status, assignee, priority, github_issue,
		       toolchain_baseline, toolchain_candidate, crate_select, items, created_at
		FROM experiments WHERE name = ?`, name)
	return scanExperiment(row)
}

func scanExperiment(row *sql.Row) (*Experiment, error) {
	var e Experiment
	var githubIssue sql.NullString
	var itemsJSON string
	err := row.Scan(&e.Name, &e.Status, &e.Assignee, &e.Priority, &githubIssue,
		&e.ToolchainBaseline, &e.ToolchainCandidate, &e.CrateSelect, &itemsJSON, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUnknownExperiment
	}
	if err != nil {
		return nil, fmt.Errorf("scan experiment: %w", err)
	}
	e.GithubIssue = githubIssue.String
	if err := json.Unmarshal([]byte(itemsJSON), &e.Items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	return &e, nil
}

// ListByStatus returns every experiment in the given status.
func (db *DB) ListByStatus(status Status) ([]*Experiment, error) {
	rows, err := db.SQL.Query(`
		SELECT name, status, assignee, priority, github_issue,
		       toolchain_baseline, toolchain_candidate, crate_select, items, created_at
		FROM experiments WHERE status = ? ORDER BY priority DESC, created_at ASC, name ASC`, status)
	if err != nil {
		return nil, fmt.Errorf("list by status: %w", err)
	}
	defer rows.Close()

	var out []*Experiment
	for rows.Next() {
		var e Experiment
		var githubIssue sql.NullString
		var itemsJSON string
		if err := rows.Scan(&e.Name, &e.Status, &e.Assignee, &e.Priority, &githubIssue,
			&e.ToolchainBaseline, &e.ToolchainCandidate, &e.CrateSelect, &itemsJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan experiment row: %w", err)
		}
		e.GithubIssue = githubIssue.String
		if err := json.Unmarshal([]byte(itemsJSON), &e.Items); err != nil {
			return nil, fmt.Errorf("decode items: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// ClaimNextFor implements spec §4.3's claim_next_for. The caller (C4's
// assignment engine) holds the process-wide assignment lock (spec §5) for
// the duration of this call; ClaimNextFor itself only needs the
// transaction to make its read-then-write atomic against concurrent cron
// reclaims, since store.DB may also be driven directly by tests.
func (db *DB) ClaimNextFor(agent string) (exp *Experiment, wasNewlyClaimed bool, err error) {
	err = db.withTx(func(tx *sql.Tx) error {
		// (a) already-running experiment assigned to this agent.
		row := tx.QueryRow(`
			SELECT name, status, assignee, priority, github_issue,
			       toolchain_baseline, toolchain_candidate, crate_select, items, created_at
			FROM experiments WHERE assignee = ? AND status = ?`, AgentAssignee(agent), StatusRunning)
		if e, scanErr := scanExperiment(row); scanErr == nil {
			exp = e
			wasNewlyClaimed = false
			return nil
		} else if scanErr != ErrUnknownExperiment {
			return scanErr
		}

		// (b) queued experiment assigned to this agent, the distributed
		// pool, or unassigned — most specific match first.
		candidates := []Assignee{AgentAssignee(agent), AssigneeDistributed, AssigneeUnassigned}
		for _, want := range candidates {
			row := tx.QueryRow(`
				SELECT name, status, assignee, priority, github_issue,
				       toolchain_baseline, toolchain_candidate, crate_select, items, created_at
				FROM experiments
				WHERE assignee = ? AND status = ?
				ORDER BY priority DESC, created_at ASC, name ASC
				LIMIT 1`, want, StatusQueued)
			e, scanErr := scanExperiment(row)
			if scanErr == ErrUnknownExperiment {
				continue
			}
			if scanErr != nil {
				return scanErr
			}

			newAssignee := e.Assignee
			if want != AgentAssignee(agent) {
				// distributed/unassigned queued experiments become
				// agent-specific once claimed.
				newAssignee = AgentAssignee(agent)
			}
			if _, execErr := tx.Exec(`UPDATE experiments SET status = ?, assignee = ? WHERE name = ?`,
				StatusRunning, newAssignee, e.Name); execErr != nil {
				return fmt.Errorf("claim experiment: %w", execErr)
			}
			e.Status = StatusRunning
			e.Assignee = newAssignee
			exp = e
			wasNewlyClaimed = true
			return nil
		}

		return ErrNoClaimableWork
	})
	if err == ErrNoClaimableWork {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return exp, wasNewlyClaimed, nil
}

// SetStatus performs a legal status transition (spec §3's edge set) or
// returns ErrIllegalTransition.
func (db *DB) SetStatus(name string, newStatus Status) error {
	return db.withTx(func(tx *sql.Tx) error {
		var current Status
		if err := tx.QueryRow(`SELECT status FROM experiments WHERE name = ?`, name).Scan(&current); err != nil {
			if err == sql.ErrNoRows {
				return ErrUnknownExperiment
			}
			return fmt.Errorf("read status: %w", err)
		}
		if !legalTransitions[current][newStatus] {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current, newStatus)
		}
		if _, err := tx.Exec(`UPDATE experiments SET status = ? WHERE name = ?`, newStatus, name); err != nil {
			return fmt.Errorf("set status: %w", err)
		}
		return nil
	})
}

// CreateExperiment inserts a new queued experiment. This is the operator
// path spec §3 names as "created by an operator path outside the core";
// it is exposed here so craterctl / tests can seed experiments without a
// separate admin service.
func (db *DB) CreateExperiment(e *Experiment) error {
	itemsJSON, err := json.Marshal(e.Items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	if e.Assignee == "" {
		e.Assignee = AssigneeUnassigned
	}
	if e.Status == "" {
		e.Status = StatusQueued
	}
	_, err = db.SQL.Exec(`
		INSERT INTO experiments (
			name, status, assignee, priority, github_issue,
			toolchain_baseline, toolchain_candidate, crate_select, items
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Name, e.Status, e.Assignee, e.Priority, nullString(e.GithubIssue),
		e.ToolchainBaseline, e.ToolchainCandidate, e.CrateSelect, string(itemsJSON))
	if err != nil {
		return fmt.Errorf("create experiment: %w", err)
	}
	return nil
}

// HandleAgentFailure clears dispatch-log ownership of every item the agent
// had in flight for the experiment, without touching any stored result
// (spec §4.3/§8 invariant 5 — "no loss on reclaim"). The experiment status
// is left unchanged (running self-loop, spec §3).
func (db *DB) HandleAgentFailure(experiment, agent string) error {
	return db.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM dispatch_log WHERE experiment = ? AND agent = ?`, experiment, agent); err != nil {
			return fmt.Errorf("clear dispatch log: %w", err)
		}
		return nil
	})
}
