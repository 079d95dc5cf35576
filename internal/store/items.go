package store

import (
	"database/sql"
	"fmt"
)

// RunningItemsFor returns the items of experiment currently dispatched to
// agent according to dispatch_log — the stricter of the two designs spec
// §9's open question considered (see DESIGN.md). A dispatch_log row is the
// sole source of truth for "in flight"; it is independent of whether a
// result has since been recorded, since an agent may still be running an
// item the coordinator has no result for yet.
func (db *DB) RunningItemsFor(experiment, agent string) ([]string, error) {
	rows, err := db.SQL.Query(`
		SELECT item FROM dispatch_log WHERE experiment = ? AND agent = ? ORDER BY item ASC`,
		experiment, agent)
	if err != nil {
		return nil, fmt.Errorf("running items for: %w", err)
	}
	defer rows.Close()

	var items []string
	for rows.Next() {
		var item string
		if err := rows.Scan(&item); err != nil {
			return nil, fmt.Errorf("scan dispatch log row: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// DispatchItems records that agent has been handed the given items of
// experiment, so a later RunningItemsFor / reclaim can find them again.
// Called once per claim, inside the same lock the assignment engine holds
// for ClaimNextFor. Re-dispatching an item already owned by this agent is
// a no-op (INSERT OR REPLACE keyed on the experiment+item primary key).
func (db *DB) DispatchItems(experiment, agent string, items []string) error {
	if len(items) == 0 {
		return nil
	}
	return db.withTx(func(tx *sql.Tx) error {
		for _, item := range items {
			if _, err := tx.Exec(`
				INSERT OR REPLACE INTO dispatch_log (experiment, item, agent) VALUES (?, ?, ?)`,
				experiment, item, agent); err != nil {
				return fmt.Errorf("dispatch item %s: %w", item, err)
			}
		}
		return nil
	})
}

// NextItemFor implements endpoint_next_crate's dispatch (spec §4.4 point 2,
// §5): pop one item for agent to work on next. It does not take the
// assignment lock — spec §5 explicitly carves next-crate out of it,
// relying instead on this transaction's own atomicity and the dispatch_log
// primary key (experiment, item) to make two agents racing for the same
// item a conflict the loser's transaction fails on, not a shared-state bug.
// A crash-resumed agent that still holds an in-flight item gets that item
// back first; otherwise the first uncompleted, undispatched item (in the
// experiment's declared order) is claimed for agent. Returns "" when the
// agent has no remaining work in experiment.
func (db *DB) NextItemFor(experiment, agent string) (item string, err error) {
	exp, err := db.GetExperiment(experiment)
	if err != nil {
		return "", err
	}

	err = db.withTx(func(tx *sql.Tx) error {
		row := tx.QueryRow(`
			SELECT item FROM dispatch_log WHERE experiment = ? AND agent = ? ORDER BY item ASC LIMIT 1`,
			experiment, agent)
		var running string
		switch scanErr := row.Scan(&running); scanErr {
		case nil:
			item = running
			return nil
		case sql.ErrNoRows:
		default:
			return fmt.Errorf("scan running item: %w", scanErr)
		}

		toolchains := make(map[string]int)
		resultRows, err := tx.Query(`
			SELECT item, COUNT(DISTINCT toolchain) FROM results WHERE experiment = ? GROUP BY item`, experiment)
		if err != nil {
			return fmt.Errorf("count item toolchains: %w", err)
		}
		for resultRows.Next() {
			var i string
			var count int
			if err := resultRows.Scan(&i, &count); err != nil {
				resultRows.Close()
				return fmt.Errorf("scan toolchain count: %w", err)
			}
			toolchains[i] = count
		}
		if err := resultRows.Err(); err != nil {
			resultRows.Close()
			return err
		}
		resultRows.Close()

		taken := make(map[string]bool)
		dispatchRows, err := tx.Query(`SELECT item FROM dispatch_log WHERE experiment = ?`, experiment)
		if err != nil {
			return fmt.Errorf("list dispatched items: %w", err)
		}
		for dispatchRows.Next() {
			var i string
			if err := dispatchRows.Scan(&i); err != nil {
				dispatchRows.Close()
				return fmt.Errorf("scan dispatched item: %w", err)
			}
			taken[i] = true
		}
		if err := dispatchRows.Err(); err != nil {
			dispatchRows.Close()
			return err
		}
		dispatchRows.Close()

		var next string
		for _, candidate := range exp.Items {
			if toolchains[candidate] >= 2 || taken[candidate] {
				continue
			}
			next = candidate
			break
		}
		if next == "" {
			return nil
		}

		if _, err := tx.Exec(`INSERT INTO dispatch_log (experiment, item, agent) VALUES (?, ?, ?)`,
			experiment, next, agent); err != nil {
			return fmt.Errorf("dispatch next item: %w", err)
		}
		item = next
		return nil
	})
	if err != nil {
		return "", err
	}
	return item, nil
}

// UncompletedItemsFor returns every item of experiment that has no stored
// result for at least one of its two toolchains (spec §4.3), i.e. the work
// remaining regardless of who (if anyone) currently holds it. This is what
// a fresh claim hands out; RunningItemsFor is what a resumed claim hands
// back. An item with only a baseline result is still uncompleted: its
// candidate-toolchain run has not happened yet.
func (db *DB) UncompletedItemsFor(experiment string) ([]string, error) {
	exp, err := db.GetExperiment(experiment)
	if err != nil {
		return nil, err
	}

	rows, err := db.SQL.Query(`
		SELECT item, COUNT(DISTINCT toolchain) FROM results WHERE experiment = ? GROUP BY item`,
		experiment)
	if err != nil {
		return nil, fmt.Errorf("uncompleted items for: %w", err)
	}
	defer rows.Close()

	toolchains := make(map[string]int)
	for rows.Next() {
		var item string
		var count int
		if err := rows.Scan(&item, &count); err != nil {
			return nil, fmt.Errorf("scan result item: %w", err)
		}
		toolchains[item] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var remaining []string
	for _, item := range exp.Items {
		if toolchains[item] < 2 {
			remaining = append(remaining, item)
		}
	}
	return remaining, nil
}
