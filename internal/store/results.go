package store

import (
	"bytes"
	"database/sql"
	"fmt"

	"github.com/klauspost/compress/gzip"
)

// StoreResult records the outcome of one (item, toolchain) run. It only
// clears the item's dispatch_log row for agent once a result is stored for
// both of the experiment's toolchains (spec §4.3/§8 invariant 5): a result
// for the first toolchain alone leaves the item in flight, otherwise its
// second-toolchain run would never be handed out again. The insert is
// idempotent on the (experiment, item, toolchain) primary key: a retried
// record-progress call (spec §7's retry policy allows the agent to resend
// after a timeout) overwrites the prior row rather than erroring, matching
// spec §8's idempotence law.
func (db *DB) StoreResult(agent string, r Result) error {
	compressed, err := compressLog(r.LogCompressed)
	if err != nil {
		return fmt.Errorf("compress log: %w", err)
	}

	return db.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO results (
				experiment, item, toolchain, outcome, log, version_before, version_after
			) VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (experiment, item, toolchain) DO UPDATE SET
				outcome = excluded.outcome,
				log = excluded.log,
				version_before = excluded.version_before,
				version_after = excluded.version_after,
				recorded_at = CURRENT_TIMESTAMP`,
			r.Experiment, r.Item, r.Toolchain, r.Outcome, compressed,
			nullString(r.VersionBefore), nullString(r.VersionAfter))
		if err != nil {
			return fmt.Errorf("store result: %w", err)
		}

		var toolchains int
		if err := tx.QueryRow(`
			SELECT COUNT(DISTINCT toolchain) FROM results WHERE experiment = ? AND item = ?`,
			r.Experiment, r.Item).Scan(&toolchains); err != nil {
			return fmt.Errorf("count item toolchains: %w", err)
		}
		if toolchains < 2 {
			return nil
		}

		if _, err := tx.Exec(`DELETE FROM dispatch_log WHERE experiment = ? AND item = ? AND agent = ?`,
			r.Experiment, r.Item, agent); err != nil {
			return fmt.Errorf("clear dispatch log: %w", err)
		}
		return nil
	})
}

// compressLog gzip-compresses raw log bytes before they hit the results
// table; the coordinator stores logs compressed at rest (spec §6) and only
// inflates them on demand for a report-worker read.
func compressLog(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecompressLog inflates a log previously stored by StoreResult.
func DecompressLog(compressed []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("open gzip log: %w", err)
	}
	defer r.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("inflate log: %w", err)
	}
	return buf.Bytes(), nil
}

// Progress reports how many of an experiment's items have a result stored
// for both toolchains, against the total item count.
func (db *DB) Progress(experiment string) (completed, total int, err error) {
	exp, err := db.GetExperiment(experiment)
	if err != nil {
		return 0, 0, err
	}
	total = len(exp.Items)

	rows, err := db.SQL.Query(`
		SELECT item, COUNT(DISTINCT toolchain) FROM results WHERE experiment = ? GROUP BY item`,
		experiment)
	if err != nil {
		return 0, 0, fmt.Errorf("progress: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item string
		var toolchains int
		if err := rows.Scan(&item, &toolchains); err != nil {
			return 0, 0, fmt.Errorf("scan progress row: %w", err)
		}
		if toolchains >= 2 {
			completed++
		}
	}
	return completed, total, rows.Err()
}

// ResultsFor returns every stored result for an experiment, logs still
// gzip-compressed (see DecompressLog).
func (db *DB) ResultsFor(experiment string) ([]Result, error) {
	rows, err := db.SQL.Query(`
		SELECT experiment, item, toolchain, outcome, log, version_before, version_after, recorded_at
		FROM results WHERE experiment = ? ORDER BY item ASC, toolchain ASC`, experiment)
	if err != nil {
		return nil, fmt.Errorf("results for: %w", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var r Result
		var before, after sql.NullString
		if err := rows.Scan(&r.Experiment, &r.Item, &r.Toolchain, &r.Outcome, &r.LogCompressed,
			&before, &after, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.VersionBefore = before.String
		r.VersionAfter = after.String
		out = append(out, r)
	}
	return out, rows.Err()
}
