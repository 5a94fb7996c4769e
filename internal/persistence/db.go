// Package persistence provides SQLite storage for simulation runs: run
// metadata, report rows and anomalies.
package persistence

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/reson/internal/engine"
	"github.com/talgya/reson/internal/report"
)

// DB wraps a SQLite connection for run storage.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		definitions TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		report_every INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		ticks INTEGER NOT NULL DEFAULT 0,
		invocations INTEGER NOT NULL DEFAULT 0,
		anomalies INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS samples (
		run_id TEXT NOT NULL REFERENCES runs(id),
		timestamp INTEGER NOT NULL,
		resource TEXT NOT NULL,
		min REAL NOT NULL,
		avg REAL NOT NULL,
		max REAL NOT NULL,
		current REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pool_samples (
		run_id TEXT NOT NULL REFERENCES runs(id),
		timestamp INTEGER NOT NULL,
		pool TEXT NOT NULL,
		utilization REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS anomalies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		time INTEGER NOT NULL,
		kind TEXT NOT NULL,
		subject TEXT NOT NULL,
		value REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_samples_run ON samples(run_id, resource, timestamp);
	CREATE INDEX IF NOT EXISTS idx_pool_samples_run ON pool_samples(run_id, pool, timestamp);
	CREATE INDEX IF NOT EXISTS idx_anomalies_run ON anomalies(run_id, time);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Run is one recorded simulation.
type Run struct {
	ID          string  `db:"id" json:"id"`
	Definitions string  `db:"definitions" json:"definitions"`
	StartTime   int64   `db:"start_time" json:"start_time"`
	ReportEvery uint64  `db:"report_every" json:"report_every"`
	StartedAt   string  `db:"started_at" json:"started_at"`
	FinishedAt  *string `db:"finished_at" json:"finished_at,omitempty"`
	Ticks       uint64  `db:"ticks" json:"ticks"`
	Invocations uint64  `db:"invocations" json:"invocations"`
	Anomalies   uint64  `db:"anomalies" json:"anomalies"`
}

// Sample is one resource's statistics for one reporting interval.
type Sample struct {
	Timestamp int64   `db:"timestamp" json:"timestamp"`
	Resource  string  `db:"resource" json:"resource"`
	Min       float64 `db:"min" json:"min"`
	Avg       float64 `db:"avg" json:"avg"`
	Max       float64 `db:"max" json:"max"`
	Current   float64 `db:"current" json:"current"`
}

// StartRun records a new run and returns its ID (UUIDv7, so IDs sort by start).
func (db *DB) StartRun(definitions string, start time.Time, reportEvery uint64) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("run id: %w", err)
	}
	_, err = db.conn.Exec(
		`INSERT INTO runs (id, definitions, start_time, report_every, started_at) VALUES (?, ?, ?, ?, ?)`,
		id.String(), definitions, start.Unix(), reportEvery, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id.String(), nil
}

// FinishRun stores the final counters of a run.
func (db *DB) FinishRun(runID string, stats engine.SimStats) error {
	res, err := db.conn.Exec(
		`UPDATE runs SET finished_at = ?, ticks = ?, invocations = ?, anomalies = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), stats.Ticks, stats.Invocations, stats.Anomalies, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: unknown run %s", runID)
	}
	return nil
}

// SaveAnomalies appends anomalies to a run.
func (db *DB) SaveAnomalies(runID string, anomalies []engine.Anomaly) error {
	if len(anomalies) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, a := range anomalies {
		_, err := tx.Exec(
			"INSERT INTO anomalies (run_id, time, kind, subject, value) VALUES (?, ?, ?, ?, ?)",
			runID, a.Time, string(a.Kind), a.Subject, a.Value,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}

// Runs returns the most recent runs first.
func (db *DB) Runs(limit int) ([]Run, error) {
	var runs []Run
	err := db.conn.Select(&runs,
		`SELECT id, definitions, start_time, report_every, started_at, finished_at, ticks, invocations, anomalies
		 FROM runs ORDER BY id DESC LIMIT ?`,
		limit,
	)
	return runs, err
}

// Run looks up one run. A missing run returns sql.ErrNoRows.
func (db *DB) Run(id string) (Run, error) {
	var run Run
	err := db.conn.Get(&run,
		`SELECT id, definitions, start_time, report_every, started_at, finished_at, ticks, invocations, anomalies
		 FROM runs WHERE id = ?`,
		id,
	)
	return run, err
}

// Resources lists the resource names a run reported, in column order.
func (db *DB) Resources(runID string) ([]string, error) {
	var names []string
	err := db.conn.Select(&names,
		`SELECT resource FROM samples WHERE run_id = ? GROUP BY resource ORDER BY MIN(rowid)`,
		runID,
	)
	return names, err
}

// Pools lists the pool names a run reported, in column order.
func (db *DB) Pools(runID string) ([]string, error) {
	var names []string
	err := db.conn.Select(&names,
		`SELECT pool FROM pool_samples WHERE run_id = ? GROUP BY pool ORDER BY MIN(rowid)`,
		runID,
	)
	return names, err
}

// Samples returns a resource's rows for a run in time order.
func (db *DB) Samples(runID, resource string) ([]Sample, error) {
	var samples []Sample
	err := db.conn.Select(&samples,
		`SELECT timestamp, resource, min, avg, max, current FROM samples
		 WHERE run_id = ? AND resource = ? ORDER BY timestamp`,
		runID, resource,
	)
	return samples, err
}

// PoolUtilization returns a pool's per-row utilization for a run in time order.
func (db *DB) PoolUtilization(runID, pool string) ([]float64, error) {
	var out []float64
	err := db.conn.Select(&out,
		`SELECT utilization FROM pool_samples WHERE run_id = ? AND pool = ? ORDER BY timestamp`,
		runID, pool,
	)
	return out, err
}

// Anomalies returns a run's anomalies in time order.
func (db *DB) Anomalies(runID string) ([]engine.Anomaly, error) {
	var out []engine.Anomaly
	err := db.conn.Select(&out,
		`SELECT time, kind, subject, value FROM anomalies WHERE run_id = ? ORDER BY id`,
		runID,
	)
	return out, err
}

// Sink adapts the database to report.Sink for one run.
func (db *DB) Sink(runID string) *RunSink {
	return &RunSink{db: db, runID: runID}
}

// RunSink writes report rows into the samples tables. Closing it leaves the
// database open.
type RunSink struct {
	db     *DB
	runID  string
	header report.Header
}

func (s *RunSink) WriteHeader(h report.Header) error {
	s.header = h
	slog.Debug("sqlite sink ready", "run", s.runID, "resources", len(h.Resources), "pools", len(h.Pools))
	return nil
}

// WriteRow inserts one row in a single transaction.
func (s *RunSink) WriteRow(r report.Row) error {
	if len(r.Resources) != len(s.header.Resources) || len(r.Pools) != len(s.header.Pools) {
		return fmt.Errorf("row %d does not match header", r.Timestamp)
	}

	tx, err := s.db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO samples
		(run_id, timestamp, resource, min, avg, max, current)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, st := range r.Resources {
		_, err := stmt.Exec(s.runID, r.Timestamp, s.header.Resources[i], st.Min, st.Avg, st.Max, st.Current)
		if err != nil {
			return fmt.Errorf("insert sample %s@%d: %w", s.header.Resources[i], r.Timestamp, err)
		}
	}
	for i, u := range r.Pools {
		_, err := tx.Exec(
			"INSERT INTO pool_samples (run_id, timestamp, pool, utilization) VALUES (?, ?, ?, ?)",
			s.runID, r.Timestamp, s.header.Pools[i], u,
		)
		if err != nil {
			return fmt.Errorf("insert pool sample %s@%d: %w", s.header.Pools[i], r.Timestamp, err)
		}
	}

	return tx.Commit()
}

func (s *RunSink) Close() error {
	return nil
}
