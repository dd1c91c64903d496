package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gateway-fm/txdispatch/pkg/types"
)

// unmarshalJSON unmarshals JSON and logs any errors without failing.
// This is used for non-critical JSON fields where we want to gracefully
// handle corruption without failing the entire query.
func unmarshalJSON(data string, v any, field string, runID string) {
	if err := json.Unmarshal([]byte(data), v); err != nil {
		slog.Warn("failed to unmarshal JSON field",
			"field", field,
			"runID", runID,
			"error", err.Error(),
			"dataLen", len(data))
	}
}

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

var _ Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL lets the status server read while a run appends tx logs.
	dsn := fmt.Sprintf("%s?_journal=WAL&_sync=NORMAL&_cache_size=10000&_foreign_keys=ON", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteStorage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'running',
		chain_id INTEGER NOT NULL DEFAULT 0,
		target INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		submitted INTEGER DEFAULT 0,
		accepted INTEGER DEFAULT 0,
		confirmed INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		timed_out INTEGER DEFAULT 0,
		tps REAL DEFAULT 0,
		avg_latency_ms REAL DEFAULT 0,
		duration_ms INTEGER DEFAULT 0,
		error_message TEXT,
		config TEXT,
		submit_latency TEXT,
		confirm_latency TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);

	CREATE TABLE IF NOT EXISTS tx_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		status TEXT NOT NULL,
		batch INTEGER NOT NULL,
		tx_hash TEXT NOT NULL,
		src_chain INTEGER NOT NULL,
		dst_chain INTEGER NOT NULL,
		from_address TEXT NOT NULL,
		to_address TEXT NOT NULL,
		amount TEXT NOT NULL,
		error_reason TEXT,
		at DATETIME NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_tx_logs_run ON tx_logs(run_id);
	CREATE INDEX IF NOT EXISTS idx_tx_logs_hash ON tx_logs(tx_hash);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new run record.
func (s *SQLiteStorage) CreateRun(ctx context.Context, run *types.RunDetail) error {
	configJSON, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, kind, state, chain_id, target, started_at, config)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Kind, run.State, run.ChainID, run.Target, run.StartedAt, string(configJSON))
	return err
}

// FinishRun writes the final state and statistics of a run.
func (s *SQLiteStorage) FinishRun(ctx context.Context, id string, fin Finish) error {
	var (
		counts         types.Counts
		tps, avgMs     float64
		durationMs     int64
		submitLatency  []byte
		confirmLatency []byte
	)
	if st := fin.Stats; st != nil {
		counts = st.Counts()
		tps = st.Throughput
		avgMs = float64(st.AvgLatency) / float64(time.Millisecond)
		durationMs = st.Elapsed.Milliseconds()
		submitLatency, _ = json.Marshal(st.SubmitLatency)
		confirmLatency, _ = json.Marshal(st.ConfirmLatency)
	}
	var errMsg string
	if fin.Err != nil {
		errMsg = fin.Err.Error()
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET
			state = ?,
			finished_at = ?,
			submitted = ?,
			accepted = ?,
			confirmed = ?,
			failed = ?,
			timed_out = ?,
			tps = ?,
			avg_latency_ms = ?,
			duration_ms = ?,
			error_message = ?,
			submit_latency = ?,
			confirm_latency = ?
		WHERE id = ?
	`, fin.State, time.Now().UTC(),
		counts.Submitted, counts.Accepted, counts.Confirmed, counts.Failed, counts.TimedOut,
		tps, avgMs, durationMs, nullString(errMsg),
		nullString(string(submitLatency)), nullString(string(confirmLatency)), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

const runColumns = `id, kind, state, chain_id, target, started_at, finished_at,
	submitted, accepted, confirmed, failed, timed_out, tps, avg_latency_ms, duration_ms,
	error_message, config, submit_latency, confirm_latency`

// GetRun retrieves a single run by ID. It returns ErrNotFound when the
// run does not exist.
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*types.RunDetail, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return run, err
}

// ListRuns returns a page of runs, newest first.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit, offset int) (*types.RunListResponse, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&total); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []types.RunSummary{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run.RunSummary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &types.RunListResponse{
		Runs:   runs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}, nil
}

// DeleteRun deletes a run and its transaction log.
func (s *SQLiteStorage) DeleteRun(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
	return err
}

// AppendTxLogs inserts records in one transaction.
func (s *SQLiteStorage) AppendTxLogs(ctx context.Context, runID string, records []types.TxRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tx_logs (run_id, status, batch, tx_hash, src_chain, dst_chain,
			from_address, to_address, amount, error_reason, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, err := stmt.ExecContext(ctx, runID, r.Status, r.Batch, r.TxHash, r.SrcChain, r.DstChain,
			r.From, r.To, r.Amount, nullString(r.Error), r.At)
		if err != nil {
			return err
		}
	}

	// Single commit at the end - this is where the fsync happens
	return tx.Commit()
}

// GetTxLogs retrieves a page of a run's transaction log in insertion order.
func (s *SQLiteStorage) GetTxLogs(ctx context.Context, runID string, limit, offset int) (*types.TxListResponse, error) {
	var total int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tx_logs WHERE run_id = ?", runID).Scan(&total)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, batch, tx_hash, src_chain, dst_chain, from_address, to_address,
			amount, error_reason, at
		FROM tx_logs
		WHERE run_id = ?
		ORDER BY id
		LIMIT ? OFFSET ?
	`, runID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []types.TxRecord{}
	for rows.Next() {
		var r types.TxRecord
		var errorReason sql.NullString
		err := rows.Scan(&r.Status, &r.Batch, &r.TxHash, &r.SrcChain, &r.DstChain,
			&r.From, &r.To, &r.Amount, &errorReason, &r.At)
		if err != nil {
			return nil, err
		}
		if errorReason.Valid {
			r.Error = errorReason.String
		}
		logs = append(logs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &types.TxListResponse{
		Transactions: logs,
		Total:        total,
		Limit:        limit,
		Offset:       offset,
	}, nil
}

// Helper functions

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*types.RunDetail, error) {
	var run types.RunDetail
	var finishedAt sql.NullTime
	var errorMsg, configJSON, submitJSON, confirmJSON sql.NullString

	err := row.Scan(&run.ID, &run.Kind, &run.State, &run.ChainID, &run.Target, &run.StartedAt, &finishedAt,
		&run.Counts.Submitted, &run.Counts.Accepted, &run.Counts.Confirmed, &run.Counts.Failed, &run.Counts.TimedOut,
		&run.TPS, &run.AvgLatencyMs, &run.DurationMs,
		&errorMsg, &configJSON, &submitJSON, &confirmJSON)
	if err != nil {
		return nil, err
	}

	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	if errorMsg.Valid {
		run.Error = errorMsg.String
	}
	if configJSON.Valid && configJSON.String != "" && configJSON.String != "null" {
		unmarshalJSON(configJSON.String, &run.Config, "config", run.ID)
	}
	if submitJSON.Valid && submitJSON.String != "null" {
		run.SubmitLatency = &types.LatencyStats{}
		unmarshalJSON(submitJSON.String, run.SubmitLatency, "submit_latency", run.ID)
	}
	if confirmJSON.Valid && confirmJSON.String != "null" {
		run.ConfirmLatency = &types.LatencyStats{}
		unmarshalJSON(confirmJSON.String, run.ConfirmLatency, "confirm_latency", run.ID)
	}

	return &run, nil
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
