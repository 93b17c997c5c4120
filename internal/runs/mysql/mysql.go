// Package mysql stores runs in a MySQL table.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/go-sql-driver/mysql"

	"github.com/mwiater/agenteval/internal/logging"
	"github.com/mwiater/agenteval/internal/runs"
)

// TableName is the base table name; a configured prefix is prepended.
const TableName = "agenteval_runs"

const sqlCreateRunsTable = `CREATE TABLE IF NOT EXISTS %s (
  id VARCHAR(64) NOT NULL,
  name VARCHAR(255) NOT NULL,
  environment VARCHAR(255) NOT NULL,
  agent VARCHAR(255) NOT NULL,
  dataset VARCHAR(255) NOT NULL,
  suite VARCHAR(255) NOT NULL,
  status VARCHAR(32) NOT NULL,
  created_at DATETIME(6) NOT NULL,
  duration VARCHAR(32) NOT NULL,
  pass_rate DOUBLE NOT NULL,
  total_records INT NOT NULL,
  execution_failures INT NOT NULL,
  pending_records INT NOT NULL,
  error TEXT NULL,
  payload JSON NOT NULL,
  updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
  PRIMARY KEY (id),
  KEY idx_runs_created (created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

var validPrefix = regexp.MustCompile(`^[A-Za-z0-9_]*$`)

var _ runs.Store = (*Store)(nil)

// Store persists runs in MySQL. The full run is kept as a JSON payload next
// to the scalar columns used for listing.
type Store struct {
	db    *sql.DB
	table string
}

// Open connects using dsn, ensures the schema and returns a store.
func Open(ctx context.Context, dsn, tablePrefix string) (*Store, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	store, err := New(ctx, db, tablePrefix)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an existing database handle and ensures the runs table exists.
func New(ctx context.Context, db *sql.DB, tablePrefix string) (*Store, error) {
	if !validPrefix.MatchString(tablePrefix) {
		return nil, fmt.Errorf("invalid table prefix %q", tablePrefix)
	}
	s := &Store{db: db, table: tablePrefix + TableName}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(sqlCreateRunsTable, s.table)); err != nil {
		return nil, fmt.Errorf("init runs table %s: %w", s.table, err)
	}
	return s, nil
}

// Save upserts run by ID.
func (s *Store) Save(ctx context.Context, run *runs.Run) error {
	if run == nil || run.ID == "" {
		return errors.New("run id is empty")
	}
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", run.ID, err)
	}
	var runErr sql.NullString
	if run.Error != "" {
		runErr = sql.NullString{String: run.Error, Valid: true}
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (id, name, environment, agent, dataset, suite, status, created_at, duration, pass_rate, total_records, execution_failures, pending_records, error, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE
		   name = VALUES(name),
		   status = VALUES(status),
		   duration = VALUES(duration),
		   pass_rate = VALUES(pass_rate),
		   total_records = VALUES(total_records),
		   execution_failures = VALUES(execution_failures),
		   pending_records = VALUES(pending_records),
		   error = VALUES(error),
		   payload = VALUES(payload)`,
		s.table,
	)
	logging.LogEvent("[STORE] Saving run %s (%s) to mysql table %s", run.ID, run.Status, s.table)
	if _, err := s.db.ExecContext(ctx, query,
		run.ID, run.Name, run.Environment, run.Agent, run.Dataset, run.Suite, string(run.Status),
		run.CreatedAt, run.Duration, run.PassRate, run.TotalRecords, run.ExecutionFailures,
		run.PendingRecords, runErr, payload,
	); err != nil {
		return fmt.Errorf("store run %s: %w", run.ID, err)
	}
	return nil
}

// Get loads the run with id.
func (s *Store) Get(ctx context.Context, id string) (*runs.Run, error) {
	query := fmt.Sprintf("SELECT payload FROM %s WHERE id = ?", s.table)
	var payload []byte
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", id, runs.ErrRunNotFound)
		}
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}
	return decodeRun(id, payload)
}

// List returns every run, newest first.
func (s *Store) List(ctx context.Context) ([]*runs.Run, error) {
	query := fmt.Sprintf("SELECT id, payload FROM %s ORDER BY created_at DESC", s.table)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := []*runs.Run{}
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run, err := decodeRun(id, payload)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func decodeRun(id string, payload []byte) (*runs.Run, error) {
	var run runs.Run
	if err := json.Unmarshal(payload, &run); err != nil {
		return nil, fmt.Errorf("unmarshal run %s: %w", id, err)
	}
	return &run, nil
}
