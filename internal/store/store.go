// Package store persists published readings to a local sqlite database,
// one row per (contract, reading, refresh cycle).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mwiesel/vodamon/internal/contract"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: creating DB dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening DB: %w", err)
	}

	s := New(db)
	if err := s.Init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS readings (
			contract_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value REAL NOT NULL,
			unit TEXT NOT NULL,
			supported INTEGER NOT NULL,
			plan_names TEXT,
			last_update TEXT,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_readings_contract_recorded
			ON readings(contract_id, recorded_at);`,
		`CREATE INDEX IF NOT EXISTS idx_readings_key ON readings(key);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: init schema: %w", err)
		}
	}
	return nil
}

// Record writes one refresh cycle's readings for a contract.
func (s *Store) Record(ctx context.Context, contractID string, readings map[contract.Key]contract.Reading) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO readings
		(contract_id, key, value, unit, supported, plan_names, last_update, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare: %w", err)
	}
	defer stmt.Close()

	recordedAt := s.now().UTC().Format(time.RFC3339)
	for _, key := range contract.Keys {
		r, ok := readings[key]
		if !ok {
			continue
		}
		supported := 0
		if r.Supported {
			supported = 1
		}
		if _, err := stmt.ExecContext(ctx,
			contractID, string(key), r.Value, r.Unit, supported,
			r.PlanNames, r.LastUpdate.UTC().Format(time.RFC3339), recordedAt,
		); err != nil {
			return fmt.Errorf("store: insert %s: %w", key, err)
		}
	}

	return tx.Commit()
}

// StoredReading is one persisted row.
type StoredReading struct {
	ContractID string
	Key        contract.Key
	Value      float64
	Unit       string
	Supported  bool
	PlanNames  string
	RecordedAt time.Time
}

// Latest returns the most recent cycle's readings for a contract.
func (s *Store) Latest(ctx context.Context, contractID string) ([]StoredReading, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value, unit, supported, plan_names, recorded_at
		FROM readings
		WHERE contract_id = ?
		  AND recorded_at = (SELECT MAX(recorded_at) FROM readings WHERE contract_id = ?)
		ORDER BY key`, contractID, contractID)
	if err != nil {
		return nil, fmt.Errorf("store: query latest: %w", err)
	}
	defer rows.Close()

	var out []StoredReading
	for rows.Next() {
		var (
			r         StoredReading
			key       string
			supported int
			recorded  string
		)
		if err := rows.Scan(&key, &r.Value, &r.Unit, &supported, &r.PlanNames, &recorded); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		r.ContractID = contractID
		r.Key = contract.Key(key)
		r.Supported = supported != 0
		r.RecordedAt, _ = time.Parse(time.RFC3339, recorded)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune deletes readings recorded before the cutoff and reports how many
// rows went away.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().UTC().Add(-olderThan).Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `DELETE FROM readings WHERE recorded_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: prune: %w", err)
	}
	return res.RowsAffected()
}
