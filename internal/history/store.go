// Package history persists a record of every transfer batch in sqlite.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Ning0612/adbexplorer/internal/domain"
	"github.com/Ning0612/adbexplorer/internal/transfer"
)

// Status values stored for a batch
const (
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusPartial   = "partial"
	StatusCancelled = "cancelled"
)

// Store handles transfer history persistence
type Store struct {
	db *sql.DB
}

// Record is one transfer batch
type Record struct {
	ID        int64
	Serial    string
	Direction string // "pull" or "push"
	Move      bool
	DryRun    bool
	Sources   []string
	Dest      string
	StartTime time.Time
	EndTime   time.Time
	Status    string
	Succeeded int
	Failed    int
	Bytes     int64
	Error     string
}

// Open opens or creates the history database at path
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// one connection avoids "database is locked" between concurrent shells
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode and busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transfers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		serial TEXT NOT NULL,
		direction TEXT NOT NULL,
		move INTEGER NOT NULL DEFAULT 0,
		dry_run INTEGER NOT NULL DEFAULT 0,
		sources TEXT NOT NULL,
		dest TEXT NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NOT NULL,
		status TEXT NOT NULL,
		succeeded INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		bytes INTEGER DEFAULT 0,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_transfers_serial_time ON transfers(serial, start_time DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save records a batch
func (s *Store) Save(r Record) error {
	switch r.Status {
	case StatusSuccess, StatusFailed, StatusPartial, StatusCancelled:
	default:
		return fmt.Errorf("invalid status: %s", r.Status)
	}
	if r.Direction != transfer.Pull.String() && r.Direction != transfer.Push.String() {
		return fmt.Errorf("invalid direction: %s", r.Direction)
	}

	query := `
		INSERT INTO transfers (serial, direction, move, dry_run, sources, dest, start_time, end_time, status, succeeded, failed, bytes, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		r.Serial, r.Direction, r.Move, r.DryRun,
		strings.Join(r.Sources, "\n"), r.Dest,
		r.StartTime, r.EndTime, r.Status,
		r.Succeeded, r.Failed, r.Bytes, r.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save transfer record: %w", err)
	}
	return nil
}

// Recent returns the newest records across all devices
func (s *Store) Recent(limit int) ([]Record, error) {
	return s.query("", limit)
}

// ForDevice returns the newest records for one device serial
func (s *Store) ForDevice(serial string, limit int) ([]Record, error) {
	if serial == "" {
		return nil, fmt.Errorf("serial cannot be empty")
	}
	return s.query(serial, limit)
}

func (s *Store) query(serial string, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	query := `
		SELECT id, serial, direction, move, dry_run, sources, dest, start_time, end_time, status, succeeded, failed, bytes, error
		FROM transfers
	`
	args := []any{}
	if serial != "" {
		query += " WHERE serial = ?"
		args = append(args, serial)
	}
	query += " ORDER BY start_time DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r       Record
			sources string
			errText sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Serial, &r.Direction, &r.Move, &r.DryRun, &sources, &r.Dest,
			&r.StartTime, &r.EndTime, &r.Status, &r.Succeeded, &r.Failed, &r.Bytes, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if sources != "" {
			r.Sources = strings.Split(sources, "\n")
		}
		r.Error = errText.String
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// FromSummary builds a record from a finished batch. batchErr is the error
// the engine returned, if any.
func FromSummary(serial string, sources []string, dest string, start time.Time, sum transfer.Summary, batchErr error) Record {
	r := Record{
		Serial:    serial,
		Direction: sum.Direction.String(),
		Move:      sum.Move,
		DryRun:    sum.DryRun,
		Sources:   sources,
		Dest:      dest,
		StartTime: start,
		EndTime:   start.Add(sum.Elapsed),
		Succeeded: sum.Succeeded,
		Failed:    sum.Failed,
		Bytes:     sum.Bytes,
	}

	switch {
	case batchErr != nil && sum.Succeeded == 0:
		r.Status = StatusFailed
		if errors.Is(batchErr, context.Canceled) || errors.Is(batchErr, domain.ErrNotConfirmed) {
			r.Status = StatusCancelled
		}
	case sum.Failed == 0:
		r.Status = StatusSuccess
	case sum.Succeeded == 0 && sum.Cancelled == sum.Failed:
		r.Status = StatusCancelled
	case sum.Succeeded == 0:
		r.Status = StatusFailed
	default:
		r.Status = StatusPartial
	}

	if batchErr != nil {
		r.Error = batchErr.Error()
	} else {
		for _, it := range sum.Items {
			if it.Err != nil {
				r.Error = it.Err.Error()
				break
			}
		}
	}
	return r
}
