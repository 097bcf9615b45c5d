package eval

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO

	aerrors "github.com/hybridsearch/codesearch/internal/errors"
)

// RunRecord is a single append-only evaluation run entry: system name,
// dataset name, metrics, timestamp, and the config the run used.
type RunRecord struct {
	SystemName  string         `json:"system_name"`
	DatasetName string         `json:"dataset_name"`
	Metrics     map[string]map[int]float64 `json:"metrics"`
	TimestampMS int64          `json:"timestamp_ms"`
	Config      map[string]any `json:"config"`
}

// RunLog is the append-only evaluation history store, implemented by a
// JSONL file backend and a SQLite table backend behind one interface.
type RunLog interface {
	Append(ctx context.Context, record RunRecord) error
	Close() error
}

// NoopRunLog discards every record — used when RunLogBackend is "none".
type NoopRunLog struct{}

func (NoopRunLog) Append(context.Context, RunRecord) error { return nil }
func (NoopRunLog) Close() error                            { return nil }

// NewRunLog constructs the configured RunLog backend.
func NewRunLog(backend, path string) (RunLog, error) {
	switch backend {
	case "", "none":
		return NoopRunLog{}, nil
	case "jsonl":
		return NewJSONLRunLog(path)
	case "sqlite":
		return NewSQLiteRunLog(path)
	default:
		return nil, fmt.Errorf("unknown run_log_backend %q", backend)
	}
}

// JSONLRunLog appends one JSON object per line to an on-disk file.
type JSONLRunLog struct {
	f *os.File
}

// NewJSONLRunLog opens (creating if needed) path for append.
func NewJSONLRunLog(path string) (*JSONLRunLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, aerrors.PersistenceError("create run log directory", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, aerrors.PersistenceError("open run log file", err)
	}
	return &JSONLRunLog{f: f}, nil
}

// Append serializes record as one JSON line and flushes it immediately —
// run records are infrequent (one per evaluation run), so buffering adds
// durability risk for no throughput benefit.
func (l *JSONLRunLog) Append(_ context.Context, record RunRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return aerrors.InternalError("marshal run record", err)
	}
	w := bufio.NewWriter(l.f)
	if _, err := w.Write(data); err != nil {
		return aerrors.PersistenceError("write run record", err)
	}
	if err := w.WriteByte('\n'); err != nil {
		return aerrors.PersistenceError("write run record", err)
	}
	if err := w.Flush(); err != nil {
		return aerrors.PersistenceError("flush run record", err)
	}
	return l.f.Sync()
}

// Close closes the underlying file.
func (l *JSONLRunLog) Close() error { return l.f.Close() }

// SQLiteRunLog appends run records to a SQLite table, for deployments that
// want queryable evaluation history instead of a flat file.
type SQLiteRunLog struct {
	db *sql.DB
}

// NewSQLiteRunLog opens (creating if needed) a SQLite database at path
// with the run_log table.
func NewSQLiteRunLog(path string) (*SQLiteRunLog, error) {
	if path == "" {
		path = ":memory:"
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, aerrors.PersistenceError("create run log directory", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, aerrors.PersistenceError("open run log database", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS run_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		system_name TEXT NOT NULL,
		dataset_name TEXT NOT NULL,
		metrics_json TEXT NOT NULL,
		timestamp_ms INTEGER NOT NULL,
		config_json TEXT NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, aerrors.PersistenceError("create run_log table", err)
	}

	return &SQLiteRunLog{db: db}, nil
}

// Append inserts a single row for record.
func (l *SQLiteRunLog) Append(ctx context.Context, record RunRecord) error {
	metricsJSON, err := json.Marshal(record.Metrics)
	if err != nil {
		return aerrors.InternalError("marshal run record metrics", err)
	}
	configJSON, err := json.Marshal(record.Config)
	if err != nil {
		return aerrors.InternalError("marshal run record config", err)
	}

	_, err = l.db.ExecContext(ctx,
		`INSERT INTO run_log (system_name, dataset_name, metrics_json, timestamp_ms, config_json)
		 VALUES (?, ?, ?, ?, ?)`,
		record.SystemName, record.DatasetName, string(metricsJSON), record.TimestampMS, string(configJSON))
	if err != nil {
		return aerrors.PersistenceError("insert run record", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (l *SQLiteRunLog) Close() error { return l.db.Close() }

var (
	_ RunLog = (*JSONLRunLog)(nil)
	_ RunLog = (*SQLiteRunLog)(nil)
	_ RunLog = NoopRunLog{}
)
