package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/bgvfd/radiod/pkg/logging"
)

// TuneEvent is one recorded retune.
type TuneEvent struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	FrequencyHz int64     `json:"frequency_hz"`
	Mode        string    `json:"mode"`
	Preset      string    `json:"preset,omitempty"`
}

// FrequencyMHz returns the event frequency in MHz.
func (e TuneEvent) FrequencyMHz() float64 {
	return float64(e.FrequencyHz) / 1e6
}

// TuneStore handles persistent storage of tuning history
type TuneStore struct {
	db        *sql.DB
	dbPath    string
	maxEvents int
}

// NewTuneStore creates a new tuning history store with SQLite backend
func NewTuneStore(dbPath string, maxEvents int) (*TuneStore, error) {
	store := &TuneStore{
		dbPath:    dbPath,
		maxEvents: maxEvents,
	}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize tune store: %w", err)
	}

	return store, nil
}

// initialize sets up the database connection and creates tables
func (ts *TuneStore) initialize() error {
	if ts.dbPath == "" {
		ts.dbPath = "./radiod.db"
	}

	if err := os.MkdirAll(filepath.Dir(ts.dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	connectionString := ts.dbPath + "?_busy_timeout=10000&_journal_mode=WAL&_foreign_keys=on"

	db, err := sql.Open("sqlite3", connectionString)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	ts.db = db

	if err := ts.createTables(); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	if err := ts.createIndexes(); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	logging.Infof("storage", "tune store initialized: %s (max %d events)", ts.dbPath, ts.maxEvents)
	return nil
}

// createTables creates the database schema
func (ts *TuneStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tune_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		frequency_hz INTEGER NOT NULL,
		mode TEXT NOT NULL DEFAULT 'nfm',
		preset TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS tune_stats (
		id INTEGER PRIMARY KEY,
		total_tunes INTEGER NOT NULL DEFAULT 0,
		last_cleanup DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- Initialize stats if empty
	INSERT OR IGNORE INTO tune_stats (id, total_tunes) VALUES (1, 0);
	`

	_, err := ts.db.Exec(schema)
	return err
}

// createIndexes creates database indexes for performance
func (ts *TuneStore) createIndexes() error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_tune_events_timestamp ON tune_events(timestamp DESC)",
		"CREATE INDEX IF NOT EXISTS idx_tune_events_frequency ON tune_events(frequency_hz)",
		"CREATE INDEX IF NOT EXISTS idx_tune_events_preset ON tune_events(preset)",
	}

	for _, indexSQL := range indexes {
		if _, err := ts.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// RecordTune stores one retune event. Satisfies the controller's
// history recorder interface.
func (ts *TuneStore) RecordTune(freqHz int64, mode, preset string) error {
	tx, err := ts.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO tune_events (timestamp, frequency_hz, mode, preset)
		VALUES (?, ?, ?, ?)
	`
	if _, err := tx.Exec(query, time.Now().UTC(), freqHz, mode, preset); err != nil {
		return fmt.Errorf("failed to insert tune event: %w", err)
	}

	statsQuery := `
		UPDATE tune_stats SET
			total_tunes = total_tunes + 1,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
	`
	if _, err := tx.Exec(statsQuery); err != nil {
		return fmt.Errorf("failed to update stats: %w", err)
	}

	if err := ts.cleanupOldEvents(tx); err != nil {
		logging.Warnf("storage", "failed to cleanup old tune events: %v", err)
	}

	return tx.Commit()
}

// CleanupOldEvents removes events beyond the maximum limit (exported
// for manual cleanup)
func (ts *TuneStore) CleanupOldEvents() error {
	tx, err := ts.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := ts.cleanupOldEvents(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// cleanupOldEvents removes events beyond the maximum limit
func (ts *TuneStore) cleanupOldEvents(tx *sql.Tx) error {
	if ts.maxEvents <= 0 {
		return nil // No limit
	}

	var count int
	if err := tx.QueryRow("SELECT COUNT(*) FROM tune_events").Scan(&count); err != nil {
		return err
	}
	if count <= ts.maxEvents {
		return nil
	}

	deleteCount := count - ts.maxEvents
	query := `
		DELETE FROM tune_events
		WHERE id IN (
			SELECT id FROM tune_events
			ORDER BY timestamp ASC
			LIMIT ?
		)
	`
	if _, err := tx.Exec(query, deleteCount); err != nil {
		return err
	}

	_, err := tx.Exec("UPDATE tune_stats SET last_cleanup = CURRENT_TIMESTAMP WHERE id = 1")
	return err
}

// Close closes the database connection
func (ts *TuneStore) Close() error {
	if ts.db != nil {
		return ts.db.Close()
	}
	return nil
}
