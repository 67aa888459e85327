// Package storage persists HTLC fund-time details using SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultFileName is the database file created inside DataDir.
const DefaultFileName = "swapkit.db"

// Storage is the details store.
type Storage struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Config holds storage configuration.
type Config struct {
	DataDir string `yaml:"data_dir"`
}

// New opens (or creates) the database under cfg.DataDir.
func New(cfg *Config) (*Storage, error) {
	dataDir := expandPath(cfg.DataDir)

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DefaultFileName)

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Storage{
		db:     db,
		dbPath: dbPath,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Storage) DB() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *Storage) Path() string {
	return s.dbPath
}

func (s *Storage) initSchema() error {
	schema := `
	-- One row per HTLC, written once at fund time
	CREATE TABLE IF NOT EXISTS htlc_details (
		payment_hash TEXT PRIMARY KEY,        -- hex, 32 bytes
		network TEXT NOT NULL,
		subnet TEXT NOT NULL,
		model TEXT NOT NULL,                  -- utxo, evm, decred

		refund_hash TEXT,                     -- NULL without admin refund
		address TEXT NOT NULL,                -- fund address or contract address
		script TEXT,                          -- redeem script hex (utxo, decred)
		scheme TEXT,                          -- output scheme (utxo)
		order_id TEXT,                        -- order UUID (evm)

		-- Timelock
		timelock_kind TEXT,
		timelock_value INTEGER,
		timelock_unit TEXT,

		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_htlc_details_chain ON htlc_details(network, subnet);
	CREATE INDEX IF NOT EXISTS idx_htlc_details_address ON htlc_details(address);

	-- Terminal spends observed or submitted by the caller
	CREATE TABLE IF NOT EXISTS htlc_spends (
		payment_hash TEXT PRIMARY KEY,
		path TEXT NOT NULL,                   -- claim, refund, admin_refund
		txid TEXT NOT NULL,
		secret TEXT,                          -- revealed preimage, if any
		spent_at INTEGER NOT NULL,

		FOREIGN KEY (payment_hash) REFERENCES htlc_details(payment_hash)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}

func timeToUnixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
