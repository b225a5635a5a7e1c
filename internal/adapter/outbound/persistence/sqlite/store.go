// Package sqlite persists alert sessions and the audit trail in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/outbound/persistence/sqlite/migration"
)

var journalModes = map[string]bool{
	"wal": true, "delete": true, "truncate": true,
	"persist": true, "memory": true, "off": true,
}

type Config struct {
	Path              string
	MaxOpenConns      int
	PragmaJournalMode string
	PragmaBusyTimeout int
}

// dsn builds the go-sqlite3 connection string. Foreign keys stay off: the
// audit trail outlives the sessions it mentions.
func (c Config) dsn() (string, error) {
	journal := strings.ToLower(c.PragmaJournalMode)
	if journal == "" {
		journal = "wal"
	}
	if !journalModes[journal] {
		return "", fmt.Errorf("invalid pragma journal mode: %q", c.PragmaJournalMode)
	}
	busy := c.PragmaBusyTimeout
	if busy <= 0 {
		busy = 5000
	}
	return fmt.Sprintf("file:%s?_journal_mode=%s&_busy_timeout=%d&_txlock=immediate", c.Path, journal, busy), nil
}

// Store owns the *sql.DB shared by the session and audit repositories.
type Store struct {
	DB *sql.DB
}

// NewStore opens the database at cfg.Path and brings its schema up to date.
func NewStore(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn, err := cfg.dsn()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 || cfg.Path == ":memory:" {
		// every connection to :memory: is a separate database
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)

	applied, err := migration.Run(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if len(applied) > 0 {
		logger.Info("sqlite schema migrated", "path", cfg.Path, "applied", applied)
	}
	return &Store{DB: db}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

func (s *Store) Close() error { return s.DB.Close() }
