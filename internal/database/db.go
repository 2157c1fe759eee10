package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"seatwarden/internal/domain"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

const memoryPath = ":memory:"

// DB wraps sql.DB for the inventory engine.
type DB struct {
	*sql.DB
	path   string
	logger zerolog.Logger
}

var _ domain.Store = (*DB)(nil)

// NewDB opens the SQLite database at path and runs migrations.
// Writers take the database lock at BEGIN so a transaction never has to
// upgrade a read lock; readers proceed concurrently under WAL.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("database path is required")
	}
	inMemory := path == memoryPath
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate&_foreign_keys=on", path)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if inMemory {
		// every connection to :memory: is a separate database
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(8)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "database").Logger()
	}
	l.Info().Str("path", path).Msg("database ready")

	return &DB{DB: sqlDB, path: path, logger: l}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS departures (
			id TEXT PRIMARY KEY,
			resource_id TEXT NOT NULL,
			starts_at INTEGER NOT NULL,
			ends_at INTEGER NOT NULL,
			total_capacity INTEGER NOT NULL CHECK (total_capacity >= 0),
			status TEXT NOT NULL,
			version INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS holds (
			id TEXT PRIMARY KEY,
			departure_id TEXT NOT NULL,
			seat_count INTEGER NOT NULL CHECK (seat_count > 0),
			hold_type TEXT NOT NULL,
			status TEXT NOT NULL,
			expires_at INTEGER NOT NULL,
			created_by TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			FOREIGN KEY (departure_id) REFERENCES departures(id)
		)`,

		`CREATE TABLE IF NOT EXISTS blocks (
			id TEXT PRIMARY KEY,
			departure_id TEXT NOT NULL,
			seat_count INTEGER NOT NULL CHECK (seat_count > 0),
			block_type TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			FOREIGN KEY (departure_id) REFERENCES departures(id)
		)`,

		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			departure_id TEXT NOT NULL,
			hold_id TEXT,
			seat_count INTEGER NOT NULL CHECK (seat_count > 0),
			status TEXT NOT NULL,
			customer_ref TEXT NOT NULL DEFAULT '',
			customer_name TEXT NOT NULL DEFAULT '',
			customer_contact TEXT NOT NULL DEFAULT '',
			customer_channel TEXT NOT NULL DEFAULT '',
			cancel_reason TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			confirmed_at INTEGER,
			cancelled_at INTEGER,
			FOREIGN KEY (departure_id) REFERENCES departures(id),
			FOREIGN KEY (hold_id) REFERENCES holds(id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_departures_starts ON departures(starts_at)`,
		`CREATE INDEX IF NOT EXISTS idx_departures_resource ON departures(resource_id, starts_at)`,
		`CREATE INDEX IF NOT EXISTS idx_holds_departure_status ON holds(departure_id, status, expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_holds_status_expiry ON holds(status, expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_blocks_departure ON blocks(departure_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_departure_status ON bookings(departure_id, status)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_hold ON bookings(hold_id) WHERE hold_id IS NOT NULL`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

type txKey struct{}

// WithTx runs fn inside a transaction carried by the context. Nested calls reuse
// the outer transaction.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", mapDriverError(err))
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			db.logger.Error().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", mapDriverError(err))
	}
	return nil
}

func txFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (db *DB) conn(ctx context.Context) executor {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return db.DB
}

// mapDriverError turns lock contention into the retryable domain error.
func mapDriverError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked {
			return fmt.Errorf("%w: %v", domain.ErrConcurrentModification, err)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullableNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toNanos(*t), Valid: true}
}

func fromNullableNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func trimSQL(q string) string {
	q = strings.Join(strings.Fields(q), " ")
	if len(q) > 60 {
		return q[:60] + "..."
	}
	return q
}

type rowScanner interface {
	Scan(dest ...any) error
}
