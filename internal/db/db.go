// Package db is the SQL record store the live map can read entities from.
// SQLite (modernc) is the default backend, PostgreSQL is reached through
// the pgx stdlib driver.
package db

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// schemaSQL is the single source of truth for the database schema.
//
//go:embed schema.sql
var schemaSQL string

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// DB wraps a database connection with write serialization
type DB struct {
	conn    *sqlx.DB
	log     *logrus.Entry
	writeMu sync.Mutex // SQLite only supports one writer at a time
}

// Open picks the backend from the DSN: postgres:// and postgresql:// URLs
// use pgx, anything else is a SQLite file path.
func Open(dsn string, log *logrus.Entry) (*DB, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return ConnectPostgres(dsn, log)
	}
	return Connect(dsn, log)
}

// Connect opens a SQLite database with WAL mode enabled
func Connect(dbPath string, log *logrus.Entry) (*DB, error) {
	dsn := dbPath + "?_journal=WAL&_fk=1&_busy_timeout=5000"
	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = 10000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			log.WithError(err).Warnf("failed to set %s", pragma)
		}
	}

	log.WithField("path", dbPath).Info("connected to SQLite database")
	return &DB{conn: conn, log: log}, nil
}

// ConnectPostgres opens a PostgreSQL database through pgx.
func ConnectPostgres(databaseURL string, log *logrus.Entry) (*DB, error) {
	conn, err := sqlx.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("connected to PostgreSQL database")
	return &DB{conn: conn, log: log}, nil
}

// New wraps an existing connection, used with sqlmock in tests.
func New(conn *sqlx.DB, log *logrus.Entry) *DB {
	return &DB{conn: conn, log: log}
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// EnsureSchema creates tables if they don't exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	if _, err := db.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	db.log.Debug("database schema ensured")
	return nil
}

// SchemaSQL returns the embedded schema.
func SchemaSQL() string {
	return schemaSQL
}
