// Package db opens and migrates the daemon's two SQLite databases:
// sessions.db and process_registry.db.
package db

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBusyTimeout = 5 * time.Second

	// defaultReaderConns is the number of concurrent read connections. WAL
	// mode allows many readers alongside a single writer.
	defaultReaderConns = 4
)

// DB bundles a single-connection writer and a pooled reader over the same
// SQLite file, matching the registry's and supervisor's access pattern:
// one goroutine serializes writes, many goroutines read concurrently.
type DB struct {
	Writer *sqlx.DB
	Reader *sqlx.DB
	path   string
}

// Open opens (creating if necessary) a SQLite database at path configured
// with foreign keys on and WAL journaling, and returns a writer/reader
// pair over it.
func Open(path string) (*DB, error) {
	normalized := normalizePath(path)
	if err := ensureDir(normalized); err != nil {
		return nil, fmt.Errorf("prepare database path: %w", err)
	}
	if err := ensureFile(normalized); err != nil {
		return nil, fmt.Errorf("create database file: %w", err)
	}

	writer, err := sqlx.Open("sqlite3", writerDSN(normalized))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)

	reader, err := sqlx.Open("sqlite3", readerDSN(normalized))
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open read-only database: %w", err)
	}
	reader.SetMaxOpenConns(defaultReaderConns)
	reader.SetMaxIdleConns(defaultReaderConns)

	return &DB{Writer: writer, Reader: reader, path: normalized}, nil
}

// Close closes both connections.
func (d *DB) Close() error {
	readerErr := d.Reader.Close()
	writerErr := d.Writer.Close()
	if writerErr != nil {
		return writerErr
	}
	return readerErr
}

// Path returns the absolute path of the backing file.
func (d *DB) Path() string {
	return d.path
}

func writerDSN(path string) string {
	return fmt.Sprintf(
		"file:%s?_foreign_keys=on&_mode=rwc&_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL&_cache=shared",
		path, int(defaultBusyTimeout/time.Millisecond),
	)
}

func readerDSN(path string) string {
	return fmt.Sprintf(
		"file:%s?_foreign_keys=on&mode=ro&_busy_timeout=%d&_cache=shared",
		path, int(defaultBusyTimeout/time.Millisecond),
	)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}

func ensureFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	return f.Close()
}

func normalizePath(path string) string {
	if path == "" {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
