package database

import (
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Options tunes the SQLite connection. Zero values fall back to defaults.
type Options struct {
	MaxOpenConns int
	BusyTimeout  time.Duration
	CacheSize    int
	MmapSize     int64
}

type DB struct {
	*sql.DB
	path string
}

func Open(path string, opts Options) (*DB, error) {
	inMemory := path == ":memory:"
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(path, opts, inMemory))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every :memory: connection is its own database
	if inMemory {
		db.SetMaxOpenConns(1)
	} else if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &DB{DB: db, path: path}, nil
}

func dsn(path string, opts Options, inMemory bool) string {
	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}

	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout("+strconv.FormatInt(busy.Milliseconds(), 10)+")")
	if !inMemory {
		q.Add("_pragma", "journal_mode(WAL)")
		q.Add("_pragma", "synchronous(NORMAL)")
	}
	if opts.CacheSize != 0 {
		q.Add("_pragma", "cache_size("+strconv.Itoa(opts.CacheSize)+")")
	}
	if opts.MmapSize > 0 {
		q.Add("_pragma", "mmap_size("+strconv.FormatInt(opts.MmapSize, 10)+")")
	}
	return "file:" + path + "?" + q.Encode()
}

func (db *DB) Migrate() error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting migration dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

func (db *DB) Path() string {
	return db.path
}
