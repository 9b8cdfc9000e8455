// Package adapter owns the single SQLite connection the rest of the engine
// runs on: pragma selection, connection lifetime, and the concurrency
// discipline around a serialized database/sql handle.
package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/Gaburyuu/sqler/internal/sqlerr"
)

// Adapter owns a *sql.DB opened against a single SQLite connection
// (MaxOpenConns=1, the Go analogue of the source adapter's threading.RLock
// around one native handle) plus an RWMutex guarding compound operations
// that must observe a consistent view across more than one statement.
type Adapter struct {
	db      *sql.DB
	dsn     string
	profile Profile
	mu      sync.RWMutex
}

// Open connects using the given profile and returns a ready Adapter. The
// caller must Close it when done.
func Open(ctx context.Context, dsn string, profile Profile) (*Adapter, error) {
	full := withPragmaParams(dsn, profile)
	db, err := sql.Open("sqlite3", full)
	if err != nil {
		return nil, fmt.Errorf("sqler: open %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	a := &Adapter{db: db, dsn: full, profile: profile}

	if err := a.runStatementPragmas(ctx, profile); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqler: ping %s: %w", dsn, err)
	}
	return a, nil
}

// OpenInMemory opens a private or cache=shared in-memory database.
func OpenInMemory(ctx context.Context, shared bool) (*Adapter, error) {
	dsn := ":memory:"
	if shared {
		dsn = "file::memory:?cache=shared"
	}
	return Open(ctx, dsn, InMemoryProfile())
}

// OpenOnDisk opens (creating if absent) a database file at path.
func OpenOnDisk(ctx context.Context, path string, profile Profile) (*Adapter, error) {
	if profile.Name == "" {
		profile = OnDiskProfile(0, 0, 0, 0)
	}
	return Open(ctx, path, profile)
}

// withPragmaParams folds the numeric pragma overrides into the DSN's
// _pragma query parameters understood by the ncruces driver; the boolean/
// textual pragmas in profile.Pragmas are applied with explicit statements
// in runStatementPragmas instead, since not all of them round-trip cleanly
// through URI query escaping (notably locking_mode's EXCLUSIVE value).
func withPragmaParams(dsn string, p Profile) string {
	if p.BusyTimeoutMS == 0 && p.CacheSizeKiB == 0 && p.MmapSizeBytes == 0 && p.WALAutocheckpoint == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(dsn)
	b.WriteString(sep)
	params := []string{}
	if p.BusyTimeoutMS > 0 {
		params = append(params, "_pragma=busy_timeout("+strconv.Itoa(p.BusyTimeoutMS)+")")
	}
	if p.CacheSizeKiB > 0 {
		params = append(params, "_pragma=cache_size(-"+strconv.Itoa(p.CacheSizeKiB)+")")
	}
	if p.MmapSizeBytes > 0 {
		params = append(params, "_pragma=mmap_size("+strconv.FormatInt(p.MmapSizeBytes, 10)+")")
	}
	if p.WALAutocheckpoint > 0 {
		params = append(params, "_pragma=wal_autocheckpoint("+strconv.Itoa(p.WALAutocheckpoint)+")")
	}
	b.WriteString(strings.Join(params, "&"))
	return b.String()
}

func (a *Adapter) runStatementPragmas(ctx context.Context, p Profile) error {
	for _, stmt := range p.Pragmas {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqler: pragma %q: %w", stmt, err)
		}
	}
	return nil
}

// Close releases the underlying connection. Cursors and any in-flight
// transactions become invalid.
func (a *Adapter) Close() error {
	if a == nil || a.db == nil {
		return sqlerr.ErrNotConnected
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	err := a.db.Close()
	a.db = nil
	return err
}

func (a *Adapter) connected() bool {
	return a != nil && a.db != nil
}

// Exec runs a non-SELECT statement and returns its result.
func (a *Adapter) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if !a.connected() {
		return nil, sqlerr.ErrNotConnected
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	res, err := a.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, wrapSQLiteErr(err)
	}
	return res, nil
}

// Query runs a SELECT and returns a Cursor guarding fetches with the
// adapter's read lock, so callers may interleave cursors from multiple
// goroutines safely.
func (a *Adapter) Query(ctx context.Context, query string, args ...any) (*Cursor, error) {
	if !a.connected() {
		return nil, sqlerr.ErrNotConnected
	}
	a.mu.RLock()
	rows, err := a.db.QueryContext(ctx, query, args...)
	a.mu.RUnlock()
	if err != nil {
		return nil, wrapSQLiteErr(err)
	}
	return &Cursor{rows: rows, mu: &a.mu}, nil
}

// ExecMany runs query once per row of params inside a single transaction.
func (a *Adapter) ExecMany(ctx context.Context, query string, paramRows [][]any) error {
	if !a.connected() {
		return sqlerr.ErrNotConnected
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapSQLiteErr(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return wrapSQLiteErr(err)
	}
	defer stmt.Close()

	for _, row := range paramRows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return wrapSQLiteErr(err)
		}
	}
	return tx.Commit()
}

// ExecScript runs a multi-statement script inside a single transaction.
func (a *Adapter) ExecScript(ctx context.Context, script string) error {
	if !a.connected() {
		return sqlerr.ErrNotConnected
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapSQLiteErr(err)
	}
	defer tx.Rollback()
	for _, stmt := range splitScript(script) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return wrapSQLiteErr(err)
		}
	}
	return tx.Commit()
}

func splitScript(script string) []string {
	return strings.Split(script, ";")
}

// Tx is a scoped handle passed to the function given to WithTx.
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, wrapSQLiteErr(err)
	}
	return res, nil
}

func (t *Tx) Query(ctx context.Context, query string, args ...any) (*Cursor, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapSQLiteErr(err)
	}
	return &Cursor{rows: rows}, nil
}

// WithTx runs fn inside a transaction: commits on fn returning nil, rolls
// back (and re-panics) otherwise. The whole call is serialized under the
// adapter's write lock so the bracketing reads/writes (e.g. bulk id
// assignment) see a consistent window.
func (a *Adapter) WithTx(ctx context.Context, fn func(*Tx) error) (err error) {
	if !a.connected() {
		return sqlerr.ErrNotConnected
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	sqlTx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapSQLiteErr(err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return wrapSQLiteErr(err)
	}
	return nil
}

// DSN returns the fully-resolved connection string (for diagnostics/logging).
func (a *Adapter) DSN() string { return a.dsn }

// wrapSQLiteErr recognizes SQLITE_BUSY/SQLITE_LOCKED conditions surfaced by
// the driver and re-exposes them as sqlerr.ErrStorageLocked so retry policies
// can match on it with errors.Is.
func wrapSQLiteErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "SQLITE_LOCKED") ||
		strings.Contains(msg, "database is locked") {
		return fmt.Errorf("%w: %v", sqlerr.ErrStorageLocked, err)
	}
	return err
}

// ParseBool is a tiny helper that parses pragma-style boolean overrides
// coming from strings (env vars, URL query). The second result reports
// whether s was recognized.
func ParseBool(s string) (bool, bool) {
	v, err := url.QueryUnescape(s)
	if err != nil {
		v = s
	}
	switch strings.ToLower(v) {
	case "1", "true", "on", "yes":
		return true, true
	case "0", "false", "off", "no":
		return false, true
	default:
		return false, false
	}
}
