// Package lock guards a reconciliation run against concurrent runs of other
// processes. DDL against a shared catalog must not interleave, so Migrate can be
// wrapped in one of these locks.
package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Locker provides mutual exclusion for migration runs.
type Locker interface {
	// Acquire obtains the lock for the given key. The returned release function
	// must be called to release the lock.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// PostgresLock implements Locker using PostgreSQL session advisory locks.
// Advisory locks belong to a session, so the lock pins one pooled connection
// until it is released.
type PostgresLock struct {
	db *sql.DB
}

// NewPostgresLock creates a new PostgresLock.
func NewPostgresLock(db *sql.DB) *PostgresLock {
	return &PostgresLock{db: db}
}

// Acquire blocks until the advisory lock derived from key is held.
func (l *PostgresLock) Acquire(ctx context.Context, key string) (func(), error) {
	lockID := hashLockKey(key)

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to pin connection for advisory lock: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, lockID); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("pg_advisory_lock(%d): %w", lockID, err)
	}

	release := func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID)
		_ = conn.Close()
	}
	return release, nil
}

// MySQLLock implements Locker using MySQL named locks (GET_LOCK).
type MySQLLock struct {
	db      *sql.DB
	timeout time.Duration
}

// NewMySQLLock creates a new MySQLLock. GET_LOCK gives up after timeout.
func NewMySQLLock(db *sql.DB, timeout time.Duration) *MySQLLock {
	return &MySQLLock{db: db, timeout: timeout}
}

// ErrLockTimeout is returned when a named lock could not be obtained in time.
var ErrLockTimeout = errors.New("timed out waiting for migration lock")

// Acquire obtains the named lock derived from key.
func (l *MySQLLock) Acquire(ctx context.Context, key string) (func(), error) {
	name := fmt.Sprintf("schemasync_%x", hashLockKey(key))

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to pin connection for named lock: %w", err)
	}
	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, `SELECT GET_LOCK(?, ?)`, name, int(l.timeout.Seconds())).Scan(&got); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("GET_LOCK(%s): %w", name, err)
	}
	if !got.Valid || got.Int64 != 1 {
		_ = conn.Close()
		return nil, fmt.Errorf("GET_LOCK(%s): %w", name, ErrLockTimeout)
	}

	release := func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT RELEASE_LOCK(?)`, name)
		_ = conn.Close()
	}
	return release, nil
}

// LocalLock implements Locker using a process-local mutex. It only protects
// against concurrent runs within one process.
type LocalLock struct {
	mu sync.Mutex
}

// NewLocalLock creates a new LocalLock.
func NewLocalLock() *LocalLock {
	return &LocalLock{}
}

// Acquire obtains the mutex. Returns an error if the context is already cancelled.
func (l *LocalLock) Acquire(ctx context.Context, _ string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire local lock: %w", err)
	}

	l.mu.Lock()
	return func() { l.mu.Unlock() }, nil
}

// hashLockKey produces a stable non-negative int64 from a string key using FNV-1a.
func hashLockKey(key string) int64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(key); i++ {
		h ^= uint64(key[i])
		h *= 1099511628211
	}
	return int64(h & 0x7FFFFFFFFFFFFFFF)
}
