// Package dedup serializes concurrent import writes that resolve to the
// same logical catalog item. Lock keys are deterministic strings built by
// the identity resolver; the backing mutual-exclusion primitive is
// swappable behind the Locker interface.
package dedup

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Locker runs fn while holding an exclusive process-wide lock for key.
// Two invocations with the same key are fully serialized; different keys
// never block each other. The lock is released on every exit path and any
// error from fn is returned unchanged.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func() error) error
}

// ──────────────────── Postgres advisory locks ────────────────────

// PostgresLocker maps each key to a 64-bit advisory lock in the shared
// store, which makes the exclusion cluster-wide. Each acquisition pins a
// dedicated connection: advisory locks are session-scoped, so acquire and
// release must happen on the same session.
type PostgresLocker struct {
	db *sql.DB
}

func NewPostgresLocker(db *sql.DB) *PostgresLocker {
	return &PostgresLocker{db: db}
}

// LockID hashes a lock key to the signed 64-bit space Postgres advisory
// locks use.
func LockID(key string) int64 {
	return int64(xxhash.Sum64String(key))
}

func (l *PostgresLocker) WithLock(ctx context.Context, key string, fn func() error) error {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire lock connection: %w", err)
	}
	defer conn.Close()

	id := LockID(key)
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", id); err != nil {
		return fmt.Errorf("acquire advisory lock %q: %w", key, err)
	}
	defer func() {
		// Background context: the lock must be released even when the
		// caller's context is already cancelled.
		conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", id)
	}()

	return fn()
}

// ──────────────────── In-memory locks ────────────────────

// MemoryLocker is the single-process implementation, also used by tests.
// Entries are refcounted so the key map does not grow without bound.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*memLock
}

type memLock struct {
	mu   sync.Mutex
	refs int
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*memLock)}
}

func (l *MemoryLocker) WithLock(ctx context.Context, key string, fn func() error) error {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &memLock{}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn()
}
