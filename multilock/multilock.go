// Package multilock provides locks on individual string-keyed resources, both
// within a process (MultiLock) and across processes through Redis (Redis).
package multilock

import (
	"context"
	"fmt"
	"time"

	golock "github.com/viney-shih/go-lock"
)

// DefaultTimeout bounds Lock when the context carries no deadline.
const DefaultTimeout = 30 * time.Second

// entry is the lock for one key plus the number of holders and waiters using it.
type entry struct {
	l    *golock.CASMutex
	refs int
	held bool
}

// MultiLock is a system for locking of individual string-keyed resources.
// Locks for keys nobody holds or waits on are dropped.
type MultiLock struct {
	l     *golock.CASMutex
	locks map[string]*entry
}

// New instantiates a new MultiLock.
func New() *MultiLock {
	return &MultiLock{l: golock.NewCASMutex(), locks: map[string]*entry{}}
}

// Acquire acquires the lock for the given key, returning True on success and False on timeout.
func (m *MultiLock) Acquire(timeout time.Duration, key string) bool {
	m.l.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{l: golock.NewCASMutex()}
		m.locks[key] = e
	}
	e.refs++
	m.l.Unlock()

	if e.l.TryLockWithTimeout(timeout) {
		m.l.Lock()
		e.held = true
		m.l.Unlock()
		return true
	}
	m.l.Lock()
	m.drop(key, e)
	m.l.Unlock()
	return false
}

// Release releases the lock for the given key. Call it once per successful
// Acquire; releasing a key that is not held is a no-op.
func (m *MultiLock) Release(key string) {
	m.l.Lock()
	defer m.l.Unlock()

	e, ok := m.locks[key]
	if !ok || !e.held {
		return
	}
	e.held = false
	e.l.Unlock()
	m.drop(key, e)
}

// Held returns the number of keys currently locked or waited on.
func (m *MultiLock) Held() int {
	m.l.Lock()
	defer m.l.Unlock()
	return len(m.locks)
}

// drop releases one reference to e. Callers hold m.l.
func (m *MultiLock) drop(key string, e *entry) {
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
}

// Lock acquires the lock for name, waiting until the context deadline (or
// DefaultTimeout) passes.
func (m *MultiLock) Lock(ctx context.Context, name string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timeout := DefaultTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	if !m.Acquire(timeout, name) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if dl, ok := ctx.Deadline(); ok && !time.Now().Before(dl) {
			return nil, context.DeadlineExceeded
		}
		return nil, fmt.Errorf("timed out locking key: %s", name)
	}
	return func() { m.Release(name) }, nil
}
