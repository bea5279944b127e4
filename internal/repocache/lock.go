// Package repocache manages the on-disk repository cache and the
// concurrency-control primitives that guard it: a per-repository lock
// manager and a bounded global semaphore for network-heavy git operations.
package repocache

import (
	"context"
	"sync"
)

// repoLock tracks one repository key: whether the lock is currently held
// and the FIFO queue of waiters.
type repoLock struct {
	held    bool
	waiters []chan struct{}
}

// LockManager provides in-process mutual exclusion keyed by owner/repo.
// Grants are strictly FIFO: release hands the lock directly to the head
// waiter while the held flag stays set, so there is no window in which a
// late arrival can steal the lock from an earlier waiter.
//
// The manager is process-local. Running multiple service instances
// reintroduces the races it exists to prevent; that deployment needs a
// distributed lease in the shared datastore instead.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]*repoLock
}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]*repoLock)}
}

// Acquire obtains the lock for owner/repo, waiting in arrival order behind
// the current holder. The returned release function is safe to call exactly
// once and must always be called; callers defer it immediately.
func (m *LockManager) Acquire(ctx context.Context, owner, repo string) (func(), error) {
	key := owner + "/" + repo

	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &repoLock{}
		m.locks[key] = l
	}

	if !l.held {
		l.held = true
		m.mu.Unlock()
		return m.releaseFunc(key), nil
	}

	grant := make(chan struct{})
	l.waiters = append(l.waiters, grant)
	m.mu.Unlock()

	select {
	case <-grant:
		return m.releaseFunc(key), nil
	case <-ctx.Done():
		// Remove ourselves from the queue. If the grant raced with the
		// cancellation, we already own the lock and must pass it on.
		if !m.removeWaiter(key, grant) {
			m.release(key)
		}
		return nil, ctx.Err()
	}
}

// releaseFunc wraps release in a sync.Once so double-release is harmless.
func (m *LockManager) releaseFunc(key string) func() {
	var once sync.Once
	return func() {
		once.Do(func() { m.release(key) })
	}
}

// release hands the lock to the head waiter, or frees the key entirely when
// no one is waiting. The held flag stays true across a hand-off.
func (m *LockManager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[key]
	if !ok {
		return
	}

	if len(l.waiters) > 0 {
		grant := l.waiters[0]
		l.waiters = l.waiters[1:]
		close(grant)
		return
	}

	l.held = false
	delete(m.locks, key)
}

// removeWaiter removes a pending grant channel from the queue. Returns false
// when the channel is no longer queued, meaning the grant already fired.
func (m *LockManager) removeWaiter(key string, grant chan struct{}) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[key]
	if !ok {
		return false
	}

	for i, w := range l.waiters {
		if w == grant {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			return true
		}
	}
	return false
}
