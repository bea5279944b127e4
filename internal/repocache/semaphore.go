package repocache

import (
	"context"
	"sync"
)

// Semaphore is a bounded counting resource with a FIFO wait list, shared
// across all repositories to cap concurrent clone/fetch operations. Release
// hands its permit directly to the head waiter, so held permits never exceed
// the capacity and there is no free/re-acquire race between waiters.
type Semaphore struct {
	mu      sync.Mutex
	held    int
	cap     int
	waiters []chan struct{}
}

// NewSemaphore creates a Semaphore with the given capacity. Capacity must be
// at least 1.
func NewSemaphore(capacity int) *Semaphore {
	if capacity < 1 {
		capacity = 1
	}
	return &Semaphore{cap: capacity}
}

// Acquire obtains a permit, waiting in arrival order when all permits are
// held. The returned release function is safe to call exactly once and must
// always be called.
func (s *Semaphore) Acquire(ctx context.Context) (func(), error) {
	s.mu.Lock()
	if s.held < s.cap && len(s.waiters) == 0 {
		s.held++
		s.mu.Unlock()
		return s.releaseFunc(), nil
	}

	grant := make(chan struct{})
	s.waiters = append(s.waiters, grant)
	s.mu.Unlock()

	select {
	case <-grant:
		return s.releaseFunc(), nil
	case <-ctx.Done():
		if !s.removeWaiter(grant) {
			// The permit was handed to us concurrently; pass it on.
			s.release()
		}
		return nil, ctx.Err()
	}
}

// Held returns the number of currently held permits.
func (s *Semaphore) Held() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held
}

func (s *Semaphore) releaseFunc() func() {
	var once sync.Once
	return func() {
		once.Do(s.release)
	}
}

// release hands the permit to the head waiter, or decrements the held count
// when no one is waiting. The held count is unchanged across a hand-off.
func (s *Semaphore) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.waiters) > 0 {
		grant := s.waiters[0]
		s.waiters = s.waiters[1:]
		close(grant)
		return
	}

	s.held--
}

func (s *Semaphore) removeWaiter(grant chan struct{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, w := range s.waiters {
		if w == grant {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return true
		}
	}
	return false
}
