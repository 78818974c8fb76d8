package usecase

import (
	"sync"
	"time"

	"github.com/coopgrid/energy-ledger/internal/domain"
)

// lockTable serializes mutations per record number. Operations on
// different records proceed in parallel; two mutations on the same record
// never interleave (lost-update on filled_quantity is the race to stop).
type lockTable struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]chan struct{})}
}

func (lt *lockTable) get(key string) chan struct{} {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	ch, ok := lt.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		lt.locks[key] = ch
	}
	return ch
}

// acquire takes the per-record lock, waiting at most wait. On timeout it
// returns ErrConflict; the caller retries a bounded number of times.
func (lt *lockTable) acquire(key string, wait time.Duration) (func(), error) {
	ch := lt.get(key)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	default:
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-timer.C:
		return nil, domain.ErrConflict
	}
}

// withRetry acquires the lock with bounded retries before surfacing
// ErrConflict to the caller.
func (lt *lockTable) withRetry(key string, wait time.Duration, retries int, fn func() error) error {
	var release func()
	var err error
	for attempt := 0; ; attempt++ {
		release, err = lt.acquire(key, wait)
		if err == nil {
			break
		}
		if attempt >= retries {
			return err
		}
	}
	defer release()
	return fn()
}
