/**
 * @description
 * This file provides the in-process lock table used to serialize mutations
 * per entity. The service keeps one table keyed by account ID (so two
 * concurrent spends from one wallet are strictly ordered) and one keyed by
 * asset ID (so a market tick is exclusive against buys and sells of that
 * asset).
 */

package app

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// lockTable hands out one mutex per entity ID, created lazily.
type lockTable struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (t *lockTable) get(id uuid.UUID) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	lock, ok := t.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[id] = lock
	}
	return lock
}

// lock acquires the entity's mutex and returns its unlock function.
func (t *lockTable) lock(id uuid.UUID) func() {
	lock := t.get(id)
	lock.Lock()
	return lock.Unlock
}

// lockPair acquires two entity mutexes in deterministic ID order so that
// concurrent opposing operations (A→B and B→A) cannot deadlock.
func (t *lockTable) lockPair(a, b uuid.UUID) func() {
	first, second := a, b
	if second.String() < first.String() {
		first, second = second, first
	}
	firstLock := t.get(first)
	secondLock := t.get(second)
	firstLock.Lock()
	secondLock.Lock()
	return func() {
		secondLock.Unlock()
		firstLock.Unlock()
	}
}

// tryLock attempts to acquire the entity's mutex a bounded number of
// times, backing off between attempts. It returns the unlock function and
// whether acquisition succeeded.
func (t *lockTable) tryLock(id uuid.UUID, attempts int, backoff time.Duration) (func(), bool) {
	lock := t.get(id)
	for attempt := 0; attempt < attempts; attempt++ {
		if lock.TryLock() {
			return lock.Unlock, true
		}
		time.Sleep(backoff * time.Duration(attempt+1))
	}
	return nil, false
}
