// Package lock provides keyed mutual exclusion for schedule mutations.
//
// KeyedMutex serialises work inside one process. RedisLocker extends the same
// guarantee across replicas that share a Redis instance.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrNotAcquired is returned when a lock could not be taken before the
// context expired.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker acquires an exclusive lock on key. The returned release func must be
// called exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// KeyedMutex hands out one mutex per key. Entries are reference counted and
// removed once nobody holds or waits on them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex returns an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*entry)}
}

// Acquire blocks until key is free or ctx is done.
func (k *KeyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.unref(key, e)
		return nil, errors.Join(ErrNotAcquired, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			k.unref(key, e)
		})
	}, nil
}

// Len reports how many keys are currently tracked.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func (k *KeyedMutex) unref(key string, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
}

// ScheduleKey is the lock key guarding generation, clearing and regeneration
// for one exam date.
func ScheduleKey(date string) string {
	return "schedule:" + date
}

// AllocationKey is the lock key guarding reassignment of one allocation.
func AllocationKey(id string) string {
	return "allocation:" + id
}

// SlotKey is the lock key guarding one faculty member's booking in a date
// and slot. It is always taken after AllocationKey.
func SlotKey(date, slot, facultyID string) string {
	return "slot:" + date + ":" + slot + ":" + facultyID
}
