package cache

import (
	"time"

	"github.com/bakerykit/bakery/internal/mlog"
	"github.com/dogmatiq/cosyne"
)

// Record is an entry in the cache.
type Record[T any] struct {
	id    string
	cache *Cache[T]

	m        cosyne.Mutex
	state    state
	keep     bool
	lastUsed time.Time
	Instance T // note: exposed, but still protected by m
}

// ID returns the ID of the instance that the record holds.
func (r *Record[T]) ID() string {
	return r.id
}

// KeepAlive marks the record as used, and instructs the cache to keep this
// record when it is released.
//
// It must be called each time the record is acquired, otherwise the record is
// removed when it is released.
//
// If KeepAlive() is NOT called, the assumption is that r.Instance was modified
// by an operation that was not persisted successfully, and hence the record
// is now out-of-date.
func (r *Record[T]) KeepAlive() {
	r.keep = true
	r.lastUsed = r.cache.now()
}

// Release unlocks this record, allowing the key to be acquired by other
// callers.
//
// If KeepAlive() has not been called since the record was acquired, the record
// is removed from the cache.
func (r *Record[T]) Release() {
	if r.keep {
		r.keep = false // for the next acquirer
	} else {
		r.remove()
	}

	r.m.Unlock()
}

// remove removes r from the cache.
func (r *Record[T]) remove() {
	r.state = removed
	r.cache.records.Delete(r.id)
}

// passivateIfIdle removes the record if it is unlocked and has not been used
// since the idle timeout elapsed.
func (r *Record[T]) passivateIfIdle(now time.Time) {
	if !r.m.TryLock() {
		return
	}
	defer r.m.Unlock()

	if r.state == removed {
		return
	}

	idle := now.Sub(r.lastUsed)
	if idle < r.cache.IdleTimeout {
		return
	}

	r.remove()
	mlog.LogPassivated(r.cache.Logger, r.id, idle)
	r.cache.notify(r.id)
}

// state is an enumeration that describes the record's state in the cache.
type state int

const (
	active  state = iota // the record is in the cache, it may be locked or unlocked
	removed              // the record has been removed from the cache, and is invalid
)
