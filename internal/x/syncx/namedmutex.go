package syncx

import (
	"context"
	"sync"
)

// UnlockFunc is a function used to unlock a previously locked mutex.
type UnlockFunc func()

// MutexNamespace is a set of context-aware mutexes identified by keys of type
// K.
//
// The zero-value is ready to use. Mutexes are created on demand and discarded
// once there are no more pending or successful calls to Lock() for that key.
type MutexNamespace[K comparable] struct {
	m       sync.Mutex
	mutexes map[K]*keyedMutex
}

type keyedMutex struct {
	guard   chan struct{} // buffered, send = lock, receive = unlock
	lockers int           // pending or successful Lock() calls, protected by ns.m
}

// Lock acquires an exclusive lock on the mutex for k.
//
// It blocks until the mutex is acquired or ctx is canceled. The returned
// function must be called to release the lock. It is safe to call it more than
// once.
func (ns *MutexNamespace[K]) Lock(ctx context.Context, k K) (UnlockFunc, error) {
	m := ns.acquire(k)

	select {
	case <-ctx.Done():
		ns.release(k, m)
		return nil, ctx.Err()

	case m.guard <- struct{}{}:
		var once sync.Once

		return func() {
			once.Do(func() {
				<-m.guard
				ns.release(k, m)
			})
		}, nil
	}
}

// TryLock acquires the mutex for k if it is not already locked.
func (ns *MutexNamespace[K]) TryLock(k K) (UnlockFunc, bool) {
	m := ns.acquire(k)

	select {
	case m.guard <- struct{}{}:
		var once sync.Once

		return func() {
			once.Do(func() {
				<-m.guard
				ns.release(k, m)
			})
		}, true

	default:
		ns.release(k, m)
		return nil, false
	}
}

// acquire returns the mutex for k, creating it if necessary, and registers the
// caller as a locker.
func (ns *MutexNamespace[K]) acquire(k K) *keyedMutex {
	ns.m.Lock()
	defer ns.m.Unlock()

	if ns.mutexes == nil {
		ns.mutexes = map[K]*keyedMutex{}
	}

	m, ok := ns.mutexes[k]
	if !ok {
		m = &keyedMutex{
			guard: make(chan struct{}, 1),
		}
		ns.mutexes[k] = m
	}

	m.lockers++

	return m
}

// release removes the caller from m's locker count, discarding m once nobody
// else is interested in it.
func (ns *MutexNamespace[K]) release(k K, m *keyedMutex) {
	ns.m.Lock()
	defer ns.m.Unlock()

	m.lockers--

	if m.lockers == 0 {
		delete(ns.mutexes, k)
	}
}

// Len returns the number of keys that currently have a pending or held lock.
func (ns *MutexNamespace[K]) Len() int {
	ns.m.Lock()
	defer ns.m.Unlock()

	return len(ns.mutexes)
}
