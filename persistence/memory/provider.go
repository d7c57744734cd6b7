// Package memory is a persistence provider that keeps the journal in memory.
//
// It is intended for tests and single-process deployments that do not need
// the journal to survive a restart.
package memory

import (
	"context"
	"sync"

	"github.com/bakerykit/bakery/persistence"
)

// Provider is an implementation of persistence.Provider that stores journals
// in memory.
type Provider struct {
	m         sync.Mutex
	databases map[string]*database
}

// Open returns the data-store for the journal with the given name.
//
// Data stores are opened for exclusive use. If the journal's data-store is
// already open, persistence.ErrDataStoreLocked is returned. The journal's
// content is retained after the data-store is closed, so it can be reopened.
func (p *Provider) Open(ctx context.Context, name string) (persistence.DataStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.m.Lock()
	defer p.m.Unlock()

	if p.databases == nil {
		p.databases = map[string]*database{}
	}

	db, ok := p.databases[name]
	if !ok {
		db = &database{}
		p.databases[name] = db
	}

	if !db.TryOpen() {
		return nil, persistence.ErrDataStoreLocked
	}

	return newDataStore(db), nil
}
