// Package boltdb is a persistence provider that stores the journal in a
// BoltDB database file.
package boltdb

import (
	"context"
	"os"
	"sync"

	"github.com/bakerykit/bakery/internal/x/bboltx"
	"github.com/bakerykit/bakery/persistence"
	"go.etcd.io/bbolt"
)

// Provider is an implementation of persistence.Provider for BoltDB that uses
// an already-open BoltDB database.
type Provider struct {
	// DB is the BoltDB database to use.
	DB *bbolt.DB

	journals journalSet
}

// Open returns the data-store for the journal with the given name.
//
// Data stores are opened for exclusive use. If the journal's data-store is
// already open, persistence.ErrDataStoreLocked is returned. Closing the
// data-store does not close p.DB.
func (p *Provider) Open(ctx context.Context, name string) (persistence.DataStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	release, ok := p.journals.acquire(name)
	if !ok {
		return nil, persistence.ErrDataStoreLocked
	}

	return newDataStore(
		p.DB,
		name,
		func() error {
			release()
			return nil
		},
	), nil
}

// FileProvider is an implementation of persistence.Provider for BoltDB that
// opens a BoltDB database file on demand.
type FileProvider struct {
	// Path is the path to the BoltDB database to open or create.
	Path string

	// Mode is the file mode for the created file. If it is zero, 0600 (owner
	// read/write only) is used.
	Mode os.FileMode

	// Options is the BoltDB options for the database. If it is nil, the
	// defaults used.
	Options *bbolt.Options

	m        sync.Mutex
	db       *bbolt.DB
	journals journalSet
}

// Open returns the data-store for the journal with the given name.
//
// The database file is opened when the first data-store is opened, and closed
// when the last data-store is closed. BoltDB holds an exclusive lock on the
// file, so Open() blocks until the lock is acquired or ctx's deadline is
// reached.
func (p *FileProvider) Open(ctx context.Context, name string) (persistence.DataStore, error) {
	p.m.Lock()
	defer p.m.Unlock()

	if p.db == nil {
		db, err := bboltx.Open(ctx, p.Path, p.Mode, p.Options)
		if err != nil {
			return nil, err
		}

		p.db = db
	}

	release, ok := p.journals.acquire(name)
	if !ok {
		return nil, persistence.ErrDataStoreLocked
	}

	return newDataStore(
		p.db,
		name,
		func() error {
			p.m.Lock()
			defer p.m.Unlock()

			if release() > 0 {
				return nil
			}

			db := p.db
			p.db = nil

			return db.Close()
		},
	), nil
}

// journalSet tracks which journals are currently open.
type journalSet struct {
	m    sync.Mutex
	open map[string]struct{}
}

// acquire marks the journal as open. It returns false if it is already
// open. The returned function marks the journal as closed and returns the
// number of journals that remain open.
func (s *journalSet) acquire(name string) (func() int, bool) {
	s.m.Lock()
	defer s.m.Unlock()

	if _, ok := s.open[name]; ok {
		return nil, false
	}

	if s.open == nil {
		s.open = map[string]struct{}{}
	}

	s.open[name] = struct{}{}

	return func() int {
		s.m.Lock()
		defer s.m.Unlock()

		delete(s.open, name)
		return len(s.open)
	}, true
}
