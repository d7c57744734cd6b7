package persistence

import (
	"context"
	"errors"
)

// ErrDataStoreLocked indicates that an application's data-store can not be
// opened because it is locked by another process or another Provider.Open()
// call.
var ErrDataStoreLocked = errors.New("data store is locked")

// ErrDataStoreClosed is returned when performing any persistence operation on
// a closed data-store.
var ErrDataStoreClosed = errors.New("data store is closed")

// Provider is an interface used to open the journal that backs a process
// index.
type Provider interface {
	// Open returns the data-store for the journal with the given name.
	//
	// Local providers open data-stores for exclusive use. If the data-store is
	// already open, ErrDataStoreLocked is returned. Providers that proxy a
	// shared journal may allow multiple concurrent opens.
	Open(ctx context.Context, name string) (DataStore, error)
}
