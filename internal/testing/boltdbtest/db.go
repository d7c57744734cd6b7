// Package boltdbtest contains utilities for testing code that uses BoltDB.
package boltdbtest

import (
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"
)

// Open opens a BoltDB database using a temporary file.
//
// The returned function must be used to close the database, instead of
// DB.Close(). It also removes the file.
func Open() (*bbolt.DB, func()) {
	path, remove := TempFile()

	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		remove()
		panic(err)
	}

	return db, func() {
		db.Close()
		remove()
	}
}

// TempFile returns the path of a file that does not yet exist, within a new
// temporary directory.
//
// The returned function removes the directory and everything in it.
func TempFile() (string, func()) {
	dir, err := os.MkdirTemp("", "bakery-boltdb-*")
	if err != nil {
		panic(err)
	}

	return filepath.Join(dir, "journal.boltdb"), func() {
		os.RemoveAll(dir)
	}
}
