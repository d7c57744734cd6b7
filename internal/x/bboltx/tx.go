package bboltx

import "go.etcd.io/bbolt"

// View runs fn within a read-only transaction.
//
// Errors raised inside fn by Must() are returned as ordinary errors.
func View(db *bbolt.DB, fn func(tx *bbolt.Tx)) error {
	return db.View(func(tx *bbolt.Tx) (err error) {
		defer Recover(&err)
		fn(tx)
		return nil
	})
}

// Update runs fn within a read-write transaction.
//
// The transaction is committed if fn returns without panicking. Errors raised
// inside fn by Must() roll the transaction back and are returned as ordinary
// errors.
func Update(db *bbolt.DB, fn func(tx *bbolt.Tx)) error {
	return db.Update(func(tx *bbolt.Tx) (err error) {
		defer Recover(&err)
		fn(tx)
		return nil
	})
}
