package bboltx

import "go.etcd.io/bbolt"

var (
	_ BucketParent = (*bbolt.Tx)(nil)
	_ BucketParent = (*bbolt.Bucket)(nil)
)

// BucketParent is an interface for things that contain buckets.
type BucketParent interface {
	CreateBucketIfNotExists([]byte) (*bbolt.Bucket, error)
	Bucket([]byte) *bbolt.Bucket
}

// CreateBucketIfNotExists creates nested buckets with names given by the
// elements of path, and returns the innermost bucket.
func CreateBucketIfNotExists(p BucketParent, path ...[]byte) *bbolt.Bucket {
	if len(path) == 0 {
		panic("at least one path element must be provided")
	}

	var b *bbolt.Bucket

	for _, n := range path {
		var err error
		b, err = p.CreateBucketIfNotExists(n)
		Must(err)
		p = b
	}

	return b
}

// Bucket returns the nested bucket at path.
//
// It returns nil if any of the buckets along path does not exist.
func Bucket(p BucketParent, path ...[]byte) *bbolt.Bucket {
	if len(path) == 0 {
		panic("at least one path element must be provided")
	}

	var b *bbolt.Bucket

	for _, n := range path {
		if b = p.Bucket(n); b == nil {
			return nil
		}
		p = b
	}

	return b
}

// Get returns the value of k in the bucket at path, or nil if either the
// bucket or the key does not exist.
func Get(p BucketParent, k []byte, path ...[]byte) []byte {
	if b := Bucket(p, path...); b != nil {
		return b.Get(k)
	}

	return nil
}

// Put writes a value to a bucket.
func Put(b *bbolt.Bucket, k, v []byte) {
	Must(b.Put(k, v))
}
