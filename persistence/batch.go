package persistence

import (
	"context"
	"fmt"
)

// Batch is a set of operations that are committed to the data store
// atomically.
type Batch []Operation

// MustValidate panics if the batch contains any operations that operate on the
// same entity.
func (b Batch) MustValidate() {
	seen := make(map[entityKey]struct{}, len(b))

	for _, op := range b {
		k := op.entityKey()

		if _, ok := seen[k]; ok {
			panic(fmt.Sprintf(
				"batch contains multiple operations for the same entity (%s)",
				k,
			))
		}

		seen[k] = struct{}{}
	}
}

// AcceptVisitor visits each operation in the batch, in order.
//
// It stops at the first error.
func (b Batch) AcceptVisitor(ctx context.Context, v OperationVisitor) error {
	for _, op := range b {
		if err := op.AcceptVisitor(ctx, v); err != nil {
			return err
		}
	}

	return nil
}

// IndexOf returns the index of the operation in b that acts on the same entity
// as op, or -1 if there is no such operation.
func (b Batch) IndexOf(op Operation) int {
	k := op.entityKey()

	for i, x := range b {
		if x.entityKey() == k {
			return i
		}
	}

	return -1
}
