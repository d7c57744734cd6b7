package persistence_test

import (
	"context"

	. "github.com/bakerykit/bakery/persistence"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("type Batch", func() {
	Describe("func MustValidate()", func() {
		It("does not panic when each operation targets a different entity", func() {
			batch := Batch{
				SaveInstanceMetadata{
					Metadata: InstanceMetadata{InstanceID: "<instance>"},
				},
				AppendEvent{
					Event: Event{InstanceID: "<instance>", Sequence: 0},
				},
				AppendEvent{
					Event: Event{InstanceID: "<instance>", Sequence: 1},
				},
				CheckShardLease{Shard: 1, Token: "<token>"},
			}

			Expect(batch.MustValidate).NotTo(Panic())
		})

		DescribeTable(
			"it panics if the batch contains multiple operations on the same entity",
			func(a, b Operation) {
				batch := Batch{a, b}
				Expect(batch.MustValidate).To(Panic())
			},
			Entry(
				"instance metadata",
				SaveInstanceMetadata{Metadata: InstanceMetadata{InstanceID: "<instance>"}},
				SaveInstanceMetadata{Metadata: InstanceMetadata{InstanceID: "<instance>", Revision: 1}},
			),
			Entry(
				"event sequence",
				AppendEvent{Event: Event{InstanceID: "<instance>", Sequence: 3}},
				AppendEvent{Event: Event{InstanceID: "<instance>", Sequence: 3}},
			),
			Entry(
				"blueprint",
				SaveBlueprint{Blueprint: BlueprintRecord{ID: "<blueprint>"}},
				SaveBlueprint{Blueprint: BlueprintRecord{ID: "<blueprint>"}},
			),
			Entry(
				"shard lease",
				SaveShardLease{Lease: ShardLease{Shard: 2}},
				SaveShardLease{Lease: ShardLease{Shard: 2, Revision: 1}},
			),
		)
	})

	Describe("func IndexOf()", func() {
		It("returns the index of the operation that targets the same entity", func() {
			batch := Batch{
				SaveInstanceMetadata{Metadata: InstanceMetadata{InstanceID: "<instance>"}},
				CheckShardLease{Shard: 7, Token: "<token>"},
			}

			Expect(batch.IndexOf(CheckShardLease{Shard: 7})).To(Equal(1))
			Expect(batch.IndexOf(CheckShardLease{Shard: 8})).To(Equal(-1))
		})
	})

	Describe("func AcceptVisitor()", func() {
		It("stops at the first error", func() {
			var visited []Operation
			v := &recordingVisitor{visited: &visited}

			batch := Batch{
				SaveBlueprint{Blueprint: BlueprintRecord{ID: "<blueprint>"}},
				CheckShardLease{Shard: 1},
				SaveBlueprint{Blueprint: BlueprintRecord{ID: "<other>"}},
			}

			err := batch.AcceptVisitor(context.Background(), v)
			Expect(err).To(Equal(ConflictError{Cause: batch[1]}))
			Expect(visited).To(Equal([]Operation{batch[0], batch[1]}))
		})
	})
})

var _ = Describe("type ShardLease", func() {
	Describe("func IsHeldAt()", func() {
		It("returns false if the token is empty", func() {
			l := ShardLease{ExpiresAt: farFuture}
			Expect(l.IsHeldAt(now)).To(BeFalse())
		})

		It("returns false if the lease has expired", func() {
			l := ShardLease{Token: "<token>", ExpiresAt: now}
			Expect(l.IsHeldAt(now)).To(BeFalse())
		})

		It("returns true if the lease has a token and has not expired", func() {
			l := ShardLease{Token: "<token>", ExpiresAt: farFuture}
			Expect(l.IsHeldAt(now)).To(BeTrue())
		})
	})
})

var _ = Describe("func LoadAllEvents()", func() {
	It("returns every event in the result", func() {
		events := []Event{
			{InstanceID: "<instance>", Sequence: 0},
			{InstanceID: "<instance>", Sequence: 1},
		}

		loaded, err := LoadAllEvents(context.Background(), &EventSlice{Events: events})
		Expect(err).ShouldNot(HaveOccurred())
		Expect(loaded).To(Equal(events))
	})
})

// recordingVisitor records each visited operation, and fails on
// CheckShardLease.
type recordingVisitor struct {
	visited *[]Operation
}

func (v *recordingVisitor) VisitSaveInstanceMetadata(_ context.Context, op SaveInstanceMetadata) error {
	*v.visited = append(*v.visited, op)
	return nil
}

func (v *recordingVisitor) VisitAppendEvent(_ context.Context, op AppendEvent) error {
	*v.visited = append(*v.visited, op)
	return nil
}

func (v *recordingVisitor) VisitSaveBlueprint(_ context.Context, op SaveBlueprint) error {
	*v.visited = append(*v.visited, op)
	return nil
}

func (v *recordingVisitor) VisitSaveShardLease(_ context.Context, op SaveShardLease) error {
	*v.visited = append(*v.visited, op)
	return nil
}

func (v *recordingVisitor) VisitCheckShardLease(_ context.Context, op CheckShardLease) error {
	*v.visited = append(*v.visited, op)
	return ConflictError{Cause: op}
}
