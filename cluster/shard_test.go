package cluster_test

import (
	"fmt"

	. "github.com/bakerykit/bakery/cluster"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("func ShardOf()", func() {
	It("returns a shard within range", func() {
		for i := 0; i < 100; i++ {
			Expect(ShardOf(fmt.Sprintf("order-%d", i), 4)).To(BeNumerically("<", 4))
		}
	})

	It("is deterministic", func() {
		Expect(ShardOf("order-42", 50)).To(Equal(ShardOf("order-42", 50)))
	})

	It("distributes instances across every shard", func() {
		seen := map[uint32]bool{}
		for i := 0; i < 200; i++ {
			seen[ShardOf(fmt.Sprintf("order-%d", i), 4)] = true
		}

		Expect(seen).To(HaveLen(4))
	})

	It("panics if the shard count is zero", func() {
		Expect(func() {
			ShardOf("order-42", 0)
		}).To(PanicWith("shard count must be positive"))
	})
})

var _ = Describe("func Assign()", func() {
	members := []Member{
		{ID: "<a>", Address: "10.0.0.1:7000"},
		{ID: "<b>", Address: "10.0.0.2:7000"},
		{ID: "<c>", Address: "10.0.0.3:7000"},
	}

	It("returns false if there are no members", func() {
		_, ok := Assign(0, nil)
		Expect(ok).To(BeFalse())
	})

	It("does not depend on the order of the members", func() {
		reversed := []Member{members[2], members[1], members[0]}

		for shard := uint32(0); shard < 50; shard++ {
			a, _ := Assign(shard, members)
			b, _ := Assign(shard, reversed)
			Expect(a).To(Equal(b))
		}
	})

	It("does not depend on the incarnation of the members", func() {
		restarted := []Member{
			members[0],
			{ID: "<b-restarted>", Address: members[1].Address},
			members[2],
		}

		for shard := uint32(0); shard < 50; shard++ {
			a, _ := Assign(shard, members)
			b, _ := Assign(shard, restarted)
			Expect(a.Address).To(Equal(b.Address))
		}
	})

	It("only moves the shards of a member that leaves", func() {
		remaining := []Member{members[0], members[2]}

		for shard := uint32(0); shard < 50; shard++ {
			before, _ := Assign(shard, members)
			after, _ := Assign(shard, remaining)

			if before.Address != members[1].Address {
				Expect(after).To(Equal(before))
			}
		}
	})
})

var _ = Describe("func Partition()", func() {
	It("assigns every shard to exactly one member", func() {
		members := []Member{
			{ID: "<a>", Address: "10.0.0.1:7000"},
			{ID: "<b>", Address: "10.0.0.2:7000"},
		}

		parts := Partition(50, members)

		var all []uint32
		for _, shards := range parts {
			all = append(all, shards...)
		}

		Expect(all).To(HaveLen(50))
		Expect(all).To(ContainElements(uint32(0), uint32(49)))

		seen := map[uint32]bool{}
		for _, shard := range all {
			Expect(seen[shard]).To(BeFalse())
			seen[shard] = true
		}
	})
})
