package cluster

import (
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// DefaultShardCount is the default number of shards in a cluster.
const DefaultShardCount = 50

// ShardOf returns the shard that contains the instance with the given ID.
//
// n is the number of shards in the cluster. It panics if n is zero.
func ShardOf(instanceID string, n uint32) uint32 {
	if n == 0 {
		panic("shard count must be positive")
	}

	return uint32(xxhash.Sum64String(instanceID) % uint64(n))
}

// Member is a member of the cluster.
type Member struct {
	// ID identifies a single incarnation of the member. It changes each time
	// the member restarts.
	ID string `cbor:"1,keyasint"`

	// Address is the network address of the member's gRPC server. It is
	// stable across restarts.
	Address string `cbor:"2,keyasint"`
}

// Assign returns the member that should own the given shard.
//
// It uses rendezvous hashing over the members' addresses, so the removal of
// one member only moves the shards that it owned. ok is false if members is
// empty.
func Assign(shard uint32, members []Member) (m Member, ok bool) {
	var best uint64

	for _, c := range members {
		score := xxhash.Sum64String(c.Address + "/" + strconv.FormatUint(uint64(shard), 10))

		if !ok || score > best || (score == best && c.Address < m.Address) {
			m = c
			best = score
			ok = true
		}
	}

	return m, ok
}

// Partition groups the shards of a cluster by their assigned member's
// address.
//
// Each member's shards are in ascending order.
func Partition(n uint32, members []Member) map[string][]uint32 {
	result := map[string][]uint32{}

	for shard := uint32(0); shard < n; shard++ {
		if m, ok := Assign(shard, members); ok {
			result[m.Address] = append(result[m.Address], shard)
		}
	}

	return result
}

// sortMembers sorts members by address.
func sortMembers(members []Member) {
	sort.Slice(members, func(i, j int) bool {
		return members[i].Address < members[j].Address
	})
}
