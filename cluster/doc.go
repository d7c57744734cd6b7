// Package cluster distributes process instances across the members of a
// cluster.
//
// The instance ID space is divided into a fixed number of shards. Each shard
// is assigned to a live member by rendezvous hashing, and the assigned member
// holds a lease on the shard in the shared journal. The lease's fencing token
// is checked by every write, so at most one member can modify the instances
// in a shard at any given time.
package cluster
