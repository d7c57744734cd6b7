package cluster

import (
	"context"
	"sync"
	"time"

	"github.com/bakerykit/bakery/internal/x/grpcx"
	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger"
	"github.com/dogmatiq/linger/backoff"
	"golang.org/x/sync/errgroup"
)

var (
	// DefaultHeartbeatInterval is the default interval at which a member
	// pings the other members of the cluster.
	DefaultHeartbeatInterval = 1 * time.Second

	// DefaultFailureTimeout is the default period of time after which a
	// member that has not answered a ping is considered to have left the
	// cluster.
	DefaultFailureTimeout = 5 * time.Second

	// DefaultBootstrapBackoff is the default backoff strategy used while
	// waiting for a seed node to answer.
	DefaultBootstrapBackoff backoff.Strategy = backoff.WithTransforms(
		backoff.Exponential(50*time.Millisecond),
		linger.FullJitter,
		linger.Limiter(0, 2*time.Second),
	)
)

// Membership tracks the live members of the cluster.
//
// Members discover each other through the seed nodes. Each ping exchanges the
// caller's and the callee's view of the membership, so the full member list
// spreads from any seed to every member.
type Membership struct {
	// Self is the local member.
	Self Member

	// Seeds is the list of addresses used to join the cluster. It may
	// include the address of the local member.
	Seeds []string

	// Peers is the connection cache used to reach other members.
	Peers *Peers

	// HeartbeatInterval is the interval at which other members are pinged. If
	// it is non-positive, DefaultHeartbeatInterval is used.
	HeartbeatInterval time.Duration

	// FailureTimeout is the period after which an unresponsive member is
	// removed. If it is non-positive, DefaultFailureTimeout is used.
	FailureTimeout time.Duration

	// Logger is the target for log messages about changes to the membership.
	Logger logging.Logger

	// Now returns the current time. If it is nil, time.Now() is used.
	Now func() time.Time

	m       sync.RWMutex
	members map[string]*memberState // keyed by address, excludes Self
}

type memberState struct {
	Member
	lastSeen time.Time
}

// Members returns the live members of the cluster, including the local
// member, ordered by address.
func (ms *Membership) Members() []Member {
	ms.m.RLock()
	defer ms.m.RUnlock()

	members := make([]Member, 0, len(ms.members)+1)
	members = append(members, ms.Self)

	for _, s := range ms.members {
		members = append(members, s.Member)
	}

	sortMembers(members)

	return members
}

// Bootstrap joins the cluster.
//
// If the local member is itself a seed it pings the other seeds once and
// returns. Otherwise it retries until at least one seed answers, or ctx is
// canceled.
func (ms *Membership) Bootstrap(ctx context.Context) error {
	isSeed := false
	var others []string

	for _, addr := range ms.Seeds {
		if addr == ms.Self.Address {
			isSeed = true
		} else {
			others = append(others, addr)
		}
	}

	counter := backoff.Counter{Strategy: DefaultBootstrapBackoff}

	for {
		if n := ms.pingAll(ctx, others); n > 0 || isSeed {
			return nil
		}

		if err := counter.Sleep(ctx, nil); err != nil {
			return err
		}
	}
}

// Run sends heartbeats to the other members until ctx is canceled.
func (ms *Membership) Run(ctx context.Context) error {
	for {
		if err := linger.Sleep(ctx, ms.HeartbeatInterval, DefaultHeartbeatInterval); err != nil {
			return err
		}

		ms.heartbeat(ctx)
	}
}

// heartbeat pings every known member and every seed, then removes members
// that have not answered within the failure timeout.
func (ms *Membership) heartbeat(ctx context.Context) {
	targets := map[string]struct{}{}

	for _, addr := range ms.Seeds {
		targets[addr] = struct{}{}
	}

	ms.m.RLock()
	for addr := range ms.members {
		targets[addr] = struct{}{}
	}
	ms.m.RUnlock()

	delete(targets, ms.Self.Address)

	addrs := make([]string, 0, len(targets))
	for addr := range targets {
		addrs = append(addrs, addr)
	}

	ctx, cancel := linger.ContextWithTimeout(ctx, ms.HeartbeatInterval, DefaultHeartbeatInterval)
	defer cancel()

	ms.pingAll(ctx, addrs)
	ms.expire()
}

// pingAll pings each of the given addresses concurrently, and returns the
// number that answered.
func (ms *Membership) pingAll(ctx context.Context, addrs []string) int {
	var (
		g errgroup.Group
		m sync.Mutex
		n int
	)

	for _, addr := range addrs {
		addr := addr

		g.Go(func() error {
			if err := ms.ping(ctx, addr); err != nil {
				logging.Debug(ms.Logger, "unable to ping %s: %s", addr, err)
				return nil
			}

			m.Lock()
			n++
			m.Unlock()

			return nil
		})
	}

	_ = g.Wait()

	return n
}

// ping exchanges membership information with the member at addr.
func (ms *Membership) ping(ctx context.Context, addr string) error {
	conn, err := ms.Peers.Get(addr)
	if err != nil {
		return err
	}

	res, err := grpcx.Invoke[pingResponse](
		ctx,
		conn,
		serviceName,
		"Ping",
		&pingRequest{From: ms.Self},
	)
	if err != nil {
		return err
	}

	ms.observe(res.Self)

	for _, m := range res.Members {
		ms.learn(m)
	}

	return nil
}

// observe records that m is alive, having heard from it directly.
func (ms *Membership) observe(m Member) {
	if m.Address == ms.Self.Address || m.Address == "" {
		return
	}

	ms.m.Lock()
	defer ms.m.Unlock()

	if ms.members == nil {
		ms.members = map[string]*memberState{}
	}

	s, ok := ms.members[m.Address]

	switch {
	case !ok:
		logging.Log(ms.Logger, "member %s (%s) joined the cluster", m.Address, m.ID)
		ms.members[m.Address] = &memberState{Member: m, lastSeen: ms.now()}
	case s.ID != m.ID:
		logging.Log(ms.Logger, "member %s restarted (%s -> %s)", m.Address, s.ID, m.ID)
		s.Member = m
		s.lastSeen = ms.now()
	default:
		s.lastSeen = ms.now()
	}
}

// learn records m as a member, having heard about it from some other member.
//
// It adds members that are not yet known, but never refreshes existing
// members, as the information may be stale.
func (ms *Membership) learn(m Member) {
	if m.Address == ms.Self.Address || m.Address == "" {
		return
	}

	ms.m.Lock()
	defer ms.m.Unlock()

	if ms.members == nil {
		ms.members = map[string]*memberState{}
	}

	if _, ok := ms.members[m.Address]; ok {
		return
	}

	logging.Log(ms.Logger, "member %s (%s) joined the cluster", m.Address, m.ID)
	ms.members[m.Address] = &memberState{Member: m, lastSeen: ms.now()}
}

// expire removes members that have not answered within the failure timeout.
func (ms *Membership) expire() {
	timeout := ms.FailureTimeout
	if timeout <= 0 {
		timeout = DefaultFailureTimeout
	}

	now := ms.now()

	ms.m.Lock()
	defer ms.m.Unlock()

	for addr, s := range ms.members {
		if now.Sub(s.lastSeen) < timeout {
			continue
		}

		delete(ms.members, addr)
		logging.Log(ms.Logger, "member %s (%s) left the cluster", addr, s.ID)

		// Forget the connection without holding up the heartbeat.
		go ms.Peers.Forget(addr) // nolint:errcheck
	}
}

func (ms *Membership) now() time.Time {
	if ms.Now != nil {
		return ms.Now()
	}

	return time.Now()
}
