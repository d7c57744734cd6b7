package cluster

import (
	"sync"

	"github.com/bakerykit/bakery/internal/x/grpcx"
	"go.uber.org/multierr"
	"google.golang.org/grpc"
)

// Peers is a cache of client connections to other members of the cluster.
type Peers struct {
	// DialOptions is a set of options used when dialing each member.
	DialOptions []grpc.DialOption

	m     sync.Mutex
	conns map[string]*grpc.ClientConn
}

// Get returns a connection to the member at the given address.
func (p *Peers) Get(addr string) (grpc.ClientConnInterface, error) {
	p.m.Lock()
	defer p.m.Unlock()

	if conn, ok := p.conns[addr]; ok {
		return conn, nil
	}

	conn, err := grpcx.Dial(addr, p.DialOptions...)
	if err != nil {
		return nil, err
	}

	if p.conns == nil {
		p.conns = map[string]*grpc.ClientConn{}
	}
	p.conns[addr] = conn

	return conn, nil
}

// Forget closes the connection to the member at the given address, if any.
func (p *Peers) Forget(addr string) error {
	p.m.Lock()
	conn, ok := p.conns[addr]
	delete(p.conns, addr)
	p.m.Unlock()

	if ok {
		return conn.Close()
	}

	return nil
}

// Close closes all connections.
func (p *Peers) Close() error {
	p.m.Lock()
	defer p.m.Unlock()

	var err error
	for addr, conn := range p.conns {
		err = multierr.Append(err, conn.Close())
		delete(p.conns, addr)
	}

	return err
}
