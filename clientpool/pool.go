// Package clientpool caches gRPC channels and dynamic client stubs keyed by
// backend target and service, so repeated calls against the same backend
// reuse one connection instead of dialing per call.
package clientpool

import (
	"fmt"
	"sync"

	"github.com/jhump/protoreflect/dynamic/grpcdynamic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// stubKey identifies a cached stub by backend target and service FQN, per
// §4.2's specified cache shape.
type stubKey struct {
	target     string
	serviceFQN string
}

// Pool caches one *grpc.ClientConn per target and one *grpcdynamic.Stub per
// (target, serviceFQN). Both caches are read-mostly after warm-up; a single
// mutex guards every lookup as well as the (rare) miss path.
type Pool struct {
	creds credentials.TransportCredentials

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
	stubs map[stubKey]*grpcdynamic.Stub
}

// New returns a Pool that dials backends with the given transport
// credentials (plaintext or TLS; see BuildCredentials).
func New(creds credentials.TransportCredentials) *Pool {
	return &Pool{
		creds: creds,
		conns: make(map[string]*grpc.ClientConn),
		stubs: make(map[stubKey]*grpcdynamic.Stub),
	}
}

// Stub returns the cached stub for (target, serviceFQN), dialing the target
// and constructing the stub on first use.
func (p *Pool) Stub(target, serviceFQN string) (*grpcdynamic.Stub, error) {
	key := stubKey{target: target, serviceFQN: serviceFQN}

	p.mu.Lock()
	defer p.mu.Unlock()

	if stub, ok := p.stubs[key]; ok {
		return stub, nil
	}

	conn, ok := p.conns[target]
	if !ok {
		var err error
		conn, err = grpc.NewClient(target, grpc.WithTransportCredentials(p.creds))
		if err != nil {
			return nil, fmt.Errorf("clientpool: failed to dial %q: %w", target, err)
		}
		p.conns[target] = conn
	}

	stub := grpcdynamic.NewStub(conn)
	p.stubs[key] = &stub
	return &stub, nil
}

// Close tears down every cached connection. Intended for process shutdown;
// individual calls never close connections.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for target, conn := range p.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("clientpool: failed to close connection to %q: %w", target, err)
		}
	}
	p.conns = make(map[string]*grpc.ClientConn)
	p.stubs = make(map[stubKey]*grpcdynamic.Stub)
	return firstErr
}
