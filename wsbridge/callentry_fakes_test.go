package wsbridge

import (
	"context"
	"io"
	"sync"

	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc/metadata"

	"github.com/panyam/grpcwsbridge/registry"
)

// recvResult is one step of a scripted Recv() sequence for the streaming
// fakes below; a zero-value result with a nil err after the scripted
// entries are exhausted falls through to io.EOF.
type recvResult struct {
	msg *dynamic.Message
	err error
}

type fakeServerStream struct {
	headers metadata.MD
	trailer metadata.MD
	results []recvResult
	idx     int
}

func (s *fakeServerStream) Recv() (*dynamic.Message, error) {
	if s.idx >= len(s.results) {
		return nil, io.EOF
	}
	r := s.results[s.idx]
	s.idx++
	return r.msg, r.err
}
func (s *fakeServerStream) Header() (metadata.MD, error) { return s.headers, nil }
func (s *fakeServerStream) Trailer() metadata.MD         { return s.trailer }

type fakeClientStream struct {
	headers   metadata.MD
	trailer   metadata.MD
	closeResp *dynamic.Message
	closeErr  error
	sendErr   error // if set, every Send returns this instead of succeeding

	mu   sync.Mutex
	sent []*dynamic.Message
}

func (s *fakeClientStream) Send(msg *dynamic.Message) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	return nil
}
func (s *fakeClientStream) CloseAndReceive() (*dynamic.Message, error) { return s.closeResp, s.closeErr }
func (s *fakeClientStream) Header() (metadata.MD, error)               { return s.headers, nil }
func (s *fakeClientStream) Trailer() metadata.MD                       { return s.trailer }
func (s *fakeClientStream) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fakeBidiStream struct {
	headers   metadata.MD
	trailer   metadata.MD
	results   []recvResult
	idx       int
	sendErr   error         // if set, every Send returns this instead of succeeding
	recvBlock chan struct{} // if set, Recv waits for this to close before its first read

	mu              sync.Mutex
	sent            []*dynamic.Message
	closeSendCalled bool
}

func (s *fakeBidiStream) Send(msg *dynamic.Message) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	return nil
}
func (s *fakeBidiStream) Recv() (*dynamic.Message, error) {
	if s.recvBlock != nil {
		<-s.recvBlock
	}
	if s.idx >= len(s.results) {
		return nil, io.EOF
	}
	r := s.results[s.idx]
	s.idx++
	return r.msg, r.err
}
func (s *fakeBidiStream) CloseSend() error {
	s.mu.Lock()
	s.closeSendCalled = true
	s.mu.Unlock()
	return nil
}
func (s *fakeBidiStream) Header() (metadata.MD, error) { return s.headers, nil }
func (s *fakeBidiStream) Trailer() metadata.MD         { return s.trailer }
func (s *fakeBidiStream) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// blockingServerStream never delivers a message until its block channel is
// closed, simulating a call that is still live when a test needs to
// observe state (e.g. a duplicate callId) while the original is open.
type blockingServerStream struct {
	block chan struct{}
}

func (s *blockingServerStream) Recv() (*dynamic.Message, error) {
	<-s.block
	return nil, io.EOF
}
func (s *blockingServerStream) Header() (metadata.MD, error) { return nil, nil }
func (s *blockingServerStream) Trailer() metadata.MD         { return nil }

// fakeInvoker is the test double for Invoker: every call shape returns a
// pre-scripted handle or error, letting callmanager tests drive the state
// machines without a live backend.
type fakeInvoker struct {
	unaryResp     *dynamic.Message
	unaryHeaders  metadata.MD
	unaryTrailers metadata.MD
	unaryErr      error
	unaryBlock    chan struct{} // if set, InvokeUnary waits for this to close

	serverStream    ServerStreamHandle
	serverStreamErr error

	clientStream    *fakeClientStream
	clientStreamErr error

	bidiStream    *fakeBidiStream
	bidiStreamErr error
}

func (f *fakeInvoker) InvokeUnary(ctx context.Context, md *registry.MethodDescriptor, target string, req *dynamic.Message, reqMD metadata.MD) (*dynamic.Message, metadata.MD, metadata.MD, error) {
	if f.unaryBlock != nil {
		<-f.unaryBlock
	}
	return f.unaryResp, f.unaryHeaders, f.unaryTrailers, f.unaryErr
}

func (f *fakeInvoker) InvokeServerStream(ctx context.Context, md *registry.MethodDescriptor, target string, req *dynamic.Message, reqMD metadata.MD) (ServerStreamHandle, error) {
	if f.serverStreamErr != nil {
		return nil, f.serverStreamErr
	}
	return f.serverStream, nil
}

func (f *fakeInvoker) InvokeClientStream(ctx context.Context, md *registry.MethodDescriptor, target string, reqMD metadata.MD) (ClientStreamHandle, error) {
	if f.clientStreamErr != nil {
		return nil, f.clientStreamErr
	}
	return f.clientStream, nil
}

func (f *fakeInvoker) InvokeBidiStream(ctx context.Context, md *registry.MethodDescriptor, target string, reqMD metadata.MD) (BidiStreamHandle, error) {
	if f.bidiStreamErr != nil {
		return nil, f.bidiStreamErr
	}
	return f.bidiStream, nil
}

var _ Invoker = (*fakeInvoker)(nil)
