package wsbridge

import (
	"context"

	"github.com/jhump/protoreflect/dynamic"
	"github.com/jhump/protoreflect/dynamic/grpcdynamic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/panyam/grpcwsbridge/clientpool"
	"github.com/panyam/grpcwsbridge/registry"
)

// Invoker abstracts the four gRPC call shapes behind one method per shape,
// so the Call Manager's dispatch and state-machine logic can be unit
// tested against a fake implementation without a live backend. The
// production implementation, grpcStubInvoker, is backed by a
// clientpool.Pool and grpcdynamic.Stub.
type Invoker interface {
	InvokeUnary(ctx context.Context, md *registry.MethodDescriptor, target string, req *dynamic.Message, reqMD metadata.MD) (resp *dynamic.Message, headers, trailers metadata.MD, err error)
	InvokeServerStream(ctx context.Context, md *registry.MethodDescriptor, target string, req *dynamic.Message, reqMD metadata.MD) (ServerStreamHandle, error)
	InvokeClientStream(ctx context.Context, md *registry.MethodDescriptor, target string, reqMD metadata.MD) (ClientStreamHandle, error)
	InvokeBidiStream(ctx context.Context, md *registry.MethodDescriptor, target string, reqMD metadata.MD) (BidiStreamHandle, error)
}

// ServerStreamHandle is a live server-streaming call. Recv returns io.EOF
// once the server has sent its terminal status.
type ServerStreamHandle interface {
	Recv() (*dynamic.Message, error)
	Header() (metadata.MD, error)
	Trailer() metadata.MD
}

// ClientStreamHandle is a live client-streaming call.
type ClientStreamHandle interface {
	Send(*dynamic.Message) error
	CloseAndReceive() (*dynamic.Message, error)
	Header() (metadata.MD, error)
	Trailer() metadata.MD
}

// BidiStreamHandle is a live bidirectional-streaming call.
type BidiStreamHandle interface {
	Send(*dynamic.Message) error
	Recv() (*dynamic.Message, error)
	CloseSend() error
	Header() (metadata.MD, error)
	Trailer() metadata.MD
}

// grpcStubInvoker is the production Invoker, dispatching through a cached
// grpcdynamic.Stub per (target, service).
type grpcStubInvoker struct {
	pool *clientpool.Pool
}

// NewInvoker returns the production Invoker backed by pool.
func NewInvoker(pool *clientpool.Pool) Invoker {
	return &grpcStubInvoker{pool: pool}
}

func (inv *grpcStubInvoker) stub(md *registry.MethodDescriptor, target string) (*grpcdynamic.Stub, error) {
	return inv.pool.Stub(target, md.FullServiceName)
}

func (inv *grpcStubInvoker) InvokeUnary(ctx context.Context, md *registry.MethodDescriptor, target string, req *dynamic.Message, reqMD metadata.MD) (*dynamic.Message, metadata.MD, metadata.MD, error) {
	stub, err := inv.stub(md, target)
	if err != nil {
		return nil, nil, nil, err
	}

	var headers, trailers metadata.MD
	ctx = metadata.NewOutgoingContext(ctx, reqMD)
	resp, err := stub.InvokeRpc(ctx, md.Desc, req, grpc.Header(&headers), grpc.Trailer(&trailers))
	if err != nil {
		return nil, headers, trailers, err
	}
	dynResp, ok := resp.(*dynamic.Message)
	if !ok {
		dynResp = dynamic.NewMessage(md.OutputType())
		if err := dynResp.ConvertFrom(resp); err != nil {
			return nil, headers, trailers, err
		}
	}
	return dynResp, headers, trailers, nil
}

func (inv *grpcStubInvoker) InvokeServerStream(ctx context.Context, md *registry.MethodDescriptor, target string, req *dynamic.Message, reqMD metadata.MD) (ServerStreamHandle, error) {
	stub, err := inv.stub(md, target)
	if err != nil {
		return nil, err
	}
	ctx = metadata.NewOutgoingContext(ctx, reqMD)
	stream, err := stub.InvokeRpcServerStream(ctx, md.Desc, req)
	if err != nil {
		return nil, err
	}
	return &serverStreamHandle{stream: stream}, nil
}

func (inv *grpcStubInvoker) InvokeClientStream(ctx context.Context, md *registry.MethodDescriptor, target string, reqMD metadata.MD) (ClientStreamHandle, error) {
	stub, err := inv.stub(md, target)
	if err != nil {
		return nil, err
	}
	ctx = metadata.NewOutgoingContext(ctx, reqMD)
	stream, err := stub.InvokeRpcClientStream(ctx, md.Desc)
	if err != nil {
		return nil, err
	}
	return &clientStreamHandle{stream: stream}, nil
}

func (inv *grpcStubInvoker) InvokeBidiStream(ctx context.Context, md *registry.MethodDescriptor, target string, reqMD metadata.MD) (BidiStreamHandle, error) {
	stub, err := inv.stub(md, target)
	if err != nil {
		return nil, err
	}
	ctx = metadata.NewOutgoingContext(ctx, reqMD)
	stream, err := stub.InvokeRpcBidiStream(ctx, md.Desc)
	if err != nil {
		return nil, err
	}
	return &bidiStreamHandle{stream: stream}, nil
}

type serverStreamHandle struct {
	stream *grpcdynamic.ServerStream
}

func (h *serverStreamHandle) Recv() (*dynamic.Message, error) {
	msg, err := h.stream.RecvMsg()
	if err != nil {
		return nil, err
	}
	return msg.(*dynamic.Message), nil
}

func (h *serverStreamHandle) Header() (metadata.MD, error) { return h.stream.Header() }
func (h *serverStreamHandle) Trailer() metadata.MD         { return h.stream.Trailer() }

type clientStreamHandle struct {
	stream *grpcdynamic.ClientStream
}

func (h *clientStreamHandle) Send(msg *dynamic.Message) error { return h.stream.SendMsg(msg) }

func (h *clientStreamHandle) CloseAndReceive() (*dynamic.Message, error) {
	resp, err := h.stream.CloseAndReceive()
	if err != nil {
		return nil, err
	}
	return resp.(*dynamic.Message), nil
}

func (h *clientStreamHandle) Header() (metadata.MD, error) { return h.stream.Header() }
func (h *clientStreamHandle) Trailer() metadata.MD         { return h.stream.Trailer() }

type bidiStreamHandle struct {
	stream *grpcdynamic.BidiStream
}

func (h *bidiStreamHandle) Send(msg *dynamic.Message) error { return h.stream.SendMsg(msg) }

func (h *bidiStreamHandle) Recv() (*dynamic.Message, error) {
	msg, err := h.stream.RecvMsg()
	if err != nil {
		return nil, err
	}
	return msg.(*dynamic.Message), nil
}

func (h *bidiStreamHandle) CloseSend() error           { return h.stream.CloseSend() }
func (h *bidiStreamHandle) Header() (metadata.MD, error) { return h.stream.Header() }
func (h *bidiStreamHandle) Trailer() metadata.MD         { return h.stream.Trailer() }

var _ Invoker = (*grpcStubInvoker)(nil)
