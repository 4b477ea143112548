package wsbridge

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/panyam/grpcwsbridge/registry"
)

// CallManager owns a single connection's call table and drives the state
// machines for the four RPC call shapes (unary, server-streaming,
// client-streaming, bidi-streaming). It is deliberately agnostic of the
// WebSocket: Dispatch takes inbound Frames and emit sends outbound Frames,
// so it can be driven by a real connection or, in tests, by a fake Invoker
// and a captured emit slice.
type CallManager struct {
	registry      *registry.Registry
	invoker       Invoker
	defaultTarget string
	emit          func(Frame)

	mu    sync.Mutex
	calls map[string]*CallEntry
}

// NewCallManager returns an empty Call Manager for one connection.
func NewCallManager(reg *registry.Registry, invoker Invoker, defaultTarget string, emit func(Frame)) *CallManager {
	return &CallManager{
		registry:      reg,
		invoker:       invoker,
		defaultTarget: defaultTarget,
		emit:          emit,
		calls:         make(map[string]*CallEntry),
	}
}

// Dispatch routes one inbound frame to the handler for its type. It must be
// called from a single goroutine per connection; the Call Manager performs
// no internal serialization of inbound frames beyond the call table lock.
func (cm *CallManager) Dispatch(f Frame) {
	switch f.Type {
	case FrameStart:
		cm.handleStart(f)
	case FrameWrite:
		cm.handleWrite(f)
	case FrameEnd:
		cm.handleEnd(f)
	case FrameCancel:
		cm.handleCancel(f)
	case frameMalformed:
		cm.rejectLocal(f.CallID, codes.InvalidArgument, "malformed or non-object frame")
	default:
		cm.rejectLocal(f.CallID, codes.Unimplemented, fmt.Sprintf("unknown frame type %q", f.Type))
	}
}

// CloseAll cancels every live call and empties the table. No frames are
// emitted for any of them; the connection is already gone.
func (cm *CallManager) CloseAll() {
	cm.mu.Lock()
	entries := make([]*CallEntry, 0, len(cm.calls))
	for _, entry := range cm.calls {
		entries = append(entries, entry)
	}
	cm.calls = make(map[string]*CallEntry)
	cm.mu.Unlock()

	for _, entry := range entries {
		entry.cancel()
	}
}

func (cm *CallManager) handleStart(f Frame) {
	if f.CallID == "" || f.Method == "" {
		cm.rejectLocal(f.CallID, codes.InvalidArgument, "start requires callId and method")
		return
	}

	cm.mu.Lock()
	if _, exists := cm.calls[f.CallID]; exists {
		cm.mu.Unlock()
		cm.rejectLocal(f.CallID, codes.AlreadyExists, fmt.Sprintf("callId %q already in use", f.CallID))
		return
	}
	cm.mu.Unlock()

	pkgPath, serviceName, methodName, err := registry.ParseFQMethod(f.Method)
	if err != nil {
		cm.rejectFromError(f.CallID, err, codes.InvalidArgument)
		return
	}
	methodDesc, err := cm.registry.GetMethodDescriptor(pkgPath, serviceName, methodName)
	if err != nil {
		cm.rejectFromError(f.CallID, err, codes.NotFound)
		return
	}

	reqMD, err := DecodeMetadataJSON(f.Metadata)
	if err != nil {
		cm.rejectLocal(f.CallID, codes.Unknown, err.Error())
		return
	}

	req, err := DecodePayload(methodDesc.InputType(), f.Payload, f.BinaryFields)
	if err != nil {
		cm.rejectLocal(f.CallID, codes.Unknown, err.Error())
		return
	}
	hasPayload := len(f.Payload) > 0 && string(f.Payload) != "null"

	target := f.Target
	if target == "" {
		target = cm.defaultTarget
	}

	ctx, cancel := context.WithCancel(context.Background())
	entry := newCallEntry(f.CallID, methodDesc.Kind(), f.Method, target, methodDesc.InputType(), f.BinaryFields, cancel)

	switch entry.kind {
	case registry.KindUnary:
		cm.insertCall(entry)
		go cm.runUnary(ctx, entry, methodDesc, req, reqMD)

	case registry.KindServerStream:
		cm.insertCall(entry)
		go cm.runServerStream(ctx, entry, methodDesc, req, reqMD)

	case registry.KindClientStream:
		stream, err := cm.invoker.InvokeClientStream(ctx, methodDesc, target, reqMD)
		if err != nil {
			cancel()
			cm.rejectFromError(f.CallID, err, codes.Unknown)
			return
		}
		entry.clientStream = stream
		cm.insertCall(entry)
		if hasPayload {
			if sendErr := stream.Send(req); sendErr != nil {
				if sendErr != io.EOF {
					cm.finishWithError(entry, sendErr, stream.Trailer())
					return
				}
				// The backend already ended the call. Don't wait for an
				// end frame that may never come; wake the run loop so it
				// retrieves the real status via CloseAndReceive.
				entry.signalEnd()
			}
		}
		go cm.runClientStream(ctx, entry, stream)

	case registry.KindBidiStream:
		stream, err := cm.invoker.InvokeBidiStream(ctx, methodDesc, target, reqMD)
		if err != nil {
			cancel()
			cm.rejectFromError(f.CallID, err, codes.Unknown)
			return
		}
		entry.bidiStream = stream
		cm.insertCall(entry)
		if hasPayload {
			if sendErr := stream.Send(req); sendErr != nil && sendErr != io.EOF {
				cm.finishWithError(entry, sendErr, stream.Trailer())
				return
			}
			// On io.EOF the backend already ended the call; runBidiStream's
			// Recv loop below will discover the real terminal status.
		}
		go cm.runBidiStream(entry, stream)
	}
}

func (cm *CallManager) handleWrite(f Frame) {
	entry, ok := cm.lookup(f.CallID)
	if !ok {
		cm.rejectLocal(f.CallID, codes.NotFound, fmt.Sprintf("unknown callId %q", f.CallID))
		return
	}
	if entry.kind != registry.KindClientStream && entry.kind != registry.KindBidiStream {
		cm.rejectLocal(f.CallID, codes.FailedPrecondition, fmt.Sprintf("write is not legal on a %s call", entry.kind))
		return
	}
	if !entry.canWrite() {
		cm.rejectLocal(f.CallID, codes.FailedPrecondition, fmt.Sprintf("call %q is not active", f.CallID))
		return
	}

	req, err := DecodePayload(entry.inputType, f.Payload, f.BinaryFields)
	if err != nil {
		cm.rejectLocal(f.CallID, codes.Unknown, err.Error())
		return
	}

	switch entry.kind {
	case registry.KindClientStream:
		if sendErr := entry.clientStream.Send(req); sendErr != nil {
			if sendErr == io.EOF {
				// The backend already ended the call; Send's own error is
				// not the real status. Wake the run loop so it retrieves
				// the real status via CloseAndReceive instead of a second,
				// bogus terminal frame being emitted from here.
				entry.signalEnd()
				return
			}
			cm.finishWithError(entry, sendErr, entry.clientStream.Trailer())
		}
	case registry.KindBidiStream:
		if sendErr := entry.bidiStream.Send(req); sendErr != nil {
			if sendErr == io.EOF {
				// runBidiStream's Recv loop will surface the real terminal
				// status; nothing to do here.
				return
			}
			cm.finishWithError(entry, sendErr, entry.bidiStream.Trailer())
		}
	}
}

func (cm *CallManager) handleEnd(f Frame) {
	entry, ok := cm.lookup(f.CallID)
	if !ok {
		cm.rejectLocal(f.CallID, codes.NotFound, fmt.Sprintf("unknown callId %q", f.CallID))
		return
	}

	switch entry.kind {
	case registry.KindClientStream:
		entry.signalEnd()
	case registry.KindBidiStream:
		entry.signalEnd()
		if entry.bidiStream != nil {
			_ = entry.bidiStream.CloseSend()
		}
	default:
		cm.rejectLocal(f.CallID, codes.FailedPrecondition, fmt.Sprintf("end is not legal on a %s call", entry.kind))
	}
}

func (cm *CallManager) handleCancel(f Frame) {
	entry, ok := cm.takeCall(f.CallID)
	if !ok {
		cm.rejectLocal(f.CallID, codes.NotFound, fmt.Sprintf("unknown callId %q", f.CallID))
		return
	}
	entry.cancel()
}

// runUnary drives the unary call shape: invoke, then a single data frame
// and terminal status.
func (cm *CallManager) runUnary(ctx context.Context, entry *CallEntry, md *registry.MethodDescriptor, req *dynamic.Message, reqMD metadata.MD) {
	resp, headers, trailers, err := cm.invoker.InvokeUnary(ctx, md, entry.target, req, reqMD)
	if len(headers) > 0 {
		cm.emitHeaders(entry.callID, headers)
	}
	if err != nil {
		cm.finishWithError(entry, err, trailers)
		return
	}
	payload, err := EncodePayload(resp, entry.binaryFields)
	if err != nil {
		cm.finishWithError(entry, err, trailers)
		return
	}
	cm.emit(Frame{Type: FrameData, CallID: entry.callID, Payload: payload})
	cm.finishOK(entry, trailers)
}

// runServerStream drives the server-streaming call shape: zero or more
// data frames followed by the terminal status taken from the stream.
func (cm *CallManager) runServerStream(ctx context.Context, entry *CallEntry, md *registry.MethodDescriptor, req *dynamic.Message, reqMD metadata.MD) {
	stream, err := cm.invoker.InvokeServerStream(ctx, md, entry.target, req, reqMD)
	if err != nil {
		cm.finishWithError(entry, err, nil)
		return
	}

	headersSent := false
	for {
		if !headersSent {
			headersSent = true
			if headers, herr := stream.Header(); herr == nil && len(headers) > 0 {
				cm.emitHeaders(entry.callID, headers)
			}
		}
		msg, err := stream.Recv()
		if err == io.EOF {
			cm.finishOK(entry, stream.Trailer())
			return
		}
		if err != nil {
			cm.finishWithError(entry, err, stream.Trailer())
			return
		}
		payload, perr := EncodePayload(msg, entry.binaryFields)
		if perr != nil {
			cm.finishWithError(entry, perr, stream.Trailer())
			return
		}
		cm.emit(Frame{Type: FrameData, CallID: entry.callID, Payload: payload})
	}
}

// runClientStream waits for the client to half-close via end, then
// collects the single response. It also wakes on ctx.Done so a cancel or
// connection teardown before end arrives doesn't leak this goroutine
// forever.
func (cm *CallManager) runClientStream(ctx context.Context, entry *CallEntry, stream ClientStreamHandle) {
	select {
	case <-entry.endCh:
	case <-ctx.Done():
		return
	}

	if headers, err := stream.Header(); err == nil && len(headers) > 0 {
		cm.emitHeaders(entry.callID, headers)
	}

	resp, err := stream.CloseAndReceive()
	if err != nil {
		cm.finishWithError(entry, err, stream.Trailer())
		return
	}
	payload, err := EncodePayload(resp, entry.binaryFields)
	if err != nil {
		cm.finishWithError(entry, err, stream.Trailer())
		return
	}
	cm.emit(Frame{Type: FrameData, CallID: entry.callID, Payload: payload})
	cm.finishOK(entry, stream.Trailer())
}

// runBidiStream relays server responses in arrival order until the server
// closes with status.
func (cm *CallManager) runBidiStream(entry *CallEntry, stream BidiStreamHandle) {
	headersSent := false
	for {
		if !headersSent {
			headersSent = true
			if headers, err := stream.Header(); err == nil && len(headers) > 0 {
				cm.emitHeaders(entry.callID, headers)
			}
		}
		msg, err := stream.Recv()
		if err == io.EOF {
			cm.finishOK(entry, stream.Trailer())
			return
		}
		if err != nil {
			cm.finishWithError(entry, err, stream.Trailer())
			return
		}
		payload, perr := EncodePayload(msg, entry.binaryFields)
		if perr != nil {
			cm.finishWithError(entry, perr, stream.Trailer())
			return
		}
		cm.emit(Frame{Type: FrameData, CallID: entry.callID, Payload: payload})
	}
}

func (cm *CallManager) insertCall(entry *CallEntry) {
	cm.mu.Lock()
	cm.calls[entry.callID] = entry
	cm.mu.Unlock()
}

func (cm *CallManager) lookup(callID string) (*CallEntry, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	entry, ok := cm.calls[callID]
	return entry, ok
}

// takeCall atomically removes and returns callID's entry if present. Every
// path that can end a call — an inbound cancel, or a run loop reaching its
// own terminal outcome — goes through this, so whichever one actually
// wins the removal is the only one that gets to act on the entry again.
func (cm *CallManager) takeCall(callID string) (*CallEntry, bool) {
	cm.mu.Lock()
	entry, ok := cm.calls[callID]
	if ok {
		delete(cm.calls, callID)
	}
	cm.mu.Unlock()
	return entry, ok
}

func (cm *CallManager) emitHeaders(callID string, headers metadata.MD) {
	cm.emit(Frame{Type: FrameHeaders, CallID: callID, Metadata: EncodeMetadataJSON(headers)})
}

// finishOK emits the terminal success frame for a call, but only if this
// call is the one that removes the entry from the table — a call already
// cancelled (and thus already removed) produces no frame here.
func (cm *CallManager) finishOK(entry *CallEntry, trailers metadata.MD) {
	if _, ok := cm.takeCall(entry.callID); !ok {
		return
	}
	entry.markClosed()
	cm.emit(Frame{Type: FrameStatus, CallID: entry.callID, Status: &StatusJSON{
		Code:     int(codes.OK),
		Details:  "OK",
		Metadata: EncodeMetadataJSON(trailers),
	}})
}

// finishWithError emits the terminal frame for a failed call, gated the
// same way as finishOK so a call can only be finished once. An error that
// already carries a gRPC status (even non-OK) passes through as a
// terminal status frame with that code; only errors with no gRPC status
// at all (marshalling/transport exceptions) become an error frame with
// codes.Unknown.
func (cm *CallManager) finishWithError(entry *CallEntry, err error, trailers metadata.MD) {
	if _, ok := cm.takeCall(entry.callID); !ok {
		return
	}
	entry.markClosed()

	if st, ok := status.FromError(err); ok {
		cm.emit(Frame{Type: FrameStatus, CallID: entry.callID, Status: &StatusJSON{
			Code:     int(st.Code()),
			Details:  st.Message(),
			Metadata: EncodeMetadataJSON(trailers),
		}})
		return
	}

	cm.emit(Frame{Type: FrameError, CallID: entry.callID, Error: &StatusJSON{
		Code:     int(codes.Unknown),
		Details:  err.Error(),
		Metadata: EncodeMetadataJSON(trailers),
	}})
}

func (cm *CallManager) rejectLocal(callID string, code codes.Code, details string) {
	cm.emit(Frame{Type: FrameError, CallID: callID, Error: &StatusJSON{
		Code:    int(code),
		Details: details,
	}})
}

// rejectFromError emits a local rejection, preferring the code/message
// already carried by err's gRPC status (e.g. from registry lookups) and
// falling back to the given code when err carries none.
func (cm *CallManager) rejectFromError(callID string, err error, fallback codes.Code) {
	if st, ok := status.FromError(err); ok {
		cm.rejectLocal(callID, st.Code(), st.Message())
		return
	}
	cm.rejectLocal(callID, fallback, err.Error())
}
