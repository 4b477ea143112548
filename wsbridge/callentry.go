package wsbridge

import (
	"context"
	"sync"

	"github.com/jhump/protoreflect/desc"

	"github.com/panyam/grpcwsbridge/registry"
)

// callState tracks where a CallEntry sits in its open/half-closed/closed
// lifecycle.
type callState int

const (
	stateActive callState = iota
	stateHalfClosed
	stateClosed
)

// CallEntry is the per-call record held in a connection's call table.
// At most one of clientStream/bidiStream is populated, chosen by kind;
// unary and server-streaming calls carry neither, since write/end are
// always rejected for them.
type CallEntry struct {
	callID string
	kind   registry.CallKind
	method string
	target string

	inputType *desc.MessageDescriptor

	binaryFields []string

	cancel context.CancelFunc

	mu           sync.Mutex
	state        callState
	clientStream ClientStreamHandle
	bidiStream   BidiStreamHandle

	endOnce sync.Once
	endCh   chan struct{}
}

func newCallEntry(callID string, kind registry.CallKind, method, target string, inputType *desc.MessageDescriptor, binaryFields []string, cancel context.CancelFunc) *CallEntry {
	return &CallEntry{
		callID:       callID,
		kind:         kind,
		method:       method,
		target:       target,
		inputType:    inputType,
		binaryFields: binaryFields,
		cancel:       cancel,
		state:        stateActive,
		endCh:        make(chan struct{}),
	}
}

// signalEnd closes endCh exactly once, waking a blocked client-streaming
// run loop waiting to half-close and collect the final response, and moves
// the entry to stateHalfClosed so a later write is rejected explicitly
// instead of reaching the backend stream.
func (e *CallEntry) signalEnd() {
	e.endOnce.Do(func() { close(e.endCh) })
	e.mu.Lock()
	if e.state == stateActive {
		e.state = stateHalfClosed
	}
	e.mu.Unlock()
}

// canWrite reports whether a write frame may still be sent on this call:
// it must be active, not half-closed or closed.
func (e *CallEntry) canWrite() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == stateActive
}

func (e *CallEntry) markClosed() {
	e.mu.Lock()
	e.state = stateClosed
	e.mu.Unlock()
}
