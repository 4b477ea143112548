package registry

import "github.com/jhump/protoreflect/desc"

// CallKind identifies which of the four RPC shapes a method has, derived
// from its streaming flags.
type CallKind int

const (
	// KindUnary is a plain request/response call.
	KindUnary CallKind = iota
	// KindServerStream is a single request, many responses.
	KindServerStream
	// KindClientStream is many requests, a single response.
	KindClientStream
	// KindBidiStream is many requests and many responses, concurrently.
	KindBidiStream
)

func (k CallKind) String() string {
	switch k {
	case KindUnary:
		return "unary"
	case KindServerStream:
		return "server"
	case KindClientStream:
		return "client"
	case KindBidiStream:
		return "bidi"
	default:
		return "unknown"
	}
}

// MethodDescriptor describes a resolved RPC method: its identity, its
// streaming shape, and the underlying descriptor used to build and parse
// dynamic request/response messages.
type MethodDescriptor struct {
	PkgPath           string
	ServiceName       string
	MethodName        string
	RequestStreaming  bool
	ResponseStreaming bool
	Desc              *desc.MethodDescriptor
	FullServiceName   string
}

// Kind derives the call shape from the streaming flags.
func (m *MethodDescriptor) Kind() CallKind {
	switch {
	case m.RequestStreaming && m.ResponseStreaming:
		return KindBidiStream
	case m.RequestStreaming:
		return KindClientStream
	case m.ResponseStreaming:
		return KindServerStream
	default:
		return KindUnary
	}
}

// FullMethodPath returns the gRPC wire path for this method, e.g.
// "/pkg.Service/Method", suitable for grpcdynamic.Stub invocations.
func (m *MethodDescriptor) FullMethodPath() string {
	return "/" + m.FullServiceName + "/" + m.MethodName
}

// InputType returns the message descriptor for the method's request type.
func (m *MethodDescriptor) InputType() *desc.MessageDescriptor {
	return m.Desc.GetInputType()
}

// OutputType returns the message descriptor for the method's response type.
func (m *MethodDescriptor) OutputType() *desc.MessageDescriptor {
	return m.Desc.GetOutputType()
}
