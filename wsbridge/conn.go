package wsbridge

import (
	"net/http"

	"github.com/panyam/grpcwsbridge/registry"
	"github.com/panyam/grpcwsbridge/transport"
)

// BridgeConn is one WebSocket connection's bridge endpoint: a
// transport.BaseConn carrying Frame messages in both directions, backed by
// a fresh per-connection CallManager.
type BridgeConn struct {
	transport.BaseConn[Frame, Frame]
	cm *CallManager
}

// NewBridgeConn wires a fresh CallManager whose emit callback funnels
// through the connection's own serialized Writer.
func NewBridgeConn(reg *registry.Registry, invoker Invoker, defaultTarget string) *BridgeConn {
	conn := &BridgeConn{}
	conn.Codec = &FrameCodec{}
	conn.NameStr = "BridgeConn"
	conn.cm = NewCallManager(reg, invoker, defaultTarget, func(f Frame) { conn.SendOutput(f) })
	return conn
}

// HandleMessage dispatches one inbound frame to the call manager.
func (c *BridgeConn) HandleMessage(f Frame) error {
	c.cm.Dispatch(f)
	return nil
}

// OnClose cancels every in-flight call before tearing down the socket. No
// frames are emitted for a connection that is already gone.
func (c *BridgeConn) OnClose() {
	c.cm.CloseAll()
	c.BaseConn.OnClose()
}

// BridgeHandler accepts every WebSocket upgrade and hands out a fresh
// BridgeConn per connection, sharing the registry and invoker across all
// connections.
type BridgeHandler struct {
	Registry      *registry.Registry
	Invoker       Invoker
	DefaultTarget string
}

// Validate implements transport.WSHandler.
func (h *BridgeHandler) Validate(w http.ResponseWriter, r *http.Request) (*BridgeConn, bool) {
	return NewBridgeConn(h.Registry, h.Invoker, h.DefaultTarget), true
}

var (
	_ transport.WSConn[Frame]                = (*BridgeConn)(nil)
	_ transport.WSHandler[Frame, *BridgeConn] = (*BridgeHandler)(nil)
)
