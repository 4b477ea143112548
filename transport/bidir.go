package transport

import "time"

// BiDirStreamConfig provides configuration for bidirectional stream connections.
// It controls the timing of health checks and connection timeout detection.
type BiDirStreamConfig struct {
	// PingPeriod specifies how often to send ping messages to the remote peer.
	// Pings are used as heartbeat messages to verify the connection is alive.
	// Default: 30 seconds.
	PingPeriod time.Duration

	// PongPeriod specifies the maximum time to wait for any data (ping, pong, or
	// regular messages) from the remote peer before considering the connection dead.
	// If no data is received within this duration, OnTimeout() is called.
	// Default: 300 seconds (5 minutes).
	PongPeriod time.Duration
}

// DefaultBiDirStreamConfig returns a BiDirStreamConfig with sensible defaults:
//   - PingPeriod: 30 seconds
//   - PongPeriod: 300 seconds (5 minutes)
func DefaultBiDirStreamConfig() *BiDirStreamConfig {
	return &BiDirStreamConfig{
		PingPeriod: time.Second * 30,
		PongPeriod: time.Second * 300,
	}
}

// BiDirStreamConn defines the lifecycle and message handling interface for
// bidirectional stream connections. Implementations handle messages of type I
// and manage connection state through lifecycle hooks.
type BiDirStreamConn[I any] interface {
	// SendPing sends a heartbeat ping message to the remote peer.
	SendPing() error

	// Name returns an optional human-readable name for this connection type.
	Name() string

	// ConnId returns a unique identifier for this specific connection instance.
	ConnId() string

	// HandleMessage processes an incoming message of type I.
	HandleMessage(msg I) error

	// OnError is called when an error occurs during connection operation.
	// Return nil to suppress the error and continue the connection.
	OnError(err error) error

	// OnClose is called when the connection is closing for any reason.
	OnClose()

	// OnTimeout is called when no data has been received within the PongPeriod.
	// Return true to close the connection, false to continue waiting.
	OnTimeout() bool
}
