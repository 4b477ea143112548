package transport

import (
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	conc "github.com/panyam/gocurrent"
)

// WSConn represents a bidirectional WebSocket connection that can handle
// typed messages of type I. Implementations typically embed BaseConn[I, O]
// and override HandleMessage.
type WSConn[I any] interface {
	BiDirStreamConn[I]

	// ReadMessage reads and decodes the next message, called in a loop by
	// WSHandleConn. Returns the decoded message or an error (incl. io.EOF).
	ReadMessage(w *websocket.Conn) (I, error)

	// OnStart is called once the WebSocket connection is established.
	OnStart(conn *websocket.Conn) error
}

// WSHandler validates HTTP requests and creates WebSocket connections.
type WSHandler[I any, S WSConn[I]] interface {
	// Validate checks if the HTTP request should be upgraded.
	// Return (connection, true) to proceed, (nil, false) to reject.
	Validate(w http.ResponseWriter, r *http.Request) (S, bool)
}

// WSConnConfig combines BiDirStreamConfig with WebSocket-specific settings.
type WSConnConfig struct {
	*BiDirStreamConfig
	Upgrader websocket.Upgrader
}

// DefaultWSConnConfig returns sensible defaults for buffer sizes, origin
// checking, and ping/pong timing.
func DefaultWSConnConfig() *WSConnConfig {
	return &WSConnConfig{
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		BiDirStreamConfig: DefaultBiDirStreamConfig(),
	}
}

// WSServe creates an http.HandlerFunc that upgrades HTTP requests to
// WebSocket connections and manages their lifecycle. config may be nil.
func WSServe[I any, S WSConn[I]](handler WSHandler[I, S], config *WSConnConfig) http.HandlerFunc {
	if config == nil {
		config = DefaultWSConnConfig()
	}
	return func(rw http.ResponseWriter, req *http.Request) {
		ctx, isValid := handler.Validate(rw, req)
		if !isValid {
			return
		}

		conn, err := config.Upgrader.Upgrade(rw, req, nil)
		if err != nil {
			http.Error(rw, "WS Upgrade failed", 400)
			log.Println("WS upgrade failed: ", err)
			return
		}
		defer conn.Close()

		log.Println("Start handling connection: ", ctx.ConnId())
		WSHandleConn(conn, ctx, config)
	}
}

// WSHandleConn manages the lifecycle of an established WebSocket connection:
// periodic pings, timeout detection, message dispatch, error handling, and
// clean shutdown. Blocks until the connection closes.
func WSHandleConn[I any, S WSConn[I]](conn *websocket.Conn, ctx S, config *WSConnConfig) {
	if config == nil {
		config = DefaultWSConnConfig()
	}
	reader := conc.NewReader(func() (I, error) {
		res, err := ctx.ReadMessage(conn)
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
			return res, net.ErrClosed
		}
		return res, err
	})
	defer reader.Stop()

	lastReadAt := time.Now()
	pingTimer := time.NewTicker(config.PingPeriod)
	pongChecker := time.NewTicker(config.PongPeriod)
	defer pingTimer.Stop()
	defer pongChecker.Stop()

	defer ctx.OnClose()
	if err := ctx.OnStart(conn); err != nil {
		return
	}

	conn.SetReadDeadline(time.Now().Add(config.PongPeriod))
	for {
		select {
		case <-pingTimer.C:
			ctx.SendPing()

		case <-pongChecker.C:
			hbDelta := time.Since(lastReadAt).Seconds()
			if hbDelta > config.PongPeriod.Seconds() {
				if ctx.OnTimeout() {
					log.Printf("Last heartbeat more than %d seconds ago, closing connection", int(hbDelta))
					return
				}
			}

		case result := <-reader.OutputChan():
			conn.SetReadDeadline(time.Now().Add(config.PongPeriod))
			lastReadAt = time.Now()
			if result.Error != nil {
				if result.Error != io.EOF {
					if ce, ok := result.Error.(*websocket.CloseError); ok {
						log.Println("WebSocket closed: ", ce)
						switch ce.Code {
						case websocket.CloseAbnormalClosure:
						case websocket.CloseNormalClosure:
							return
						case websocket.CloseGoingAway:
							return
						}
					}
					if ctx.OnError(result.Error) != nil {
						log.Println("Closing due to error: ", result.Error)
						return
					}
				}
			} else {
				ctx.HandleMessage(result.Value)
			}
		}
	}
}

// JSONConn is an alias for BaseConn with untyped JSON messages.
type JSONConn = BaseConn[any, any]

// NewJSONConn creates a new JSONConn with the default JSON codec.
func NewJSONConn() *JSONConn {
	return &JSONConn{
		Codec:   &JSONCodec{},
		NameStr: "JSONConn",
	}
}

// JSONHandler is a simple handler that creates JSONConn instances, accepting
// all connections.
type JSONHandler struct{}

// Validate implements WSHandler.
func (j *JSONHandler) Validate(w http.ResponseWriter, r *http.Request) (*JSONConn, bool) {
	return NewJSONConn(), true
}
