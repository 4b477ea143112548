// grpcwsbridge runs the WebSocket-to-gRPC bridge: it loads one or more
// proto files, listens for WebSocket connections, and for each connection
// multiplexes JSON-framed calls onto dynamically resolved gRPC methods.
//
// Run: go run ./cmd/grpcwsbridge -proto path/to/service.proto
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/panyam/grpcwsbridge/clientpool"
	"github.com/panyam/grpcwsbridge/registry"
	"github.com/panyam/grpcwsbridge/transport"
	"github.com/panyam/grpcwsbridge/wsbridge"
)

// repeatedFlag collects every occurrence of a repeatable flag, e.g.
// `-proto a.proto -proto b.proto`, in the order given.
type repeatedFlag []string

func (r *repeatedFlag) String() string { return strings.Join(*r, ",") }
func (r *repeatedFlag) Set(value string) error {
	*r = append(*r, value)
	return nil
}

func main() {
	var protoFiles, includeDirs repeatedFlag
	flag.Var(&protoFiles, "proto", "proto file to load (repeatable)")
	flag.Var(&includeDirs, "include", "include search dir (repeatable)")
	wsPort := flag.Int("ws-port", 8080, "WebSocket listen port")
	defaultTarget := flag.String("default-target", "localhost:50051", "fallback gRPC target")
	secure := flag.Bool("secure", false, "enable TLS for backend connections")
	tlsCA := flag.String("tls-ca", "", "root CA bundle for backend TLS (optional)")
	verbose := flag.Bool("verbose", true, "enable debug logging")
	flag.Parse()

	if !*verbose {
		log.SetOutput(nullWriter{})
	}

	if len(protoFiles) == 0 {
		log.Fatal("grpcwsbridge: at least one -proto file is required")
	}

	reg := registry.New()
	if err := reg.Load(protoFiles, includeDirs); err != nil {
		log.Fatalf("grpcwsbridge: failed to load proto files: %v", err)
	}

	creds, err := clientpool.BuildCredentials(clientpool.CredentialsConfig{Secure: *secure, CAFile: *tlsCA})
	if err != nil {
		log.Fatalf("grpcwsbridge: failed to build backend credentials: %v", err)
	}
	pool := clientpool.New(creds)
	defer pool.Close()

	invoker := wsbridge.NewInvoker(pool)
	handler := &wsbridge.BridgeHandler{
		Registry:      reg,
		Invoker:       invoker,
		DefaultTarget: *defaultTarget,
	}

	router := mux.NewRouter()
	router.HandleFunc("/bridge", transport.WSServe[wsbridge.Frame, *wsbridge.BridgeConn](handler, nil))
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		transport.SendJsonResponse(w, map[string]string{"status": "ok"}, nil)
	})

	addr := fmt.Sprintf(":%d", *wsPort)
	log.Printf("grpcwsbridge: listening on %s, default target %s", addr, *defaultTarget)
	srv := http.Server{Addr: addr, Handler: router}
	log.Fatal(srv.ListenAndServe())
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }
