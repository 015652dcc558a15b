package events

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// EmbeddedServer runs an in-process NATS server so a single binary can serve
// both the command path and the event stream. Chat events are transient
// (typing signals must not be replayed), so plain core NATS is used rather
// than JetStream.
type EmbeddedServer struct {
	server *server.Server
	nc     *nats.Conn
}

// NewEmbeddedServer starts the server on a random local port and connects a
// client to it.
func NewEmbeddedServer(dataDir string) (*EmbeddedServer, error) {
	opts := &server.Options{
		StoreDir: filepath.Join(dataDir, "nats-store"),
		Port:     -1, // random port, internal use only
		HTTPPort: -1, // no HTTP monitoring
	}

	if err := os.MkdirAll(opts.StoreDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store dir: %w", err)
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create NATS server: %w", err)
	}

	ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		return nil, fmt.Errorf("NATS server did not become ready")
	}

	slog.Info("embedded NATS server started", "clientURL", ns.ClientURL())

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("failed to connect to embedded NATS: %w", err)
	}

	return &EmbeddedServer{server: ns, nc: nc}, nil
}

// Connection returns the client connection to the embedded server.
func (es *EmbeddedServer) Connection() *nats.Conn {
	return es.nc
}

// Shutdown closes the client connection and stops the server.
func (es *EmbeddedServer) Shutdown() {
	if es.nc != nil {
		es.nc.Close()
	}
	if es.server != nil {
		es.server.Shutdown()
		es.server.WaitForShutdown()
	}
	slog.Info("embedded NATS server stopped")
}
