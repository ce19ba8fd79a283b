package main

import (
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// embeddedNATS runs an in-process NATS server with JetStream for
// development without a broker.
type embeddedNATS struct {
	srv      *server.Server
	storeDir string
}

func startEmbeddedNATS() (*embeddedNATS, error) {
	dir, err := os.MkdirTemp("", "dockd-nats-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create store dir: %w", err)
	}

	srv, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  dir,
		NoSigs:    true,
	})
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to create nats server: %w", err)
	}

	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		srv.Shutdown()
		os.RemoveAll(dir)
		return nil, fmt.Errorf("nats server not ready")
	}
	return &embeddedNATS{srv: srv, storeDir: dir}, nil
}

func (e *embeddedNATS) URL() string {
	return e.srv.ClientURL()
}

func (e *embeddedNATS) Shutdown() {
	e.srv.Shutdown()
	e.srv.WaitForShutdown()
	os.RemoveAll(e.storeDir)
}
