// SPDX-License-Identifier: MPL-2.0

// Package comms runs the embedded NATS server every facet node carries. The
// state stream and config KV live here; clustering facet means clustering
// NATS.
package comms

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

const CONNECT_TIMEOUT = 10 * time.Second

type Config struct {
	Logger     *slog.Logger
	Host       string
	Port       int
	Token      string
	JSDir      string
	MaxStore   int64
	DontListen bool
}

type Comms struct {
	Conn   *nats.Conn
	Server *server.Server
}

func New(config Config) (Comms, error) {
	opts := &server.Options{
		Host:                   config.Host,
		Port:                   config.Port,
		Authorization:          config.Token,
		JetStream:              true,
		DisableJetStreamBanner: true,
		StoreDir:               config.JSDir,
		JetStreamMaxStore:      config.MaxStore,
		DontListen:             config.DontListen,
	}
	ns, err := server.NewServer(opts)
	if err != nil {
		return Comms{}, fmt.Errorf("failed to create NATS server: %w", err)
	}
	ns.SetLoggerV2(newNATSLogger(config.Logger), false, false, false)
	go ns.Start()
	if !ns.ReadyForConnections(CONNECT_TIMEOUT) {
		return Comms{}, fmt.Errorf("NATS server not ready for connections")
	}
	clientOpts := []nats.Option{nats.InProcessServer(ns)}
	if config.Token != "" {
		clientOpts = append(clientOpts, nats.Token(config.Token))
	}
	nc, err := nats.Connect(ns.ClientURL(), clientOpts...)
	if err != nil {
		return Comms{}, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return Comms{Conn: nc, Server: ns}, nil
}

func (c Comms) Close() {
	c.Server.Shutdown()
	c.Server.WaitForShutdown()
}
