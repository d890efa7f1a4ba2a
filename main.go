// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"facet/comms"
	"facet/server"
	"facet/server/core"
	"facet/server/local"
	"facet/server/metrics"
	"facet/server/util/signals"

	"github.com/jmoiron/sqlx"
	duckdb "github.com/marcboeker/go-duckdb/v2"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	_ "modernc.org/sqlite"
)

const (
	STATE_SUBJECT_PREFIX  = "facet.state."
	STATE_STREAM_NAME     = "facet_state"
	CONFIG_KV_BUCKET_NAME = "facet_config"
)

type Config struct {
	Address        string
	Port           int
	NodeID         string
	SqliteFile     string
	DuckDBFile     string
	LoginToken     string
	JWTExp         time.Duration
	StateMaxAge    time.Duration
	DashboardsDir  string
	NatsHost       string
	NatsPort       int
	NatsToken      string
	NatsJSDir      string
	NatsMaxStore   int64 // in bytes
	NatsDontListen bool
	S3             core.S3Config
}

func main() {
	config := loadConfig()
	signals.HandleInterrupt(Run(config))
}

func loadConfig() Config {
	flags := ff.NewFlagSet("facet")
	help := flags.Bool('h', "help", "show help")
	addr := flags.StringLong("addr", "0.0.0.0", "server address")
	port := flags.Int('p', "port", 4000, "port to listen on")
	nodeID := flags.StringLong("node-id", "", "stable node name in a cluster (default: hostname)")
	sqliteFile := flags.String('s', "sqlite", "facet.db", "path to sqlite file for internal state")
	duckdbFile := flags.String('d', "duckdb", "", "path to duckdb file for the demo source (default: use in-memory db)")
	loginToken := flags.String('t', "token", "", "token used for login (required)")
	jwtExp := flags.DurationLong("jwtexp", 12*time.Hour, "JWT expiration duration")
	stateMaxAge := flags.DurationLong("state-max-age", 0, "how long to retain state events (0 for unlimited)")
	dashboardsDir := flags.StringLong("dashboards-dir", "", "directory of *.dashboard.json files to sync into the store")
	natsHost := flags.StringLong("nats-host", "0.0.0.0", "NATS server host")
	natsPort := flags.IntLong("nats-port", 4222, "NATS server port")
	natsToken := flags.StringLong("nats-token", "", "NATS authentication token")
	natsJSDir := flags.String('n', "nats-dir", "", "JetStream storage directory (default: in-memory)")
	natsMaxStore := flags.StringLong("nats-max-store", "0", "Maximum storage in bytes (0 for unlimited)")
	natsDontListen := flags.BoolLong("nats-dont-listen", "Disable NATS from listening on any port")
	s3Endpoint := flags.StringLong("s3-endpoint", "", "S3 endpoint for export uploads (empty disables uploads)")
	s3Region := flags.StringLong("s3-region", "", "S3 region")
	s3Bucket := flags.StringLong("s3-bucket", "", "S3 bucket for export uploads")
	s3AccessKey := flags.StringLong("s3-access-key", "", "S3 access key (default: credential chain)")
	s3SecretKey := flags.StringLong("s3-secret-key", "", "S3 secret key")

	err := ff.Parse(flags, os.Args[1:],
		ff.WithEnvVarPrefix("FACET"),
		ff.WithConfigFileParser(ff.PlainParser),
	)
	if err == nil && *loginToken == "" {
		err = fmt.Errorf("--token must be set")
	}
	if err != nil {
		fmt.Printf("%s\n", ffhelp.Flags(flags))
		fmt.Printf("err=%v\n", err)
		os.Exit(1)
	}
	if *help {
		fmt.Printf("%s\n", ffhelp.Flags(flags))
		os.Exit(0)
	}

	maxStore, err := strconv.ParseInt(*natsMaxStore, 10, 64)
	if err != nil {
		fmt.Printf("Invalid value for nats-max-store: %v\n", err)
		os.Exit(1)
	}

	node := *nodeID
	if node == "" {
		node, err = os.Hostname()
		if err != nil {
			fmt.Printf("Failed to determine hostname, set --node-id: %v\n", err)
			os.Exit(1)
		}
	}

	return Config{
		Address:        *addr,
		Port:           *port,
		NodeID:         node,
		SqliteFile:     *sqliteFile,
		DuckDBFile:     *duckdbFile,
		LoginToken:     *loginToken,
		JWTExp:         *jwtExp,
		StateMaxAge:    *stateMaxAge,
		DashboardsDir:  *dashboardsDir,
		NatsHost:       *natsHost,
		NatsPort:       *natsPort,
		NatsToken:      *natsToken,
		NatsJSDir:      *natsJSDir,
		NatsMaxStore:   maxStore,
		NatsDontListen: *natsDontListen,
		S3: core.S3Config{
			Endpoint:  *s3Endpoint,
			Region:    *s3Region,
			Bucket:    *s3Bucket,
			AccessKey: *s3AccessKey,
			SecretKey: *s3SecretKey,
		},
	}
}

func Run(config Config) func(context.Context) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	sqlite, err := sqlx.Open("sqlite", config.SqliteFile)
	if err != nil {
		panic(err)
	}
	// sqlite handles one writer at a time.
	sqlite.SetMaxOpenConns(1)

	demoConnector, err := duckdb.NewConnector(config.DuckDBFile, nil)
	if err != nil {
		panic(err)
	}
	demo := sqlx.NewDb(sql.OpenDB(demoConnector), "duckdb")

	c, err := comms.New(comms.Config{
		Logger:     logger.WithGroup("nats"),
		Host:       config.NatsHost,
		Port:       config.NatsPort,
		Token:      config.NatsToken,
		JSDir:      config.NatsJSDir,
		MaxStore:   config.NatsMaxStore,
		DontListen: config.NatsDontListen,
	})
	if err != nil {
		panic(err)
	}

	app, err := core.New(
		"facet",
		config.NodeID,
		sqlite,
		demo,
		logger,
		config.LoginToken,
		config.JWTExp,
		STATE_SUBJECT_PREFIX,
		STATE_STREAM_NAME,
		config.StateMaxAge,
		"facet_state_"+config.NodeID,
		CONFIG_KV_BUCKET_NAME,
	)
	if err != nil {
		panic(err)
	}
	if err := app.Init(c.Conn); err != nil {
		panic(err)
	}

	metrics.Init()

	var watcher *local.Watcher
	if config.DashboardsDir != "" {
		watcher, err = local.Watch(app, config.DashboardsDir)
		if err != nil {
			panic(err)
		}
	}

	e := server.Start(fmt.Sprintf("%s:%d", config.Address, config.Port), app, config.S3)

	return func(ctx context.Context) {
		logger.Info("initiating shutdown...")
		logger.Info("stopping HTTP server...")
		if err := e.Shutdown(ctx); err != nil {
			logger.ErrorContext(ctx, "error stopping server", slog.Any("error", err))
		}
		if watcher != nil {
			watcher.Close()
		}
		logger.Info("stopping NATS...")
		app.Close()
		c.Close()
		logger.Info("closing DB connections...")
		if err := sqlite.Close(); err != nil {
			logger.ErrorContext(ctx, "error closing sqlite connection", slog.Any("error", err))
		}
		if err := demo.Close(); err != nil {
			logger.ErrorContext(ctx, "error closing duckdb connection", slog.Any("error", err))
		}
	}
}
