// SPDX-License-Identifier: MPL-2.0

// Package core holds the application state and every operation the handlers
// expose. All writes go through the NATS state stream so multiple facet nodes
// converge on the same sqlite contents.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/crypto/bcrypt"
)

const CONFIG_KEY_JWT_SECRET = "jwt-secret"

type App struct {
	Name               string
	NodeID             string
	Sqlite             *sqlx.DB
	Demo               *sqlx.DB
	Logger             *slog.Logger
	LoginTokenHash     []byte
	JWTSecret          []byte
	JWTExp             time.Duration
	StateConsumeCtx    jetstream.ConsumeContext
	JetStream          jetstream.JetStream
	StateConsumer      jetstream.Consumer
	ConfigKV           jetstream.KeyValue
	NATSConn           *nats.Conn
	StateSubjectPrefix string
	StateStreamName    string
	StateStreamMaxAge  time.Duration
	StateConsumerName  string
	ConfigKVBucketName string
}

func New(
	name string,
	nodeID string,
	sqlite *sqlx.DB,
	demo *sqlx.DB,
	logger *slog.Logger,
	loginToken string,
	jwtExp time.Duration,
	stateSubjectPrefix string,
	stateStreamName string,
	stateStreamMaxAge time.Duration,
	stateConsumerName string,
	configKVBucketName string,
) (*App, error) {
	if err := initDB(sqlite); err != nil {
		return nil, err
	}
	if err := initDemoDB(demo); err != nil {
		return nil, err
	}

	// Only the hash is kept in memory. Login compares against it.
	tokenHash, err := bcrypt.GenerateFromPassword([]byte(loginToken), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash login token: %w", err)
	}

	app := &App{
		Name:               name,
		NodeID:             nodeID,
		Sqlite:             sqlite,
		Demo:               demo,
		Logger:             logger,
		LoginTokenHash:     tokenHash,
		JWTExp:             jwtExp,
		StateSubjectPrefix: stateSubjectPrefix,
		StateStreamName:    stateStreamName,
		StateStreamMaxAge:  stateStreamMaxAge,
		StateConsumerName:  stateConsumerName,
		ConfigKVBucketName: configKVBucketName,
	}
	return app, nil
}

func (app *App) Init(nc *nats.Conn) error {
	app.NATSConn = nc
	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create jetstream: %w", err)
	}
	app.JetStream = js

	if err := app.setupStreamAndConsumer(); err != nil {
		return fmt.Errorf("failed to setup streams and consumers: %w", err)
	}

	if err := LoadJWTSecret(app); err != nil {
		return fmt.Errorf("failed to load JWT secret: %w", err)
	}

	return nil
}

func (app *App) setupStreamAndConsumer() error {
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	// All config changes go through the state stream. Think event sourcing.
	stream, err := app.JetStream.CreateOrUpdateStream(initCtx, jetstream.StreamConfig{
		Name:     app.StateStreamName,
		Subjects: []string{app.StateSubjectPrefix + ">"},
		Storage:  jetstream.FileStorage,
		MaxAge:   app.StateStreamMaxAge,
	})
	if err != nil {
		return fmt.Errorf("failed to create or update state stream: %w", err)
	}

	stateConsumer, err := stream.CreateOrUpdateConsumer(initCtx, jetstream.ConsumerConfig{
		Durable:       app.StateConsumerName,
		MaxAckPending: 1,
	})
	if err != nil {
		return fmt.Errorf("failed to create or update state consumer: %w", err)
	}
	app.StateConsumer = stateConsumer

	// Only the JWT secret lives in NATS KV. It fits the persistence model
	// nicely since it's fine if it resets.
	configKV, err := app.JetStream.CreateOrUpdateKeyValue(initCtx, jetstream.KeyValueConfig{
		Bucket: app.ConfigKVBucketName,
	})
	if err != nil {
		return fmt.Errorf("failed to create or update config KV: %w", err)
	}
	app.ConfigKV = configKV

	stateConsumeCtx, err := stateConsumer.Consume(app.HandleState)
	if err != nil {
		return fmt.Errorf("failed to consume state: %w", err)
	}
	app.StateConsumeCtx = stateConsumeCtx

	return nil
}

func (app *App) Close() {
	if app.StateConsumeCtx != nil {
		app.StateConsumeCtx.Drain()
		<-app.StateConsumeCtx.Closed()
	}
}
