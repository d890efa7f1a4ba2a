// SPDX-License-Identifier: MPL-2.0

package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const INTERNAL_STATE_CONSUMER_NAME = "internal_facet_state_consumer"

// We use something like event sourcing for all internal state.
// All database changes go through NATS first.
// This allows replaying changes across multiple instances of facet and
// restoring the system from partial state, and it leaves an audit trail.
// All handler functions are idempotent: applying an event twice leaves the
// database in the same state. Save events carry a timestamp and lose against
// newer rows and newer tombstones, so replay order between nodes doesn't
// matter for the end result.
func (app *App) HandleState(msg jetstream.Msg) {
	event := strings.TrimPrefix(msg.Subject(), app.StateSubjectPrefix)
	data := msg.Data()
	meta, err := msg.Metadata()
	if err != nil {
		app.Logger.Error("Error getting message metadata", slog.Any("error", err))
		return
	}
	handler := func(app *App, data []byte) bool {
		app.Logger.Error("Unknown state message subject", slog.String("event", event))
		return false
	}
	switch event {
	case "create_dashboard":
		handler = HandleCreateDashboard
	case "rename_dashboard":
		handler = HandleRenameDashboard
	case "delete_dashboard":
		handler = HandleDeleteDashboard
	case "save_card":
		handler = HandleSaveCard
	case "save_card_column_types":
		handler = HandleSaveCardColumnTypes
	case "delete_card":
		handler = HandleDeleteCard
	case "save_variable":
		handler = HandleSaveVariable
	case "delete_variable":
		handler = HandleDeleteVariable
	case "save_data_source":
		handler = HandleSaveDataSource
	case "delete_data_source":
		handler = HandleDeleteDataSource
	case "save_library":
		handler = HandleSaveLibrary
	}
	app.Logger.Debug("Handling facet state change", slog.String("event", event))
	ok := handler(app, data)
	if ok {
		err := trackConsumerState(app, INTERNAL_STATE_CONSUMER_NAME, meta.Sequence.Stream)
		if err != nil {
			app.Logger.Error("Error tracking consumer state", slog.Any("error", err))
			return
		}
		err = msg.Ack()
		if err != nil {
			app.Logger.Error("Error acking message", slog.Any("error", err))
		}
	}
}

func trackConsumerState(app *App, consumerName string, seq uint64) error {
	_, err := app.Sqlite.Exec(
		`INSERT INTO consumer_state (name, last_processed_stream_seq, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT(name) DO UPDATE SET last_processed_stream_seq = $2, updated_at = $3`,
		consumerName, seq, time.Now(),
	)
	return err
}

// All changes to the internal state go through this function.
// SubmitState writes changes to NATS and waits until they have been processed
// successfully by the stream consumer. This is to make sure you can read your
// own writes.
func (app *App) SubmitState(ctx context.Context, action string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal state data: %w", err)
	}
	// We listen on the ACK subject for the consumer to know when the message
	// has been processed. Subscribe before publishing to avoid missing the ACK.
	consumerName := app.StateConsumer.CachedInfo().Name
	sub, err := app.NATSConn.SubscribeSync("$JS.ACK." + app.StateStreamName + "." + consumerName + ".>")
	if err != nil {
		return fmt.Errorf("failed to subscribe to ACK subject: %w", err)
	}
	defer sub.Unsubscribe()
	ack, err := app.JetStream.Publish(ctx, app.StateSubjectPrefix+action, payload)
	if err != nil {
		return fmt.Errorf("failed to publish state message: %w", err)
	}
	ackSeq := strconv.FormatUint(ack.Sequence, 10)
	for {
		msg, err := sub.NextMsgWithContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to get next ACK message: %w", err)
		}
		// The stream sequence is the second token after the consumer name.
		// We trust the shape of the subject to be correct.
		seq := strings.Split(strings.TrimPrefix(msg.Subject, "$JS.ACK."+app.StateStreamName+"."+consumerName+"."), ".")[1]
		if seq == ackSeq {
			return nil
		}
	}
}

// tombstonedAfter reports whether id was deleted at or after ts.
// Save events that lost against a delete are dropped on replay.
func tombstonedAfter(app *App, id string, ts time.Time) bool {
	var count int
	err := app.Sqlite.Get(&count,
		`SELECT count(*) FROM tombstones WHERE id = $1 AND deleted_at >= $2`, id, ts)
	if err != nil {
		app.Logger.Error("failed to check tombstones", slog.Any("error", err))
		return false
	}
	return count > 0
}

func insertTombstone(app *App, id string, kind string, ts time.Time) error {
	_, err := app.Sqlite.Exec(
		`INSERT INTO tombstones (id, kind, deleted_at) VALUES ($1, $2, $3)
		 ON CONFLICT(id) DO UPDATE SET deleted_at = $3 WHERE $3 > tombstones.deleted_at`,
		id, kind, ts)
	return err
}
