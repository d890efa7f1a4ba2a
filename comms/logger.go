// SPDX-License-Identifier: MPL-2.0

package comms

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/nats-io/nats-server/v2/server"
)

// natsLogger adapts the embedded server's printf-style logging onto the
// app's slog handler so NATS output lands in the same stream as everything
// else. Fatal and trace have no slog level of their own and carry a
// nats_level attribute instead.
type natsLogger struct {
	logger *slog.Logger
}

func newNATSLogger(logger *slog.Logger) server.Logger {
	return &natsLogger{logger: logger}
}

func (l *natsLogger) Noticef(format string, v ...any) {
	l.logf(slog.LevelInfo, format, v)
}

func (l *natsLogger) Warnf(format string, v ...any) {
	l.logf(slog.LevelWarn, format, v)
}

func (l *natsLogger) Errorf(format string, v ...any) {
	l.logf(slog.LevelError, format, v)
}

func (l *natsLogger) Debugf(format string, v ...any) {
	l.logf(slog.LevelDebug, format, v)
}

func (l *natsLogger) Tracef(format string, v ...any) {
	l.logf(slog.LevelDebug, format, v, slog.String("nats_level", "trace"))
}

func (l *natsLogger) Fatalf(format string, v ...any) {
	l.logf(slog.LevelError, format, v, slog.String("nats_level", "fatal"))
	os.Exit(1)
}

func (l *natsLogger) logf(level slog.Level, format string, v []any, attrs ...slog.Attr) {
	l.logger.LogAttrs(context.Background(), level, "nats: "+fmt.Sprintf(format, v...), attrs...)
}
