// Package logging provides structured logging setup for the stats service.
package logging

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"chain_stats/internal/config"
)

const serviceName = "chain-stats"

var (
	baseLogger *logrus.Entry

	fieldMap = logrus.FieldMap{
		logrus.FieldKeyTime:  "ts",
		logrus.FieldKeyMsg:   "msg",
		logrus.FieldKeyLevel: "level",
	}
)

// Fields is a shorthand alias for structured log fields.
type Fields = logrus.Fields

// Context carries the request attributes attached to command and query logs.
type Context struct {
	ChatID int64
	Entity string
	Event  string
}

// Setup builds the process logger from cfg and installs it as the base entry
// returned by Logger and the level helpers.
func Setup(cfg config.Config) (*logrus.Entry, error) {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	baseLogger = newBase(cfg.AppEnv, level)
	return baseLogger, nil
}

// Logger returns the base entry, falling back to a production info logger
// before Setup runs.
func Logger() *logrus.Entry {
	if baseLogger == nil {
		baseLogger = newBase(config.DefaultAppEnv, logrus.InfoLevel)
	}
	return baseLogger
}

// ContextFields converts ctx into structured fields, skipping zero values.
func ContextFields(ctx Context) Fields {
	fields := Fields{}

	if ctx.ChatID != 0 {
		fields["chat_id"] = ctx.ChatID
	}
	if entity := strings.TrimSpace(ctx.Entity); entity != "" {
		fields["entity"] = entity
	}
	if event := strings.TrimSpace(ctx.Event); event != "" {
		fields["event"] = event
	}

	return fields
}

// QueryFields describes one finished database query.
func QueryFields(query string, elapsed time.Duration) Fields {
	return Fields{
		"event":      "mongo_query",
		"query":      query,
		"elapsed_ms": float64(elapsed.Microseconds()) / 1000,
	}
}

func Info(msg string, fields Fields)  { logAt(logrus.InfoLevel, msg, fields) }
func Warn(msg string, fields Fields)  { logAt(logrus.WarnLevel, msg, fields) }
func Error(msg string, fields Fields) { logAt(logrus.ErrorLevel, msg, fields) }
func Debug(msg string, fields Fields) { logAt(logrus.DebugLevel, msg, fields) }

func logAt(level logrus.Level, msg string, fields Fields) {
	entry := Logger()
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Log(level, msg)
}

func newBase(appEnv string, level logrus.Level) *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(formatterForEnv(appEnv))

	return logger.WithFields(Fields{
		"service": serviceName,
		"env":     appEnv,
	})
}

// formatterForEnv picks human-readable text for development and JSON
// everywhere else.
func formatterForEnv(appEnv string) logrus.Formatter {
	if appEnv == config.EnvDevelopment {
		return &logrus.TextFormatter{
			FullTimestamp:          true,
			TimestampFormat:        time.RFC3339Nano,
			FieldMap:               fieldMap,
			DisableLevelTruncation: true,
		}
	}

	return &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap:        fieldMap,
	}
}

func parseLevel(value string) (logrus.Level, error) {
	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid log level %q: %w", value, err)
	}
	return level, nil
}

func resetLogger() {
	baseLogger = nil
}
