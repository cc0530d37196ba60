// Package logger builds per-run logrus entries and carries them through
// context.
package logger

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type contextKey string

const loggerKey contextKey = "logger"

// ParseLevel maps a config level name to a logrus level. Empty means info;
// unknown names fall back to info and report false.
func ParseLevel(s string) (logrus.Level, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return logrus.InfoLevel, true
	}
	lvl, err := logrus.ParseLevel(s)
	if err != nil {
		return logrus.InfoLevel, false
	}
	return lvl, true
}

// New builds a logger writing to w. format is "json" or "text".
func New(w io.Writer, level, format string) *logrus.Entry {
	lvl, ok := ParseLevel(level)

	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(lvl)
	l.AddHook(utcHook{})
	if strings.EqualFold(format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			DisableColors:   true,
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	entry := logrus.NewEntry(l)
	if !ok {
		entry.WithField("configured", level).Warn("invalid log level, defaulting to info")
	}
	return entry
}

// utcHook stamps entries in UTC so logs from different hosts line up.
type utcHook struct{}

func (utcHook) Levels() []logrus.Level { return logrus.AllLevels }

func (utcHook) Fire(e *logrus.Entry) error {
	e.Time = e.Time.UTC()
	return nil
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// FromContext retrieves the logger stored in ctx, or the standard logger.
func FromContext(ctx context.Context) *logrus.Entry {
	if l, ok := ctx.Value(loggerKey).(*logrus.Entry); ok {
		return l
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// ToContext embeds a logger into ctx.
func ToContext(ctx context.Context, l *logrus.Entry) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}
