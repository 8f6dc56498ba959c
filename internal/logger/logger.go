package logger

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Logger struct {
	*logrus.Entry
}

// New builds a logger writing to stdout, configured from ENVIRONMENT and LOG_LEVEL.
func New() *Logger {
	return NewWithOutput(os.Stdout, os.Getenv("ENVIRONMENT"), os.Getenv("LOG_LEVEL"))
}

// NewWithOutput builds a logger for an explicit environment and level.
// Local env = pretty console; others = JSON
func NewWithOutput(w io.Writer, env, level string) *Logger {
	base := logrus.New()
	if env == "" || env == "local" {
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
			ForceColors:     w == os.Stdout,
		})
	} else {
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	}
	base.SetOutput(w)
	base.SetLevel(parseLevel(level))
	return &Logger{Entry: logrus.NewEntry(base)}
}

// Discard returns a logger that drops everything. Used by tests and as a
// fallback when a component is built without one.
func Discard() *Logger {
	return NewWithOutput(io.Discard, "test", "error")
}

func parseLevel(level string) logrus.Level {
	switch level {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// WithRequest attaches request metadata and returns an entry
func (l *Logger) WithRequest(r *http.Request) *logrus.Entry {
	reqID := r.Header.Get("X-Request-ID")
	if reqID == "" {
		reqID = uuid.New().String()
	}

	return l.WithFields(logrus.Fields{
		"req_id":    reqID,
		"method":    r.Method,
		"path":      r.URL.Path,
		"remote_ip": r.RemoteAddr,
	})
}

// WithJob scopes the entry to one pipeline job.
func (l *Logger) WithJob(jobID string) *logrus.Entry {
	return l.Entry.WithField("job_id", jobID)
}

// WithError standardizes error logging
func (l *Logger) WithError(err error) *logrus.Entry {
	if err == nil {
		return l.Entry
	}
	return l.Entry.WithField("error", err.Error())
}
