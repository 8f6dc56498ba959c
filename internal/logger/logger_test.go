package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestJSONOutsideLocal(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithOutput(&buf, "production", "debug")
	l.WithJob("job-1").WithField("stage", "generation").Debug("attempt started")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
	}
	if line["job_id"] != "job-1" || line["stage"] != "generation" || line["level"] != "debug" {
		t.Fatalf("unexpected fields: %v", line)
	}
}

func TestLevelParsing(t *testing.T) {
	cases := map[string]logrus.Level{
		"debug": logrus.DebugLevel,
		"warn":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
		"":      logrus.InfoLevel,
		"loud":  logrus.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestWithRequestKeepsHeaderID(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithOutput(&buf, "production", "info")
	r := httptest.NewRequest("GET", "/jobs/abc", nil)
	r.Header.Set("X-Request-ID", "req-42")
	l.WithRequest(r).Info("hit")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatal(err)
	}
	if line["req_id"] != "req-42" || line["path"] != "/jobs/abc" {
		t.Fatalf("unexpected fields: %v", line)
	}
}

func TestWithErrorNil(t *testing.T) {
	l := Discard()
	if l.WithError(nil) != l.Entry {
		t.Fatal("nil error should return base entry")
	}
	e := l.WithError(errors.New("boom"))
	if e.Data["error"] != "boom" {
		t.Fatalf("error field = %v", e.Data["error"])
	}
}
