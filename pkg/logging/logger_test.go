package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decode(t *testing.T, buf *bytes.Buffer) []LogEntry {
	t.Helper()
	var out []LogEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var e LogEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("invalid json line %q: %v", line, err)
		}
		out = append(out, e)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{" warning ", WarnLevel, false},
		{"Error", ErrorLevel, false},
		{"verbose", InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoggerLevelFilterAndContext(t *testing.T) {
	var buf bytes.Buffer
	l := NewStructuredLogger("iam-test", "1.0.0", WarnLevel)
	l.SetOutput(&buf)

	ctx := WithRunID(WithRequestID(context.Background(), "req-1"), "run-1")
	l.Info(ctx, "[SKIPPED] below level", nil)
	l.Warn(ctx, "[LOAD_SKIP] file skipped", Fields{"file": "a.csv"})
	l.Error(ctx, "[LOAD_ERROR] failed", nil, errors.New("boom"))

	entries := decode(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].RunID != "run-1" || entries[0].RequestID != "req-1" {
		t.Errorf("context ids not lifted: %+v", entries[0])
	}
	if entries[0].Fields["file"] != "a.csv" {
		t.Errorf("fields = %v", entries[0].Fields)
	}
	if entries[1].Error != "boom" || entries[1].File == "" {
		t.Errorf("error entry missing details: %+v", entries[1])
	}
}

func TestContextLoggerMergesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewStructuredLogger("iam-test", "1.0.0", DebugLevel)
	l.SetOutput(&buf)

	cl := l.WithFields(Fields{"component": "loader", "attempt": 1})
	cl.Info(context.Background(), "[LOAD] ok", Fields{"attempt": 2})

	entries := decode(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].Fields["component"] != "loader" {
		t.Errorf("fixed field lost: %v", entries[0].Fields)
	}
	if entries[0].Fields["attempt"] != float64(2) {
		t.Errorf("per-call field should win: %v", entries[0].Fields)
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Error(context.Background(), "nothing", nil, errors.New("x"))
	if RunID(context.Background()) != "" {
		t.Error("empty context should carry no run id")
	}
}
