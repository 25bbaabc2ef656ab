package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	cblog "github.com/charmbracelet/log"
)

func TestLoggerIncludesCorrelationIDAndComponent(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{
		Writer:     &buf,
		Level:      "debug",
		Formatter:  cblog.JSONFormatter,
		Component:  "flowhost",
		TimeFormat: "2006-01-02T15:04:05Z07:00",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := WithCorrelationID(context.Background(), "abc123")
	logger.Info(ctx, "running flow", "flow_name", "rank")

	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected log output, got empty string")
	}

	payload := make(map[string]interface{})
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		t.Fatalf("failed to parse log line %q: %v", line, err)
	}

	if payload["component"] != "flowhost" {
		t.Fatalf("expected component flowhost, got %v", payload["component"])
	}
	if payload["correlation_id"] != "abc123" {
		t.Fatalf("expected correlation_id abc123, got %v", payload["correlation_id"])
	}
	if payload["flow_name"] != "rank" {
		t.Fatalf("expected flow_name to be recorded, got %v", payload["flow_name"])
	}
	if payload["msg"] != "running flow" {
		t.Fatalf("expected message to be recorded, got %v", payload["msg"])
	}
}

func TestLoggerWithAddsFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{
		Writer:    &buf,
		Formatter: cblog.JSONFormatter,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	child := logger.With("stage_name", "rank").(*Logger)
	child.Warn(context.Background(), "module skipped", "module_id", "boosted")

	line := strings.TrimSpace(buf.String())
	payload := make(map[string]interface{})
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		t.Fatalf("failed to parse log line: %v", err)
	}

	if payload["stage_name"] != "rank" {
		t.Fatalf("expected stage_name=rank, got %v", payload["stage_name"])
	}
	if payload["module_id"] != "boosted" {
		t.Fatalf("expected module_id boosted, got %v", payload["module_id"])
	}
	if payload["component"] != "rockestra" {
		t.Fatalf("expected default component rockestra, got %v", payload["component"])
	}
}

func TestNoOpLoggerDiscardsEverything(t *testing.T) {
	var logger NoOpLogger
	logger.Info(context.Background(), "never written")
	child := logger.With("k", "v")
	child.Error(context.Background(), "also never written")
}

func TestWithOnNilReceiverReturnsNoOp(t *testing.T) {
	var l *Logger
	child := l.With("k", "v")
	if _, ok := child.(NoOpLogger); !ok {
		t.Fatalf("expected NoOpLogger, got %T", child)
	}
}
