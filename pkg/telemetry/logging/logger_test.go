package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNew_LevelsAndFormats(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{}, false},
		{"debug text", Config{Level: "debug", Format: "text"}, false},
		{"upper case", Config{Level: "WARN", Format: "JSON"}, false},
		{"bad level", Config{Level: "loud"}, true},
		{"bad format", Config{Format: "xml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.cfg.Writer = &buf
			_, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn", Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	logger.Info("quiet")
	logger.Warn("loud")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Error("Expected info to be filtered at warn level")
	}
	if !strings.Contains(out, "loud") {
		t.Error("Expected warn to be written")
	}
}

func TestNew_RedactsAndAddsContext(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Writer: &buf, RedactKeys: []string{"department_secret"}})
	if err != nil {
		t.Fatal(err)
	}

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	ctx, span := tp.Tracer("test").Start(WithRequestID(context.Background(), "req-1"), "op")
	defer span.End()

	logger.With("component", "test").InfoContext(ctx, "notify",
		"smtp_password", "hunter2",
		"department_secret", "x",
		"target", "https://hooks.slack.com/services/T/B/SECRET",
		"entry_id", "e1",
	)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("Expected JSON output, got %q: %v", buf.String(), err)
	}

	if record["smtp_password"] != Redacted || record["department_secret"] != Redacted {
		t.Errorf("Expected sensitive keys redacted, got %v", record)
	}
	if strings.Contains(record["target"].(string), "SECRET") {
		t.Errorf("Expected webhook path scrubbed, got %v", record["target"])
	}
	if record["entry_id"] != "e1" || record["component"] != "test" {
		t.Errorf("Expected plain attributes kept, got %v", record)
	}
	if record["request_id"] != "req-1" {
		t.Errorf("Expected request_id from context, got %v", record["request_id"])
	}
	if record["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("Expected trace_id from span, got %v", record["trace_id"])
	}
}

func TestGetRequestID_Missing(t *testing.T) {
	if id := GetRequestID(context.Background()); id != "" {
		t.Errorf("Expected empty request id, got %q", id)
	}
}
