package tracing

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"mercator-hq/meter/pkg/config"
	"mercator-hq/meter/pkg/costs"
)

func newRecordingTracer(t *testing.T) (*Tracer, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewWithProvider(tp), recorder
}

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		config      *config.TracingConfig
		wantErr     bool
		wantEnabled bool
	}{
		{name: "nil config", config: nil, wantErr: true},
		{name: "disabled", config: &config.TracingConfig{Enabled: false}},
		{
			name: "enabled otlp",
			config: &config.TracingConfig{
				Enabled:     true,
				Endpoint:    "localhost:4317",
				Insecure:    true,
				SampleRatio: 1,
				Timeout:     time.Second,
				ServiceName: "meter-test",
			},
			wantEnabled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, err := New(tt.config, "test")
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if tracer.Enabled() != tt.wantEnabled {
				t.Errorf("Expected enabled=%v, got %v", tt.wantEnabled, tracer.Enabled())
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = tracer.Shutdown(ctx)
		})
	}
}

func TestNoop(t *testing.T) {
	tracer := Noop()
	ctx, span := tracer.Start(context.Background(), "meter.record")
	defer span.End()

	if span.IsRecording() {
		t.Error("Expected noop span not to record")
	}
	if TraceID(ctx) != "" {
		t.Errorf("Expected empty trace id, got %q", TraceID(ctx))
	}
	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Errorf("Expected nil shutdown error, got %v", err)
	}
}

func TestSpanAttributesAndErrors(t *testing.T) {
	tracer, recorder := newRecordingTracer(t)

	ctx, span := tracer.Start(context.Background(), "meter.record")
	if TraceID(ctx) == "" {
		t.Error("Expected a trace id on a recording span")
	}
	SetEntryAttributes(span, &costs.Entry{
		ID:          "e1",
		Category:    costs.CategoryLLMAPI,
		Service:     "openai",
		CostUSD:     1.5,
		Tier:        costs.TierMedium,
		InitiatedBy: costs.Initiator{Type: costs.InitiatorAgent, ID: "a1"},
		SessionID:   "s1",
	})
	SetError(span, errors.New("boom"))
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("Expected 1 span, got %d", len(spans))
	}
	got := spans[0]
	if got.Name() != "meter.record" {
		t.Errorf("Expected span name meter.record, got %s", got.Name())
	}
	if got.Status().Code != codes.Error {
		t.Errorf("Expected error status, got %v", got.Status().Code)
	}

	attrs := make(map[string]string)
	for _, kv := range got.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	for key, want := range map[string]string{
		AttrEntryID:   "e1",
		AttrCategory:  "llm-api",
		AttrInitiator: "agent:a1",
		AttrSession:   "s1",
		AttrCost:      "1.5",
	} {
		if attrs[key] != want {
			t.Errorf("Expected %s=%q, got %q", key, want, attrs[key])
		}
	}
}

func TestSetStatus(t *testing.T) {
	tracer, recorder := newRecordingTracer(t)

	_, ok := tracer.Start(context.Background(), "ok")
	SetStatus(ok, nil)
	ok.End()

	_, bad := tracer.Start(context.Background(), "bad")
	SetStatus(bad, errors.New("x"))
	bad.End()

	spans := recorder.Ended()
	if spans[0].Status().Code != codes.Ok || spans[1].Status().Code != codes.Error {
		t.Errorf("Unexpected statuses: %v, %v", spans[0].Status().Code, spans[1].Status().Code)
	}
	SetError(bad, nil)
}
