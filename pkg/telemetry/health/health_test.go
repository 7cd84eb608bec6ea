package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestCheckReadiness(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]CheckFunc
		want   string
	}{
		{"no checks", nil, StatusReady},
		{"all ok", map[string]CheckFunc{"ledger": PingCheck(fakePinger{})}, StatusReady},
		{"one failing", map[string]CheckFunc{
			"ledger": PingCheck(fakePinger{}),
			"state":  PingCheck(fakePinger{err: errors.New("database is locked")}),
		}, StatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(time.Second)
			for name, check := range tt.checks {
				c.RegisterCheck(name, check)
			}

			status := c.CheckReadiness(context.Background())
			if status.Status != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, status.Status)
			}
			if len(status.Checks) != len(tt.checks) {
				t.Errorf("Expected %d results, got %d", len(tt.checks), len(status.Checks))
			}
		})
	}
}

func TestCheckReadiness_Timeout(t *testing.T) {
	c := New(20 * time.Millisecond)
	c.RegisterCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return nil
	})

	status := c.CheckReadiness(context.Background())
	result := status.Checks["slow"]
	if result.Status != StatusUnhealthy || result.Message != ErrCheckTimeout.Error() {
		t.Errorf("Expected timeout result, got %+v", result)
	}
}

func TestHandlers(t *testing.T) {
	c := New(time.Second)
	c.RegisterCheck("ledger", PingCheck(fakePinger{err: errors.New("down")}))

	rec := httptest.NewRecorder()
	c.LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected liveness 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	c.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected readiness 503, got %d", rec.Code)
	}
	var status HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.Checks["ledger"].Message != "down" {
		t.Errorf("Expected check message, got %+v", status.Checks["ledger"])
	}

	rec = httptest.NewRecorder()
	VersionHandler("1.2.3", "abc", "now")(rec, httptest.NewRequest(http.MethodHead, "/version", nil))
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Errorf("Expected empty 200 for HEAD, got %d with %d bytes", rec.Code, rec.Body.Len())
	}
}
