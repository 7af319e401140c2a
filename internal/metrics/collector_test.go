package metrics

import (
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	ckerrors "github.com/objectfs/cloudkit/pkg/errors"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	collector, err := NewCollector(&Config{Enabled: true, Namespace: "test"})
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}
	return collector
}

func TestNewCollector(t *testing.T) {
	t.Parallel()

	t.Run("with valid config", func(t *testing.T) {
		config := &Config{
			Enabled:   true,
			Namespace: "cloudkit",
			Subsystem: "test",
			Labels:    map[string]string{"service": "worker"},
		}
		collector, err := NewCollector(config)
		if err != nil {
			t.Fatalf("NewCollector() error = %v, want nil", err)
		}
		if collector.config != config {
			t.Error("collector.config does not match input config")
		}
		if collector.Registry() == nil {
			t.Error("collector registry is nil")
		}
	})

	t.Run("with nil config uses defaults", func(t *testing.T) {
		collector, err := NewCollector(nil)
		if err != nil {
			t.Fatalf("NewCollector(nil) error = %v, want nil", err)
		}
		if collector.config.Namespace != "cloudkit" {
			t.Errorf("default namespace = %q, want %q", collector.config.Namespace, "cloudkit")
		}
		if !collector.config.Enabled {
			t.Error("default config should be enabled")
		}
	})

	t.Run("with disabled config", func(t *testing.T) {
		collector, err := NewCollector(&Config{Enabled: false})
		if err != nil {
			t.Fatalf("NewCollector() error = %v, want nil", err)
		}
		if collector.Registry() != nil {
			t.Error("disabled collector should not have registry")
		}
	})
}

func TestRecordOperation(t *testing.T) {
	t.Parallel()

	t.Run("record multiple operations", func(t *testing.T) {
		collector := newTestCollector(t)

		collector.RecordOperation("send", 100*time.Millisecond, 1000, true)
		collector.RecordOperation("send", 200*time.Millisecond, 2000, true)
		collector.RecordOperation("send", 300*time.Millisecond, 3000, false)

		op := collector.GetMetrics()["operations"].(map[string]*OperationMetrics)["send"]
		if op.Count != 3 {
			t.Errorf("op.Count = %d, want 3", op.Count)
		}
		if op.TotalSize != 6000 {
			t.Errorf("op.TotalSize = %d, want 6000", op.TotalSize)
		}
		if op.Errors != 1 {
			t.Errorf("op.Errors = %d, want 1", op.Errors)
		}
		if op.AvgDuration != 200*time.Millisecond {
			t.Errorf("op.AvgDuration = %v, want 200ms", op.AvgDuration)
		}

		if got := testutil.ToFloat64(collector.operationCounter.WithLabelValues("send", "success")); got != 2 {
			t.Errorf("success counter = %v, want 2", got)
		}
		if got := testutil.ToFloat64(collector.operationCounter.WithLabelValues("send", "error")); got != 1 {
			t.Errorf("error counter = %v, want 1", got)
		}
	})

	t.Run("reset clears summaries", func(t *testing.T) {
		collector := newTestCollector(t)
		collector.RecordOperation("read", time.Millisecond, 1, true)
		collector.ResetMetrics()

		ops := collector.GetMetrics()["operations"].(map[string]*OperationMetrics)
		if len(ops) != 0 {
			t.Errorf("operations after reset = %d, want 0", len(ops))
		}
	})
}

func TestDisabledAndNilCollectors(t *testing.T) {
	t.Parallel()

	disabled, err := NewCollector(&Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}
	var nilCollector *Collector

	for name, c := range map[string]*Collector{"disabled": disabled, "nil": nilCollector} {
		t.Run(name, func(t *testing.T) {
			// None of these may panic.
			c.RecordOperation("read", time.Millisecond, 10, true)
			c.RecordCacheHit("clients")
			c.RecordCacheMiss("clients")
			c.UpdateCacheSize("clients", 3)
			c.UpdateTrackedClients("clients", 3)
			c.RecordMessage("orders.fifo", "sent")
			c.RecordError("read", errors.New("boom"))
			c.ResetMetrics()

			if len(c.GetMetrics()) != 0 {
				t.Error("disabled collector should report no metrics")
			}

			rec := httptest.NewRecorder()
			c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
			if rec.Code != 404 {
				t.Errorf("handler status = %d, want 404", rec.Code)
			}
		})
	}
}

func TestCacheAndClientMetrics(t *testing.T) {
	t.Parallel()

	collector := newTestCollector(t)

	collector.RecordCacheHit("sqs-clients")
	collector.RecordCacheHit("sqs-clients")
	collector.RecordCacheMiss("sqs-clients")
	collector.RecordCacheMiss("")
	collector.UpdateCacheSize("sqs-clients", 4)
	collector.UpdateTrackedClients("sqs-clients", 5)
	collector.RecordMessage("orders.fifo", "sent")

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"hits", testutil.ToFloat64(collector.cacheCounter.WithLabelValues("sqs-clients", "hit")), 2},
		{"misses", testutil.ToFloat64(collector.cacheCounter.WithLabelValues("sqs-clients", "miss")), 1},
		{"default label", testutil.ToFloat64(collector.cacheCounter.WithLabelValues("default", "miss")), 1},
		{"entries", testutil.ToFloat64(collector.cacheEntries.WithLabelValues("sqs-clients")), 4},
		{"tracked", testutil.ToFloat64(collector.clientsTracked.WithLabelValues("sqs-clients")), 5},
		{"messages", testutil.ToFloat64(collector.messageCounter.WithLabelValues("orders.fifo", "sent")), 1},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{ckerrors.Transport("SendMessage", "orders.fifo", errors.New("x")), "transport"},
		{fmt.Errorf("wrapped: %w", ckerrors.InvalidArgument("body", "must not be empty")), "invalid_argument"},
		{errors.New("request timeout"), "timeout"},
		{errors.New("connection reset by peer"), "connection"},
		{errors.New("queue does not exist"), "not_found"},
		{errors.New("Access Denied"), "permission"},
		{errors.New("Throttling: rate exceeded"), "throttling"},
		{errors.New("weird"), "other"},
	}

	for _, tt := range tests {
		if got := classifyError(tt.err); got != tt.want {
			t.Errorf("classifyError(%q) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestRecordErrorAndHandler(t *testing.T) {
	t.Parallel()

	collector := newTestCollector(t)
	collector.RecordError("Delete", ckerrors.MessageVisibilityExpired("m-1", "body", nil))
	collector.RecordError("Delete", nil)

	if got := testutil.ToFloat64(collector.errorCounter.WithLabelValues("Delete", "message_visibility_expired")); got != 1 {
		t.Errorf("error counter = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "test_errors_total") {
		t.Errorf("exposition missing errors_total: %s", body)
	}
}
