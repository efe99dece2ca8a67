package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStageProcessed_IncrementsByLabel(t *testing.T) {
	StageProcessed.Reset()
	StageProcessed.WithLabelValues("fetch", "completed").Inc()
	StageProcessed.WithLabelValues("fetch", "completed").Inc()
	StageProcessed.WithLabelValues("fetch", "failed").Inc()

	if got := testutil.ToFloat64(StageProcessed.WithLabelValues("fetch", "completed")); got != 2 {
		t.Errorf("expected 2 completed, got %v", got)
	}
	if got := testutil.ToFloat64(StageProcessed.WithLabelValues("fetch", "failed")); got != 1 {
		t.Errorf("expected 1 failed, got %v", got)
	}
}

func TestDLQTotal_IncrementsByStage(t *testing.T) {
	DLQTotal.Reset()
	DLQTotal.WithLabelValues("embed").Inc()

	if got := testutil.ToFloat64(DLQTotal.WithLabelValues("embed")); got != 1 {
		t.Errorf("expected 1, got %v", got)
	}
	if got := testutil.ToFloat64(DLQTotal.WithLabelValues("llm")); got != 0 {
		t.Errorf("expected 0 for an untouched stage, got %v", got)
	}
}

func TestUptime_Set(t *testing.T) {
	Uptime.Set(1700000000)
	if got := testutil.ToFloat64(Uptime); got != 1700000000 {
		t.Errorf("expected 1700000000, got %v", got)
	}
}
