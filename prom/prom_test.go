package prom

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/audilinea/extractor/extractor"
)

type fakeBacklog struct {
	n   int64
	err error
}

func (f *fakeBacklog) CountUndelivered(context.Context) (int64, error) {
	return f.n, f.err
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	m.Register(reg)

	m.CycleCompleted(false)
	m.CycleCompleted(false)
	m.CycleCompleted(true)
	m.RecordsExtracted(5)
	m.RecordsForwarded(3)
	m.ForwardFailed()
	m.StorageError()

	if got := testutil.ToFloat64(m.cycles.WithLabelValues("ok")); got != 2 {
		t.Errorf("expected 2 ok cycles, got %f", got)
	}
	if got := testutil.ToFloat64(m.cycles.WithLabelValues("error")); got != 1 {
		t.Errorf("expected 1 error cycle, got %f", got)
	}
	if got := testutil.ToFloat64(m.recordsExtracted); got != 5 {
		t.Errorf("expected 5 extracted, got %f", got)
	}
	if got := testutil.ToFloat64(m.recordsForwarded); got != 3 {
		t.Errorf("expected 3 forwarded, got %f", got)
	}
	if got := testutil.ToFloat64(m.forwardFailures); got != 1 {
		t.Errorf("expected 1 forward failure, got %f", got)
	}
}

func TestStateGauge(t *testing.T) {
	m := NewMetrics()

	m.StateChanged(extractor.StatePolling)
	m.StateChanged(extractor.StateIdle)

	if got := testutil.ToFloat64(m.state.WithLabelValues(string(extractor.StatePolling))); got != 0 {
		t.Errorf("previous state should read 0, got %f", got)
	}
	if got := testutil.ToFloat64(m.state.WithLabelValues(string(extractor.StateIdle))); got != 1 {
		t.Errorf("active state should read 1, got %f", got)
	}
}

func TestBacklogCollector(t *testing.T) {
	t.Run("reports the store count", func(t *testing.T) {
		c := NewBacklogCollector(&fakeBacklog{n: 42}, zap.NewNop())
		if got := testutil.ToFloat64(c); got != 42 {
			t.Errorf("expected backlog 42, got %f", got)
		}
	})

	t.Run("scrape failure emits nothing", func(t *testing.T) {
		c := NewBacklogCollector(&fakeBacklog{err: errors.New("db gone")}, zap.NewNop())
		if got := testutil.CollectAndCount(c); got != 0 {
			t.Errorf("expected no metrics on scrape failure, got %d", got)
		}
	})
}
