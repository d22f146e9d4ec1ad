package prom

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/audilinea/extractor/extractor"
)

// Metrics implements extractor.Metrics on prometheus counters.
type Metrics struct {
	cycles           *prometheus.CounterVec
	recordsExtracted prometheus.Counter
	recordsForwarded prometheus.Counter
	forwardFailures  prometheus.Counter
	storageErrors    prometheus.Counter
	state            *prometheus.GaugeVec

	lastState extractor.State
}

func NewMetrics() *Metrics {
	return &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "extractor_cycles_total",
			Help: "Poll cycles run, by result",
		}, []string{"result"}),
		recordsExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "extractor_records_extracted_total",
			Help: "Traffic records normalized from the appliance",
		}),
		recordsForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "extractor_records_forwarded_total",
			Help: "Traffic records confirmed delivered to the remote collector",
		}),
		forwardFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "extractor_forward_failures_total",
			Help: "Forward attempts that did not get a 2xx from the remote",
		}),
		storageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "extractor_storage_errors_total",
			Help: "Local store operations that failed",
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "extractor_loop_state",
			Help: "Current loop state (1 for the active state)",
		}, []string{"state"}),
	}
}

func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(m.cycles, m.recordsExtracted, m.recordsForwarded,
		m.forwardFailures, m.storageErrors, m.state)
}

func (m *Metrics) CycleCompleted(failed bool) {
	result := "ok"
	if failed {
		result = "error"
	}
	m.cycles.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordsExtracted(n int) { m.recordsExtracted.Add(float64(n)) }
func (m *Metrics) RecordsForwarded(n int) { m.recordsForwarded.Add(float64(n)) }
func (m *Metrics) ForwardFailed()         { m.forwardFailures.Inc() }
func (m *Metrics) StorageError()          { m.storageErrors.Inc() }

func (m *Metrics) StateChanged(s extractor.State) {
	if m.lastState != "" {
		m.state.WithLabelValues(string(m.lastState)).Set(0)
	}
	m.state.WithLabelValues(string(s)).Set(1)
	m.lastState = s
}

// BacklogSource reports the undelivered backlog in the local store.
type BacklogSource interface {
	CountUndelivered(ctx context.Context) (int64, error)
}

// BacklogCollector exposes the undelivered row count as a gauge, read from
// the store at scrape time.
type BacklogCollector struct {
	store BacklogSource
	desc  *prometheus.Desc
	log   *zap.Logger
}

func NewBacklogCollector(store BacklogSource, log *zap.Logger) *BacklogCollector {
	return &BacklogCollector{
		store: store,
		desc: prometheus.NewDesc(
			"extractor_undelivered_records",
			"Traffic records persisted locally but not yet confirmed delivered",
			nil, nil,
		),
		log: log,
	}
}

func (c *BacklogCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *BacklogCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := c.store.CountUndelivered(ctx)
	if err != nil {
		c.log.Warn("backlog scrape failed", zap.Error(err))
		return
	}
	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(n))
}

// StatusSource is the loop snapshot served on /healthz.
type StatusSource interface {
	Status() extractor.Status
}

// Serve starts the metrics and health endpoints in the background.
func Serve(addr string, reg *prometheus.Registry, status StatusSource, log *zap.Logger) {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status.Status())
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()
}
