package extractor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/audilinea/extractor/agg"
	"github.com/audilinea/extractor/config"
)

// State names the phase the loop is currently in.
type State string

const (
	StateIdle         State = "idle"
	StatePolling      State = "polling"
	StatePersisting   State = "persisting"
	StateAggregating  State = "aggregating"
	StateForwarding   State = "forwarding"
	StateMarking      State = "marking"
	StateShuttingDown State = "shutting_down"
)

// cooldown after a cycle whose extraction failed outright. Fixed, no
// exponential growth; the loop never gives up on its own.
const errCooldown = 5 * time.Second

// Status is a snapshot of the loop for the health endpoint.
type Status struct {
	State         State     `json:"state"`
	LastCycleAt   time.Time `json:"last_cycle_at"`
	LastBatchSize int       `json:"last_batch_size"`
	CyclesRun     uint64    `json:"cycles_run"`
}

// Loop drives the repeating fetch -> persist -> aggregate -> forward -> mark
// cycle. One cycle runs to completion before the next begins; only context
// cancellation ends the loop.
type Loop struct {
	source  TrafficSource
	store   Store
	fwd     Forwarder
	metrics Metrics
	log     *zap.Logger
	poll    config.PollConfig

	now func() time.Time

	mu            sync.Mutex
	status        Status
	lastReconcile time.Time
}

func New(source TrafficSource, store Store, fwd Forwarder, metrics Metrics, poll config.PollConfig, log *zap.Logger) *Loop {
	return &Loop{
		source:  source,
		store:   store,
		fwd:     fwd,
		metrics: metrics,
		log:     log,
		poll:    poll,
		now:     time.Now,
		status:  Status{State: StateIdle},
	}
}

// Status returns a copy of the loop's current snapshot.
func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.status.State = s
	l.mu.Unlock()
	l.metrics.StateChanged(s)
}

func (l *Loop) finishCycle(batchSize int) {
	l.mu.Lock()
	l.status.State = StateIdle
	l.status.LastCycleAt = l.now().UTC()
	l.status.LastBatchSize = batchSize
	l.status.CyclesRun++
	l.mu.Unlock()
	l.metrics.StateChanged(StateIdle)
}

// Run executes poll cycles until ctx is cancelled. A cycle that fails is
// logged and followed by a short fixed cooldown; it never stops the loop.
func (l *Loop) Run(ctx context.Context) {
	l.log.Info("extractor loop starting", zap.Duration("interval", l.poll.Interval))

	for {
		if ctx.Err() != nil {
			break
		}

		delay := l.poll.Interval
		if err := l.cycle(ctx); err != nil {
			l.log.Error("poll cycle failed", zap.Error(err))
			l.metrics.CycleCompleted(true)
			delay = errCooldown
		} else {
			l.metrics.CycleCompleted(false)
		}

		if l.reconcileDue() {
			l.reconcile(ctx)
		}

		if !sleep(ctx, delay) {
			break
		}
	}

	l.setState(StateShuttingDown)
	l.log.Info("extractor loop stopped")
}

// cycle runs one full pipeline pass. Storage failures are contained per
// step: a batch that could not be persisted is still forwarded, matching
// the delivery semantics of the store-then-forward ordering.
func (l *Loop) cycle(ctx context.Context) error {
	start := l.now().UTC()

	l.setState(StatePolling)
	records, err := l.source.Extract(ctx)
	if err != nil {
		l.finishCycle(0)
		return err
	}
	l.metrics.RecordsExtracted(len(records))

	if len(records) == 0 {
		l.finishCycle(0)
		return nil
	}

	l.setState(StatePersisting)
	if err := l.store.InsertBatch(ctx, records); err != nil {
		l.log.Error("persist batch failed", zap.Int("records", len(records)), zap.Error(err))
		l.metrics.StorageError()
	}

	l.setState(StateAggregating)
	summaries := agg.Summarize(records, l.poll.Interval)
	if err := l.store.InsertSummaries(ctx, summaries); err != nil {
		l.log.Error("persist summaries failed", zap.Int("summaries", len(summaries)), zap.Error(err))
		l.metrics.StorageError()
	}

	l.setState(StateForwarding)
	if l.fwd.Send(ctx, records) {
		l.setState(StateMarking)
		if _, err := l.store.MarkDelivered(ctx, start); err != nil {
			l.log.Error("mark delivered failed", zap.Time("since", start), zap.Error(err))
			l.metrics.StorageError()
		} else {
			l.metrics.RecordsForwarded(len(records))
		}
	} else {
		l.metrics.ForwardFailed()
	}

	l.finishCycle(len(records))
	return nil
}

func (l *Loop) reconcileDue() bool {
	if l.poll.ReconcileInterval <= 0 {
		return false
	}
	return l.now().Sub(l.lastReconcile) >= l.poll.ReconcileInterval
}

// reconcile resends a bounded page of still-undelivered rows and marks
// exactly those rows on success. Disabled unless configured; the default
// keeps the source behavior of never resending a failed batch.
func (l *Loop) reconcile(ctx context.Context) {
	l.lastReconcile = l.now()

	records, err := l.store.SelectUndelivered(ctx, l.poll.ReconcileLimit)
	if err != nil {
		l.log.Error("reconcile: select undelivered failed", zap.Error(err))
		l.metrics.StorageError()
		return
	}
	if len(records) == 0 {
		return
	}

	l.log.Info("reconciling undelivered records", zap.Int("records", len(records)))
	if !l.fwd.Send(ctx, records) {
		l.metrics.ForwardFailed()
		return
	}

	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	n, err := l.store.MarkDeliveredByID(ctx, ids)
	if err != nil {
		l.log.Error("reconcile: mark delivered failed", zap.Error(err))
		l.metrics.StorageError()
		return
	}
	l.metrics.RecordsForwarded(len(records))
	l.log.Info("reconciled records", zap.Int64("marked", n))
}

// sleep waits for d or until ctx is cancelled; false means shutdown.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
