package extractor

import (
	"context"
	"time"

	"github.com/audilinea/extractor/model"
)

// TrafficSource produces one poll cycle's worth of records.
type TrafficSource interface {
	Extract(ctx context.Context) ([]model.TrafficRecord, error)
}

// Store is the slice of the storage layer the loop drives.
type Store interface {
	InsertBatch(ctx context.Context, records []model.TrafficRecord) error
	InsertSummaries(ctx context.Context, summaries []model.ApplicationSummary) error
	MarkDelivered(ctx context.Context, since time.Time) (int64, error)
	SelectUndelivered(ctx context.Context, limit int) ([]model.TrafficRecord, error)
	MarkDeliveredByID(ctx context.Context, ids []int64) (int64, error)
}

// Forwarder pushes a batch to the remote collector; false means the batch
// stays undelivered.
type Forwarder interface {
	Send(ctx context.Context, records []model.TrafficRecord) bool
}

// Metrics receives pipeline events for the metrics surface.
type Metrics interface {
	CycleCompleted(err bool)
	RecordsExtracted(n int)
	RecordsForwarded(n int)
	ForwardFailed()
	StorageError()
	StateChanged(state State)
}

// NopMetrics satisfies Metrics for tests and wiring without a metrics server.
type NopMetrics struct{}

func (NopMetrics) CycleCompleted(bool)  {}
func (NopMetrics) RecordsExtracted(int) {}
func (NopMetrics) RecordsForwarded(int) {}
func (NopMetrics) ForwardFailed()       {}
func (NopMetrics) StorageError()        {}
func (NopMetrics) StateChanged(State)   {}
