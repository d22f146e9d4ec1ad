package ntopng

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/audilinea/extractor/model"
)

// Resources consumed per poll. Flows and applications are fetched so the
// appliance keeps populating them, but the normalizer does not read them yet.
const (
	resourceActiveHosts  = "get/host/active.json"
	resourceActiveFlows  = "get/flow/active.json"
	resourceApplications = "get/application/data.json"
	resourceHostDetail   = "get/host/data.json?host=%s"
)

// Fetcher is the slice of Client the extractor needs.
type Fetcher interface {
	Fetch(ctx context.Context, resource string) (json.RawMessage, error)
}

// Extractor turns the appliance's nested host/application responses into a
// flat list of traffic records.
type Extractor struct {
	client Fetcher
	log    *zap.Logger
}

func NewExtractor(client Fetcher, log *zap.Logger) *Extractor {
	return &Extractor{client: client, log: log}
}

// appDetail is one entry of a host's applications map. Absent counters
// default to zero and an absent category to "Unknown".
type appDetail struct {
	Category        string `json:"category"`
	BytesSent       int64  `json:"bytes.sent"`
	BytesReceived   int64  `json:"bytes.rcvd"`
	PacketsSent     int64  `json:"packets.sent"`
	PacketsReceived int64  `json:"packets.rcvd"`
	Duration        int64  `json:"duration"`
}

type hostDetail struct {
	Applications map[string]json.RawMessage `json:"applications"`
}

// Extract enumerates active hosts and their per-application counters. A host
// whose detail fetch or decode fails is logged and skipped; it never aborts
// the batch. Record order is not significant.
func (e *Extractor) Extract(ctx context.Context) ([]model.TrafficRecord, error) {
	hostsRaw, err := e.client.Fetch(ctx, resourceActiveHosts)
	if err != nil {
		return nil, err
	}

	var hosts map[string]json.RawMessage
	if err := json.Unmarshal(hostsRaw, &hosts); err != nil {
		return nil, fmt.Errorf("ntopng: decode active hosts: %w", err)
	}

	// Reserved resources, fetched but not consumed.
	if flows, err := e.client.Fetch(ctx, resourceActiveFlows); err != nil {
		e.log.Warn("fetch active flows failed", zap.Error(err))
	} else {
		e.log.Debug("fetched active flows", zap.Int("bytes", len(flows)))
	}
	if apps, err := e.client.Fetch(ctx, resourceApplications); err != nil {
		e.log.Warn("fetch application data failed", zap.Error(err))
	} else {
		e.log.Debug("fetched application data", zap.Int("bytes", len(apps)))
	}

	var records []model.TrafficRecord
	for hostKey := range hosts {
		recs, err := e.extractHost(ctx, hostKey)
		if err != nil {
			e.log.Error("host extraction failed, skipping host",
				zap.String("host", hostKey), zap.Error(err))
			continue
		}
		records = append(records, recs...)
	}

	e.log.Info("extracted traffic records",
		zap.Int("records", len(records)), zap.Int("hosts", len(hosts)))
	return records, nil
}

func (e *Extractor) extractHost(ctx context.Context, hostKey string) ([]model.TrafficRecord, error) {
	raw, err := e.client.Fetch(ctx, fmt.Sprintf(resourceHostDetail, hostKey))
	if err != nil {
		return nil, err
	}

	var detail hostDetail
	if err := json.Unmarshal(raw, &detail); err != nil {
		return nil, fmt.Errorf("decode host detail: %w", err)
	}

	records := make([]model.TrafficRecord, 0, len(detail.Applications))
	for appName, blob := range detail.Applications {
		var app appDetail
		if err := json.Unmarshal(blob, &app); err != nil {
			e.log.Warn("skipping undecodable application entry",
				zap.String("host", hostKey), zap.String("application", appName), zap.Error(err))
			continue
		}
		if app.Category == "" {
			app.Category = "Unknown"
		}
		records = append(records, model.TrafficRecord{
			HostIP:          hostKey,
			Application:     appName,
			Category:        app.Category,
			BytesSent:       app.BytesSent,
			BytesReceived:   app.BytesReceived,
			PacketsSent:     app.PacketsSent,
			PacketsReceived: app.PacketsReceived,
			Duration:        app.Duration,
			FlowInfo:        blob,
		})
	}
	return records, nil
}
