package agg

import (
	"sort"
	"time"

	"github.com/audilinea/extractor/model"
)

type accumulator struct {
	category   string
	totalBytes int64
	totalFlows int
	hosts      map[string]struct{}
	durations  int64
}

// Summarize groups one cycle's records by application and accumulates total
// bytes (sent+received), flow count, distinct hosts and mean duration.
// It is a pure function: deterministic for any ordering of the batch, and
// persistence of the result is the caller's responsibility.
func Summarize(records []model.TrafficRecord, period time.Duration) []model.ApplicationSummary {
	if len(records) == 0 {
		return nil
	}

	byApp := make(map[string]*accumulator)
	for _, r := range records {
		acc, ok := byApp[r.Application]
		if !ok {
			acc = &accumulator{
				category: r.Category,
				hosts:    make(map[string]struct{}),
			}
			byApp[r.Application] = acc
		}
		acc.totalBytes += r.BytesSent + r.BytesReceived
		acc.totalFlows++
		acc.hosts[r.HostIP] = struct{}{}
		acc.durations += r.Duration
	}

	apps := make([]string, 0, len(byApp))
	for app := range byApp {
		apps = append(apps, app)
	}
	sort.Strings(apps)

	periodLabel := period.String()
	summaries := make([]model.ApplicationSummary, 0, len(byApp))
	for _, app := range apps {
		acc := byApp[app]
		summaries = append(summaries, model.ApplicationSummary{
			Application: app,
			Category:    acc.category,
			TotalBytes:  acc.totalBytes,
			TotalFlows:  acc.totalFlows,
			UniqueHosts: len(acc.hosts),
			AvgDuration: float64(acc.durations) / float64(acc.totalFlows),
			Period:      periodLabel,
		})
	}
	return summaries
}
