package model

import "time"

// ApplicationSummary aggregates one poll cycle's batch for one application.
// Summaries are local-only artifacts; they are never forwarded.
type ApplicationSummary struct {
	Application  string
	Category     string
	TotalBytes   int64
	TotalFlows   int
	UniqueHosts  int
	AvgDuration  float64
	Period       string
	Timestamp    time.Time
	SentToRemote bool
}
