package model

import (
	"encoding/json"
	"time"
)

// TrafficRecord is one application's traffic contribution for one host,
// observed during a single poll of the appliance. JSON tags match the
// payload the remote collector expects.
type TrafficRecord struct {
	ID              int64           `json:"-"`
	HostIP          string          `json:"host_ip"`
	Application     string          `json:"application"`
	Category        string          `json:"category"`
	BytesSent       int64           `json:"bytes_sent"`
	BytesReceived   int64           `json:"bytes_received"`
	PacketsSent     int64           `json:"packets_sent"`
	PacketsReceived int64           `json:"packets_received"`
	Duration        int64           `json:"duration"`
	FlowInfo        json.RawMessage `json:"flow_info"`
	Timestamp       time.Time       `json:"-"`
	SentToRemote    bool            `json:"-"`
}

// Batch is the set of records produced by one poll cycle. StartedAt is the
// watermark used to scope MarkDelivered after a successful forward.
type Batch struct {
	StartedAt time.Time
	Records   []TrafficRecord
}

func (b Batch) Empty() bool {
	return len(b.Records) == 0
}
