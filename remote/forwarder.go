package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/audilinea/extractor/config"
	"github.com/audilinea/extractor/model"
)

const sendTimeout = 60 * time.Second

// payload is the body the remote collector expects.
type payload struct {
	Timestamp string                `json:"timestamp"`
	DeviceID  string                `json:"device_id"`
	Metrics   []model.TrafficRecord `json:"metrics"`
}

// Forwarder pushes record batches to the remote collector. Send reports
// success or failure and never retries; a failed batch simply stays
// unmarked in the local store.
type Forwarder struct {
	endpoint string
	apiKey   string
	deviceID string
	http     *http.Client
	log      *zap.Logger
}

func NewForwarder(cfg config.RemoteConfig, log *zap.Logger) *Forwarder {
	return &Forwarder{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		deviceID: deviceID(),
		http:     &http.Client{Timeout: sendTimeout},
		log:      log,
	}
}

func deviceID() string {
	if name, err := os.Hostname(); err == nil && name != "" {
		return name
	}
	if name := os.Getenv("HOSTNAME"); name != "" {
		return name
	}
	return "unknown"
}

// Send posts the batch with a Bearer token. True only on a 2xx response;
// every failure mode is logged and reported as false, never raised.
func (f *Forwarder) Send(ctx context.Context, records []model.TrafficRecord) bool {
	if f.endpoint == "" {
		f.log.Warn("no remote endpoint configured, skipping forward")
		return false
	}

	body, err := json.Marshal(payload{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		DeviceID:  f.deviceID,
		Metrics:   records,
	})
	if err != nil {
		f.log.Error("marshal forward payload", zap.Error(err))
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		f.log.Error("build forward request", zap.Error(err))
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.apiKey)

	resp, err := f.http.Do(req)
	if err != nil {
		f.log.Error("forward to remote failed", zap.String("endpoint", f.endpoint), zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.log.Error("remote rejected batch",
			zap.Int("status", resp.StatusCode), zap.Int("records", len(records)))
		return false
	}

	f.log.Info("forwarded batch to remote", zap.Int("records", len(records)))
	return true
}
