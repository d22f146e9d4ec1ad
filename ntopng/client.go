package ntopng

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/audilinea/extractor/config"
)

const requestTimeout = 30 * time.Second

// StatusError is returned when the appliance answers with a non-2xx status.
type StatusError struct {
	Resource string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ntopng: HTTP %d fetching %s", e.Code, e.Resource)
}

// Client issues read-only queries against the ntopng REST API.
type Client struct {
	baseURL  string
	user     string
	password string
	http     *http.Client
}

func NewClient(cfg config.NtopngConfig) *Client {
	return &Client{
		baseURL:  cfg.BaseURL(),
		user:     cfg.User,
		password: cfg.Password,
		http:     &http.Client{Timeout: requestTimeout},
	}
}

// response is the top-level wrapper every ntopng REST resource returns.
type response struct {
	Rsp json.RawMessage `json:"rsp"`
}

// Fetch GETs one resource under {base}/lua/rest/ and returns the raw rsp
// payload. Transport errors and non-2xx statuses come back as errors; retry
// policy belongs to the caller.
func (c *Client) Fetch(ctx context.Context, resource string) (json.RawMessage, error) {
	url := fmt.Sprintf("%s/lua/rest/%s", c.baseURL, resource)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ntopng: build request for %s: %w", resource, err)
	}
	req.SetBasicAuth(c.user, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ntopng: fetch %s: %w", resource, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Resource: resource, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ntopng: read %s: %w", resource, err)
	}

	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("ntopng: decode %s: %w", resource, err)
	}
	return r.Rsp, nil
}
