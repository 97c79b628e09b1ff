package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a thin HTTP client for the daemon API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the given base URL (e.g. http://host:port).
// The timeout is generous because a calibrate call can run a full speed
// test before answering.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 90 * time.Second,
		},
	}
}

// Status fetches the engine snapshot.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	if err := c.getJSON(ctx, "/v1/status", &resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// Baseline fetches every learned weekly slot.
func (c *Client) Baseline(ctx context.Context) (BaselineResponse, error) {
	var resp BaselineResponse
	if err := c.getJSON(ctx, "/v1/baseline", &resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// Calibrate runs a calibration cycle. A non-empty result skips the
// daemon-side speed test and feeds the given report instead.
func (c *Client) Calibrate(ctx context.Context, result json.RawMessage) (CalibrateResponse, error) {
	var resp CalibrateResponse
	if err := c.postJSON(ctx, "/v1/calibrate", CalibrateRequest{Result: result}, &resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// Adjust runs one control-law step. A nil latency makes the daemon
// probe the link itself.
func (c *Client) Adjust(ctx context.Context, latencyMs *float64) (AdjustResponse, error) {
	var resp AdjustResponse
	if err := c.postJSON(ctx, "/v1/adjust", AdjustRequest{LatencyMs: latencyMs}, &resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// StartLearning switches the daemon into learning mode.
func (c *Client) StartLearning(ctx context.Context) (LearningResponse, error) {
	var resp LearningResponse
	if err := c.postJSON(ctx, "/v1/learning/start", struct{}{}, &resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// StopLearning switches the daemon back to monitoring.
func (c *Client) StopLearning(ctx context.Context) (LearningResponse, error) {
	var resp LearningResponse
	if err := c.postJSON(ctx, "/v1/learning/stop", struct{}{}, &resp); err != nil {
		return resp, err
	}
	return resp, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(res.Body)
		msg := strings.TrimSpace(string(body))
		if msg != "" {
			return fmt.Errorf("request failed: %s: %s", res.Status, msg)
		}
		return fmt.Errorf("request failed: %s", res.Status)
	}

	if out == nil {
		return nil
	}

	decoder := json.NewDecoder(res.Body)
	return decoder.Decode(out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(res.Body)
		msg := strings.TrimSpace(string(body))
		if msg != "" {
			return fmt.Errorf("request failed: %s: %s", res.Status, msg)
		}
		return fmt.Errorf("request failed: %s", res.Status)
	}

	decoder := json.NewDecoder(res.Body)
	return decoder.Decode(out)
}
