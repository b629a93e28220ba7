package communicator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// RunnerInfo mirrors one plugin stage of the current job.
type RunnerInfo struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Success bool   `json:"success,omitempty"`
}

// StatusReport is posted to /api/v1/workers/status.
type StatusReport struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Idle        bool         `json:"idle"`
	Paused      bool         `json:"paused"`
	CurrentFile string       `json:"current_file,omitempty"`
	Percent     *float64     `json:"percent,omitempty"`
	StartTime   int64        `json:"start_time,omitempty"`
	LogLines    []string     `json:"log_lines,omitempty"`
	Runners     []RunnerInfo `json:"runners_info,omitempty"`
	Pending     []string     `json:"pending,omitempty"`
}

// Completion is posted to /api/v1/history/record when a job ends.
type Completion struct {
	Label      string  `json:"label"`
	AbsPath    string  `json:"abspath"`
	Success    bool    `json:"success"`
	WorkerID   string  `json:"worker_id"`
	StartTime  float64 `json:"start_time"`
	FinishTime float64 `json:"finish_time"`
}

type Client struct {
	backendURL  string
	workerToken string
	httpClient  *http.Client
	version     string
	logger      *zap.Logger
}

type ClientConfig struct {
	BackendURL  string
	WorkerToken string
	Timeout     time.Duration
	Version     string
	Logger      *zap.Logger
}

func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		backendURL:  cfg.BackendURL,
		workerToken: cfg.WorkerToken,
		version:     cfg.Version,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (c *Client) ReportStatus(ctx context.Context, report StatusReport) error {
	return c.post(ctx, "/api/v1/workers/status", report)
}

func (c *Client) RecordCompletion(ctx context.Context, done Completion) error {
	return c.post(ctx, "/api/v1/history/record", done)
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) error {
	start := time.Now()
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.backendURL + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.workerToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.workerToken)
	}
	httpReq.Header.Set("User-Agent", "MediadashAgent/"+c.version)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("agent_post_network_error", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug("agent_post_response",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		zap.Int("resp_bytes", len(respBody)),
	)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("agent_post_bad_status", zap.String("path", path), zap.Int("status", resp.StatusCode))
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var ack struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(respBody, &ack); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if !ack.Success {
		return fmt.Errorf("server rejected %s: %s", path, ack.Error)
	}
	return nil
}
