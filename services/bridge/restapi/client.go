// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package restapi is the HTTP fallback for operations that do not ride
// the websocket: project CRUD, the project list, and report download.
//
// # Description
//
// The backend owns the project registry. The Client here is a plain
// request/response wrapper: no retries beyond what the caller chooses
// to do, no ordering guarantees, standard HTTP error mapping. Outbound
// requests carry W3C trace context so backend spans join ours.
//
// # Thread Safety
//
// Client is safe for concurrent use; it holds no mutable state beyond
// the shared http.Client.
package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianBridge/services/bridge/telemetry"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrProjectNotFound maps a 404 from any project endpoint.
	ErrProjectNotFound = errors.New("project not found")

	// ErrBackendUnavailable maps connection failures and 5xx responses.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrBadRequest maps a 4xx the client caused (invalid goal, bad id).
	ErrBadRequest = errors.New("backend rejected request")
)

// apiError is the backend's error envelope.
type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// =============================================================================
// Types
// =============================================================================

// Project is one entry in the backend's project registry.
type Project struct {
	ID          string `json:"project_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	NodeCount   int    `json:"node_count"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// CreateProjectRequest starts a new decomposition over HTTP.
type CreateProjectRequest struct {
	Goal     string `json:"goal" validate:"required"`
	MaxSteps int    `json:"max_steps" validate:"gte=0"`
}

type listProjectsResponse struct {
	Projects []Project `json:"projects"`
}

// =============================================================================
// Configuration
// =============================================================================

// Config locates the backend's HTTP API.
type Config struct {
	// BaseURL is the API origin, e.g. "http://localhost:9000".
	BaseURL string `validate:"required,url"`

	// Timeout bounds each request. Report downloads get 5x this.
	Timeout time.Duration `validate:"gt=0"`
}

// DefaultConfig targets a local backend.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:9000",
		Timeout: 15 * time.Second,
	}
}

var validate = validator.New()

// Validate checks the config.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("restapi config: %w", err)
	}
	return nil
}

// =============================================================================
// Client
// =============================================================================

// Client talks to the backend's project-management API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New builds a client. A nil logger falls back to slog.Default.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "restapi"),
	}, nil
}

// ListProjects returns the backend's project registry.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var out listProjectsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/projects", nil, &out); err != nil {
		return nil, err
	}
	return out.Projects, nil
}

// CreateProject starts a new project and returns the backend's record.
func (c *Client) CreateProject(ctx context.Context, req CreateProjectRequest) (Project, error) {
	if err := validate.Struct(req); err != nil {
		return Project{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	var out Project
	if err := c.doJSON(ctx, http.MethodPost, "/api/projects", req, &out); err != nil {
		return Project{}, err
	}
	return out, nil
}

// DeleteProject removes a project and its backend-side state.
func (c *Client) DeleteProject(ctx context.Context, projectID string) error {
	if projectID == "" {
		return fmt.Errorf("%w: empty project id", ErrBadRequest)
	}
	return c.doJSON(ctx, http.MethodDelete, "/api/projects/"+projectID, nil, nil)
}

// SwitchProject asks the backend to make projectID current. The
// websocket layer is the usual path; this exists for headless tooling.
func (c *Client) SwitchProject(ctx context.Context, projectID string) error {
	if projectID == "" {
		return fmt.Errorf("%w: empty project id", ErrBadRequest)
	}
	body := map[string]string{"project_id": projectID}
	return c.doJSON(ctx, http.MethodPost, "/api/projects/switch", body, nil)
}

// DownloadReport streams the generated report for projectID into w.
// Returns the number of bytes written.
func (c *Client) DownloadReport(ctx context.Context, projectID string, w io.Writer) (int64, error) {
	if projectID == "" {
		return 0, fmt.Errorf("%w: empty project id", ErrBadRequest)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/projects/"+projectID+"/report", nil)
	if err != nil {
		return 0, fmt.Errorf("building report request: %w", err)
	}
	req = telemetry.PropagateToRequest(ctx, req)

	// Reports can be large; give the stream a longer budget.
	client := &http.Client{Timeout: 5 * c.httpClient.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, c.statusError(resp)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("streaming report: %w", err)
	}
	c.logger.Info("report downloaded", "project_id", projectID, "bytes", n)
	return n, nil
}

// =============================================================================
// Internals
// =============================================================================

// doJSON issues one request and decodes a JSON response into out (when
// out is non-nil). Status codes outside 2xx map onto the sentinels.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req = telemetry.PropagateToRequest(ctx, req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// statusError converts a non-2xx response into a sentinel-wrapped
// error, keeping the backend's message when it sent one.
func (c *Client) statusError(resp *http.Response) error {
	var envelope apiError
	msg := resp.Status
	if data, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil {
		if json.Unmarshal(data, &envelope) == nil && envelope.Error != "" {
			msg = envelope.Error
		}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrProjectNotFound, msg)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s", ErrBackendUnavailable, msg)
	default:
		return fmt.Errorf("%w: %s", ErrBadRequest, msg)
	}
}
