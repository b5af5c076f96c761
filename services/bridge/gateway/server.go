// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gateway exposes the daemon's local JSON API and push hub.
//
// # Description
//
// The gateway is how rendering clients and headless tooling observe
// the bridge: a browser dashboard polls or subscribes to /ws, the CLI
// answers interrupts through POST /api/v1/interrupts/respond. It reads
// display state from the Graph State Store and forwards user actions
// into the session engine's public mutation contract; it never touches
// the reconciler or cache directly.
//
// Endpoints:
//
//	GET  /healthz                     - liveness and connectivity
//	GET  /metrics                     - prometheus exposition
//	GET  /api/v1/state                - bound project render feed
//	GET  /api/v1/projects             - cached project ids
//	POST /api/v1/projects/switch      - two-phase switch via the engine
//	GET  /api/v1/interrupts           - active interrupt + audit log
//	POST /api/v1/interrupts/respond   - approve / modify / abort
//	GET  /ws                          - push hub (debounced refresh frames)
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianBridge/services/bridge/hitl"
	"github.com/AleutianAI/AleutianBridge/services/bridge/projectcache"
	"github.com/AleutianAI/AleutianBridge/services/bridge/protocol"
	"github.com/AleutianAI/AleutianBridge/services/bridge/session"
	"github.com/AleutianAI/AleutianBridge/services/bridge/taskgraph"
	"github.com/AleutianAI/AleutianBridge/services/bridge/telemetry"
)

// ServiceVersion is the gateway API version.
const ServiceVersion = "0.1.0"

// =============================================================================
// Collaborator interface
// =============================================================================

// SessionController is the slice of the session engine the gateway
// drives. Tests substitute stubs.
type SessionController interface {
	SessionID() string
	CurrentProject() string
	SwitchProject(ctx context.Context, projectID string) error
	RestoreProject(ctx context.Context, projectID string) error
	StartProject(ctx context.Context, goal string, maxSteps int) error
	RespondInterrupt(ctx context.Context, action protocol.ResponseAction, instructions string) error
}

// =============================================================================
// Configuration
// =============================================================================

// Config sets the listen address and HTTP limits.
type Config struct {
	// Addr is the listen address, e.g. "127.0.0.1:8777".
	Addr string

	// ShutdownGrace bounds graceful drain on stop.
	ShutdownGrace time.Duration
}

// DefaultConfig binds to loopback only; the gateway carries no auth.
func DefaultConfig() Config {
	return Config{
		Addr:          "127.0.0.1:8777",
		ShutdownGrace: 5 * time.Second,
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("gateway addr must not be empty")
	}
	if c.ShutdownGrace <= 0 {
		return errors.New("shutdown grace must be positive")
	}
	return nil
}

// =============================================================================
// Server
// =============================================================================

// ErrorResponse is the gateway's error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Server is the local HTTP API over one session engine.
type Server struct {
	cfg        Config
	controller SessionController
	store      *taskgraph.Store
	cache      *projectcache.Cache
	interrupts *hitl.Handler
	hub        *Hub
	router     *gin.Engine
	logger     *slog.Logger
}

// New assembles the gateway. The hub is created here; wire it to the
// engine's debounced refresh with Hub().BroadcastState.
func New(cfg Config, controller SessionController, store *taskgraph.Store,
	cache *projectcache.Cache, interrupts *hitl.Handler, logger *slog.Logger) (*Server, error) {

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("gateway config: %w", err)
	}
	if controller == nil || store == nil || cache == nil || interrupts == nil {
		return nil, errors.New("gateway requires controller, store, cache and interrupts")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:        cfg,
		controller: controller,
		store:      store,
		cache:      cache,
		interrupts: interrupts,
		hub:        newHub(logger),
		logger:     logger.With("component", "gateway"),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(otelgin.Middleware("bridge-gateway"), gin.Recovery())
	s.registerRoutes(router)
	s.router = router
	return s, nil
}

// Hub returns the push hub for refresh wiring.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(telemetry.MetricsHandler()))
	router.GET("/ws", s.hub.handleSubscribe)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/state", s.handleState)
		v1.GET("/projects", s.handleProjects)
		v1.POST("/projects/switch", s.handleSwitch)
		v1.GET("/interrupts", s.handleInterrupts)
		v1.POST("/interrupts/respond", s.handleRespond)
	}
}

// Run serves until ctx is cancelled, then drains.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.hub.close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("gateway shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		s.hub.close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("gateway serve: %w", err)
	}
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"version":    ServiceVersion,
		"session_id": s.controller.SessionID(),
		"connected":  s.store.Connected(),
	})
}

// StateResponse is the render feed for one bound project.
type StateResponse struct {
	SessionID   string                        `json:"session_id"`
	Connected   bool                          `json:"connected"`
	ProjectID   string                        `json:"project_id"`
	OverallGoal string                        `json:"overall_goal,omitempty"`
	NodeCount   int                           `json:"node_count"`
	Nodes       map[string]taskgraph.TaskNode `json:"nodes"`
	Edges       []taskgraph.Edge              `json:"edges"`
	SelectedIDs []string                      `json:"selected_ids,omitempty"`
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.buildState())
}

func (s *Server) buildState() StateResponse {
	nodes := s.store.Nodes()
	return StateResponse{
		SessionID:   s.controller.SessionID(),
		Connected:   s.store.Connected(),
		ProjectID:   s.store.ProjectID(),
		OverallGoal: s.store.OverallGoal(),
		NodeCount:   len(nodes),
		Nodes:       nodes,
		Edges:       s.store.Edges(),
		SelectedIDs: s.store.SelectedIDs(),
	}
}

// BroadcastState pushes the current render feed to all subscribers.
// Wired to the engine's debounced OnRefresh callback.
func (s *Server) BroadcastState() {
	s.hub.broadcast(stateFrame{Type: "state", State: s.buildState()})
}

func (s *Server) handleProjects(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"current":  s.controller.CurrentProject(),
		"projects": s.cache.Projects(),
	})
}

type switchRequest struct {
	ProjectID string `json:"project_id" binding:"required"`
}

func (s *Server) handleSwitch(c *gin.Context) {
	var req switchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "project_id is required", Code: "INVALID_REQUEST"})
		return
	}

	err := s.controller.SwitchProject(c.Request.Context(), req.ProjectID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"project_id": req.ProjectID})
	case errors.Is(err, session.ErrSwitchInFlight):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "SWITCH_IN_FLIGHT"})
	case errors.Is(err, session.ErrConfirmationTimeout):
		c.JSON(http.StatusGatewayTimeout, ErrorResponse{Error: err.Error(), Code: "SWITCH_TIMEOUT"})
	default:
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error(), Code: "SWITCH_FAILED"})
	}
}

// InterruptsResponse reports the single active slot plus the bounded
// audit history.
type InterruptsResponse struct {
	State       hitl.State              `json:"state"`
	WaitTimeout bool                    `json:"wait_timed_out"`
	Active      *protocol.HITLInterrupt `json:"active,omitempty"`
	AuditLog    []hitl.Record           `json:"audit_log"`
}

func (s *Server) handleInterrupts(c *gin.Context) {
	resp := InterruptsResponse{
		State:       s.interrupts.State(),
		WaitTimeout: s.interrupts.WaitTimedOut(),
		AuditLog:    s.interrupts.AuditLog(),
	}
	if active, ok := s.interrupts.Active(); ok {
		resp.Active = &active
	}
	c.JSON(http.StatusOK, resp)
}

type respondRequest struct {
	Action       string `json:"action" binding:"required"`
	Instructions string `json:"modification_instructions,omitempty"`
}

func (s *Server) handleRespond(c *gin.Context) {
	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "action is required", Code: "INVALID_REQUEST"})
		return
	}

	action := protocol.ResponseAction(req.Action)
	err := s.controller.RespondInterrupt(c.Request.Context(), action, req.Instructions)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"action": req.Action})
	case errors.Is(err, hitl.ErrInvalidAction), errors.Is(err, hitl.ErrInstructionsRequired):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_RESPONSE"})
	case errors.Is(err, hitl.ErrNoActiveRequest):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "NO_ACTIVE_REQUEST"})
	case errors.Is(err, hitl.ErrResponseInFlight):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "RESPONSE_IN_FLIGHT"})
	default:
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error(), Code: "SEND_FAILED"})
	}
}
