// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session composes the bridge: one dispatcher goroutine
// consumes the connection manager's ordered event stream and routes
// graph updates through the reconciler, interrupts to the HITL
// handler, and project lifecycle messages to the binding.
//
// # Description
//
// The Engine owns the one true "current project" binding. Project
// switches are two-phase: the binding is applied tentatively, the
// switch request goes out, and the backend's confirmation seals it or
// a timeout rolls it back. Requests expecting a correlated response
// (switch confirmation, state restore) are pending futures with
// explicit timeouts; their continuations check that the captured
// project is still bound before applying anything.
//
// # Thread Safety
//
// All state mutation happens on the dispatcher goroutine. Public
// methods are safe to call from gateway and CLI goroutines; they post
// work to the dispatcher and wait, or delegate to internally
// synchronized components.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianBridge/services/bridge/client"
	"github.com/AleutianAI/AleutianBridge/services/bridge/hitl"
	"github.com/AleutianAI/AleutianBridge/services/bridge/projectcache"
	"github.com/AleutianAI/AleutianBridge/services/bridge/protocol"
	"github.com/AleutianAI/AleutianBridge/services/bridge/reconcile"
	"github.com/AleutianAI/AleutianBridge/services/bridge/taskgraph"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrEngineStopped indicates the dispatcher is no longer running.
	ErrEngineStopped = errors.New("session engine stopped")

	// ErrSwitchInFlight indicates a second switch before the first
	// resolved.
	ErrSwitchInFlight = errors.New("project switch already in flight")

	// ErrConfirmationTimeout indicates the backend never answered a
	// correlated request inside its deadline.
	ErrConfirmationTimeout = errors.New("no confirmation before timeout")

	// ErrDisconnected indicates a deliberate disconnect cancelled the
	// pending operation.
	ErrDisconnected = errors.New("connection closed while waiting")

	// ErrEmptyProjectID indicates a project operation without a target.
	ErrEmptyProjectID = errors.New("project id must not be empty")

	// ErrEmptyGoal indicates a start request without a goal.
	ErrEmptyGoal = errors.New("goal must not be empty")

	// errAlreadyBound short-circuits a switch to the bound project.
	errAlreadyBound = errors.New("project already bound")
)

// =============================================================================
// Metrics
// =============================================================================

var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_session_events_total",
		Help: "Dispatched events by type",
	}, []string{"type"})

	switchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_session_switches_total",
		Help: "Two-phase project switches by outcome",
	}, []string{"result"})

	restoresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_session_restores_total",
		Help: "State restore requests by outcome",
	}, []string{"result"})

	refreshFlushes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_session_refresh_flushes_total",
		Help: "Debounced change notifications delivered downstream",
	})
)

var sessionTracer = otel.Tracer("bridge.session")

// =============================================================================
// Collaborator interfaces
// =============================================================================

// Transport is the outbound half of the connection manager.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect()
	Send(ctx context.Context, v any) error
	IsConnected() bool
}

// EventSource is the inbound half: the ordered stream of messages and
// state changes. Tests inject synthetic streams.
type EventSource interface {
	Events() <-chan client.Event
}

// =============================================================================
// Configuration
// =============================================================================

// Config bounds the engine's timers.
type Config struct {
	// StabilizationDelay is how long after Connected the engine waits
	// before requesting a state restore for the bound project.
	StabilizationDelay time.Duration

	// SwitchTimeout bounds the wait for a switch confirmation; on
	// expiry the tentative binding is rolled back.
	SwitchTimeout time.Duration

	// RestoreTimeout bounds the wait for a restore response.
	RestoreTimeout time.Duration

	// DebounceWindow is the trailing coalescing window for downstream
	// change notifications.
	DebounceWindow time.Duration
}

// DefaultConfig returns the standard timings.
func DefaultConfig() Config {
	return Config{
		StabilizationDelay: 300 * time.Millisecond,
		SwitchTimeout:      10 * time.Second,
		RestoreTimeout:     10 * time.Second,
		DebounceWindow:     250 * time.Millisecond,
	}
}

// Validate checks the timings.
func (c Config) Validate() error {
	if c.StabilizationDelay <= 0 {
		return errors.New("stabilization delay must be positive")
	}
	if c.SwitchTimeout <= 0 {
		return errors.New("switch timeout must be positive")
	}
	if c.RestoreTimeout <= 0 {
		return errors.New("restore timeout must be positive")
	}
	if c.DebounceWindow <= 0 {
		return errors.New("debounce window must be positive")
	}
	return nil
}

// Deps are the collaborators the engine composes.
type Deps struct {
	Transport  Transport
	Source     EventSource
	Reconciler *reconcile.Reconciler
	Cache      *projectcache.Cache
	Store      *taskgraph.Store
	Interrupts *hitl.Handler
	Logger     *slog.Logger
}

func (d Deps) validate() error {
	if d.Transport == nil {
		return errors.New("transport must not be nil")
	}
	if d.Source == nil {
		return errors.New("event source must not be nil")
	}
	if d.Reconciler == nil {
		return errors.New("reconciler must not be nil")
	}
	if d.Cache == nil {
		return errors.New("cache must not be nil")
	}
	if d.Store == nil {
		return errors.New("store must not be nil")
	}
	if d.Interrupts == nil {
		return errors.New("interrupt handler must not be nil")
	}
	return nil
}

// =============================================================================
// Engine
// =============================================================================

// Engine is the session dispatcher.
type Engine struct {
	cfg       Config
	sessionID string

	transport  Transport
	source     EventSource
	rec        *reconcile.Reconciler
	cache      *projectcache.Cache
	store      *taskgraph.Store
	interrupts *hitl.Handler
	logger     *slog.Logger

	binding  *Binding
	futures  *futureTable
	commands chan func()
	notify   *notifier
	restores singleflight.Group

	// Dispatcher-owned; never touched off the dispatcher goroutine.
	pendingSwitch  *switchOp
	stabilizeTimer *time.Timer

	refreshMu sync.Mutex
	onRefresh func()

	stopOnce sync.Once
	done     chan struct{}
	finished chan struct{}
}

// New assembles an engine. Run must be called to start dispatching.
func New(cfg Config, deps Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("session deps: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		cfg:        cfg,
		sessionID:  uuid.NewString(),
		transport:  deps.Transport,
		source:     deps.Source,
		rec:        deps.Reconciler,
		cache:      deps.Cache,
		store:      deps.Store,
		interrupts: deps.Interrupts,
		logger:     logger.With("component", "session"),
		binding:    NewBinding(),
		futures:    newFutureTable(),
		commands:   make(chan func(), 64),
		done:       make(chan struct{}),
		finished:   make(chan struct{}),
	}
	e.notify = newNotifier(cfg.DebounceWindow, e.flushRefresh)
	deps.Store.OnChange(func(taskgraph.Change) { e.notify.poke() })
	return e, nil
}

// SessionID returns this engine instance's id.
func (e *Engine) SessionID() string {
	return e.sessionID
}

// CurrentProject returns the bound project id, or "".
func (e *Engine) CurrentProject() string {
	return e.binding.Current()
}

// Binding exposes the binding for read-only consumers.
func (e *Engine) Binding() *Binding {
	return e.binding
}

// SetDebounceWindow changes the downstream coalescing window at
// runtime (config hot reload). Out-of-range values are ignored.
func (e *Engine) SetDebounceWindow(window time.Duration) {
	e.notify.setWindow(window)
}

// OnRefresh registers the debounced downstream notification callback
// (gateway broadcast). Runs off the dispatcher goroutine.
func (e *Engine) OnRefresh(fn func()) {
	e.refreshMu.Lock()
	e.onRefresh = fn
	e.refreshMu.Unlock()
}

func (e *Engine) flushRefresh() {
	refreshFlushes.Inc()
	e.refreshMu.Lock()
	fn := e.onRefresh
	e.refreshMu.Unlock()
	if fn != nil {
		fn()
	}
}

// Run drives the dispatcher until ctx is cancelled or Stop is called.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.finished)
	defer e.notify.stop()

	e.logger.Info("session engine started", "session_id", e.sessionID)
	for {
		select {
		case <-ctx.Done():
			e.shutdown(ctx.Err())
			return nil
		case <-e.done:
			e.shutdown(ErrEngineStopped)
			return nil
		case ev := <-e.source.Events():
			e.handleEvent(ctx, ev)
		case cmd := <-e.commands:
			cmd()
		}
	}
}

// Stop ends the dispatcher. Safe to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.done) })
}

func (e *Engine) shutdown(cause error) {
	e.cancelStabilization()
	e.failPendingSwitch(ErrEngineStopped)
	e.futures.resolveAll(ErrEngineStopped)
	e.logger.Info("session engine stopped", "cause", cause)
}

// post runs fn on the dispatcher; false means the engine is down.
func (e *Engine) post(fn func()) bool {
	select {
	case e.commands <- fn:
		return true
	case <-e.finished:
		return false
	}
}

// =============================================================================
// Event dispatch
// =============================================================================

func (e *Engine) handleEvent(ctx context.Context, ev client.Event) {
	switch ev.Kind {
	case client.EventState:
		e.handleConnectivity(ctx, ev)
	case client.EventMessage:
		e.handleMessage(ctx, ev.Data)
	}
}

func (e *Engine) handleConnectivity(ctx context.Context, ev client.Event) {
	eventsTotal.WithLabelValues("connectivity").Inc()
	e.store.SetConnected(ev.State == client.StateConnected)

	switch ev.State {
	case client.StateConnected:
		e.armStabilization(ctx)
	case client.StateDisconnected:
		// Deliberate teardown: correlated waits die with it.
		e.cancelStabilization()
		e.failPendingSwitch(ErrDisconnected)
		e.futures.resolveAll(ErrDisconnected)
	default:
		// A drop voids the pending post-connect restore; in-flight
		// futures keep their own deadlines.
		e.cancelStabilization()
	}
}

func (e *Engine) handleMessage(ctx context.Context, data []byte) {
	typ, err := protocol.Sniff(data)
	if err != nil {
		eventsTotal.WithLabelValues("invalid").Inc()
		e.logger.Warn("dropping undecodable frame", "error", err)
		return
	}
	eventsTotal.WithLabelValues(string(typ)).Inc()

	switch typ {
	case protocol.TypeGraphUpdate:
		upd, err := protocol.ParseGraphUpdate(data)
		if err != nil {
			e.logger.Warn("dropping malformed graph update", "error", err)
			return
		}
		e.applyUpdate(ctx, upd)

	case protocol.TypeHITLInterrupt:
		msg, err := protocol.ParseHITLInterrupt(data)
		if err != nil {
			e.logger.Warn("dropping malformed interrupt", "error", err)
			return
		}
		// The handler records and logs rejections itself.
		_ = e.interrupts.OnInterrupt(msg)

	case protocol.TypeProjectSwitched, protocol.TypeProjectRestored, protocol.TypeProjectRestoreFailed:
		pe, err := protocol.ParseProjectEvent(typ, data)
		if err != nil {
			e.logger.Warn("dropping malformed project event", "type", string(typ), "error", err)
			return
		}
		switch typ {
		case protocol.TypeProjectSwitched:
			e.handleProjectSwitched(ctx, pe)
		case protocol.TypeProjectRestored:
			e.handleProjectRestored(ctx, pe)
		default:
			e.handleRestoreFailed(pe)
		}

	default:
		e.logger.Warn("unhandled message type", "type", string(typ))
	}
}

// applyUpdate routes a graph payload through the reconciler and heals
// a current-project desync by following the backend's notion of
// current.
func (e *Engine) applyUpdate(ctx context.Context, upd *protocol.GraphUpdate) {
	outcome := e.rec.Apply(ctx, upd, e.binding.Current())
	if outcome.Desync == nil {
		return
	}
	local := outcome.Desync.LocalProjectID
	remote := outcome.Desync.RemoteProjectID
	if local != "" {
		e.cache.Put(ctx, local, e.store.Snapshot())
	}
	e.applyBinding(ctx, remote)
	e.logger.Warn("current-project desync healed",
		"local", local, "remote", remote)
}

// =============================================================================
// Binding
// =============================================================================

// applyBinding rebinds the session to projectID: the cache pins it as
// current and the store swaps to its cached snapshot (or empty state).
// Dispatcher only.
func (e *Engine) applyBinding(ctx context.Context, projectID string) {
	e.cache.SetCurrent(projectID)
	var snap *taskgraph.Snapshot
	if projectID != "" {
		if cached, ok := e.cache.Get(ctx, projectID); ok {
			snap = cached
		}
	}
	e.binding.bind(projectID)
	e.store.BindProject(projectID, snap)
}

// parkCurrent saves the displayed graph back to the cache before the
// binding moves away from it.
func (e *Engine) parkCurrent(ctx context.Context) {
	current := e.binding.Current()
	if current == "" {
		return
	}
	e.cache.Put(ctx, current, e.store.Snapshot())
}

// =============================================================================
// Project switch (two-phase)
// =============================================================================

// SwitchProject performs a two-phase switch: the binding moves to
// projectID immediately (tentative, showing cached state), the request
// goes out, and the method blocks until the backend confirms, the
// timeout rolls the binding back, or ctx gives up waiting.
func (e *Engine) SwitchProject(ctx context.Context, projectID string) error {
	if projectID == "" {
		return ErrEmptyProjectID
	}
	ctx, span := sessionTracer.Start(ctx, "session.switch_project")
	span.SetAttributes(attribute.String("bridge.project_id", projectID))
	defer span.End()

	started := make(chan error, 1)
	waiter := make(chan error, 1)
	if !e.post(func() { started <- e.beginSwitch(ctx, projectID, waiter) }) {
		return ErrEngineStopped
	}

	select {
	case err := <-started:
		if errors.Is(err, errAlreadyBound) {
			return nil
		}
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	case <-ctx.Done():
		return ctx.Err()
	case <-e.finished:
		return ErrEngineStopped
	}

	select {
	case err := <-waiter:
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	case <-ctx.Done():
		// The rollback timer still governs the tentative binding.
		return ctx.Err()
	case <-e.finished:
		return ErrEngineStopped
	}
}

// beginSwitch runs on the dispatcher: park, tentatively rebind, send,
// arm the confirmation future.
func (e *Engine) beginSwitch(ctx context.Context, toID string, waiter chan error) error {
	fromID := e.binding.Current()
	if toID == fromID {
		return errAlreadyBound
	}
	if e.pendingSwitch != nil {
		return ErrSwitchInFlight
	}

	e.parkCurrent(ctx)
	e.applyBinding(ctx, toID)

	if err := e.transport.Send(ctx, protocol.NewSwitchProject(toID)); err != nil {
		e.applyBinding(ctx, fromID)
		switchesTotal.WithLabelValues("rolled_back").Inc()
		return fmt.Errorf("sending switch request: %w", err)
	}

	e.pendingSwitch = newSwitchOp(fromID, toID)
	f := e.futures.add(futureKey{kind: futureSwitch, projectID: toID})
	f.waiters = append(f.waiters, waiter)
	f.timer = time.AfterFunc(e.cfg.SwitchTimeout, func() {
		e.post(func() { e.expireSwitch(toID) })
	})

	e.logger.Info("project switch pending", "from", fromID, "to", toID)
	return nil
}

// expireSwitch rolls a timed-out tentative switch back, unless a later
// rebind already moved the binding elsewhere.
func (e *Engine) expireSwitch(toID string) {
	op := e.pendingSwitch
	if op == nil || op.toID != toID {
		return
	}
	e.pendingSwitch = nil

	if e.binding.Current() == op.toID {
		e.applyBinding(context.Background(), op.fromID)
	}
	if err := op.phase.Step(SwitchRolledBack); err != nil {
		e.logger.Error("switch phase step failed", "error", err)
	}
	switchesTotal.WithLabelValues("rolled_back").Inc()
	e.futures.resolve(futureKey{kind: futureSwitch, projectID: toID}, ErrConfirmationTimeout)
	e.logger.Warn("switch confirmation timed out; binding rolled back",
		"from", op.toID, "back_to", op.fromID)
}

// failPendingSwitch rolls back the in-flight switch with cause.
// Dispatcher only.
func (e *Engine) failPendingSwitch(cause error) {
	op := e.pendingSwitch
	if op == nil {
		return
	}
	e.pendingSwitch = nil

	if e.binding.Current() == op.toID {
		e.applyBinding(context.Background(), op.fromID)
	}
	if err := op.phase.Step(SwitchRolledBack); err != nil {
		e.logger.Error("switch phase step failed", "error", err)
	}
	switchesTotal.WithLabelValues("rolled_back").Inc()
	e.futures.resolve(futureKey{kind: futureSwitch, projectID: op.toID}, cause)
}

func (e *Engine) handleProjectSwitched(ctx context.Context, pe *protocol.ProjectEvent) {
	op := e.pendingSwitch
	if op != nil && op.toID == pe.ProjectID {
		e.pendingSwitch = nil
		if err := op.phase.Step(SwitchConfirmed); err != nil {
			e.logger.Error("switch phase step failed", "error", err)
		}
		switchesTotal.WithLabelValues("confirmed").Inc()
		if pe.Update != nil {
			e.applyUpdate(ctx, pe.Update)
		}
		e.futures.resolve(futureKey{kind: futureSwitch, projectID: pe.ProjectID}, nil)
		e.logger.Info("project switch confirmed",
			"project_id", pe.ProjectID,
			"took", time.Since(op.startedAt).String())
		return
	}

	// Server-driven switch: the backend moved current without us
	// asking (another client, or a restart). Follow it.
	if pe.ProjectID != "" && pe.ProjectID != e.binding.Current() {
		fromID := e.binding.Current()
		e.parkCurrent(ctx)
		e.applyBinding(ctx, pe.ProjectID)
		if pe.Update != nil {
			e.applyUpdate(ctx, pe.Update)
		}
		e.logger.Info("binding follows server-side switch",
			"from", fromID, "to", pe.ProjectID)
		return
	}

	if pe.Update != nil {
		e.applyUpdate(ctx, pe.Update)
	}
}

// =============================================================================
// State restore
// =============================================================================

// RestoreProject requests a full state restore for projectID and
// blocks until the backend responds or the deadline passes. Concurrent
// calls for the same project collapse into one outbound request.
func (e *Engine) RestoreProject(ctx context.Context, projectID string) error {
	if projectID == "" {
		return ErrEmptyProjectID
	}
	ctx, span := sessionTracer.Start(ctx, "session.restore_project")
	span.SetAttributes(attribute.String("bridge.project_id", projectID))
	defer span.End()

	ch := e.restores.DoChan(projectID, func() (any, error) {
		waiter := make(chan error, 1)
		if !e.post(func() { e.issueRestore(context.Background(), projectID, waiter) }) {
			return nil, ErrEngineStopped
		}
		select {
		case err := <-waiter:
			return nil, err
		case <-e.finished:
			return nil, ErrEngineStopped
		}
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			span.SetStatus(codes.Error, res.Err.Error())
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// issueRestore sends restore_project and arms its future. A pending
// future for the same project absorbs the new waiter instead of
// sending twice. Dispatcher only.
func (e *Engine) issueRestore(ctx context.Context, projectID string, waiter chan error) {
	key := futureKey{kind: futureRestore, projectID: projectID}
	if f, ok := e.futures.get(key); ok {
		if waiter != nil {
			f.waiters = append(f.waiters, waiter)
		}
		return
	}

	if err := e.transport.Send(ctx, protocol.NewRestoreProject(projectID)); err != nil {
		restoresTotal.WithLabelValues("error").Inc()
		e.logger.Warn("restore request failed to send",
			"project_id", projectID, "error", err)
		if waiter != nil {
			waiter <- fmt.Errorf("sending restore request: %w", err)
		}
		return
	}

	f := e.futures.add(key)
	if waiter != nil {
		f.waiters = append(f.waiters, waiter)
	}
	f.timer = time.AfterFunc(e.cfg.RestoreTimeout, func() {
		e.post(func() { e.expireRestore(key) })
	})
	e.logger.Info("state restore requested", "project_id", projectID)
}

func (e *Engine) expireRestore(key futureKey) {
	if e.futures.resolve(key, ErrConfirmationTimeout) {
		restoresTotal.WithLabelValues("timeout").Inc()
		e.logger.Warn("restore confirmation timed out", "project_id", key.projectID)
	}
}

func (e *Engine) handleProjectRestored(ctx context.Context, pe *protocol.ProjectEvent) {
	if pe.Update != nil {
		e.applyUpdate(ctx, pe.Update)
	}
	if e.futures.resolve(futureKey{kind: futureRestore, projectID: pe.ProjectID}, nil) {
		restoresTotal.WithLabelValues("ok").Inc()
	}
	e.logger.Info("project state restored", "project_id", pe.ProjectID)
}

func (e *Engine) handleRestoreFailed(pe *protocol.ProjectEvent) {
	cause := pe.Error
	if cause == "" {
		cause = "backend reported no reason"
	}
	err := fmt.Errorf("restore failed: %s", cause)
	if e.futures.resolve(futureKey{kind: futureRestore, projectID: pe.ProjectID}, err) {
		restoresTotal.WithLabelValues("error").Inc()
	}
	e.logger.Warn("project restore failed",
		"project_id", pe.ProjectID, "error", cause)
}

// =============================================================================
// Stabilization
// =============================================================================

// armStabilization schedules the post-connect restore request for the
// bound project. Dispatcher only.
func (e *Engine) armStabilization(ctx context.Context) {
	e.cancelStabilization()
	e.stabilizeTimer = time.AfterFunc(e.cfg.StabilizationDelay, func() {
		e.post(func() { e.stabilizedRestore(ctx) })
	})
}

func (e *Engine) cancelStabilization() {
	if e.stabilizeTimer != nil {
		e.stabilizeTimer.Stop()
		e.stabilizeTimer = nil
	}
}

func (e *Engine) stabilizedRestore(ctx context.Context) {
	e.stabilizeTimer = nil
	if !e.transport.IsConnected() {
		return
	}
	projectID := e.binding.Current()
	if projectID == "" {
		return
	}
	e.issueRestore(ctx, projectID, nil)
}

// =============================================================================
// Other user actions
// =============================================================================

// StartProject asks the backend to create and run a new decomposition.
func (e *Engine) StartProject(ctx context.Context, goal string, maxSteps int) error {
	if strings.TrimSpace(goal) == "" {
		return ErrEmptyGoal
	}
	ctx, span := sessionTracer.Start(ctx, "session.start_project")
	defer span.End()

	if err := e.transport.Send(ctx, protocol.NewStartProject(goal, maxSteps)); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("sending start request: %w", err)
	}
	e.logger.Info("project start requested", "max_steps", maxSteps)
	return nil
}

// RespondInterrupt forwards the human decision for the active
// interrupt. The HITL handler is internally synchronized, so this does
// not hop through the dispatcher.
func (e *Engine) RespondInterrupt(ctx context.Context, action protocol.ResponseAction, instructions string) error {
	return e.interrupts.Respond(ctx, action, instructions)
}
