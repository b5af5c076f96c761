// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package hitl manages human-in-the-loop interrupts: the backend
// pauses at a checkpoint, a human approves, modifies, or aborts, and
// the decomposition continues.
//
// # Description
//
// At most one interrupt is active at a time. A newer arrival
// supersedes an unanswered or answered-and-waiting predecessor; the
// superseded request is closed out in the audit log, never silently
// forgotten. Responses go out exactly once per submission; concurrent
// submissions are rejected rather than queued.
//
// # Thread Safety
//
// Safe for concurrent use: interrupts arrive on the session
// dispatcher while responses come from gateway or TUI goroutines.
package hitl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/AleutianBridge/services/bridge/fsm"
	"github.com/AleutianAI/AleutianBridge/services/bridge/protocol"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrNoActiveRequest indicates a response with nothing to answer.
	ErrNoActiveRequest = errors.New("no active interrupt request")

	// ErrResponseInFlight indicates a response is already being sent.
	ErrResponseInFlight = errors.New("response already in flight")

	// ErrInstructionsRequired indicates a modify without instructions.
	ErrInstructionsRequired = errors.New("modify requires non-empty instructions")

	// ErrInvalidAction indicates an action the backend does not accept.
	ErrInvalidAction = errors.New("invalid response action")
)

// =============================================================================
// Metrics
// =============================================================================

var (
	interruptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_hitl_interrupts_total",
		Help: "Interrupt arrivals by disposition",
	}, []string{"disposition"})

	responsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_hitl_responses_total",
		Help: "Responses sent by action and result",
	}, []string{"action", "result"})

	waitTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_hitl_modify_wait_timeouts_total",
		Help: "Times the post-modify wait exceeded its bound",
	})
)

// =============================================================================
// States and Events
// =============================================================================

// State is the lifecycle position of the single active request slot.
type State string

const (
	StateIdle            State = "IDLE"
	StatePending         State = "PENDING"
	StateAnsweredWaiting State = "ANSWERED_WAITING"
)

func newLifecycle() *fsm.Machine[State] {
	return fsm.New(StateIdle, map[State][]State{
		StateIdle:            {StatePending},
		StatePending:         {StateIdle, StatePending, StateAnsweredWaiting},
		StateAnsweredWaiting: {StateIdle, StatePending, StateAnsweredWaiting},
	})
}

// EventKind classifies handler notifications.
type EventKind string

const (
	EventReceived    EventKind = "received"
	EventSuperseded  EventKind = "superseded"
	EventResponded   EventKind = "responded"
	EventWaitTimeout EventKind = "wait_timeout"
	EventRejected    EventKind = "rejected"
)

// Event notifies the UI layers about interrupt lifecycle changes.
type Event struct {
	Kind      EventKind
	RequestID string
	Interrupt *protocol.HITLInterrupt
	Action    protocol.ResponseAction
}

// Sender delivers outbound messages. The connection manager implements
// it in production; tests substitute fakes.
type Sender interface {
	Send(ctx context.Context, v any) error
}

// =============================================================================
// Configuration
// =============================================================================

// Config bounds the handler's waiting behavior and audit retention.
type Config struct {
	// ModifyWaitTimeout bounds how long AnsweredWaiting may last before
	// the handler flags it. The state is not cleared; the flag is.
	ModifyWaitTimeout time.Duration

	// AuditLogSize is the interrupt audit ring capacity.
	AuditLogSize int
}

// DefaultConfig returns the standard bounds.
func DefaultConfig() Config {
	return Config{
		ModifyWaitTimeout: 30 * time.Second,
		AuditLogSize:      64,
	}
}

// Validate checks the bounds.
func (c Config) Validate() error {
	if c.ModifyWaitTimeout <= 0 {
		return errors.New("modify wait timeout must be positive")
	}
	if c.AuditLogSize <= 0 {
		return errors.New("audit log size must be positive")
	}
	return nil
}

// =============================================================================
// Handler
// =============================================================================

// Handler owns the single active interrupt slot for a session.
type Handler struct {
	cfg    Config
	sender Sender
	logger *slog.Logger

	mu           sync.Mutex
	lifecycle    *fsm.Machine[State]
	active       *protocol.HITLInterrupt
	activeRecord *Record
	inFlight     bool
	waitTimedOut bool
	waitTimer    *time.Timer
	log          *auditLog
	onEvent      func(Event)
}

// NewHandler creates a handler sending responses through the given
// sender. A nil logger falls back to the default.
func NewHandler(sender Sender, cfg Config, logger *slog.Logger) (*Handler, error) {
	if sender == nil {
		return nil, errors.New("sender must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("hitl config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cfg:       cfg,
		sender:    sender,
		logger:    logger,
		lifecycle: newLifecycle(),
		log:       newAuditLog(cfg.AuditLogSize),
	}, nil
}

// OnEvent registers the lifecycle notification callback. The callback
// runs outside the handler's lock.
func (h *Handler) OnEvent(fn func(Event)) {
	h.mu.Lock()
	h.onEvent = fn
	h.mu.Unlock()
}

func (h *Handler) emit(ev Event) {
	h.mu.Lock()
	fn := h.onEvent
	h.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// State returns the current lifecycle state.
func (h *Handler) State() State {
	return h.lifecycle.Current()
}

// Active returns a copy of the active interrupt, if any.
func (h *Handler) Active() (protocol.HITLInterrupt, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active == nil {
		return protocol.HITLInterrupt{}, false
	}
	return *h.active, true
}

// WaitTimedOut reports whether the post-modify wait exceeded its
// bound. Cleared when a new interrupt arrives or a response is sent.
func (h *Handler) WaitTimedOut() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.waitTimedOut
}

// AuditLog returns the interrupt history, oldest first.
func (h *Handler) AuditLog() []Record {
	return h.log.snapshot()
}

// DroppedRecords returns how many audit entries aged out of the ring.
func (h *Handler) DroppedRecords() int64 {
	return h.log.droppedCount()
}

// OnInterrupt processes one inbound interrupt. Malformed requests are
// recorded and rejected without disturbing the active slot. A valid
// request becomes the single active one, superseding any unanswered or
// answered-and-waiting predecessor.
func (h *Handler) OnInterrupt(msg *protocol.HITLInterrupt) error {
	rec := &Record{ReceivedAtMs: time.Now().UnixMilli()}
	if msg != nil {
		rec.RequestID = msg.RequestID
		rec.CheckpointName = msg.CheckpointName
		rec.NodeID = msg.NodeID
		rec.CurrentAttempt = msg.CurrentAttempt
	}

	if err := validateInterrupt(msg); err != nil {
		rec.Error = err.Error()
		h.log.push(rec)
		interruptsTotal.WithLabelValues("rejected").Inc()
		h.logger.Warn("rejected malformed interrupt", "error", err)
		h.emit(Event{Kind: EventRejected, RequestID: rec.RequestID})
		return err
	}
	rec.Valid = true

	h.mu.Lock()

	// Idempotent redelivery: same unanswered request refreshed in
	// place. The arrival still goes on the audit log.
	duplicate := h.active != nil && h.active.RequestID == msg.RequestID &&
		h.lifecycle.Is(StatePending)

	var superseded *Record
	if !duplicate && h.activeRecord != nil && !h.lifecycle.Is(StateIdle) {
		// The previous request is dead either way: unanswered (Pending)
		// or answered with a modify we were waiting out.
		h.activeRecord.Superseded = true
		superseded = h.activeRecord
	}

	copied := *msg
	h.active = &copied
	h.activeRecord = rec
	h.log.push(rec)

	if !duplicate {
		h.inFlight = false
		h.clearWaitLocked()
		if err := h.lifecycle.Step(StatePending); err != nil {
			// The table allows Pending from every state; a failure here
			// is a programming error worth surfacing loudly in logs.
			h.logger.Error("interrupt lifecycle step failed", "error", err)
		}
	}
	h.mu.Unlock()

	if duplicate {
		interruptsTotal.WithLabelValues("duplicate").Inc()
		h.logger.Debug("duplicate interrupt refreshed", "request_id", msg.RequestID)
		return nil
	}

	interruptsTotal.WithLabelValues("accepted").Inc()
	h.logger.Info("interrupt pending human decision",
		"request_id", msg.RequestID,
		"checkpoint", msg.CheckpointName,
		"node_id", msg.NodeID,
		"attempt", msg.CurrentAttempt)

	if superseded != nil {
		h.emit(Event{Kind: EventSuperseded, RequestID: superseded.RequestID})
	}
	h.emit(Event{Kind: EventReceived, RequestID: msg.RequestID, Interrupt: &copied})
	return nil
}

func validateInterrupt(msg *protocol.HITLInterrupt) error {
	if msg == nil {
		return errors.New("nil interrupt")
	}
	if msg.RequestID == "" {
		return errors.New("interrupt missing request_id")
	}
	if msg.CheckpointName == "" {
		return errors.New("interrupt missing checkpoint_name")
	}
	if msg.NodeID == "" {
		return errors.New("interrupt missing node_id")
	}
	return nil
}

// Respond sends the human decision for the active request.
//
// approve and abort close the slot immediately. modify keeps the slot
// in AnsweredWaiting until the backend sends the revised request; the
// instructions must be non-empty. While a send is in flight further
// submissions fail with ErrResponseInFlight. A failed send restores
// the slot so the user can retry.
func (h *Handler) Respond(ctx context.Context, action protocol.ResponseAction, instructions string) error {
	if !action.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	if action == protocol.ActionModify && instructions == "" {
		return ErrInstructionsRequired
	}

	h.mu.Lock()
	if h.active == nil || h.lifecycle.Is(StateIdle) {
		h.mu.Unlock()
		return ErrNoActiveRequest
	}
	if h.inFlight {
		h.mu.Unlock()
		return ErrResponseInFlight
	}
	h.inFlight = true
	requestID := h.active.RequestID
	rec := h.activeRecord
	h.mu.Unlock()

	resp := protocol.NewHITLResponse(requestID, action, instructions)
	if err := h.sender.Send(ctx, resp); err != nil {
		h.mu.Lock()
		h.inFlight = false
		h.mu.Unlock()
		responsesTotal.WithLabelValues(string(action), "error").Inc()
		return fmt.Errorf("sending %s for %s: %w", action, requestID, err)
	}

	h.mu.Lock()
	h.inFlight = false
	if rec != nil {
		rec.Action = action
		rec.RespondedAtMs = resp.TimestampMs
	}

	if h.active == nil || h.active.RequestID != requestID {
		// Superseded while the send was in flight. The response went
		// out for the old request; the new one keeps the slot.
		h.mu.Unlock()
	} else {
		var stepErr error
		if action == protocol.ActionModify {
			stepErr = h.lifecycle.Step(StateAnsweredWaiting)
			h.startWaitLocked()
		} else {
			stepErr = h.lifecycle.Step(StateIdle)
			h.clearWaitLocked()
			h.active = nil
			h.activeRecord = nil
		}
		if stepErr != nil {
			h.logger.Error("response lifecycle step failed", "error", stepErr)
		}
		h.mu.Unlock()
	}

	responsesTotal.WithLabelValues(string(action), "ok").Inc()
	h.logger.Info("interrupt response sent",
		"request_id", requestID, "action", string(action))
	h.emit(Event{Kind: EventResponded, RequestID: requestID, Action: action})
	return nil
}

// startWaitLocked arms the modify-wait timer. Caller holds h.mu.
func (h *Handler) startWaitLocked() {
	h.clearWaitLocked()
	requestID := ""
	if h.active != nil {
		requestID = h.active.RequestID
	}
	h.waitTimer = time.AfterFunc(h.cfg.ModifyWaitTimeout, func() {
		h.mu.Lock()
		stillWaiting := h.lifecycle.Is(StateAnsweredWaiting) &&
			h.active != nil && h.active.RequestID == requestID
		if stillWaiting {
			h.waitTimedOut = true
		}
		h.mu.Unlock()

		if stillWaiting {
			waitTimeoutsTotal.Inc()
			h.logger.Warn("no follow-up interrupt after modify",
				"request_id", requestID,
				"waited", h.cfg.ModifyWaitTimeout.String())
			h.emit(Event{Kind: EventWaitTimeout, RequestID: requestID})
		}
	})
}

// clearWaitLocked disarms the timer and flag. Caller holds h.mu.
func (h *Handler) clearWaitLocked() {
	if h.waitTimer != nil {
		h.waitTimer.Stop()
		h.waitTimer = nil
	}
	h.waitTimedOut = false
}
