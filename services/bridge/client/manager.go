// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package client owns the websocket connection to the orchestrator.
//
// # Description
//
// A Manager holds at most one live socket. It dials, keeps the
// connection alive with pings, reads inbound frames, and republishes
// everything (messages and state transitions) on a single ordered
// event channel consumed by the session engine.
//
// Drops classified as server or transport failures (read errors,
// abnormal closures, dial failures) trigger reconnection with
// exponential backoff, a retry budget, and a cooldown guard that
// spaces dial attempts. A deliberate Disconnect never reconnects.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Consumers must drain
// Events(); emission applies backpressure rather than dropping.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianBridge/services/bridge/fsm"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrNotConnected indicates a send attempted without a live socket.
	ErrNotConnected = errors.New("websocket not connected")

	// ErrClosed indicates use of a manager after Close.
	ErrClosed = errors.New("connection manager closed")
)

// =============================================================================
// Metrics
// =============================================================================

var (
	connectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_ws_connects_total",
		Help: "Dial attempts by result",
	}, []string{"result"})

	reconnectsScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_ws_reconnects_scheduled_total",
		Help: "Reconnect timers armed after transport drops",
	})

	messagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_ws_messages_received_total",
		Help: "Inbound frames read from the socket",
	})

	messagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_ws_messages_sent_total",
		Help: "Outbound frames written to the socket",
	})

	connectedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_ws_connected",
		Help: "1 while the socket is established, else 0",
	})
)

// =============================================================================
// States and Events
// =============================================================================

// State is the connection lifecycle position.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateReconnecting State = "RECONNECTING"
	StateFailed       State = "FAILED"
)

func newLifecycle() *fsm.Machine[State] {
	return fsm.New(StateDisconnected, map[State][]State{
		StateDisconnected: {StateConnecting},
		StateConnecting:   {StateConnected, StateReconnecting, StateFailed, StateDisconnected},
		StateConnected:    {StateReconnecting, StateFailed, StateDisconnected},
		StateReconnecting: {StateConnecting, StateFailed, StateDisconnected},
		StateFailed:       {StateConnecting, StateDisconnected},
	})
}

// EventKind distinguishes inbound frames from lifecycle changes.
type EventKind string

const (
	EventMessage EventKind = "message"
	EventState   EventKind = "state"
)

// Event is one entry on the ordered stream. Message events carry the
// raw frame; state events carry the new state plus, for reconnect
// transitions, the attempt number, scheduled delay, and cause.
type Event struct {
	Kind    EventKind
	Data    []byte
	State   State
	Err     error
	Attempt int
	Delay   time.Duration
}

// =============================================================================
// Configuration
// =============================================================================

// Config bounds the manager's dialing and keepalive behavior.
type Config struct {
	// URL is the orchestrator websocket endpoint.
	URL string

	// RetryBudget is how many consecutive failed attempts are allowed
	// before the manager gives up and parks in Failed.
	RetryBudget int

	// BackoffBase is the pre-jitter delay before the first retry.
	BackoffBase time.Duration

	// BackoffCap bounds the pre-jitter delay.
	BackoffCap time.Duration

	// BackoffGrowth is the per-attempt multiplier.
	BackoffGrowth float64

	// JitterFraction is the maximum additive jitter as a fraction of
	// the computed delay (0-1, exclusive).
	JitterFraction float64

	// DialCooldown is the minimum spacing between dial attempts,
	// regardless of what triggered them.
	DialCooldown time.Duration

	// DialTimeout bounds a single handshake.
	DialTimeout time.Duration

	// PongWait is how long a socket may stay silent before the read
	// side declares it dead.
	PongWait time.Duration

	// PingInterval is the keepalive cadence. Must be shorter than
	// PongWait so a healthy peer always answers in time.
	PingInterval time.Duration

	// WriteTimeout bounds a single frame or control write.
	WriteTimeout time.Duration

	// ReadLimit caps inbound frame size in bytes.
	ReadLimit int64
}

// DefaultConfig returns production settings.
func DefaultConfig() Config {
	pongWait := 60 * time.Second
	return Config{
		RetryBudget:    10,
		BackoffBase:    1 * time.Second,
		BackoffCap:     15 * time.Second,
		BackoffGrowth:  1.5,
		JitterFraction: 0.3,
		DialCooldown:   1 * time.Second,
		DialTimeout:    10 * time.Second,
		PongWait:       pongWait,
		PingInterval:   (pongWait * 9) / 10,
		WriteTimeout:   10 * time.Second,
		ReadLimit:      10 << 20,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("url must not be empty")
	}
	if c.RetryBudget < 0 {
		return errors.New("retry budget must not be negative")
	}
	if c.BackoffBase <= 0 {
		return errors.New("backoff base must be positive")
	}
	if c.BackoffCap < c.BackoffBase {
		return errors.New("backoff cap must be at least the base")
	}
	if c.BackoffGrowth < 1.0 {
		return errors.New("backoff growth must be at least 1.0")
	}
	if c.JitterFraction < 0 || c.JitterFraction >= 1.0 {
		return errors.New("jitter fraction must be in [0, 1)")
	}
	if c.DialCooldown <= 0 {
		return errors.New("dial cooldown must be positive")
	}
	if c.DialTimeout <= 0 {
		return errors.New("dial timeout must be positive")
	}
	if c.PongWait <= 0 {
		return errors.New("pong wait must be positive")
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		return errors.New("ping interval must be positive and shorter than pong wait")
	}
	if c.WriteTimeout <= 0 {
		return errors.New("write timeout must be positive")
	}
	if c.ReadLimit <= 0 {
		return errors.New("read limit must be positive")
	}
	return nil
}

// =============================================================================
// Manager
// =============================================================================

const eventBufferSize = 256

// Manager owns one websocket connection and its reconnect lifecycle.
type Manager struct {
	cfg      Config
	dialer   Dialer
	logger   *slog.Logger
	machine  *fsm.Machine[State]
	backoff  backoff
	cooldown *rate.Limiter
	events   chan Event
	done     chan struct{}

	// eventMu serializes channel emission so transitions published by
	// different goroutines cannot reach the consumer out of order.
	eventMu sync.Mutex

	mu             sync.Mutex
	socket         Socket
	generation     int
	attempts       int
	reconnectTimer *time.Timer
	pingDone       chan struct{}
	closed         bool

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// New creates a Manager. A nil dialer selects the production gorilla
// dialer; a nil logger falls back to the default.
func New(cfg Config, dialer Dialer, logger *slog.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("client config: %w", err)
	}
	if dialer == nil {
		dialer = NewGorillaDialer(cfg.DialTimeout)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:     cfg,
		dialer:  dialer,
		logger:  logger,
		machine: newLifecycle(),
		backoff: backoff{
			base:   cfg.BackoffBase,
			cap:    cfg.BackoffCap,
			growth: cfg.BackoffGrowth,
			jitter: cfg.JitterFraction,
		},
		cooldown: rate.NewLimiter(rate.Every(cfg.DialCooldown), 1),
		events:   make(chan Event, eventBufferSize),
		done:     make(chan struct{}),
	}, nil
}

// Events returns the ordered stream of inbound messages and state
// changes. The channel is never closed; stop reading after Close.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return m.machine.Current()
}

// IsConnected reports whether a socket is established.
func (m *Manager) IsConnected() bool {
	return m.machine.Is(StateConnected)
}

// Connect starts establishing the connection. It is idempotent: while
// connecting or connected it is a no-op. From Reconnecting or Failed
// it takes over, cancelling any pending retry timer and resetting the
// attempt budget. The context bounds only this dial, not the life of
// the connection.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	switch m.machine.Current() {
	case StateConnecting, StateConnected:
		m.mu.Unlock()
		return nil
	}
	m.attempts = 0
	m.cancelTimerLocked()
	if err := m.machine.Step(StateConnecting); err != nil {
		m.mu.Unlock()
		return err
	}
	gen := m.generation
	m.wg.Add(1)
	go m.dial(ctx, gen)
	m.publishLocked(Event{Kind: EventState, State: StateConnecting})
	return nil
}

// Disconnect deliberately tears the connection down: the socket is
// closed, any pending reconnect timer is cancelled, and no automatic
// reconnection follows. A later Connect starts fresh.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.cancelTimerLocked()
	m.teardownSocketLocked()
	m.attempts = 0
	if m.machine.Is(StateDisconnected) {
		m.mu.Unlock()
		return
	}
	if err := m.machine.Step(StateDisconnected); err != nil {
		m.logger.Error("disconnect transition failed", "error", err)
	}
	connectedGauge.Set(0)
	m.logger.Info("websocket disconnected by request")
	m.publishLocked(Event{Kind: EventState, State: StateDisconnected})
}

// Close shuts the manager down for good: Disconnect semantics plus
// releasing every goroutine. The manager is unusable afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.cancelTimerLocked()
	m.teardownSocketLocked()
	close(m.done)
	if !m.machine.Is(StateDisconnected) {
		if err := m.machine.Step(StateDisconnected); err != nil {
			m.logger.Error("close transition failed", "error", err)
		}
		connectedGauge.Set(0)
		m.publishLocked(Event{Kind: EventState, State: StateDisconnected})
	} else {
		m.mu.Unlock()
	}
	m.wg.Wait()
	return nil
}

// Send marshals v and writes it as one text frame. Fails fast with
// ErrNotConnected when no socket is established; a write failure tears
// the socket down and schedules reconnection.
func (m *Manager) Send(ctx context.Context, v any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	m.mu.Lock()
	sock := m.socket
	gen := m.generation
	connected := m.machine.Is(StateConnected)
	m.mu.Unlock()
	if !connected || sock == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding outbound message: %w", err)
	}

	deadline := time.Now().Add(m.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	m.writeMu.Lock()
	if err := sock.SetWriteDeadline(deadline); err != nil {
		m.writeMu.Unlock()
		return fmt.Errorf("setting write deadline: %w", err)
	}
	err = sock.WriteMessage(websocket.TextMessage, data)
	m.writeMu.Unlock()
	if err != nil {
		m.transportDropped(gen, fmt.Errorf("write failed: %w", err))
		return fmt.Errorf("writing message: %w", err)
	}
	messagesSent.Inc()
	return nil
}

// =============================================================================
// Dialing and reconnection
// =============================================================================

// dial runs one attempt: cooldown, handshake, install. gen pins the
// lifecycle generation this attempt belongs to; a Disconnect or drop
// in the meantime orphans it.
func (m *Manager) dial(ctx context.Context, gen int) {
	defer m.wg.Done()

	if err := m.cooldown.Wait(ctx); err != nil {
		m.abortDial(gen, fmt.Errorf("cooldown wait: %w", err))
		return
	}

	// A Disconnect or Close during the cooldown wait orphans this
	// attempt before it touches the network.
	m.mu.Lock()
	if m.closed || gen != m.generation || !m.machine.Is(StateConnecting) {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
	sock, err := m.dialer.DialContext(dialCtx, m.cfg.URL)
	cancel()

	m.mu.Lock()
	if m.closed || gen != m.generation || !m.machine.Is(StateConnecting) {
		m.mu.Unlock()
		if sock != nil {
			sock.Close()
		}
		return
	}

	if err != nil {
		connectsTotal.WithLabelValues("error").Inc()
		if ctx.Err() != nil {
			// The caller abandoned this connect; do not burn budget on it.
			m.abortLocked(ctx.Err())
			return
		}
		m.logger.Warn("websocket dial failed", "url", m.cfg.URL, "error", err)
		ev, ok := m.scheduleReconnectLocked(fmt.Errorf("dial failed: %w", err))
		if !ok {
			m.mu.Unlock()
			return
		}
		m.publishLocked(ev)
		return
	}

	m.socket = sock
	m.attempts = 0
	m.pingDone = make(chan struct{})
	if stepErr := m.machine.Step(StateConnected); stepErr != nil {
		m.logger.Error("connect transition failed", "error", stepErr)
	}
	pingDone := m.pingDone
	m.wg.Add(2)

	connectsTotal.WithLabelValues("ok").Inc()
	connectedGauge.Set(1)
	m.logger.Info("websocket connected", "url", m.cfg.URL)
	m.publishLocked(Event{Kind: EventState, State: StateConnected})

	// Pumps start only after the Connected event is on the channel, so
	// an inbound frame can never overtake the state change. If the
	// socket was torn down in the publish window the generation check
	// retires them immediately.
	go m.readPump(sock, gen)
	go m.pingLoop(sock, gen, pingDone)
}

// abortDial handles a dial cancelled before the handshake.
func (m *Manager) abortDial(gen int, cause error) {
	m.mu.Lock()
	if m.closed || gen != m.generation || !m.machine.Is(StateConnecting) {
		m.mu.Unlock()
		return
	}
	m.abortLocked(cause)
}

// abortLocked parks the lifecycle in Disconnected after a cancelled
// connect. Caller holds m.mu; it is released on return.
func (m *Manager) abortLocked(cause error) {
	if err := m.machine.Step(StateDisconnected); err != nil {
		m.logger.Error("abort transition failed", "error", err)
	}
	m.logger.Info("connect abandoned", "reason", cause)
	m.publishLocked(Event{Kind: EventState, State: StateDisconnected, Err: cause})
}

// transportDropped handles a socket failure reported by a pump or a
// write. The generation check makes one report per socket win and the
// rest no-ops, so a read error and a ping error racing on the same
// dead socket schedule exactly one reconnect.
func (m *Manager) transportDropped(gen int, cause error) {
	m.mu.Lock()
	if m.closed || gen != m.generation {
		m.mu.Unlock()
		return
	}
	m.teardownSocketLocked()
	connectedGauge.Set(0)
	m.logger.Warn("websocket transport dropped", "error", cause)
	ev, ok := m.scheduleReconnectLocked(cause)
	if !ok {
		m.mu.Unlock()
		return
	}
	m.publishLocked(ev)
}

// scheduleReconnectLocked arms the single retry timer, or steps to
// Failed once the budget is spent. Caller holds m.mu. The returned
// event must be published by the caller after unlocking; ok is false
// when a timer was already pending and nothing changed.
func (m *Manager) scheduleReconnectLocked(cause error) (Event, bool) {
	if m.reconnectTimer != nil {
		return Event{}, false
	}

	m.attempts++
	attempt := m.attempts
	if attempt > m.cfg.RetryBudget {
		if err := m.machine.Step(StateFailed); err != nil {
			m.logger.Error("failed transition rejected", "error", err)
		}
		m.logger.Error("reconnect budget exhausted",
			"attempts", attempt-1, "error", cause)
		return Event{Kind: EventState, State: StateFailed, Err: cause, Attempt: attempt - 1}, true
	}

	delay := m.backoff.next(attempt)
	if err := m.machine.Step(StateReconnecting); err != nil {
		m.logger.Error("reconnecting transition rejected", "error", err)
	}
	m.reconnectTimer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		m.reconnectTimer = nil
		if m.closed || !m.machine.Is(StateReconnecting) {
			m.mu.Unlock()
			return
		}
		if err := m.machine.Step(StateConnecting); err != nil {
			m.logger.Error("retry transition rejected", "error", err)
		}
		gen := m.generation
		m.wg.Add(1)
		// Automatic retries outlive the original Connect context.
		go m.dial(context.Background(), gen)
		m.publishLocked(Event{Kind: EventState, State: StateConnecting, Attempt: attempt})
	})

	reconnectsScheduled.Inc()
	m.logger.Info("reconnect scheduled",
		"attempt", attempt,
		"budget", m.cfg.RetryBudget,
		"delay", delay.String(),
		"error", cause)
	return Event{Kind: EventState, State: StateReconnecting, Err: cause, Attempt: attempt, Delay: delay}, true
}

// cancelTimerLocked stops a pending reconnect timer. Caller holds m.mu.
func (m *Manager) cancelTimerLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

// teardownSocketLocked invalidates the current socket generation and
// releases its pumps. Caller holds m.mu.
func (m *Manager) teardownSocketLocked() {
	m.generation++
	if m.pingDone != nil {
		close(m.pingDone)
		m.pingDone = nil
	}
	if m.socket != nil {
		m.socket.Close()
		m.socket = nil
	}
}

// =============================================================================
// Pumps
// =============================================================================

// readPump reads frames until the socket dies. Pongs extend the read
// deadline; silence past PongWait surfaces as a read error and goes
// down the transport-drop path like any other failure.
func (m *Manager) readPump(sock Socket, gen int) {
	defer m.wg.Done()

	sock.SetReadLimit(m.cfg.ReadLimit)
	if err := sock.SetReadDeadline(time.Now().Add(m.cfg.PongWait)); err != nil {
		m.transportDropped(gen, fmt.Errorf("arming read deadline: %w", err))
		return
	}
	sock.SetPongHandler(func(string) error {
		return sock.SetReadDeadline(time.Now().Add(m.cfg.PongWait))
	})

	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.logger.Warn("websocket closed unexpectedly", "error", err)
			}
			m.transportDropped(gen, fmt.Errorf("read failed: %w", err))
			return
		}
		messagesReceived.Inc()
		m.emit(Event{Kind: EventMessage, Data: data})
	}
}

// pingLoop keeps the peer's idle timers at bay. A failed ping means
// the transport is gone.
func (m *Manager) pingLoop(sock Socket, gen int, done chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(m.cfg.WriteTimeout)
			if err := sock.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				m.transportDropped(gen, fmt.Errorf("ping failed: %w", err))
				return
			}
		}
	}
}

// =============================================================================
// Event emission
// =============================================================================

// emit publishes one event, blocking until the consumer takes it or
// the manager closes.
func (m *Manager) emit(ev Event) {
	m.eventMu.Lock()
	defer m.eventMu.Unlock()
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

// publishLocked emits a state event in transition order: it acquires
// eventMu before releasing m.mu, so two back-to-back transitions
// cannot reach the channel inverted. Caller must hold m.mu; it is
// released on return.
func (m *Manager) publishLocked(ev Event) {
	m.eventMu.Lock()
	m.mu.Unlock()
	select {
	case m.events <- ev:
	case <-m.done:
	}
	m.eventMu.Unlock()
}
