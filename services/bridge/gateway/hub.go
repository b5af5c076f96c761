// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	hubWriteWait  = 10 * time.Second
	hubPongWait   = 60 * time.Second
	hubPingPeriod = (hubPongWait * 9) / 10

	// subscriberBuffer is the per-subscriber send queue. The feed is
	// debounced upstream, so a full queue means the reader is stalled;
	// stalled subscribers are dropped, not waited on.
	subscriberBuffer = 16
)

var (
	hubSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_gateway_subscribers",
		Help: "Connected push-hub subscribers",
	})

	hubDropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_gateway_subscriber_drops_total",
		Help: "Subscribers dropped for stalled reads",
	})
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 64 * 1024,
	// Loopback-only service; the dashboard dev server proxies through.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// stateFrame is the push envelope.
type stateFrame struct {
	Type  string        `json:"type"`
	State StateResponse `json:"state"`
}

// subscriber is one connected push client.
type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans the debounced state feed out to websocket subscribers.
//
// Broadcast marshals once and enqueues per subscriber; subscribers
// that cannot keep up are closed rather than allowed to backpressure
// the session engine.
type Hub struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
	logger *slog.Logger
}

func newHub(logger *slog.Logger) *Hub {
	return &Hub{
		subs:   make(map[*subscriber]struct{}),
		logger: logger.With("component", "gateway.hub"),
	}
}

// Subscribers reports the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) handleSubscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	sub := &subscriber{conn: conn, send: make(chan []byte, subscriberBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	hubSubscribers.Inc()
	h.logger.Info("push subscriber connected", "remote", conn.RemoteAddr().String())

	go h.writePump(sub)
	h.readPump(sub)
}

// readPump drains inbound frames (subscribers send nothing meaningful)
// and detects disconnects.
func (h *Hub) readPump(sub *subscriber) {
	defer h.drop(sub)
	sub.conn.SetReadLimit(4 * 1024)
	_ = sub.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("push subscriber read error", "error", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(sub *subscriber) {
	ticker := time.NewTicker(hubPingPeriod)
	defer func() {
		ticker.Stop()
		_ = sub.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if !ok {
				_ = sub.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// broadcast enqueues one frame to every subscriber.
func (h *Hub) broadcast(frame stateFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("marshalling push frame", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.send <- data:
		default:
			// Stalled reader: close it out instead of blocking.
			delete(h.subs, sub)
			close(sub.send)
			hubSubscribers.Dec()
			hubDropsTotal.Inc()
			h.logger.Warn("dropping stalled push subscriber")
		}
	}
}

func (h *Hub) drop(sub *subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.send)
		hubSubscribers.Dec()
	}
	h.mu.Unlock()
	_ = sub.conn.Close()
}

// close disconnects all subscribers and refuses new ones.
func (h *Hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.send)
		hubSubscribers.Dec()
	}
}
