// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package client

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// Socket is one established websocket session. *websocket.Conn
// satisfies it; tests provide scripted fakes.
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

var _ Socket = (*websocket.Conn)(nil)

// Dialer establishes sockets. The Manager never touches gorilla
// directly; the composition root decides what to inject.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Socket, error)
}

type gorillaDialer struct {
	dialer *websocket.Dialer
}

// NewGorillaDialer returns the production Dialer.
func NewGorillaDialer(handshakeTimeout time.Duration) Dialer {
	return &gorillaDialer{
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   1 << 20,
			WriteBufferSize:  1 << 20,
		},
	}
}

func (g *gorillaDialer) DialContext(ctx context.Context, url string) (Socket, error) {
	conn, resp, err := g.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing %s: handshake status %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return conn, nil
}
