// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

// Lifecycle event names
const (
	EventListening  = "listening"
	EventError      = "error"
	EventClose      = "close"
	EventConnect    = "connect"
	EventReconnect  = "reconnect"
	EventDisconnect = "disconnect"
)

// Event reports a listener or client connection state change.
type Event struct {
	Name  string
	Type  string
	Addr  string
	Topic string
	Err   error
}

// EventHandler receives lifecycle events. It must not block.
type EventHandler func(Event)
