// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"errors"
	"time"
)

// Kind identifies the direction of an envelope.
type Kind string

const (
	KindAct Kind = "act" // request
	KindRes Kind = "res" // response
)

var (
	errInvalidKind = errors.New("invalid-kind")
	errNoMessageID = errors.New("no-message-id")
	errDataError   = errors.New("data-error")
)

// Envelope is the unit exchanged between a client and a listener.
type Envelope struct {
	ID     string         `json:"id"`
	Kind   Kind           `json:"kind"`
	Origin string         `json:"origin,omitempty"`
	Accept string         `json:"accept,omitempty"`
	Time   Timing         `json:"time"`
	Act    map[string]any `json:"act,omitempty"`
	Res    any            `json:"res,omitempty"`
	Error  *ErrorDetail   `json:"error,omitempty"`
}

// Timing collects wall-clock stamps (unix milliseconds) as an envelope
// crosses process boundaries. Observability only.
type Timing struct {
	ClientSent int64 `json:"client_sent,omitempty"`
	ListenRecv int64 `json:"listen_recv,omitempty"`
	ListenSent int64 `json:"listen_sent,omitempty"`
	ClientRecv int64 `json:"client_recv,omitempty"`
}

// ErrorDetail is the wire form of a dispatch failure.
type ErrorDetail struct {
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// validate reports why an envelope cannot be processed as the given kind.
func (e *Envelope) validate(kind Kind) error {
	if e.Kind != kind {
		return errInvalidKind
	}
	if e.ID == "" {
		return errNoMessageID
	}
	if kind == KindAct && e.Error != nil {
		return errDataError
	}
	return nil
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
