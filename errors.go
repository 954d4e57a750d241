// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownTransport = errors.New("transport: unknown type")
	ErrPluginNeeded     = errors.New("transport: plugin needed")
	ErrNullClient       = errors.New("transport: null client")
	ErrClosed           = errors.New("transport: closed")
)

// PluginNeededError reports a transport type served by an external module.
type PluginNeededError struct {
	Type string
	Name string
}

func (e *PluginNeededError) Error() string {
	return fmt.Sprintf("transport: type %q needs plugin %s", e.Type, e.Name)
}

func (e *PluginNeededError) Unwrap() error { return ErrPluginNeeded }

// RemoteError is a dispatch failure reported by the listener.
type RemoteError struct {
	Message string
	Details any
	Raw     *ErrorDetail
}

func (e *RemoteError) Error() string {
	return e.Message
}

// detailer is implemented by errors that carry structured details for the
// wire.
type detailer interface {
	Details() any
}

func errorDetail(err error) *ErrorDetail {
	d := &ErrorDetail{Message: err.Error()}
	var re *RemoteError
	var de detailer
	switch {
	case errors.As(err, &re):
		d.Details = re.Details
	case errors.As(err, &de):
		d.Details = de.Details()
	}
	return d
}
