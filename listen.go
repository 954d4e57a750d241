// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"
)

// Listener accepts acts for a Dispatcher over one transport type.
type Listener interface {
	// Serve accepts connections until ctx is cancelled or Close is called
	Serve(ctx context.Context) error

	// Close stops the listener
	Close() error

	// Addr returns the bound address
	Addr() net.Addr
}

// listenCore is the transport-independent half of a listener: it turns an
// inbound request envelope into exactly one response envelope, or none.
type listenCore struct {
	*options
	ep       Endpoint
	origin   string
	dispatch Dispatcher
	log      *zap.Logger
}

func (l *listenCore) emitEvent(name string, addr net.Addr, err error) {
	ev := Event{Name: name, Type: l.ep.Type, Err: err}
	if addr != nil {
		ev.Addr = addr.String()
	}
	l.emit(ev)
}

// handleRequest validates in, runs it through the dispatcher and returns the
// response. A nil return means nothing must be sent back.
func (l *listenCore) handleRequest(ctx context.Context, in *Envelope) *Envelope {
	if in == nil {
		return nil
	}
	if err := in.validate(KindAct); err != nil {
		l.log.Error(err.Error(), zap.String("id", in.ID), zap.String("kind", string(in.Kind)))
		return nil
	}

	out := l.prepareResponse(in)
	if in.Act == nil {
		in.Act = make(map[string]any)
	}
	rehydrateFields(l.entity, in.Act)

	res, err := l.act(ctx, in.Act)
	out.Res = res
	if err != nil {
		out.Error = errorDetail(err)
	}
	out.Time.ListenSent = nowMillis()
	return out
}

func (l *listenCore) prepareResponse(in *Envelope) *Envelope {
	return &Envelope{
		ID:     in.ID,
		Kind:   KindRes,
		Origin: in.Origin,
		Accept: l.origin,
		Time: Timing{
			ClientSent: in.Time.ClientSent,
			ListenRecv: nowMillis(),
		},
	}
}

// act calls the dispatcher, converting a panic into a dispatch failure.
func (l *listenCore) act(ctx context.Context, act map[string]any) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("act-error", zap.Any("panic", r), zap.Any("act", act))
			res, err = nil, fmt.Errorf("act panic: %v", r)
		}
	}()
	return l.dispatch.Dispatch(ctx, act)
}
