// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"context"
	"maps"

	"go.uber.org/zap"
)

// ActIDKey is the act field carrying the caller's correlation id.
const ActIDKey = "actid$"

// Client is one client session: a pending-call table, an optional pin
// router and the senders it has opened, one per topic. Connections may come
// and go underneath; in-flight calls belong to the session.
type Client struct {
	*options
	ep      Endpoint
	origin  string
	log     *zap.Logger
	pending *PendingTable
	router  *Router
	senders *senderCache
}

// Match reports whether the client carries calls with these args. A client
// without pins carries everything.
func (c *Client) Match(args map[string]any) bool {
	if c.router == nil {
		return true
	}
	return c.router.Has(args)
}

// Send transmits args as an act and arranges for done to be called once
// with the result. done is never called when the response is lost or the
// call is evicted from the pending table.
func (c *Client) Send(ctx context.Context, args map[string]any, done Continuation) error {
	var pin Pin
	if c.router != nil {
		pin, _ = c.router.FindPin(args)
	}
	sender, err := c.senders.resolve(ctx, pin, args)
	if err != nil {
		return err
	}

	env := c.prepareRequest(args, done)
	if err := sender.Send(ctx, env); err != nil {
		c.pending.Resolve(env.ID)
		return err
	}
	return nil
}

// Act sends args and waits for the result. Returning early on ctx does not
// withdraw the call: a late response is still matched and discarded.
func (c *Client) Act(ctx context.Context, args map[string]any) (any, error) {
	type result struct {
		res any
		err error
	}
	ch := make(chan result, 1)
	err := c.Send(ctx, args, func(res any, err error) {
		ch <- result{res, err}
	})
	if err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		return r.res, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Inflight returns a snapshot of the calls awaiting a response.
func (c *Client) Inflight() map[string]PendingCall {
	return c.pending.Inflight()
}

// Topics lists the topics the client has opened senders for.
func (c *Client) Topics() []string {
	return c.senders.topics()
}

// Close closes every sender. Pending calls are abandoned.
func (c *Client) Close() error {
	return c.senders.close()
}

func (c *Client) prepareRequest(args map[string]any, done Continuation) *Envelope {
	act := maps.Clone(args)
	if act == nil {
		act = make(map[string]any)
	}
	id, _ := act[ActIDKey].(string)
	if id == "" {
		id = newMsgID(c.cfg.MsgIDLen)
		act[ActIDKey] = id
	}
	c.pending.Register(id, act, done)

	return &Envelope{
		ID:     id,
		Kind:   KindAct,
		Origin: c.origin,
		Time:   Timing{ClientSent: nowMillis()},
		Act:    act,
	}
}

// handleResponse matches a response envelope to its pending call and
// completes it. It reports whether a continuation was invoked.
func (c *Client) handleResponse(env *Envelope) bool {
	if env == nil {
		return false
	}
	env.Time.ClientRecv = nowMillis()

	if env.Kind != KindRes {
		c.log.Error("invalid-kind", zap.String("id", env.ID), zap.String("kind", string(env.Kind)))
		return false
	}
	if env.ID == "" {
		c.log.Error("no-message-id", zap.String("origin", env.Origin))
		return false
	}

	call := c.pending.Resolve(env.ID)
	if call == nil {
		c.log.Error("unknown-message-id", zap.String("id", env.ID), zap.String("accept", env.Accept))
		return false
	}

	var err error
	if env.Error != nil {
		err = &RemoteError{
			Message: env.Error.Message,
			Details: env.Error.Details,
			Raw:     env.Error,
		}
	}
	result := rehydrate(c.entity, env.Res)

	c.complete(env.ID, call, result, err)
	return true
}

func (c *Client) complete(id string, call *PendingCall, result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("callback-error", zap.String("id", id), zap.Any("panic", r))
		}
	}()
	if call.Done != nil {
		call.Done(result, err)
	}
}
