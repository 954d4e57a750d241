// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outcome struct {
	res any
	err error
}

func capture() (Continuation, <-chan outcome) {
	ch := make(chan outcome, 4)
	return func(res any, err error) { ch <- outcome{res, err} }, ch
}

func TestClientSendUsesActID(t *testing.T) {
	c := newMemClient(t)
	done, results := capture()

	require.NoError(t, c.Send(context.Background(), map[string]any{"cmd": "ping", ActIDKey: "abc123"}, done))

	env := memSenderFor(t, c, nil, nil).last()
	require.NotNil(t, env)
	assert.Equal(t, "abc123", env.ID)
	assert.Equal(t, KindAct, env.Kind)
	assert.Equal(t, "ping", env.Act["cmd"])
	assert.NotZero(t, env.Time.ClientSent)
	assert.Contains(t, c.Inflight(), "abc123")

	ok := c.handleResponse(&Envelope{ID: "abc123", Kind: KindRes, Res: map[string]any{"pong": true}})
	require.True(t, ok)

	got := <-results
	assert.NoError(t, got.err)
	assert.Equal(t, map[string]any{"pong": true}, got.res)
	assert.Empty(t, c.Inflight())
}

func TestClientGeneratesID(t *testing.T) {
	c := newMemClient(t)
	args := map[string]any{"cmd": "ping"}

	require.NoError(t, c.Send(context.Background(), args, nil))

	env := memSenderFor(t, c, nil, nil).last()
	assert.Len(t, env.ID, c.cfg.MsgIDLen)
	assert.Equal(t, env.ID, env.Act[ActIDKey])
	assert.NotContains(t, args, ActIDKey)
}

func TestClientResponseExactlyOnce(t *testing.T) {
	c := newMemClient(t)
	done, results := capture()
	require.NoError(t, c.Send(context.Background(), map[string]any{ActIDKey: "once"}, done))

	res := &Envelope{ID: "once", Kind: KindRes, Res: "first"}
	assert.True(t, c.handleResponse(res))
	assert.False(t, c.handleResponse(&Envelope{ID: "once", Kind: KindRes, Res: "second"}))

	assert.Equal(t, "first", (<-results).res)
	assert.Empty(t, results)
}

func TestClientRejectsBadResponses(t *testing.T) {
	c := newMemClient(t)
	done, results := capture()
	require.NoError(t, c.Send(context.Background(), map[string]any{ActIDKey: "r1"}, done))

	assert.False(t, c.handleResponse(nil))
	assert.False(t, c.handleResponse(&Envelope{ID: "r1", Kind: KindAct}))
	assert.False(t, c.handleResponse(&Envelope{Kind: KindRes}))
	assert.False(t, c.handleResponse(&Envelope{ID: "unknown", Kind: KindRes}))

	assert.Empty(t, results)
	assert.Contains(t, c.Inflight(), "r1")
}

func TestClientRemoteError(t *testing.T) {
	c := newMemClient(t)
	done, results := capture()
	require.NoError(t, c.Send(context.Background(), map[string]any{ActIDKey: "e1"}, done))

	detail := &ErrorDetail{Message: "boom", Details: map[string]any{"code": "E1"}}
	require.True(t, c.handleResponse(&Envelope{ID: "e1", Kind: KindRes, Error: detail}))

	got := <-results
	var re *RemoteError
	require.True(t, errors.As(got.err, &re))
	assert.Equal(t, "boom", re.Message)
	assert.Equal(t, map[string]any{"code": "E1"}, re.Details)
	assert.Same(t, detail, re.Raw)
}

func TestClientContinuationPanic(t *testing.T) {
	c := newMemClient(t)
	require.NoError(t, c.Send(context.Background(), map[string]any{ActIDKey: "p1"}, func(any, error) {
		panic("callback failure")
	}))

	assert.NotPanics(t, func() {
		assert.True(t, c.handleResponse(&Envelope{ID: "p1", Kind: KindRes}))
	})
	assert.Empty(t, c.Inflight())
}

func TestClientRehydratesResult(t *testing.T) {
	c := newMemClient(t)
	done, results := capture()
	require.NoError(t, c.Send(context.Background(), map[string]any{ActIDKey: "ent"}, done))

	require.True(t, c.handleResponse(&Envelope{
		ID:   "ent",
		Kind: KindRes,
		Res:  map[string]any{"entity$": "sys/user", "name": "alice"},
	}))
	assert.IsType(t, Entity{}, (<-results).res)
}

func TestClientSendFailureDropsPending(t *testing.T) {
	c := newMemClient(t)
	memSenderFor(t, c, nil, nil).fail = errors.New("link down")

	err := c.Send(context.Background(), map[string]any{ActIDKey: "lost"}, nil)
	require.Error(t, err)
	assert.Empty(t, c.Inflight())
}

func TestClientPinnedTopics(t *testing.T) {
	pin := Pin{"role": "user", "cmd": "*"}
	c := newMemClient(t, pin)
	assert.Empty(t, c.Topics())

	assert.True(t, c.Match(map[string]any{"role": "user", "cmd": "load"}))
	assert.False(t, c.Match(map[string]any{"role": "admin"}))

	args := map[string]any{"role": "user", "cmd": "load"}
	require.NoError(t, c.Send(context.Background(), args, nil))
	require.NoError(t, c.Send(context.Background(), map[string]any{"role": "user", "cmd": "load", "id": 2}, nil))
	require.NoError(t, c.Send(context.Background(), map[string]any{"role": "admin"}, nil))

	assert.Len(t, memSenderFor(t, c, pin, args).sent, 2)
	assert.Len(t, memSenderFor(t, c, nil, nil).sent, 1)
	assert.Len(t, c.Topics(), 2)
}

func TestClientActContext(t *testing.T) {
	c := newMemClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Act(ctx, map[string]any{ActIDKey: "slow"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// late responses are still matched
	assert.True(t, c.handleResponse(&Envelope{ID: "slow", Kind: KindRes}))
}

func TestNewClientValidates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CallMax = 0
	_, err := NewClient(context.Background(), Endpoint{Type: typeMem}, WithConfig(cfg))
	assert.Error(t, err)

	_, err = NewClient(context.Background(), Endpoint{Type: TypeQueue})
	assert.ErrorIs(t, err, ErrPluginNeeded)
}
