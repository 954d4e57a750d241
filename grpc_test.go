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

func TestGRPCRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	l, ep := listenAny(t, Endpoint{Type: TypeGRPC, Host: testHost}, pingDispatcher())
	stop := serve(t, l)
	defer stop()

	events := newEventLog()
	c, err := NewClient(ctx, ep, WithEvents(events.handler))
	require.NoError(t, err)
	defer c.Close()

	res, err := c.Act(ctx, map[string]any{"cmd": "ping", ActIDKey: "abc123"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"pong": true}, res)
	assert.Equal(t, TypeGRPC, events.wait(t, EventConnect).Type)

	_, err = c.Act(ctx, map[string]any{"cmd": "fail"})
	var re *RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "boom", re.Message)
}

func TestGRPCCodec(t *testing.T) {
	codec := grpcCodec{}
	assert.Equal(t, "json", codec.Name())

	data, err := codec.Marshal(&Envelope{ID: "g1", Kind: KindAct, Act: map[string]any{"cmd": "ping"}})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, codec.Unmarshal(data, &env))
	assert.Equal(t, "g1", env.ID)
	assert.Equal(t, "ping", env.Act["cmd"])
}
