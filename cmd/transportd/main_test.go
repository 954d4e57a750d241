// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/transport"
)

func TestDispatch(t *testing.T) {
	res, err := dispatch(context.Background(), map[string]any{"cmd": "ping"})
	require.NoError(t, err)
	assert.Equal(t, true, res.(map[string]any)["pong"])

	act := map[string]any{"cmd": "echo", "x": 1}
	res, err = dispatch(context.Background(), act)
	require.NoError(t, err)
	assert.Equal(t, act, res)

	_, err = dispatch(context.Background(), map[string]any{"cmd": "nope"})
	assert.Error(t, err)
}

func TestParseFlags(t *testing.T) {
	opts, args := parseFlags([]string{"-type", "web", "listen", "8080"})
	assert.Equal(t, transport.TypeWeb, opts.typ)
	assert.Equal(t, []string{"listen", "8080"}, args)

	ep, err := endpoint(opts, args[1:])
	require.NoError(t, err)
	assert.Equal(t, 8080, ep.Port)
	assert.Equal(t, transport.TypeWeb, ep.Type)
}
