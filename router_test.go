// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterGlobFallback(t *testing.T) {
	general := Pin{"a": "*x"}
	specific := Pin{"a": "*y", "b": "*z"}
	r, err := NewRouter([]Pin{general, specific})
	require.NoError(t, err)

	pin, ok := r.FindPin(map[string]any{"a": "qx"})
	require.True(t, ok)
	assert.Equal(t, general, pin)

	pin, ok = r.FindPin(map[string]any{"a": "qy", "b": "zz"})
	require.True(t, ok)
	assert.Equal(t, specific, pin)

	_, ok = r.FindPin(map[string]any{"a": "qq"})
	assert.False(t, ok)
}

func TestRouterExactSpecificity(t *testing.T) {
	role := Pin{"role": "user"}
	roleCmd := Pin{"role": "user", "cmd": "save"}
	r, err := NewRouter([]Pin{role, roleCmd})
	require.NoError(t, err)

	pin, ok := r.FindPin(map[string]any{"role": "user", "cmd": "save", "x": 1})
	require.True(t, ok)
	assert.Equal(t, roleCmd, pin)

	pin, ok = r.FindPin(map[string]any{"role": "user", "cmd": "load"})
	require.True(t, ok)
	assert.Equal(t, role, pin)

	assert.False(t, r.Has(map[string]any{"role": "admin"}))
	assert.Equal(t, 2, r.Len())
}

func TestRouterExactFallsBackOnGlob(t *testing.T) {
	role := Pin{"role": "user"}
	roleCmd := Pin{"role": "user", "cmd": "load*"}
	r, err := NewRouter([]Pin{role, roleCmd})
	require.NoError(t, err)

	pin, ok := r.FindPin(map[string]any{"role": "user", "cmd": "loadAll"})
	require.True(t, ok)
	assert.Equal(t, roleCmd, pin)

	pin, ok = r.FindPin(map[string]any{"role": "user", "cmd": "save"})
	require.True(t, ok)
	assert.Equal(t, role, pin)
}

func TestRouterNonStringValues(t *testing.T) {
	r, err := NewRouter([]Pin{{"n": 1, "ok": true}})
	require.NoError(t, err)

	assert.True(t, r.Has(map[string]any{"n": 1, "ok": true}))
	assert.False(t, r.Has(map[string]any{"n": 2, "ok": true}))
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "svc_any", Topic("svc_", nil, map[string]any{"a": "b"}))
	assert.Equal(t, "svc___a___qx___", Topic("svc_", Pin{"a": "*x"}, map[string]any{"a": "qx"}))
	assert.Equal(t, "p__a___1___b___2___",
		Topic("p", Pin{"b": "*", "a": "*"}, map[string]any{"a": 1, "b": "2", "c": "ignored"}))
}

func TestTopicStable(t *testing.T) {
	pin := Pin{"role": "user", "cmd": "*"}
	args := map[string]any{"role": "user", "cmd": "load", "id": 7}
	first := Topic("svc_", pin, args)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Topic("svc_", pin, args))
	}
	assert.NotEqual(t, first, Topic("svc_", pin, map[string]any{"role": "user", "cmd": "save"}))
}

func TestRouterQuestionMarkIsLiteral(t *testing.T) {
	r, err := NewRouter([]Pin{{"cmd": "what?"}})
	require.NoError(t, err)

	assert.True(t, r.Has(map[string]any{"cmd": "what?"}))
	assert.False(t, r.Has(map[string]any{"cmd": "whats"}))
}

func TestRouterGlobLiterals(t *testing.T) {
	r, err := NewRouter([]Pin{{"a": "a*["}, {"b": "x?{y}*"}})
	require.NoError(t, err)

	assert.True(t, r.Has(map[string]any{"a": "ab["}))
	assert.False(t, r.Has(map[string]any{"a": "ab"}))
	assert.True(t, r.Has(map[string]any{"b": "x1{y}z"}))
	assert.False(t, r.Has(map[string]any{"b": "x1yz"}))
}
