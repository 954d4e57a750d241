// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingResolveOnce(t *testing.T) {
	table := NewPendingTable(10, nil)

	calls := 0
	table.Register("id1", map[string]any{"cmd": "ping"}, func(any, error) { calls++ })
	require.Equal(t, 1, table.Len())

	call := table.Resolve("id1")
	require.NotNil(t, call)
	assert.Equal(t, "ping", call.Args["cmd"])
	call.Done(nil, nil)

	assert.Nil(t, table.Resolve("id1"))
	assert.Zero(t, table.Len())
	assert.Equal(t, 1, calls)
}

func TestPendingUnknownID(t *testing.T) {
	table := NewPendingTable(10, nil)
	assert.Nil(t, table.Resolve("missing"))
}

func TestPendingCapacityEviction(t *testing.T) {
	table := NewPendingTable(2, nil)
	table.Register("a", nil, nil)
	table.Register("b", nil, nil)
	table.Register("c", nil, nil)

	assert.Equal(t, 2, table.Len())
	assert.Nil(t, table.Resolve("a"))
	assert.NotNil(t, table.Resolve("b"))
	assert.NotNil(t, table.Resolve("c"))
}

func TestPendingDefaultCapacity(t *testing.T) {
	table := NewPendingTable(0, nil)
	for i := 0; i <= DefaultCallMax; i++ {
		table.Register(fmt.Sprint(i), nil, nil)
	}
	assert.Equal(t, DefaultCallMax, table.Len())
	assert.Nil(t, table.Resolve("0"))
}

func TestPendingInflightSnapshot(t *testing.T) {
	table := NewPendingTable(10, nil)
	table.Register("x", map[string]any{"n": 1}, nil)
	table.Register("y", map[string]any{"n": 2}, nil)

	snap := table.Inflight()
	require.Len(t, snap, 2)
	assert.Equal(t, 1, snap["x"].Args["n"])
	assert.False(t, snap["y"].CreatedAt.IsZero())

	table.Resolve("x")
	assert.Len(t, snap, 2)
	assert.Len(t, table.Inflight(), 1)
}

func TestPendingConcurrentResolve(t *testing.T) {
	table := NewPendingTable(10, nil)
	table.Register("race", nil, nil)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		found int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if table.Resolve("race") != nil {
				mu.Lock()
				found++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, found)
}
