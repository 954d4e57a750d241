// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// DefaultCallMax is the default capacity of a PendingTable.
const DefaultCallMax = 1111

// Continuation receives the outcome of a call. It is invoked at most once.
type Continuation func(result any, err error)

// PendingCall is an in-flight call awaiting its response.
type PendingCall struct {
	Args      map[string]any
	Done      Continuation
	CreatedAt time.Time

	resolved bool
}

// PendingTable maps correlation ids to in-flight calls. It holds at most
// capacity entries; registering beyond that silently drops the least
// recently touched call, whose response will later be treated as unknown.
type PendingTable struct {
	mu    sync.Mutex
	calls *lru.Cache[string, *PendingCall]
	log   *zap.Logger
}

// NewPendingTable creates a table holding up to capacity calls
// (DefaultCallMax when capacity <= 0).
func NewPendingTable(capacity int, log *zap.Logger) *PendingTable {
	if capacity <= 0 {
		capacity = DefaultCallMax
	}
	if log == nil {
		log = zap.NewNop()
	}
	t := &PendingTable{log: log}
	// NewWithEvict only fails for a non-positive size.
	t.calls, _ = lru.NewWithEvict[string, *PendingCall](capacity, t.onEvict)
	return t
}

func (t *PendingTable) onEvict(id string, call *PendingCall) {
	if call.resolved {
		return
	}
	t.log.Debug("evicted", zap.String("id", id), zap.Time("created", call.CreatedAt))
}

// Register stores done under id. A second registration with the same id
// replaces the first.
func (t *PendingTable) Register(id string, args map[string]any, done Continuation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls.Add(id, &PendingCall{
		Args:      args,
		Done:      done,
		CreatedAt: time.Now(),
	})
}

// Resolve removes and returns the call registered under id, or nil.
func (t *PendingTable) Resolve(id string) *PendingCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	call, ok := t.calls.Get(id)
	if !ok {
		return nil
	}
	call.resolved = true
	t.calls.Remove(id)
	return call
}

// Len returns the number of in-flight calls.
func (t *PendingTable) Len() int {
	return t.calls.Len()
}

// Inflight returns a snapshot of the in-flight calls keyed by id.
func (t *PendingTable) Inflight() map[string]PendingCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]PendingCall, t.calls.Len())
	for _, id := range t.calls.Keys() {
		if call, ok := t.calls.Peek(id); ok {
			out[id] = *call
		}
	}
	return out
}
