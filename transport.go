// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"context"
	"sort"
	"sync"
)

// Transport types
const (
	TypeTCP  = "tcp"  // persistent newline-JSON stream, default
	TypeWeb  = "web"  // one HTTP exchange per call
	TypeGRPC = "grpc" // bidirectional gRPC stream

	// TypeDirect is the legacy name of the tcp transport.
	TypeDirect = "direct"
	// Served by external modules only.
	TypePubSub = "pubsub"
	TypeQueue  = "queue"
)

// DefaultTransport is the type used when an Endpoint leaves Type empty
const DefaultTransport = TypeTCP

type listenHook func(ep Endpoint, core *listenCore) (Listener, error)
type clientHook func(ep Endpoint, c *Client) MakeSend

var (
	transportsMu sync.RWMutex
	transports   = map[string]struct {
		listen listenHook
		client clientHook
	}{
		TypeTCP: {listenTCP, clientTCP},
		TypeWeb: {listenWeb, clientWeb},
	}
)

// registerTransport registers a new transport type
func registerTransport(name string, listen listenHook, client clientHook) {
	transportsMu.Lock()
	defer transportsMu.Unlock()
	transports[name] = struct {
		listen listenHook
		client clientHook
	}{listen, client}
}

func lookupTransport(name string) (listenHook, clientHook, bool) {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	t, ok := transports[name]
	return t.listen, t.client, ok
}

// AvailableTransports returns the registered transport types, sorted
func AvailableTransports() []string {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	result := make([]string, 0, len(transports))
	for name := range transports {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// HasTransport checks if a transport type is available
func HasTransport(name string) bool {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	_, ok := transports[name]
	return ok
}

// Dispatcher executes a decoded act. It is the business-logic engine the
// listener reports to.
type Dispatcher interface {
	Dispatch(ctx context.Context, act map[string]any) (any, error)
}

// DispatcherFunc is a function adapter for Dispatcher
type DispatcherFunc func(ctx context.Context, act map[string]any) (any, error)

func (f DispatcherFunc) Dispatch(ctx context.Context, act map[string]any) (any, error) {
	return f(ctx, act)
}
