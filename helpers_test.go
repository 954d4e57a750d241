// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	testHost = "127.0.0.1"
	typeMem  = "mem"
)

func init() {
	registerTransport(typeMem, listenMem, clientMem)
}

// freePort returns a TCP port that was free a moment ago.
func freePort(t testing.TB) int {
	t.Helper()
	ln, err := net.Listen("tcp", testHost+":0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

// listenAny binds ep on an ephemeral port and returns the endpoint a client
// should dial.
func listenAny(t testing.TB, ep Endpoint, d Dispatcher, opts ...Option) (Listener, Endpoint) {
	t.Helper()
	ep.Port = EphemeralPort
	l, err := Listen(ep, d, opts...)
	require.NoError(t, err)
	ep.Port = l.Addr().(*net.TCPAddr).Port
	require.NotZero(t, ep.Port)
	return l, ep
}

func pingDispatcher() Dispatcher {
	return DispatcherFunc(func(_ context.Context, act map[string]any) (any, error) {
		switch act["cmd"] {
		case "ping":
			return map[string]any{"pong": true}, nil
		case "add":
			a, _ := act["a"].(float64)
			b, _ := act["b"].(float64)
			return map[string]any{"sum": a + b}, nil
		case "fail":
			return nil, errors.New("boom")
		}
		return act, nil
	})
}

// serve starts l in the background and returns a function that stops it
// and waits for Serve to return.
func serve(t testing.TB, l Listener) func() {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- l.Serve(context.Background()) }()
	return func() {
		require.NoError(t, l.Close())
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("listener did not stop")
		}
	}
}

// eventLog collects lifecycle events without blocking the emitter.
type eventLog struct {
	ch chan Event
}

func newEventLog() *eventLog {
	return &eventLog{ch: make(chan Event, 64)}
}

func (e *eventLog) handler(ev Event) {
	select {
	case e.ch <- ev:
	default:
	}
}

func (e *eventLog) wait(t testing.TB, name string) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-e.ch:
			if ev.Name == name {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %q event", name)
			return Event{}
		}
	}
}

// memSender records envelopes instead of sending them.
type memSender struct {
	topic string

	mu     sync.Mutex
	sent   []*Envelope
	fail   error
	closed bool
}

func (s *memSender) Send(_ context.Context, env *Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.sent = append(s.sent, env)
	return nil
}

func (s *memSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memSender) last() *Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return nil
	}
	return s.sent[len(s.sent)-1]
}

func listenMem(Endpoint, *listenCore) (Listener, error) {
	return nil, errors.New("mem transport has no listener")
}

func clientMem(_ Endpoint, _ *Client) MakeSend {
	return func(_ context.Context, _ Pin, topic string) (Sender, error) {
		return &memSender{topic: topic}, nil
	}
}

func newMemClient(t testing.TB, pins ...Pin) *Client {
	t.Helper()
	c, err := NewClient(context.Background(), Endpoint{Type: typeMem, Pins: pins})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func memSenderFor(t testing.TB, c *Client, pin Pin, args map[string]any) *memSender {
	t.Helper()
	s, ok := c.senders.lookup(Topic(c.cfg.MsgPrefix, pin, args))
	require.True(t, ok, "no sender for topic")
	return s.(*memSender)
}
