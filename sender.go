// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Sender transmits request envelopes for one topic. Responses are delivered
// asynchronously to the owning client.
type Sender interface {
	Send(ctx context.Context, env *Envelope) error
	Close() error
}

// MakeSend builds the Sender for a topic. It is supplied by the transport
// hook that owns the client.
type MakeSend func(ctx context.Context, pin Pin, topic string) (Sender, error)

// senderCache memoizes one Sender per topic for the life of a client.
type senderCache struct {
	prefix string
	build  MakeSend
	log    *zap.Logger

	mu      sync.Mutex
	senders map[string]Sender
	closed  bool
	group   singleflight.Group
}

func newSenderCache(prefix string, build MakeSend, log *zap.Logger) *senderCache {
	return &senderCache{
		prefix:  prefix,
		build:   build,
		log:     log,
		senders: make(map[string]Sender),
	}
}

// resolve returns the Sender for pin and args, constructing it on first use.
// Concurrent first calls for one topic share a single construction; a failed
// construction is not cached.
func (c *senderCache) resolve(ctx context.Context, pin Pin, args map[string]any) (Sender, error) {
	topic := Topic(c.prefix, pin, args)
	if s, ok := c.lookup(topic); ok {
		return s, nil
	}

	v, err, _ := c.group.Do(topic, func() (any, error) {
		if s, ok := c.lookup(topic); ok {
			return s, nil
		}
		c.log.Debug("send-init", zap.String("topic", topic), zap.Any("pin", pin))
		s, err := c.build(ctx, pin, topic)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, ErrNullClient
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			_ = s.Close()
			return nil, ErrClosed
		}
		c.senders[topic] = s
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Sender), nil
}

func (c *senderCache) lookup(topic string) (Sender, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.senders[topic]
	return s, ok
}

// topics lists the cached topics.
func (c *senderCache) topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.senders))
	for t := range c.senders {
		out = append(out, t)
	}
	return out
}

func (c *senderCache) close() error {
	c.mu.Lock()
	senders := c.senders
	c.senders = make(map[string]Sender)
	c.closed = true
	c.mu.Unlock()

	var errs []error
	for _, s := range senders {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
