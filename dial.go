// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Option configures listeners and clients
type Option func(*options)

type options struct {
	cfg    *Config
	codec  Codec
	log    *zap.Logger
	entity EntityMaker
	events EventHandler
}

// WithConfig sets the shared configuration (DefaultConfig when unset)
func WithConfig(c *Config) Option {
	return func(o *options) { o.cfg = c }
}

// WithCodec sets a custom envelope codec
func WithCodec(c Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithEntityMaker sets how "entity$" payloads are rehydrated
func WithEntityMaker(mk EntityMaker) Option {
	return func(o *options) { o.entity = mk }
}

// WithEvents receives listener and connection lifecycle events
func WithEvents(h EventHandler) Option {
	return func(o *options) { o.events = h }
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.cfg == nil {
		o.cfg = DefaultConfig()
	}
	if o.codec == nil {
		o.codec = defaultCodec
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	if o.entity == nil {
		o.entity = makeEntity
	}
	return o
}

func (o *options) emit(ev Event) {
	if o.events != nil {
		o.events(ev)
	}
}

// Listen binds a listener for ep that reports acts to d. Call Serve to
// start accepting.
func Listen(ep Endpoint, d Dispatcher, opts ...Option) (Listener, error) {
	if d == nil {
		return nil, errors.New("transport: nil dispatcher")
	}
	o := newOptions(opts)
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	ep, err := resolveEndpoint(o.cfg, ep)
	if err != nil {
		return nil, err
	}
	listen, _, _ := lookupTransport(ep.Type)

	core := &listenCore{
		options:  o,
		ep:       ep,
		origin:   o.cfg.origin(),
		dispatch: d,
		log:      o.log.Named("listen").With(zap.String("type", ep.Type)),
	}
	l, err := listen(ep, core)
	if err != nil {
		return nil, fmt.Errorf("%s listen %s: %w", ep.Type, ep.addr(), err)
	}
	return l, nil
}

// NewClient creates a client session for ep. Clients without pins open
// their "any" sender immediately; pinned clients open senders on first use.
func NewClient(ctx context.Context, ep Endpoint, opts ...Option) (*Client, error) {
	o := newOptions(opts)
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	ep, err := resolveEndpoint(o.cfg, ep)
	if err != nil {
		return nil, err
	}
	_, hook, _ := lookupTransport(ep.Type)

	log := o.log.Named("client").With(zap.String("type", ep.Type), zap.String("addr", ep.addr()))
	c := &Client{
		options: o,
		ep:      ep,
		origin:  o.cfg.origin(),
		log:     log,
		pending: NewPendingTable(o.cfg.CallMax, log),
	}
	if len(ep.Pins) > 0 {
		c.router, err = NewRouter(ep.Pins)
		if err != nil {
			return nil, err
		}
	}
	c.senders = newSenderCache(o.cfg.MsgPrefix, hook(ep, c), log)
	log.Info("client", zap.Int("pins", len(ep.Pins)))

	if c.router == nil {
		if _, err := c.senders.resolve(ctx, nil, nil); err != nil {
			return nil, err
		}
	}
	return c, nil
}
