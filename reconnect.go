// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	reconnectInitial = 50 * time.Millisecond
	reconnectMax     = 5 * time.Second
)

// link is one established connection under a reconnecting sender.
type link interface {
	// readLoop delivers inbound envelopes in arrival order until the link fails
	readLoop(deliver func(*Envelope)) error
	write(env *Envelope) error
	close() error
}

type dialLink func(ctx context.Context) (link, error)

// reconnectSender keeps one link alive for a topic. Envelopes sent while no
// link is up wait in the queue; an envelope in flight when a link drops is
// not resent.
type reconnectSender struct {
	typ     string
	topic   string
	addr    string
	dial    dialLink
	deliver func(*Envelope) bool
	log     *zap.Logger
	emit    func(Event)
	onClose func() error

	queue  chan *Envelope
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newReconnectSender(c *Client, topic string, dial dialLink) *reconnectSender {
	ctx, cancel := context.WithCancel(context.Background())
	s := &reconnectSender{
		typ:     c.ep.Type,
		topic:   topic,
		addr:    c.ep.addr(),
		dial:    dial,
		deliver: c.handleResponse,
		log:     c.log.With(zap.String("topic", topic)),
		emit:    c.emit,
		queue:   make(chan *Envelope, c.cfg.CallMax),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *reconnectSender) Send(ctx context.Context, env *Envelope) error {
	select {
	case <-s.ctx.Done():
		return ErrClosed
	default:
	}
	select {
	case s.queue <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return ErrClosed
	}
}

func (s *reconnectSender) Close() error {
	s.cancel()
	<-s.done
	if s.onClose != nil {
		return s.onClose()
	}
	return nil
}

func (s *reconnectSender) event(name string, err error) {
	if err != nil {
		s.log.Debug(name, zap.Error(err))
	} else {
		s.log.Debug(name)
	}
	s.emit(Event{Name: name, Type: s.typ, Addr: s.addr, Topic: s.topic, Err: err})
}

func (s *reconnectSender) run() {
	defer close(s.done)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = reconnectInitial
	b.MaxInterval = reconnectMax
	b.MaxElapsedTime = 0

	connected := false
	for {
		l, err := s.dial(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.log.Debug("dial-error", zap.Error(err))
			if !s.sleep(b.NextBackOff()) {
				return
			}
			continue
		}
		b.Reset()

		if connected {
			s.event(EventReconnect, nil)
		} else {
			s.event(EventConnect, nil)
			connected = true
		}

		err = s.pump(l)
		if s.ctx.Err() != nil {
			return
		}
		s.event(EventDisconnect, err)
		if !s.sleep(b.NextBackOff()) {
			return
		}
	}
}

// pump moves queued envelopes onto l while its read loop feeds responses
// back, until either side fails.
func (s *reconnectSender) pump(l link) error {
	readErr := make(chan error, 1)
	go func() {
		readErr <- l.readLoop(func(env *Envelope) { s.deliver(env) })
	}()

	for {
		select {
		case env := <-s.queue:
			if err := l.write(env); err != nil {
				_ = l.close()
				<-readErr
				return err
			}
		case err := <-readErr:
			_ = l.close()
			return err
		case <-s.ctx.Done():
			_ = l.close()
			<-readErr
			return s.ctx.Err()
		}
	}
}

func (s *reconnectSender) sleep(d time.Duration) bool {
	if d == backoff.Stop {
		d = reconnectMax
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}
