// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	readBufferSize  = 32 * 1024
	acceptRetryWait = 5 * time.Millisecond
)

// tcpListener serves newline-JSON envelopes over TCP. Each inbound act is
// dispatched on its own goroutine; responses share the connection under a
// write lock.
type tcpListener struct {
	core     *listenCore
	listener net.Listener
	conns    sync.Map
	closed   atomic.Bool
	wg       sync.WaitGroup

	// done is cancelled by Close and ends every in-flight dispatch
	done   context.Context
	cancel context.CancelFunc
}

func listenTCP(ep Endpoint, core *listenCore) (Listener, error) {
	ln, err := net.Listen("tcp", ep.addr())
	if err != nil {
		return nil, err
	}
	done, cancel := context.WithCancel(context.Background())
	return &tcpListener{core: core, listener: ln, done: done, cancel: cancel}, nil
}

// Serve starts serving requests
func (s *tcpListener) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	unlink := context.AfterFunc(s.done, cancel)
	defer unlink()

	s.core.log.Info("open", zap.Stringer("addr", s.Addr()))
	s.core.emitEvent(EventListening, s.Addr(), nil)

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() {
				s.wg.Wait()
				s.core.log.Info("close", zap.Stringer("addr", s.Addr()))
				s.core.emitEvent(EventClose, s.Addr(), nil)
				return nil
			}
			s.core.log.Error("net-error", zap.Error(err))
			s.core.emitEvent(EventError, s.Addr(), err)
			time.Sleep(acceptRetryWait)
			continue
		}
		s.wg.Add(1)
		go s.handleConn(ctx, conn)
	}
}

func (s *tcpListener) handleConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	s.conns.Store(conn, struct{}{})
	defer s.conns.Delete(conn)
	if s.closed.Load() {
		return
	}

	log := s.core.log.With(zap.Stringer("remote", conn.RemoteAddr()))
	log.Info("connection")

	var (
		writeMu  sync.Mutex
		inflight sync.WaitGroup
	)
	respond := func(env *Envelope) {
		defer inflight.Done()
		out := s.core.handleRequest(ctx, env)
		frame := EncodeFrame(s.core.codec, log, out)
		if frame == nil {
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(s.core.ep.Timeout))
		if _, err := conn.Write(frame); err != nil {
			log.Debug("write-error", zap.String("id", out.ID), zap.Error(err))
		}
	}

	dec := NewFrameDecoder(s.core.codec, log)
	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		for _, env := range dec.Write(buf[:n]) {
			inflight.Add(1)
			go respond(env)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.closed.Load() {
				log.Error("net-error", zap.Error(err))
			}
			break
		}
	}
	inflight.Wait()
}

// Close closes the listener and every open connection
func (s *tcpListener) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.cancel()
	err := s.listener.Close()
	s.conns.Range(func(key, _ any) bool {
		key.(net.Conn).Close()
		return true
	})
	return err
}

// Addr returns the listener address
func (s *tcpListener) Addr() net.Addr {
	return s.listener.Addr()
}

func clientTCP(ep Endpoint, c *Client) MakeSend {
	dialer := &net.Dialer{Timeout: ep.Timeout}
	return func(_ context.Context, _ Pin, topic string) (Sender, error) {
		return newReconnectSender(c, topic, func(ctx context.Context) (link, error) {
			conn, err := dialer.DialContext(ctx, "tcp", ep.addr())
			if err != nil {
				return nil, err
			}
			return &tcpLink{
				conn:  conn,
				dec:   NewFrameDecoder(c.codec, c.log),
				codec: c.codec,
				log:   c.log,
			}, nil
		}), nil
	}
}

// tcpLink is one client connection. Its decoder is discarded with it, so a
// partial line never survives a reconnect.
type tcpLink struct {
	conn  net.Conn
	dec   *FrameDecoder
	codec Codec
	log   *zap.Logger
}

func (l *tcpLink) readLoop(deliver func(*Envelope)) error {
	buf := make([]byte, readBufferSize)
	for {
		n, err := l.conn.Read(buf)
		for _, env := range l.dec.Write(buf[:n]) {
			deliver(env)
		}
		if err != nil {
			return err
		}
	}
}

func (l *tcpLink) write(env *Envelope) error {
	frame := EncodeFrame(l.codec, l.log, env)
	if frame == nil {
		return nil
	}
	_, err := l.conn.Write(frame)
	return err
}

func (l *tcpLink) close() error {
	return l.conn.Close()
}
