// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
)

const (
	grpcCodecName = "json"
	grpcMethod    = "/transport.Envelopes/Exchange"
)

func init() {
	encoding.RegisterCodec(grpcCodec{})
	registerTransport(TypeGRPC, listenGRPC, clientGRPC)
}

// grpcCodec carries envelopes as JSON under the "json" content-subtype.
type grpcCodec struct{}

func (grpcCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (grpcCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (grpcCodec) Name() string                       { return grpcCodecName }

type envelopeServer interface {
	exchange(stream grpc.ServerStream) error
}

var envelopeServiceDesc = grpc.ServiceDesc{
	ServiceName: "transport.Envelopes",
	HandlerType: (*envelopeServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Exchange",
			Handler:       exchangeHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
}

func exchangeHandler(srv any, stream grpc.ServerStream) error {
	return srv.(envelopeServer).exchange(stream)
}

// grpcListener serves acts over one bidirectional stream per client sender.
type grpcListener struct {
	core     *listenCore
	listener net.Listener
	server   *grpc.Server
	closed   atomic.Bool
}

func listenGRPC(ep Endpoint, core *listenCore) (Listener, error) {
	ln, err := net.Listen("tcp", ep.addr())
	if err != nil {
		return nil, err
	}
	l := &grpcListener{
		core:     core,
		listener: ln,
		server:   grpc.NewServer(),
	}
	l.server.RegisterService(&envelopeServiceDesc, l)
	return l, nil
}

func (l *grpcListener) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = l.Close() })
	defer stop()

	l.core.log.Info("open", zap.Stringer("addr", l.Addr()))
	l.core.emitEvent(EventListening, l.Addr(), nil)

	err := l.server.Serve(l.listener)
	if err == nil || l.closed.Load() {
		l.core.log.Info("close", zap.Stringer("addr", l.Addr()))
		l.core.emitEvent(EventClose, l.Addr(), nil)
		return nil
	}
	l.core.log.Error("net-error", zap.Error(err))
	l.core.emitEvent(EventError, l.Addr(), err)
	return err
}

func (l *grpcListener) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	l.server.Stop()
	_ = l.listener.Close()
	return nil
}

func (l *grpcListener) Addr() net.Addr {
	return l.listener.Addr()
}

func (l *grpcListener) exchange(stream grpc.ServerStream) error {
	ctx := stream.Context()
	var (
		sendMu   sync.Mutex
		inflight sync.WaitGroup
	)
	defer inflight.Wait()

	for {
		env := new(Envelope)
		if err := stream.RecvMsg(env); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			out := l.core.handleRequest(ctx, env)
			if out == nil {
				return
			}
			sendMu.Lock()
			defer sendMu.Unlock()
			if err := stream.SendMsg(out); err != nil {
				l.core.log.Debug("write-error", zap.String("id", out.ID), zap.Error(err))
			}
		}()
	}
}

func clientGRPC(ep Endpoint, c *Client) MakeSend {
	return func(_ context.Context, _ Pin, topic string) (Sender, error) {
		conn, err := grpc.NewClient(ep.addr(),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithDefaultCallOptions(grpc.CallContentSubtype(grpcCodecName)),
		)
		if err != nil {
			return nil, fmt.Errorf("grpc dial: %w", err)
		}
		s := newReconnectSender(c, topic, func(ctx context.Context) (link, error) {
			sctx, cancel := context.WithCancel(ctx)
			stream, err := conn.NewStream(sctx, &envelopeServiceDesc.Streams[0], grpcMethod)
			if err != nil {
				cancel()
				return nil, err
			}
			return &grpcLink{stream: stream, cancel: cancel}, nil
		})
		s.onClose = conn.Close
		return s, nil
	}
}

type grpcLink struct {
	stream grpc.ClientStream
	cancel context.CancelFunc
}

func (l *grpcLink) readLoop(deliver func(*Envelope)) error {
	for {
		env := new(Envelope)
		if err := l.stream.RecvMsg(env); err != nil {
			return err
		}
		deliver(env)
	}
}

func (l *grpcLink) write(env *Envelope) error {
	return l.stream.SendMsg(env)
}

func (l *grpcLink) close() error {
	l.cancel()
	return nil
}
