// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package transport carries actions between a client process and a remote
// listener and correlates every response with the call that caused it.
//
// # Transport Selection
//
// The transport type is part of the Endpoint. tcp is the default:
//
//	tcp    persistent newline-JSON stream, reconnecting, multiplexed by id
//	web    one HTTP POST per call (headers or jsonrpc codec)
//	grpc   bidirectional gRPC stream carrying JSON envelopes
//
// "direct" is accepted as the legacy name of tcp. "pubsub" and "queue" are
// served by external modules and fail with a PluginNeededError.
//
// # Usage
//
// Listener usage:
//
//	l, err := transport.Listen(transport.Endpoint{Port: 10101},
//	    transport.DispatcherFunc(func(ctx context.Context, act map[string]any) (any, error) {
//	        return map[string]any{"pong": true}, nil
//	    }))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go l.Serve(ctx)
//
// Client usage:
//
//	c, err := transport.NewClient(ctx, transport.Endpoint{Port: 10101})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	res, err := c.Act(ctx, map[string]any{"cmd": "ping"})
//
// Pinned clients only carry matching calls, each pin on its own topic:
//
//	c, err := transport.NewClient(ctx, transport.Endpoint{
//	    Pins: []transport.Pin{{"role": "user", "cmd": "*"}},
//	})
//
// # Architecture
//
// The package separates concerns:
//
//   - envelope.go, codec.go: wire envelope and its codec
//   - frame.go: newline framing for stream transports
//   - pending.go: bounded table of in-flight calls
//   - router.go: pin matching and topic derivation
//   - sender.go: one Sender per topic for the life of a client
//   - client.go, listen.go: request and response pipelines
//   - transport.go, dial.go: transport registry and Listen/NewClient
//   - tcp.go, web.go, jsonrpc.go, grpc.go: transports
//   - reconnect.go: reconnecting sender shared by stream transports
//   - config.go: defaults, config file and TRANSPORT_* environment
package transport
