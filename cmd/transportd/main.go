// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command transportd runs a listener that answers ping and echo acts, or
// sends one act to a listener and prints the result.
//
//	transportd [flags] listen [port [host [path]]]
//	transportd [flags] act '{"cmd":"ping"}' [port [host [path]]]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/luxfi/transport"
)

type options struct {
	configPath string
	typ        string
	timeout    time.Duration
}

func parseFlags(args []string) (options, []string) {
	fs := flag.NewFlagSet("transportd", flag.ExitOnError)
	var opts options
	fs.StringVar(&opts.configPath, "config", "", "path to config file (yaml, json or toml)")
	fs.StringVar(&opts.typ, "type", transport.DefaultTransport, "transport type: tcp|web|grpc")
	fs.DurationVar(&opts.timeout, "timeout", 10*time.Second, "act timeout")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: transportd [flags] listen|act [args] [port [host [path]]]\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)
	return opts, fs.Args()
}

func main() {
	opts, args := parseFlags(os.Args[1:])
	if len(args) == 0 {
		fatalf("missing command: listen or act")
	}

	cfg, err := transport.LoadConfig(opts.configPath)
	if err != nil {
		fatalf("config: %v", err)
	}
	logger, err := transport.NewLogger(cfg.Log)
	if err != nil {
		fatalf("logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd := args[0]; cmd {
	case "listen":
		err = listen(ctx, cfg, opts, args[1:], logger)
	case "act":
		if len(args) < 2 {
			fatalf("act needs a JSON argument")
		}
		err = act(ctx, cfg, opts, args[1], args[2:], logger)
	default:
		err = fmt.Errorf("unknown command: %s", cmd)
	}
	if err != nil {
		logger.Error("exit", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func endpoint(opts options, args []string) (transport.Endpoint, error) {
	ep, err := transport.ParseEndpoint(args...)
	if err != nil {
		return ep, err
	}
	ep.Type = opts.typ
	return ep, nil
}

func listen(ctx context.Context, cfg *transport.Config, opts options, args []string, logger *zap.Logger) error {
	ep, err := endpoint(opts, args)
	if err != nil {
		return err
	}
	l, err := transport.Listen(ep, transport.DispatcherFunc(dispatch),
		transport.WithConfig(cfg),
		transport.WithLogger(logger),
		transport.WithEvents(func(ev transport.Event) {
			logger.Debug("event", zap.String("name", ev.Name), zap.String("addr", ev.Addr), zap.Error(ev.Err))
		}),
	)
	if err != nil {
		return err
	}
	return l.Serve(ctx)
}

func dispatch(_ context.Context, act map[string]any) (any, error) {
	switch act["cmd"] {
	case "ping":
		return map[string]any{"pong": true, "now": time.Now().UnixMilli()}, nil
	case "echo", nil:
		return act, nil
	}
	return nil, errors.New("unknown cmd")
}

func act(ctx context.Context, cfg *transport.Config, opts options, raw string, args []string, logger *zap.Logger) error {
	var msg map[string]any
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return fmt.Errorf("act argument: %w", err)
	}
	ep, err := endpoint(opts, args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	c, err := transport.NewClient(ctx, ep, transport.WithConfig(cfg), transport.WithLogger(logger))
	if err != nil {
		return err
	}
	defer c.Close()

	res, err := c.Act(ctx, msg)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(2)
}
