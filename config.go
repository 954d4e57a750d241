// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by LoadConfig,
// e.g. TRANSPORT_CALLMAX or TRANSPORT_TCP_PORT.
const EnvPrefix = "TRANSPORT"

const defaultTimeout = 22222 * time.Millisecond

// EphemeralPort asks a listener to bind any free port; read it back with
// Listener.Addr. A zero Port takes the type's default port.
const EphemeralPort = -1

// Web codecs
const (
	CodecHeaders = "headers" // body is the act, correlation in headers
	CodecJSONRPC = "jsonrpc" // JSON-RPC 2.0 body carrying the envelope
)

// TypeConfig holds the defaults for one transport type.
type TypeConfig struct {
	Type     string        `mapstructure:"type"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Path     string        `mapstructure:"path"`
	Protocol string        `mapstructure:"protocol"`
	Codec    string        `mapstructure:"codec"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Config is built once and shared read-only by every listener and client
// created with it.
type Config struct {
	// MsgPrefix prefixes every topic name.
	MsgPrefix string `mapstructure:"msgprefix"`
	// CallMax bounds the pending-call table of each client.
	CallMax int `mapstructure:"callmax"`
	// MsgIDLen is the length of generated correlation ids.
	MsgIDLen int `mapstructure:"msgidlen"`
	// Origin identifies this node on the wire. Derived from host and pid when empty.
	Origin string `mapstructure:"origin"`

	TCP  TypeConfig `mapstructure:"tcp"`
	Web  TypeConfig `mapstructure:"web"`
	GRPC TypeConfig `mapstructure:"grpc"`

	Log LogConfig `mapstructure:"log"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		MsgPrefix: "svc_",
		CallMax:   DefaultCallMax,
		MsgIDLen:  12,
		TCP: TypeConfig{
			Type:    TypeTCP,
			Host:    "localhost",
			Port:    10101,
			Timeout: defaultTimeout,
		},
		Web: TypeConfig{
			Type:     TypeWeb,
			Host:     "localhost",
			Port:     10201,
			Path:     "/act",
			Protocol: "http",
			Codec:    CodecHeaders,
			Timeout:  defaultTimeout,
		},
		GRPC: TypeConfig{
			Type:    TypeGRPC,
			Host:    "localhost",
			Port:    10301,
			Timeout: defaultTimeout,
		},
		Log: defaultLogConfig(),
	}
}

// LoadConfig starts from DefaultConfig, applies the optional config file at
// path (any format viper reads) and then TRANSPORT_* environment variables.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		v := viper.New()
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the global limits.
func (c *Config) Validate() error {
	if c.CallMax <= 0 {
		return fmt.Errorf("callmax must be positive, got %d", c.CallMax)
	}
	if c.MsgIDLen <= 0 || c.MsgIDLen > 32 {
		return fmt.Errorf("msgidlen must be in 1..32, got %d", c.MsgIDLen)
	}
	return nil
}

func (c *Config) typeConfig(typ string) (TypeConfig, bool) {
	switch typ {
	case TypeTCP:
		return c.TCP, true
	case TypeWeb:
		return c.Web, true
	case TypeGRPC:
		return c.GRPC, true
	}
	return TypeConfig{}, false
}

func (c *Config) origin() string {
	if c.Origin != "" {
		return c.Origin
	}
	return defaultOrigin
}

var defaultOrigin = func() string {
	host, _ := os.Hostname()
	if host == "" {
		host = "host"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), newMsgID(6))
}()

// Endpoint describes one listen or client call. Zero fields take the
// defaults of the endpoint's type.
type Endpoint struct {
	Type     string
	Host     string
	Port     int
	Path     string
	Protocol string
	Codec    string
	Timeout  time.Duration

	// Pins restricts a client to the calls they match. Clients without pins
	// carry every call on the "any" topic.
	Pins []Pin
}

func (e Endpoint) addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// ParseEndpoint reads the positional form: [port [host [path]]].
func ParseEndpoint(args ...string) (Endpoint, error) {
	var ep Endpoint
	if len(args) > 3 {
		return ep, fmt.Errorf("too many endpoint arguments: %d", len(args))
	}
	if len(args) > 0 {
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return ep, fmt.Errorf("invalid port %q: %w", args[0], err)
		}
		ep.Port = port
	}
	if len(args) > 1 {
		ep.Host = args[1]
	}
	if len(args) > 2 {
		ep.Path = args[2]
	}
	return ep, nil
}

// resolveEndpoint applies type defaults to ep. Legacy alternate transports
// fail with a PluginNeededError.
func resolveEndpoint(cfg *Config, ep Endpoint) (Endpoint, error) {
	typ := strings.ToLower(ep.Type)
	switch typ {
	case "":
		typ = TypeTCP
	case TypeDirect:
		typ = TypeTCP
	case TypePubSub:
		return ep, &PluginNeededError{Type: typ, Name: "redis-transport"}
	case TypeQueue:
		return ep, &PluginNeededError{Type: typ, Name: "beanstalkd-transport"}
	}
	if !HasTransport(typ) {
		return ep, fmt.Errorf("%w: %s", ErrUnknownTransport, typ)
	}
	ep.Type = typ

	base, _ := cfg.typeConfig(typ)
	if ep.Host == "" {
		ep.Host = base.Host
	}
	switch {
	case ep.Port == 0:
		ep.Port = base.Port
	case ep.Port < 0:
		ep.Port = 0
	}
	if ep.Path == "" {
		ep.Path = base.Path
	}
	if ep.Protocol == "" {
		ep.Protocol = base.Protocol
	}
	if ep.Codec == "" {
		ep.Codec = base.Codec
	}
	if ep.Timeout <= 0 {
		ep.Timeout = base.Timeout
	}
	if ep.Timeout <= 0 {
		ep.Timeout = defaultTimeout
	}
	return ep, nil
}

// newMsgID returns a random hex id of n characters (at most 32).
func newMsgID(n int) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > 0 && n < len(id) {
		id = id[:n]
	}
	return id
}
