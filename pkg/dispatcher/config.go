package dispatcher

import (
	"errors"
	"fmt"
	"time"

	"github.com/morezero/agent-command-receiver/pkg/codec"
	"github.com/morezero/agent-command-receiver/pkg/command"
	"github.com/morezero/agent-command-receiver/pkg/events"
	"github.com/morezero/agent-command-receiver/pkg/service"
)

const configLogPrefix = "dispatcher:config"

const (
	// DefaultMaxPayloadSize is the largest payload that fits a single UDP datagram.
	DefaultMaxPayloadSize = 65507
	// DefaultAgentVersion selects the default type registry.
	DefaultAgentVersion = "1.0.3"
)

// ErrInvalidConfig is wrapped by every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid dispatcher configuration")

// Config is a validated, immutable dispatcher configuration. Obtain one from NewConfig.
type Config struct {
	format         codec.Format
	maxPayloadSize int
	typeRegistry   *command.TypeRegistry
	services       []service.Service
	serviceReg     *service.Registry
	handlerTimeout time.Duration
	maxInFlight    int64
	publisher      events.EventPublisher
	agentID        string
}

// Option adjusts a configuration before validation.
type Option func(*Config)

// WithFormat selects the body wire format.
func WithFormat(f codec.Format) Option {
	return func(c *Config) { c.format = f }
}

// WithMaxPayloadSize bounds encoded response payloads, in bytes.
func WithMaxPayloadSize(n int) Option {
	return func(c *Config) { c.maxPayloadSize = n }
}

// WithTypeRegistry sets the registry used to resolve type codes.
func WithTypeRegistry(r *command.TypeRegistry) Option {
	return func(c *Config) { c.typeRegistry = r }
}

// WithAgentVersion sets the type registry to the default table for the protocol
// version the given agent release speaks.
func WithAgentVersion(version string) Option {
	return func(c *Config) { c.typeRegistry = command.NewTypeRegistry(command.ProtocolVersionFor(version)) }
}

// WithServices replaces the service list, including the defaults.
func WithServices(services ...service.Service) Option {
	return func(c *Config) { c.services = append([]service.Service(nil), services...) }
}

// WithService appends a service to the list.
func WithService(svc service.Service) Option {
	return func(c *Config) { c.services = append(c.services, svc) }
}

// WithHandlerTimeout bounds each service invocation. Zero means no bound.
func WithHandlerTimeout(d time.Duration) Option {
	return func(c *Config) { c.handlerTimeout = d }
}

// WithMaxInFlight bounds concurrent service invocations. Zero means no bound.
func WithMaxInFlight(n int64) Option {
	return func(c *Config) { c.maxInFlight = n }
}

// WithPublisher sets where command-handled events go.
func WithPublisher(p events.EventPublisher) Option {
	return func(c *Config) { c.publisher = p }
}

// WithAgentID tags published events with the agent id.
func WithAgentID(id string) Option {
	return func(c *Config) { c.agentID = id }
}

// NewConfig applies opts over the defaults (CBOR, DefaultMaxPayloadSize, the type
// registry for DefaultAgentVersion, echo and thread dump services) and validates
// the result.
func NewConfig(opts ...Option) (Config, error) {
	c := Config{
		format:         codec.CBOR(),
		maxPayloadSize: DefaultMaxPayloadSize,
		typeRegistry:   command.NewTypeRegistry(command.ProtocolVersionFor(DefaultAgentVersion)),
		services:       []service.Service{service.NewThreadDumpService(), service.EchoService{}},
	}
	for _, opt := range opts {
		opt(&c)
	}

	if c.format == nil {
		return Config{}, fmt.Errorf("%s - %w: wire format may not be nil", configLogPrefix, ErrInvalidConfig)
	}
	if c.typeRegistry == nil {
		return Config{}, fmt.Errorf("%s - %w: type registry may not be nil", configLogPrefix, ErrInvalidConfig)
	}
	if c.maxPayloadSize <= 0 {
		return Config{}, fmt.Errorf("%s - %w: max payload size must be greater than zero, got %d", configLogPrefix, ErrInvalidConfig, c.maxPayloadSize)
	}
	if len(c.services) == 0 {
		return Config{}, fmt.Errorf("%s - %w: service list must not be empty", configLogPrefix, ErrInvalidConfig)
	}
	if c.handlerTimeout < 0 {
		return Config{}, fmt.Errorf("%s - %w: handler timeout must not be negative, got %s", configLogPrefix, ErrInvalidConfig, c.handlerTimeout)
	}
	if c.maxInFlight < 0 {
		return Config{}, fmt.Errorf("%s - %w: max in-flight must not be negative, got %d", configLogPrefix, ErrInvalidConfig, c.maxInFlight)
	}

	reg, err := service.NewRegistry(c.services...)
	if err != nil {
		return Config{}, fmt.Errorf("%s - %w: %w", configLogPrefix, ErrInvalidConfig, err)
	}
	c.serviceReg = reg

	if c.publisher == nil {
		c.publisher = &events.NoOpPublisher{}
	}
	return c, nil
}

// Format returns the body wire format.
func (c Config) Format() codec.Format { return c.format }

// MaxPayloadSize returns the encoded payload limit in bytes.
func (c Config) MaxPayloadSize() int { return c.maxPayloadSize }

// TypeRegistry returns the type registry.
func (c Config) TypeRegistry() *command.TypeRegistry { return c.typeRegistry }

// HandlerTimeout returns the per-invocation bound, zero if unbounded.
func (c Config) HandlerTimeout() time.Duration { return c.handlerTimeout }

// MaxInFlight returns the concurrent invocation bound, zero if unbounded.
func (c Config) MaxInFlight() int64 { return c.maxInFlight }
