// Package config provides agent configuration loaded from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"

	"github.com/morezero/agent-command-receiver/pkg/codec"
	"github.com/morezero/agent-command-receiver/pkg/commsutil"
)

const logPrefix = "config:LoadConfig"

// Config holds agent-command-receiver configuration.
type Config struct {
	// COMMS: connect to NATS at COMMSURL.
	COMMSURL  string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"agent-command-receiver"`

	// Agent identity. AgentID defaults to a random UUID per process.
	AgentID         string `envconfig:"AGENT_ID"`
	ApplicationName string `envconfig:"APPLICATION_NAME" default:"default"`
	AgentVersion    string `envconfig:"AGENT_VERSION" default:"1.0.3"`

	// Subject overrides (empty = derive from application name and agent id)
	CommandSubject string `envconfig:"COMMAND_SUBJECT"`
	EventSubject   string `envconfig:"EVENT_SUBJECT"`

	// Dispatcher
	WireFormat     string        `envconfig:"WIRE_FORMAT" default:"cbor"`
	MaxPayloadSize int           `envconfig:"MAX_PAYLOAD_SIZE" default:"65507"`
	HandlerTimeout time.Duration `envconfig:"HANDLER_TIMEOUT" default:"0s"`
	MaxInFlight    int64         `envconfig:"MAX_IN_FLIGHT" default:"0"`

	// Control-plane probe (receiver echo)
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"5s"`

	// Audit database (optional; empty disables the audit log)
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"migrations"`

	// HTTP health endpoint
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	if c.AgentID == "" {
		c.AgentID = uuid.NewString()
	}
	return &c, nil
}

// ResolvedCommandSubject returns COMMAND_SUBJECT, or the subject derived from
// the application name and agent id.
func (c *Config) ResolvedCommandSubject() string {
	if c.CommandSubject != "" {
		return c.CommandSubject
	}
	return commsutil.BuildCommandSubject(c.ApplicationName, c.AgentID)
}

// AuditEnabled reports whether handled commands are written to Postgres.
func (c *Config) AuditEnabled() bool {
	return c.DatabaseURL != ""
}

// ValidateForServe checks required config when running the receiver.
func (c *Config) ValidateForServe() error {
	if c.COMMSURL == "" {
		return fmt.Errorf("%s - COMMS_URL is required for serve", logPrefix)
	}
	if _, err := codec.FormatByName(c.WireFormat); err != nil {
		return fmt.Errorf("%s - WIRE_FORMAT: %w", logPrefix, err)
	}
	if c.MaxPayloadSize <= 0 {
		return fmt.Errorf("%s - MAX_PAYLOAD_SIZE must be positive", logPrefix)
	}
	if c.HandlerTimeout < 0 {
		return fmt.Errorf("%s - HANDLER_TIMEOUT must not be negative", logPrefix)
	}
	if c.MaxInFlight < 0 {
		return fmt.Errorf("%s - MAX_IN_FLIGHT must not be negative", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if c.RunMigrations && c.DatabaseURL == "" {
		return fmt.Errorf("%s - RUN_MIGRATIONS requires DATABASE_URL", logPrefix)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, clear, ensure-db).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}

// ValidateForProbe checks required config when sending a probe command.
func (c *Config) ValidateForProbe() error {
	if c.COMMSURL == "" {
		return fmt.Errorf("%s - COMMS_URL is required", logPrefix)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if _, err := codec.FormatByName(c.WireFormat); err != nil {
		return fmt.Errorf("%s - WIRE_FORMAT: %w", logPrefix, err)
	}
	return nil
}
