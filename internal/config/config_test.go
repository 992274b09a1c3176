package config

import (
	"os"
	"testing"
	"time"
)

var configEnvVars = []string{
	"COMMS_URL", "SERVICE_NAME",
	"AGENT_ID", "APPLICATION_NAME", "AGENT_VERSION",
	"COMMAND_SUBJECT", "EVENT_SUBJECT",
	"WIRE_FORMAT", "MAX_PAYLOAD_SIZE", "HANDLER_TIMEOUT", "MAX_IN_FLIGHT",
	"REQUEST_TIMEOUT",
	"DATABASE_URL", "RUN_MIGRATIONS", "MIGRATION_PATH",
	"HTTP_PORT", "HEALTH_CHECK_TIMEOUT", "LOG_LEVEL",
}

func clearEnv() {
	for _, env := range configEnvVars {
		os.Unsetenv(env)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.COMMSURL != "nats://127.0.0.1:4222" {
		t.Errorf("config:config_test - COMMSURL = %q, want %q", cfg.COMMSURL, "nats://127.0.0.1:4222")
	}
	if cfg.COMMSName != "agent-command-receiver" {
		t.Errorf("config:config_test - COMMSName = %q, want %q", cfg.COMMSName, "agent-command-receiver")
	}
	if len(cfg.AgentID) != 36 {
		t.Errorf("config:config_test - AgentID = %q, want a generated UUID", cfg.AgentID)
	}
	if cfg.ApplicationName != "default" {
		t.Errorf("config:config_test - ApplicationName = %q, want default", cfg.ApplicationName)
	}
	if cfg.AgentVersion != "1.0.3" {
		t.Errorf("config:config_test - AgentVersion = %q, want 1.0.3", cfg.AgentVersion)
	}
	if cfg.WireFormat != "cbor" {
		t.Errorf("config:config_test - WireFormat = %q, want cbor", cfg.WireFormat)
	}
	if cfg.MaxPayloadSize != 65507 {
		t.Errorf("config:config_test - MaxPayloadSize = %d, want 65507", cfg.MaxPayloadSize)
	}
	if cfg.HandlerTimeout != 0 || cfg.MaxInFlight != 0 {
		t.Errorf("config:config_test - expected unbounded handler defaults, got %v/%d", cfg.HandlerTimeout, cfg.MaxInFlight)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("config:config_test - RequestTimeout = %v, want 5s", cfg.RequestTimeout)
	}
	if cfg.DatabaseURL != "" || cfg.AuditEnabled() {
		t.Errorf("config:config_test - expected audit disabled by default")
	}
	if cfg.RunMigrations {
		t.Error("config:config_test - expected RunMigrations=false by default")
	}
	if cfg.MigrationPath != "migrations" {
		t.Errorf("config:config_test - MigrationPath = %q, want %q", cfg.MigrationPath, "migrations")
	}
	if cfg.HTTPPort != 8080 {
		t.Errorf("config:config_test - HTTPPort = %d, want 8080", cfg.HTTPPort)
	}
	if cfg.HealthCheckTimeout != 5*time.Second {
		t.Errorf("config:config_test - HealthCheckTimeout = %v, want 5s", cfg.HealthCheckTimeout)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("config:config_test - LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if err := cfg.ValidateForServe(); err != nil {
		t.Errorf("config:config_test - defaults should validate for serve: %v", err)
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	clearEnv()
	overrides := map[string]string{
		"COMMS_URL":            "nats://custom:4222",
		"SERVICE_NAME":         "test-agent",
		"AGENT_ID":             "agent-7",
		"APPLICATION_NAME":     "billing",
		"AGENT_VERSION":        "1.0.2",
		"COMMAND_SUBJECT":      "custom.command",
		"EVENT_SUBJECT":        "custom.handled",
		"WIRE_FORMAT":          "json",
		"MAX_PAYLOAD_SIZE":     "1024",
		"HANDLER_TIMEOUT":      "3s",
		"MAX_IN_FLIGHT":        "8",
		"REQUEST_TIMEOUT":      "2s",
		"DATABASE_URL":         "postgres://test@localhost/test",
		"RUN_MIGRATIONS":       "true",
		"MIGRATION_PATH":       "/tmp/migrations",
		"HTTP_PORT":            "9090",
		"HEALTH_CHECK_TIMEOUT": "10s",
		"LOG_LEVEL":            "debug",
	}

	for key, val := range overrides {
		os.Setenv(key, val)
	}
	defer clearEnv()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.COMMSURL != "nats://custom:4222" || cfg.COMMSName != "test-agent" {
		t.Errorf("config:config_test - COMMS = %q/%q, unexpected", cfg.COMMSURL, cfg.COMMSName)
	}
	if cfg.AgentID != "agent-7" || cfg.ApplicationName != "billing" || cfg.AgentVersion != "1.0.2" {
		t.Errorf("config:config_test - identity = %q/%q/%q, unexpected", cfg.AgentID, cfg.ApplicationName, cfg.AgentVersion)
	}
	if cfg.ResolvedCommandSubject() != "custom.command" {
		t.Errorf("config:config_test - ResolvedCommandSubject() = %q, want custom.command", cfg.ResolvedCommandSubject())
	}
	if cfg.EventSubject != "custom.handled" {
		t.Errorf("config:config_test - EventSubject = %q, want custom.handled", cfg.EventSubject)
	}
	if cfg.WireFormat != "json" || cfg.MaxPayloadSize != 1024 {
		t.Errorf("config:config_test - wire = %q/%d, unexpected", cfg.WireFormat, cfg.MaxPayloadSize)
	}
	if cfg.HandlerTimeout != 3*time.Second || cfg.MaxInFlight != 8 {
		t.Errorf("config:config_test - handler bounds = %v/%d, unexpected", cfg.HandlerTimeout, cfg.MaxInFlight)
	}
	if cfg.RequestTimeout != 2*time.Second {
		t.Errorf("config:config_test - RequestTimeout = %v, want 2s", cfg.RequestTimeout)
	}
	if !cfg.AuditEnabled() || !cfg.RunMigrations || cfg.MigrationPath != "/tmp/migrations" {
		t.Errorf("config:config_test - audit settings unexpected: %+v", cfg)
	}
	if cfg.HTTPPort != 9090 || cfg.HealthCheckTimeout != 10*time.Second {
		t.Errorf("config:config_test - HTTP settings = %d/%v, unexpected", cfg.HTTPPort, cfg.HealthCheckTimeout)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("config:config_test - LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
}

func TestResolvedCommandSubject_Derived(t *testing.T) {
	cfg := &Config{ApplicationName: "billing", AgentID: "agent-1"}
	if got := cfg.ResolvedCommandSubject(); got != "agent.billing.agent-1.command" {
		t.Errorf("config:config_test - ResolvedCommandSubject() = %q, want agent.billing.agent-1.command", got)
	}
}

func TestLoadConfig_LogLevels(t *testing.T) {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, level := range validLevels {
		os.Setenv("LOG_LEVEL", level)
		cfg, err := LoadConfig()
		os.Unsetenv("LOG_LEVEL")

		if err != nil {
			t.Fatalf("config:config_test - unexpected error for level %q: %v", level, err)
		}
		if cfg.LogLevel != level {
			t.Errorf("config:config_test - LogLevel = %q, want %q", cfg.LogLevel, level)
		}
	}
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	clearEnv()
	os.Setenv("HANDLER_TIMEOUT", "soon")
	defer clearEnv()

	if _, err := LoadConfig(); err == nil {
		t.Error("config:config_test - expected error for unparsable HANDLER_TIMEOUT")
	}
}

func validConfig() Config {
	return Config{
		COMMSURL:           "nats://127.0.0.1:4222",
		WireFormat:         "cbor",
		MaxPayloadSize:     65507,
		RequestTimeout:     5 * time.Second,
		HealthCheckTimeout: 5 * time.Second,
	}
}

func TestValidateForServe(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing COMMS URL", func(c *Config) { c.COMMSURL = "" }, true},
		{"unknown wire format", func(c *Config) { c.WireFormat = "xml" }, true},
		{"json wire format", func(c *Config) { c.WireFormat = "JSON" }, false},
		{"zero payload size", func(c *Config) { c.MaxPayloadSize = 0 }, true},
		{"negative handler timeout", func(c *Config) { c.HandlerTimeout = -time.Second }, true},
		{"negative in flight", func(c *Config) { c.MaxInFlight = -1 }, true},
		{"zero health timeout", func(c *Config) { c.HealthCheckTimeout = 0 }, true},
		{"migrations without database", func(c *Config) { c.RunMigrations = true }, true},
		{"migrations with database", func(c *Config) { c.RunMigrations = true; c.DatabaseURL = "postgres://x" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.ValidateForServe()
			if (err != nil) != tt.wantErr {
				t.Errorf("config:config_test - ValidateForServe() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateForDB(t *testing.T) {
	cfg := validConfig()
	if err := cfg.ValidateForDB(); err == nil {
		t.Error("config:config_test - expected error without DATABASE_URL")
	}
	cfg.DatabaseURL = "postgres://x"
	if err := cfg.ValidateForDB(); err != nil {
		t.Errorf("config:config_test - unexpected error: %v", err)
	}
}

func TestValidateForProbe(t *testing.T) {
	cfg := validConfig()
	if err := cfg.ValidateForProbe(); err != nil {
		t.Errorf("config:config_test - unexpected error: %v", err)
	}
	cfg.RequestTimeout = 0
	if err := cfg.ValidateForProbe(); err == nil {
		t.Error("config:config_test - expected error for zero REQUEST_TIMEOUT")
	}
}
