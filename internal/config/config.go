// Package config provides configuration types for ClawGuard.
//
// Bootstrap config parsing from a YAML file and environment-variable
// interpolation is explicitly out of core scope for the gateway's own
// logic — the core packages only ever consume an already-loaded,
// already-validated Config value. This package is the concrete ambient
// implementation of that loader.
package config

import (
	"os"
)

// Config is the top-level ClawGuard configuration.
type Config struct {
	// Server configures the HTTP server listener that the Proxy Engine
	// and admin plane share.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Services defines the initial live service table (ServiceDefinitions).
	// Overrides written through the admin plane supersede entries here at
	// runtime but do not rewrite this file.
	Services []ServiceConfig `yaml:"services" mapstructure:"services" validate:"omitempty,dive"`

	// SecurityGuard configures the allowlist the Security Guard checks
	// upstream hosts against. Empty means allow-all (private-IP and
	// scheme checks still apply).
	SecurityGuard SecurityGuardConfig `yaml:"security_guard" mapstructure:"security_guard"`

	// Approval configures the Approval Coordinator's suspension deadline.
	Approval ApprovalConfig `yaml:"approval" mapstructure:"approval"`

	// Agent configures the shared-secret credential agents present.
	Agent AgentConfig `yaml:"agent" mapstructure:"agent"`

	// Admin configures the admin plane's access gate.
	Admin AdminConfig `yaml:"admin" mapstructure:"admin"`

	// Telegram configures the Out-of-Band Notifier transport.
	Telegram TelegramConfig `yaml:"telegram" mapstructure:"telegram"`

	// Audit configures the durable Audit Store.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// DevMode enables development conveniences (verbose logging, relaxed
	// validation defaults).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g., "127.0.0.1:8080").
	// Defaults to "127.0.0.1:8080" if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level: "debug", "info", "warn", "error".
	// Defaults to "info" if empty. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

// ServiceConfig defines one ServiceDefinition loaded at startup.
type ServiceConfig struct {
	// Name is the service's unique identifier, also its path-prefix segment.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// BaseURL is the upstream origin requests are forwarded to.
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`

	// InterceptHostnames enables host-header routing mode for this service
	// in addition to path-prefix routing.
	InterceptHostnames []string `yaml:"intercept_hostnames" mapstructure:"intercept_hostnames"`

	// Recipe configures how the credential is injected into forwarded requests.
	Recipe RecipeConfig `yaml:"recipe" mapstructure:"recipe"`

	// DefaultAction is applied when no Rule matches: "auto_approve" or
	// "require_approval".
	DefaultAction string `yaml:"default_action" mapstructure:"default_action" validate:"required,oneof=auto_approve require_approval"`

	// Rules are evaluated in order; first match wins.
	Rules []RuleConfig `yaml:"rules" mapstructure:"rules" validate:"omitempty,dive"`
}

// RecipeConfig configures a service's credential-injection recipe.
type RecipeConfig struct {
	// Kind is one of "bearer", "header", "query".
	Kind string `yaml:"kind" mapstructure:"kind" validate:"required,oneof=bearer header query"`
	// Name is the header or query-parameter name; ignored for "bearer".
	Name string `yaml:"name" mapstructure:"name"`
	// Token is the credential value injected upstream, never logged.
	Token string `yaml:"token" mapstructure:"token" validate:"required"`
}

// RuleConfig defines one PolicyRule.
type RuleConfig struct {
	// Method, when non-empty, must equal the request's HTTP method,
	// compared case-insensitively.
	Method string `yaml:"method" mapstructure:"method"`
	// PathPrefix, when non-empty, must prefix-match the upstream request path.
	PathPrefix string `yaml:"path_prefix" mapstructure:"path_prefix"`
	// Condition is an optional CEL expression supplementing Method/PathPrefix.
	Condition string `yaml:"condition" mapstructure:"condition"`
	// Action is the result applied when this rule matches: "auto_approve"
	// or "require_approval".
	Action string `yaml:"action" mapstructure:"action" validate:"required,oneof=auto_approve require_approval"`
}

// SecurityGuardConfig configures host/IP-literal gating shared by both the
// Proxy Engine's upstream check and the admin plane's re-validation of
// service overrides.
type SecurityGuardConfig struct {
	// HostAllowlist restricts upstream hosts by dotted suffix match.
	// Empty means allow-all, subject to scheme and private-IP checks.
	HostAllowlist []string `yaml:"host_allowlist" mapstructure:"host_allowlist"`
}

// ApprovalConfig configures the Approval Coordinator.
type ApprovalConfig struct {
	// Deadline is how long a PendingApproval waits for a human reply before
	// expiring (e.g., "120s"). Defaults to "120s" if empty.
	Deadline string `yaml:"deadline" mapstructure:"deadline" validate:"omitempty"`
}

// AgentConfig configures the agent-facing shared-secret credential.
type AgentConfig struct {
	// KeyHash is the Argon2id (or "sha256:"-prefixed legacy) hash of the
	// shared secret agents present via X-ClawGuard-Key (alias X-AgentGate-Key).
	KeyHash string `yaml:"key_hash" mapstructure:"key_hash" validate:"required"`
}

// AdminConfig configures the admin plane's access gate.
type AdminConfig struct {
	// IPAllowlist restricts admin access by exact IP or CIDR. Empty means
	// allow-all from any source address.
	IPAllowlist []string `yaml:"ip_allowlist" mapstructure:"ip_allowlist"`

	// PINHash is the Argon2id (or "sha256:"-prefixed legacy) hash of the
	// admin session PIN. Empty disables the PIN check (IP allowlist only).
	PINHash string `yaml:"pin_hash" mapstructure:"pin_hash"`
}

// TelegramConfig configures the Out-of-Band Notifier's Telegram transport.
type TelegramConfig struct {
	// BotToken authenticates the bot with the Telegram API. Required
	// unless DevMode is set; checked in Config.Validate rather than via a
	// struct tag, since required_unless only resolves sibling fields
	// within the same struct and DevMode lives one level up.
	BotToken string `yaml:"bot_token" mapstructure:"bot_token"`

	// PairingSecretHash is the Argon2id (or "sha256:"-prefixed legacy) hash
	// of the secret a human supplies via "/pair <secret>" to receive prompts.
	PairingSecretHash string `yaml:"pairing_secret_hash" mapstructure:"pairing_secret_hash"`
}

// AuditConfig configures the durable Audit Store.
type AuditConfig struct {
	// DBPath is the sqlite database file path. Defaults to
	// "$HOME/.clawguard/clawguard.db", or "clawguard.db" when the home
	// directory cannot be determined.
	DBPath string `yaml:"db_path" mapstructure:"db_path"`
}

// SetDevDefaults applies permissive defaults for development mode. Applied
// BEFORE validation so required fields are satisfied without a full config file.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	if c.Agent.KeyHash == "" {
		// sha256 of "dev-agent-key"
		c.Agent.KeyHash = "sha256:6f1e4e1b8f8b36d08901cdb51b97841dfe20f5efd2fd2fd00768971408c46274"
	}
	if len(c.Services) == 0 {
		c.Services = []ServiceConfig{{
			Name:          "example",
			BaseURL:       "https://httpbin.org",
			Recipe:        RecipeConfig{Kind: "header", Name: "X-Dev-Token", Token: "dev-token"},
			DefaultAction: "require_approval",
		}}
	}
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Approval.Deadline == "" {
		c.Approval.Deadline = "120s"
	}
	if c.Audit.DBPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Audit.DBPath = home + "/.clawguard/clawguard.db"
		} else {
			c.Audit.DBPath = "clawguard.db"
		}
	}
}
