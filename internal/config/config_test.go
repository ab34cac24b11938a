package config

import "testing"

func TestConfig_SetDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != "127.0.0.1:8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:8080")
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.Server.LogLevel, "info")
	}
	if cfg.Approval.Deadline != "120s" {
		t.Errorf("Approval.Deadline = %q, want %q", cfg.Approval.Deadline, "120s")
	}
	if cfg.Audit.DBPath == "" {
		t.Error("Audit.DBPath should not be empty after SetDefaults")
	}
}

func TestConfig_SetDefaults_DoesNotOverrideExplicit(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Server:   ServerConfig{HTTPAddr: "0.0.0.0:9090", LogLevel: "debug"},
		Approval: ApprovalConfig{Deadline: "30s"},
	}
	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != "0.0.0.0:9090" {
		t.Errorf("HTTPAddr was overridden: got %q", cfg.Server.HTTPAddr)
	}
	if cfg.Approval.Deadline != "30s" {
		t.Errorf("Approval.Deadline was overridden: got %q", cfg.Approval.Deadline)
	}
}

func TestConfig_SetDevDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{DevMode: true}
	cfg.SetDevDefaults()

	if cfg.Agent.KeyHash == "" {
		t.Error("dev mode should provide a default agent key hash")
	}
	if len(cfg.Services) != 1 {
		t.Fatalf("dev mode should provide one default service, got %d", len(cfg.Services))
	}
	if cfg.Services[0].DefaultAction != "require_approval" {
		t.Errorf("dev service DefaultAction = %q, want require_approval", cfg.Services[0].DefaultAction)
	}
}

func TestConfig_SetDevDefaults_NoOpWhenDisabled(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDevDefaults()

	if cfg.Agent.KeyHash != "" {
		t.Error("dev defaults should not apply when DevMode is false")
	}
	if len(cfg.Services) != 0 {
		t.Error("dev defaults should not apply when DevMode is false")
	}
}
