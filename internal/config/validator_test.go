package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		Server: ServerConfig{HTTPAddr: "127.0.0.1:8080", LogLevel: "info"},
		Agent:  AgentConfig{KeyHash: "sha256:abc123"},
		Services: []ServiceConfig{{
			Name:          "github",
			BaseURL:       "https://api.github.com",
			Recipe:        RecipeConfig{Kind: "bearer", Token: "t"},
			DefaultAction: "require_approval",
		}},
		Telegram: TelegramConfig{BotToken: "bot-token"},
	}
}

func TestConfig_Validate_OK(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestConfig_Validate_MissingAgentKeyHash(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Agent.KeyHash = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for missing agent.key_hash")
	}
	if !strings.Contains(err.Error(), "KeyHash") {
		t.Errorf("error %q does not mention KeyHash", err)
	}
}

func TestConfig_Validate_BadDefaultAction(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Services[0].DefaultAction = "maybe"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for invalid default_action")
	}
}

func TestConfig_Validate_BadRecipeKind(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Services[0].Recipe.Kind = "cookie"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for invalid recipe kind")
	}
}

func TestConfig_Validate_DuplicateServiceNames(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Services = append(cfg.Services, cfg.Services[0])

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for duplicate service names")
	}
	if !strings.Contains(err.Error(), "duplicate service name") {
		t.Errorf("error %q does not mention duplicate service name", err)
	}
}

func TestConfig_Validate_MissingTelegramBotTokenRequiresDevMode(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Telegram.BotToken = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error when telegram.bot_token is missing outside dev mode")
	}

	cfg.DevMode = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("dev mode should waive telegram.bot_token requirement, got: %v", err)
	}
}
