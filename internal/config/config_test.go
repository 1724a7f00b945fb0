package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.LLM.APIKey = "sk-test"
	cfg.Mail.APIKey = "SG.test"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LLM.ResolvedModel() != "gpt-3.5-turbo" {
		t.Errorf("default model = %q, expected gpt-3.5-turbo", cfg.LLM.ResolvedModel())
	}
	if cfg.LLM.MaxTokens != 200 {
		t.Errorf("default max tokens = %d, expected 200", cfg.LLM.MaxTokens)
	}
	if cfg.Mail.To != "info@schoolfeedback.org" || cfg.Mail.From != "info@schoolfeedback.org" {
		t.Errorf("unexpected default addresses from=%q to=%q", cfg.Mail.From, cfg.Mail.To)
	}
	if cfg.Server.BackLink != "/index.html" {
		t.Errorf("default back link = %q", cfg.Server.BackLink)
	}
	if cfg.Database.Enabled {
		t.Error("database should be disabled by default")
	}
	if cfg.RateLimit.Enabled {
		t.Error("rate limit should be disabled by default")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("SENDGRID_API_KEY", "")

	cfg, err := Load("does-not-exist.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q, expected 8080", cfg.Server.Port)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("OPENAI_API_KEY", "")

	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: "9090"
  shutdown_timeout: 3s
llm:
  provider: anthropic
  model: claude-3-haiku
mail:
  to: office@example.org
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("port = %q, expected 9090", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout != 3*time.Second {
		t.Errorf("shutdown timeout = %v, expected 3s", cfg.Server.ShutdownTimeout)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("provider = %q, expected anthropic", cfg.LLM.Provider)
	}
	if cfg.LLM.MaxTokens != 200 {
		t.Errorf("max tokens should keep default, got %d", cfg.LLM.MaxTokens)
	}
	if cfg.Mail.From != "info@schoolfeedback.org" {
		t.Errorf("from should keep default, got %q", cfg.Mail.From)
	}
	if cfg.Mail.To != "office@example.org" {
		t.Errorf("to = %q", cfg.Mail.To)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("SENDGRID_API_KEY", "SG.env")
	t.Setenv("SERVER_PORT", "7000")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("DB_DSN", "/tmp/feedback.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LLM.APIKey != "sk-env" {
		t.Errorf("llm key not taken from env")
	}
	if cfg.Mail.APIKey != "SG.env" {
		t.Errorf("mail key not taken from env")
	}
	if cfg.Server.Port != "7000" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if cfg.Mail.SMTP.Port != 2525 {
		t.Errorf("smtp port = %d", cfg.Mail.SMTP.Port)
	}
	if !cfg.Database.Enabled || cfg.Database.DSN != "/tmp/feedback.db" {
		t.Errorf("DB_DSN should enable the database, got %+v", cfg.Database)
	}
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("OPENAI_API_KEY", "sk-real")
	t.Setenv("SENDGRID_API_KEY", "")
	os.Unsetenv("SENDGRID_API_KEY")

	dotenv := "OPENAI_API_KEY=sk-dotenv\nSENDGRID_API_KEY=SG.dotenv\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(dotenv), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.APIKey != "sk-real" {
		t.Errorf("environment should win over .env, got %q", cfg.LLM.APIKey)
	}
	if cfg.Mail.APIKey != "SG.dotenv" {
		t.Errorf(".env should fill unset variables, got %q", cfg.Mail.APIKey)
	}
	os.Unsetenv("SENDGRID_API_KEY")
}

func TestValidate_Valid(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidate_MissingSecrets(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		service string
	}{
		{
			name:    "missing openai key",
			mutate:  func(c *Config) { c.LLM.APIKey = "" },
			service: "OpenAI",
		},
		{
			name:    "missing anthropic key",
			mutate:  func(c *Config) { c.LLM.Provider = "anthropic"; c.LLM.APIKey = "" },
			service: "Anthropic",
		},
		{
			name:    "missing sendgrid key",
			mutate:  func(c *Config) { c.Mail.APIKey = "" },
			service: "SendGrid",
		},
		{
			name:    "missing key with invalid base url",
			mutate:  func(c *Config) { c.LLM.BaseURL = "not a url"; c.LLM.APIKey = "" },
			service: "OpenAI",
		},
		{
			name:    "missing key with invalid recipient",
			mutate:  func(c *Config) { c.Mail.To = "nobody"; c.Mail.APIKey = "" },
			service: "SendGrid",
		},
		{
			name:    "both missing reports llm first",
			mutate:  func(c *Config) { c.LLM.APIKey = ""; c.Mail.APIKey = "" },
			service: "OpenAI",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			var missing *MissingSecretError
			if !errors.As(err, &missing) {
				t.Fatalf("expected *MissingSecretError, got %v", err)
			}
			if missing.Service != tt.service {
				t.Errorf("service = %q, expected %q", missing.Service, tt.service)
			}
			if err.Error() != tt.service+" API Key not configured" {
				t.Errorf("message = %q", err.Error())
			}
		})
	}
}

func TestValidate_OllamaNeedsNoKey(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.Provider = "ollama"
	cfg.LLM.APIKey = ""

	if err := cfg.Validate(); err != nil {
		t.Errorf("ollama without key should be valid, got %v", err)
	}
}

func TestValidate_SMTPNeedsHostNotKey(t *testing.T) {
	cfg := validConfig()
	cfg.Mail.Provider = "smtp"
	cfg.Mail.APIKey = ""

	err := cfg.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if verr.Field != "mail.smtp.host" {
		t.Errorf("field = %q", verr.Field)
	}

	cfg.Mail.SMTP.Host = "smtp.example.org"
	if err := cfg.Validate(); err != nil {
		t.Errorf("smtp with host should be valid, got %v", err)
	}
}

func TestValidate_InvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"unknown provider", func(c *Config) { c.LLM.Provider = "bard" }, "llm.provider"},
		{"zero max tokens", func(c *Config) { c.LLM.MaxTokens = 0 }, "llm.max_tokens"},
		{"bad recipient", func(c *Config) { c.Mail.To = "not-an-address" }, "mail.to"},
		{"bad driver", func(c *Config) { c.Database.Driver = "oracle" }, "database.driver"},
		{"bad mode", func(c *Config) { c.Server.Mode = "prod" }, "server.mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("field = %q, expected %q", verr.Field, tt.field)
			}
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg := validConfig()
	cfg.Mail.SMTP.Password = "hunter2"

	out, err := cfg.Redacted().Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	for _, secret := range []string{"sk-test", "SG.test", "hunter2"} {
		if strings.Contains(string(out), secret) {
			t.Errorf("redacted config leaks %q", secret)
		}
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Error("Redacted must not modify the original")
	}
}

func TestResolvedModel(t *testing.T) {
	tests := []struct {
		provider string
		model    string
		expected string
	}{
		{"openai", "", "gpt-3.5-turbo"},
		{"openai", "gpt-4o-mini", "gpt-4o-mini"},
		{"anthropic", "", "claude-3-5-haiku-latest"},
		{"ollama", "", "llama3"},
	}

	for _, tt := range tests {
		c := &LLMConfig{Provider: tt.provider, Model: tt.model}
		if got := c.ResolvedModel(); got != tt.expected {
			t.Errorf("ResolvedModel(%s, %q) = %q, expected %q", tt.provider, tt.model, got, tt.expected)
		}
	}
}

func TestProviderName(t *testing.T) {
	if ProviderName("openai") != "OpenAI" {
		t.Errorf("ProviderName(openai) = %q", ProviderName("openai"))
	}
	if ProviderName("custom") != "custom" {
		t.Errorf("unknown providers should pass through, got %q", ProviderName("custom"))
	}
}

func TestValidateRuntime_IgnoresProviderSecrets(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.ValidateRuntime(); err != nil {
		t.Fatalf("ValidateRuntime() without keys = %v, want nil", err)
	}

	cfg.Server.Port = "http"
	err := cfg.ValidateRuntime()
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "server.port" {
		t.Fatalf("ValidateRuntime() = %v, want server.port validation error", err)
	}
}
