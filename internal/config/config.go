package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	LLM       LLMConfig       `yaml:"llm"`
	Mail      MailConfig      `yaml:"mail"`
	Database  DatabaseConfig  `yaml:"database"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port" validate:"required,numeric"`
	Mode            string        `yaml:"mode" validate:"oneof=debug release test"`
	BackLink        string        `yaml:"back_link"` // link rendered on the thank-you page
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// ModelOutput logs the raw classification output at debug level,
	// truncated and with e-mail addresses masked.
	ModelOutput bool `yaml:"model_output"`
}

type LLMConfig struct {
	Provider  string `yaml:"provider" validate:"oneof=openai azure anthropic ollama gemini"`
	BaseURL   string `yaml:"base_url" validate:"omitempty,url"`
	APIKey    string `yaml:"api_key" validate:"required_unless=Provider ollama"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens" validate:"gt=0"`
}

var defaultModels = map[string]string{
	"openai":    "gpt-3.5-turbo",
	"azure":     "gpt-35-turbo",
	"anthropic": "claude-3-5-haiku-latest",
	"ollama":    "llama3",
	"gemini":    "gemini-2.0-flash",
}

// ResolvedModel returns the configured model, or the provider's default
// when none is set. For azure the model is the deployment name.
func (c *LLMConfig) ResolvedModel() string {
	if c.Model != "" {
		return c.Model
	}
	return defaultModels[c.Provider]
}

type MailConfig struct {
	Provider string     `yaml:"provider" validate:"oneof=sendgrid smtp"`
	APIKey   string     `yaml:"api_key" validate:"required_if=Provider sendgrid"`
	BaseURL  string     `yaml:"base_url" validate:"omitempty,url"`
	From     string     `yaml:"from" validate:"required,email"`
	To       string     `yaml:"to" validate:"required,email"`
	SMTP     SMTPConfig `yaml:"smtp"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"omitempty,min=1,max=65535"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type DatabaseConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Driver        string `yaml:"driver" validate:"oneof=sqlite mysql postgres"`
	DSN           string `yaml:"dsn" validate:"required_if=Enabled true"`
	RetentionDays int    `yaml:"retention_days"`
	CleanupCron   string `yaml:"cleanup_cron"`
}

// RateLimitConfig guards the feedback routes per client IP. Disabled by
// default.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps" validate:"gte=0"`
	Burst   int     `yaml:"burst" validate:"gte=0"`
}

// Load reads configPath (default config.yaml) over the defaults, then applies
// a .env file from the working directory and the process environment.
// Validation is left to the caller so that a missing secret can be reported
// per request instead of preventing startup.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg.overrideFromEnv()
	return cfg, nil
}

// loadDotEnv loads path when it exists. Variables already present in the
// environment are not overwritten.
func loadDotEnv(path string) error {
	if _, err := os.Lstat(path); err != nil {
		return nil
	}
	return godotenv.Load(path)
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			Mode:            "release",
			BackLink:        "/index.html",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		LLM: LLMConfig{
			Provider:  "openai",
			MaxTokens: 200,
		},
		Mail: MailConfig{
			Provider: "sendgrid",
			From:     "info@schoolfeedback.org",
			To:       "info@schoolfeedback.org",
			SMTP: SMTPConfig{
				Port: 587,
			},
		},
		Database: DatabaseConfig{
			Enabled:       false,
			Driver:        "sqlite",
			DSN:           "feedbackd.db",
			RetentionDays: 30,
			CleanupCron:   "0 3 * * *",
		},
		RateLimit: RateLimitConfig{
			Enabled: false,
			RPS:     1,
			Burst:   5,
		},
	}
}

func (c *Config) overrideFromEnv() {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString(&c.Server.Host, "SERVER_HOST")
	setString(&c.Server.Port, "SERVER_PORT")
	setString(&c.Server.Mode, "SERVER_MODE")
	setString(&c.Log.Level, "LOG_LEVEL")

	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.BaseURL, "OPENAI_BASE_URL")
	setString(&c.LLM.APIKey, "OPENAI_API_KEY")
	setString(&c.LLM.Model, "OPENAI_MODEL")

	setString(&c.Mail.Provider, "MAIL_PROVIDER")
	setString(&c.Mail.APIKey, "SENDGRID_API_KEY")
	setString(&c.Mail.From, "MAIL_FROM")
	setString(&c.Mail.To, "MAIL_TO")
	setString(&c.Mail.SMTP.Host, "SMTP_HOST")
	setString(&c.Mail.SMTP.Username, "SMTP_USERNAME")
	setString(&c.Mail.SMTP.Password, "SMTP_PASSWORD")
	if port := os.Getenv("SMTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Mail.SMTP.Port = p
		}
	}

	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
		c.Database.Enabled = true
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
		c.Database.Enabled = true
	}
}

// Redacted returns a copy of c with every secret masked, suitable for
// printing.
func (c *Config) Redacted() *Config {
	out := *c
	out.LLM.APIKey = mask(c.LLM.APIKey)
	out.Mail.APIKey = mask(c.Mail.APIKey)
	out.Mail.SMTP.Password = mask(c.Mail.SMTP.Password)
	if c.Database.Driver != "sqlite" {
		out.Database.DSN = mask(c.Database.DSN)
	}
	return &out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

// Marshal renders c as yaml.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
