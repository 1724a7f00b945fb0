package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// MissingSecretError reports a required API key that is absent from the
// configuration. Its message is shown verbatim to submitters.
type MissingSecretError struct {
	Service string // display name, e.g. "OpenAI"
	EnvVar  string
}

func (e *MissingSecretError) Error() string {
	return e.Service + " API Key not configured"
}

// ValidationError reports any other invalid configuration value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

var providerNames = map[string]string{
	"openai":    "OpenAI",
	"azure":     "Azure OpenAI",
	"anthropic": "Anthropic",
	"ollama":    "Ollama",
	"gemini":    "Gemini",
	"sendgrid":  "SendGrid",
	"smtp":      "SMTP",
}

// ProviderName returns the display name of a provider id.
func ProviderName(provider string) string {
	if name, ok := providerNames[provider]; ok {
		return name
	}
	return provider
}

// Validate checks the classification settings.
func (c *LLMConfig) Validate() error {
	return translate(validate.Struct(c), "llm", ProviderName(c.Provider), "OPENAI_API_KEY")
}

// Validate checks the mail transport settings.
func (c *MailConfig) Validate() error {
	if err := translate(validate.Struct(c), "mail", ProviderName(c.Provider), "SENDGRID_API_KEY"); err != nil {
		return err
	}
	if c.Provider == "smtp" && c.SMTP.Host == "" {
		return &ValidationError{Field: "mail.smtp.host", Reason: "required when mail.provider is smtp"}
	}
	return nil
}

// Validate checks the whole configuration. Secrets are checked first so a
// missing key is always reported as *MissingSecretError.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if err := c.Mail.Validate(); err != nil {
		return err
	}
	return c.ValidateRuntime()
}

// ValidateRuntime checks the settings the server needs to start at all:
// server, database and rate limiting. Provider settings are left to
// Validate so a missing key does not stop the process.
func (c *Config) ValidateRuntime() error {
	sections := []struct {
		name string
		v    interface{}
	}{
		{"server", &c.Server},
		{"database", &c.Database},
		{"rate_limit", &c.RateLimit},
	}
	for _, s := range sections {
		if err := translate(validate.Struct(s.v), s.name, "", ""); err != nil {
			return err
		}
	}
	return nil
}

func translate(err error, section, service, envVar string) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	// A missing key wins over any other problem in the section.
	for _, fe := range verrs {
		if fe.Field() == "api_key" && strings.HasPrefix(fe.Tag(), "required") {
			return &MissingSecretError{Service: service, EnvVar: envVar}
		}
	}

	fe := verrs[0]
	field := section + "." + fe.Field()

	reason := fe.Tag()
	if fe.Param() != "" {
		reason += "=" + fe.Param()
	}
	return &ValidationError{Field: field, Reason: fmt.Sprintf("failed %q (value %v)", reason, redactValue(fe))}
}

func redactValue(fe validator.FieldError) interface{} {
	if strings.Contains(fe.Field(), "key") || strings.Contains(fe.Field(), "password") {
		return "<redacted>"
	}
	return fe.Value()
}
