package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"

	"github.com/hay-kot/criterio"

	"github.com/hay-kot/chatwidget/internal/core/locale"
	"github.com/hay-kot/chatwidget/pkg/tmpl"
)

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Category string `json:"category"`
	Item     string `json:"item,omitempty"`
	Message  string `json:"message"`
}

// LinkTemplateData defines available fields for the escalation link template.
type LinkTemplateData struct {
	Host      string
	Recipient string
	Greeting  string
	SessionID string
	Language  string
}

// Validate checks that the configuration is usable. It returns
// criterio.FieldErrors listing every problem found.
func (c *Config) Validate() error {
	var errs criterio.FieldErrorsBuilder

	if !slices.Contains(locale.Default().Tags(), locale.Normalize(c.Language)) {
		errs = errs.Append("language", fmt.Errorf("unsupported language %q (supported: %s)", c.Language, supportedTags()))
	}

	if c.SeedDelay < 0 {
		errs = errs.Append("seed_delay", fmt.Errorf("must not be negative"))
	}

	if c.Webhook.URL != "" {
		if err := validateURL(c.Webhook.URL); err != nil {
			errs = errs.Append("webhook.url", err)
		}
	}
	if c.Webhook.Timeout < 0 {
		errs = errs.Append("webhook.timeout", fmt.Errorf("must not be negative"))
	}
	if c.Webhook.TypingDelay < 0 {
		errs = errs.Append("webhook.typing_delay", fmt.Errorf("must not be negative"))
	}
	for name := range c.Webhook.Headers {
		if strings.TrimSpace(name) == "" || strings.ContainsAny(name, " :\r\n") {
			errs = errs.Append("webhook.headers", fmt.Errorf("invalid header name %q", name))
		}
	}

	if _, err := tmpl.Render(c.Escalation.Link, LinkTemplateData{
		Host:      c.Escalation.Host,
		Recipient: "0000000000",
		Greeting:  c.Escalation.Greeting,
		SessionID: "session_0_000000000",
		Language:  c.Language,
	}); err != nil {
		errs = errs.Append("escalation.link", fmt.Errorf("template error: %w", err))
	}

	switch c.Storage.Driver {
	case StorageJSONFile:
		if c.Storage.Path == "" {
			errs = errs.Append("storage.path", fmt.Errorf("required for the jsonfile driver"))
		}
	case StorageSQLite:
		if c.Storage.DSN == "" {
			errs = errs.Append("storage.dsn", fmt.Errorf("required for the sqlite driver"))
		}
	case StorageRedis:
		if c.Storage.RedisAddr == "" {
			errs = errs.Append("storage.redis_addr", fmt.Errorf("required for the redis driver"))
		}
	case StorageMemory:
	default:
		errs = errs.Append("storage.driver", fmt.Errorf("unknown driver %q", c.Storage.Driver))
	}

	if c.Analytics.Enabled {
		switch c.Analytics.Driver {
		case AnalyticsLog, AnalyticsChannel:
		case AnalyticsRedis:
			if c.Analytics.RedisAddr == "" {
				errs = errs.Append("analytics.redis_addr", fmt.Errorf("required for the redis driver"))
			}
		default:
			errs = errs.Append("analytics.driver", fmt.Errorf("unknown driver %q", c.Analytics.Driver))
		}
	}

	for _, origin := range c.Server.AllowedOrigins {
		if origin == "*" {
			continue
		}
		if err := validateURL(origin); err != nil {
			errs = errs.Append("server.allowed_origins", err)
		}
	}

	for i, rule := range c.Fallback.Rules {
		field := fmt.Sprintf("fallback.rules[%d]", i)
		if len(rule.Keywords) == 0 {
			errs = errs.Append(field+".keywords", fmt.Errorf("at least one keyword is required"))
		}
		if strings.TrimSpace(rule.Reply) == "" {
			errs = errs.Append(field+".reply", fmt.Errorf("reply cannot be empty"))
		}
	}
	if len(c.Fallback.Rules) > 0 && strings.TrimSpace(c.Fallback.Default) == "" {
		errs = errs.Append("fallback.default", fmt.Errorf("required when fallback rules are set"))
	}

	return errs.ToError()
}

// ValidateDeep runs Validate plus checks against the filesystem.
func (c *Config) ValidateDeep(configPath string) error {
	var errs criterio.FieldErrorsBuilder

	if configPath != "" {
		if info, err := os.Stat(configPath); err == nil && info.IsDir() {
			errs = errs.Append("config", fmt.Errorf("%s is a directory, not a file", configPath))
		} else if err != nil && !os.IsNotExist(err) {
			errs = errs.Append("config", fmt.Errorf("cannot access %s: %w", configPath, err))
		}
	}

	if c.DataDir != "" {
		if info, err := os.Stat(c.DataDir); err == nil && !info.IsDir() {
			errs = errs.Append("data_dir", fmt.Errorf("%s is not a directory", c.DataDir))
		}
	}

	if err := c.Validate(); err != nil {
		var fieldErrs criterio.FieldErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				errs = errs.Append(fe.Field, fe.Err)
			}
		} else {
			errs = errs.Append("", err)
		}
	}

	return errs.ToError()
}

// Warnings returns non-fatal issues worth surfacing to the user.
func (c *Config) Warnings() []ValidationWarning {
	var warnings []ValidationWarning

	if c.Webhook.URL == "" {
		warnings = append(warnings, ValidationWarning{
			Category: "Webhook",
			Item:     "webhook.url",
			Message:  "not set; every reply will come from the fallback table",
		})
	}
	if c.Escalation.Recipient == "" {
		warnings = append(warnings, ValidationWarning{
			Category: "Escalation",
			Item:     "escalation.recipient",
			Message:  "not set; escalation is unavailable",
		})
	}
	if c.Persist && c.Storage.Driver == StorageMemory {
		warnings = append(warnings, ValidationWarning{
			Category: "Storage",
			Item:     "storage.driver",
			Message:  "memory storage does not survive restarts",
		})
	}
	if slices.Contains(c.Server.AllowedOrigins, "*") {
		warnings = append(warnings, ValidationWarning{
			Category: "Server",
			Item:     "server.allowed_origins",
			Message:  "any origin may call the webhook",
		})
	}

	return warnings
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URL %q has no host", raw)
	}
	return nil
}

func supportedTags() string {
	tags := locale.Default().Tags()
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = string(t)
	}
	return strings.Join(out, ", ")
}
