package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/existflow/irontrack/internal/apperr"
	"github.com/existflow/irontrack/internal/logger"
)

// NormalizeURL trims whitespace and trailing slashes and adds http://
// when no scheme is given. An empty input stays empty.
func NormalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	u = strings.TrimRight(u, "/")
	if !strings.Contains(u, "://") {
		u = "http://" + u
	}
	return u
}

// Normalize rewrites values into their canonical form.
func (c *Config) Normalize() error {
	c.Sync.Role = strings.ToLower(strings.TrimSpace(c.Sync.Role))
	c.Sync.RemoteURL = NormalizeURL(c.Sync.RemoteURL)
	c.LogLevel = strings.ToUpper(strings.TrimSpace(c.LogLevel))
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.LogLevel, validation.In("DEBUG", "INFO", "WARN", "ERROR")),
		validation.Field(&c.DataPath, validation.Required),
	); err != nil {
		return invalid(err)
	}
	if err := c.Sync.Validate(); err != nil {
		return err
	}
	if err := c.Queue.Validate(); err != nil {
		return err
	}
	return c.Server.Validate()
}

// Validate validates the sync configuration.
func (s *SyncConfig) Validate() error {
	err := validation.ValidateStruct(s,
		validation.Field(&s.Role, validation.Required, validation.In(RoleClient, RoleServer)),
		validation.Field(&s.IntervalMinutes, validation.Min(0)),
		validation.Field(&s.RemoteURL,
			validation.When(s.Enabled && s.Role == RoleClient, validation.Required),
			validation.By(checkURL),
		),
	)
	if err != nil {
		return invalid(err)
	}
	return nil
}

// Validate validates the queue configuration.
func (q *QueueConfig) Validate() error {
	err := validation.ValidateStruct(q,
		validation.Field(&q.Name, validation.Required),
		validation.Field(&q.MaxRetries, validation.Required, validation.Min(1)),
		validation.Field(&q.Debounce, validation.Min(0)),
		validation.Field(&q.BackoffBase, validation.Required),
		validation.Field(&q.BackoffMax, validation.Min(q.BackoffBase)),
	)
	if err != nil {
		return invalid(err)
	}
	return nil
}

// Validate validates the server configuration.
func (s *ServerConfig) Validate() error {
	err := validation.ValidateStruct(s,
		validation.Field(&s.Addr, validation.Required),
		validation.Field(&s.DatabaseURL, validation.Required),
	)
	if err != nil {
		return invalid(err)
	}
	return nil
}

func checkURL(value interface{}) error {
	raw, _ := value.(string)
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return errors.New("must be a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}

func invalid(err error) error {
	logger.Warn("Configuration rejected", logger.F("error", err))
	return apperr.Wrap(apperr.CodeConfigInvalid, "invalid configuration", err)
}
