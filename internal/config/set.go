package config

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

type setter func(c *Config, v string) error

var setters = map[string]setter{
	"log_level":   func(c *Config, v string) error { c.LogLevel = v; return nil },
	"log_file":    func(c *Config, v string) error { c.LogFile = v; return nil },
	"log_console": boolField(func(c *Config) *bool { return &c.LogConsole }),
	"data_path":   func(c *Config, v string) error { c.DataPath = v; return nil },

	"sync.role":             func(c *Config, v string) error { c.Sync.Role = v; return nil },
	"sync.remote_url":       func(c *Config, v string) error { c.Sync.RemoteURL = v; return nil },
	"sync.interval_minutes": intField(func(c *Config) *int { return &c.Sync.IntervalMinutes }),
	"sync.enabled":          boolField(func(c *Config) *bool { return &c.Sync.Enabled }),

	"queue.name":         func(c *Config, v string) error { c.Queue.Name = v; return nil },
	"queue.max_retries":  intField(func(c *Config) *int { return &c.Queue.MaxRetries }),
	"queue.debounce":     durationField(func(c *Config) *time.Duration { return &c.Queue.Debounce }),
	"queue.backoff_base": durationField(func(c *Config) *time.Duration { return &c.Queue.BackoffBase }),
	"queue.backoff_max":  durationField(func(c *Config) *time.Duration { return &c.Queue.BackoffMax }),

	"server.addr":         func(c *Config, v string) error { c.Server.Addr = v; return nil },
	"server.database_url": func(c *Config, v string) error { c.Server.DatabaseURL = v; return nil },
}

// Keys lists the settable keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set assigns a single dotted key, then normalizes and validates.
// The config is left untouched on error.
func (c *Config) Set(key, value string) error {
	set, ok := setters[key]
	if !ok {
		return fmt.Errorf("unknown config key %q", key)
	}
	next := *c
	if err := set(&next, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if err := next.Normalize(); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

func boolField(field func(*Config) *bool) setter {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func intField(field func(*Config) *int) setter {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func durationField(field func(*Config) *time.Duration) setter {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}
