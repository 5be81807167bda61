// Package config loads the pushbridge host configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/slush-dev/pushbridge"
	"github.com/slush-dev/pushbridge/desktop"
	"github.com/slush-dev/pushbridge/fcm"
	"gopkg.in/yaml.v3"
)

// FileName is the config file name inside the session directory.
const FileName = "pushbridge.yaml"

// Config is the host configuration.
type Config struct {
	SenderID     string                        `yaml:"sender_id"`
	AppID        string                        `yaml:"app_id"`
	Sandbox      bool                          `yaml:"sandbox"`
	Permission   string                        `yaml:"permission"`   // grant, deny or prompt (default)
	Capabilities *pushbridge.PermissionOptions `yaml:"capabilities"` // nil = alert, sound and badge
	DeviceToken  string                        `yaml:"device_token"` // hex; empty = random per launch
	CheckinURL   string                        `yaml:"checkin_url"`
	RegisterURL  string                        `yaml:"register_url"`
}

// Path returns the config file path for a session directory.
func Path(sessionDir string) string {
	return filepath.Join(sessionDir, FileName)
}

// Load reads the config file from sessionDir and applies environment
// overrides. A missing file yields defaults.
func Load(sessionDir string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(Path(sessionDir))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", Path(sessionDir), err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config file into sessionDir.
func (c *Config) Save(sessionDir string) error {
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("serializing config: %w", err)
	}
	if err := os.WriteFile(Path(sessionDir), data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// envOverrides are environment variables that win over the config file.
type envOverrides struct {
	SenderID   string `env:"PUSHBRIDGE_SENDER_ID"`
	AppID      string `env:"PUSHBRIDGE_APP_ID"`
	Permission string `env:"PUSHBRIDGE_PERMISSION"`
}

func (c *Config) applyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.SenderID != "" {
		c.SenderID = o.SenderID
	}
	if o.AppID != "" {
		c.AppID = o.AppID
	}
	if o.Permission != "" {
		c.Permission = o.Permission
	}
	return nil
}

// Validate checks fields that would otherwise fail late. Missing sender or
// app IDs are left to the messaging backend, which reports them at launch.
func (c *Config) Validate() error {
	if _, err := desktop.ParsePolicy(c.Permission); err != nil {
		return err
	}
	if c.DeviceToken != "" {
		if _, err := pushbridge.ParseDeviceToken(c.DeviceToken); err != nil {
			return fmt.Errorf("device_token: %w", err)
		}
	}
	return nil
}

// Policy returns the permission policy.
func (c *Config) Policy() desktop.Policy {
	p, err := desktop.ParsePolicy(c.Permission)
	if err != nil {
		return desktop.PolicyPrompt
	}
	return p
}

// PermissionOptions returns the capabilities to request.
func (c *Config) PermissionOptions() pushbridge.PermissionOptions {
	if c.Capabilities == nil {
		return pushbridge.DefaultPermissionOptions()
	}
	return *c.Capabilities
}

// FCM returns the messaging backend configuration.
func (c *Config) FCM() fcm.Config {
	return fcm.Config{
		SenderID:    c.SenderID,
		AppID:       c.AppID,
		Sandbox:     c.Sandbox,
		CheckinURL:  c.CheckinURL,
		RegisterURL: c.RegisterURL,
	}
}

// HostOptions returns desktop host options derived from the config.
func (c *Config) HostOptions() ([]desktop.Option, error) {
	var opts []desktop.Option
	if c.DeviceToken != "" {
		token, err := pushbridge.ParseDeviceToken(c.DeviceToken)
		if err != nil {
			return nil, fmt.Errorf("device_token: %w", err)
		}
		opts = append(opts, desktop.WithDeviceToken(token))
	}
	return opts, nil
}
