// Package config loads apexdata configuration from a TOML file with
// environment variable and CLI flag overrides layered on top. Secrets
// (account password, client secret) are never read from the config file;
// they come from the environment only.
package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Defaults for a zero-config first run. Only the identity and client id
// must come from the user.
const (
	DefaultBaseURL  = "https://api.apexdata.example.com"
	DefaultTokenURL = "https://auth.apexdata.example.com/oauth/token"
	DefaultLogLevel = "info"
)

// Config mirrors the TOML config file.
type Config struct {
	BaseURL   string `toml:"base_url"`
	TokenURL  string `toml:"token_url"`
	Identity  string `toml:"identity"`
	ClientID  string `toml:"client_id"`
	TokenPath string `toml:"token_path"`
	LogLevel  string `toml:"log_level"`

	Download DownloadConfig `toml:"download"`
}

// DownloadConfig controls the bulk chunk download path.
type DownloadConfig struct {
	// AllChunks fetches every chunk file of a bulk dataset instead of
	// only the first. Costs bandwidth proportional to the dataset size.
	AllChunks bool `toml:"all_chunks"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:  DefaultBaseURL,
		TokenURL: DefaultTokenURL,
		LogLevel: DefaultLogLevel,
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks a loaded Config for values that would fail at runtime.
func Validate(cfg *Config) error {
	for _, u := range []struct {
		field, value string
	}{
		{"base_url", cfg.BaseURL},
		{"token_url", cfg.TokenURL},
	} {
		parsed, err := url.Parse(u.value)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("config: %s %q is not a valid URL", u.field, u.value)
		}

		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("config: %s %q must use http or https", u.field, u.value)
		}
	}

	if strings.HasSuffix(cfg.BaseURL, "/") {
		return fmt.Errorf("config: base_url must not have a trailing slash")
	}

	if cfg.LogLevel != "" && !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("config: log_level %q must be one of debug, info, warn, error", cfg.LogLevel)
	}

	return nil
}
