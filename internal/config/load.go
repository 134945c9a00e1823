package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, rejects unknown keys, and
// validates the result. Unknown keys are fatal because a silently ignored
// typo in a config file leads to hard-to-debug behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}

		return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// all defaults. Supports the zero-config first run where everything
// essential comes from the environment.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// CLIOverrides holds values from command-line flags. Flags always win
// over both the config file and the environment.
type CLIOverrides struct {
	ConfigPath string
	Identity   string
}

// Resolved is the effective configuration after the override chain:
// defaults -> config file -> environment -> CLI flags. It includes the
// env-only secrets alongside the file-backed settings.
type Resolved struct {
	Config

	Password     string
	ClientSecret string
}

// Resolve applies the full override chain and returns the effective
// configuration. Credentials are not required here, since commands that
// only reuse a saved token work without them; completeness checks belong
// to the call sites that actually authenticate.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	resolved := &Resolved{
		Config:       *cfg,
		Password:     env.Password,
		ClientSecret: env.ClientSecret,
	}

	if env.BaseURL != "" {
		resolved.BaseURL = env.BaseURL
	}

	if env.TokenURL != "" {
		resolved.TokenURL = env.TokenURL
	}

	if env.Identity != "" {
		resolved.Identity = env.Identity
	}

	if env.ClientID != "" {
		resolved.ClientID = env.ClientID
	}

	if cli.Identity != "" {
		resolved.Identity = cli.Identity
	}

	if resolved.TokenPath == "" {
		resolved.TokenPath = DefaultTokenPath()
	}

	if err := Validate(&resolved.Config); err != nil {
		return nil, err
	}

	return resolved, nil
}

// HasCredentials reports whether enough is present for a full handshake.
func (r *Resolved) HasCredentials() bool {
	return r.Identity != "" && r.Password != "" && r.ClientID != "" && r.ClientSecret != ""
}
