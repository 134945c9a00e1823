package config

import (
	"os"
	"path/filepath"
)

// appDirName is the directory under the user config root.
const appDirName = "apexdata"

// DefaultConfigPath returns the default config file location,
// e.g. ~/.config/apexdata/config.toml on Linux.
func DefaultConfigPath() string {
	return filepath.Join(configRoot(), appDirName, "config.toml")
}

// DefaultTokenPath returns the default token file location next to the
// config file.
func DefaultTokenPath() string {
	return filepath.Join(configRoot(), appDirName, "token.json")
}

// configRoot resolves the per-user config directory, falling back to the
// working directory when the environment gives us nothing (minimal
// containers without HOME).
func configRoot() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}

	return dir
}
