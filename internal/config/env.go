package config

import "os"

// Environment variable names. Secrets are env-only so they never land in
// a config file that might get committed or synced.
const (
	EnvConfig       = "APEXDATA_CONFIG"
	EnvIdentity     = "APEXDATA_IDENTITY"
	EnvPassword     = "APEXDATA_PASSWORD"
	EnvClientID     = "APEXDATA_CLIENT_ID"
	EnvClientSecret = "APEXDATA_CLIENT_SECRET"
	EnvBaseURL      = "APEXDATA_BASE_URL"
	EnvTokenURL     = "APEXDATA_TOKEN_URL"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath   string
	Identity     string
	Password     string
	ClientID     string
	ClientSecret string
	BaseURL      string
	TokenURL     string
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. Callers load a local .env file first (godotenv) so development
// secrets work without polluting the shell.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		Identity:     os.Getenv(EnvIdentity),
		Password:     os.Getenv(EnvPassword),
		ClientID:     os.Getenv(EnvClientID),
		ClientSecret: os.Getenv(EnvClientSecret),
		BaseURL:      os.Getenv(EnvBaseURL),
		TokenURL:     os.Getenv(EnvTokenURL),
	}
}
