package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig    = "DAVHARNESS_CONFIG"
	EnvBaseURL   = "DAVHARNESS_BASE_URL"
	EnvDAVPath   = "DAVHARNESS_DAV_PATH"
	EnvStateFile = "DAVHARNESS_STATE_FILE"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // DAVHARNESS_CONFIG: override config file path
	BaseURL    string // DAVHARNESS_BASE_URL: server under test
	DAVPath    string // DAVHARNESS_DAV_PATH: old, new or spaces
	StateFile  string // DAVHARNESS_STATE_FILE: scenario state database
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; callers apply the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		BaseURL:    os.Getenv(EnvBaseURL),
		DAVPath:    os.Getenv(EnvDAVPath),
		StateFile:  os.Getenv(EnvStateFile),
	}
}
