// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for davharness. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags) and
// maps configured actors to the credentials requests are sent with.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Server  ServerConfig       `toml:"server"`
	Poll    PollConfig         `toml:"poll"`
	Network NetworkConfig      `toml:"network"`
	Upload  UploadConfig       `toml:"upload"`
	Logging LoggingConfig      `toml:"logging"`
	State   StateConfig        `toml:"state"`
	Admin   Account            `toml:"admin"`
	Users   map[string]Account `toml:"users"`
}

// ServerConfig locates the server under test and selects how resources
// are addressed on it.
type ServerConfig struct {
	BaseURL              string `toml:"base_url"`
	LegacyDAVRoot        string `toml:"legacy_dav_root"`
	NewDAVRoot           string `toml:"new_dav_root"`
	GraphRoot            string `toml:"graph_root"`
	DAVPath              string `toml:"dav_path"`
	InfiniteDepth        bool   `toml:"infinite_depth"`
	UnicodeNormalization string `toml:"unicode_normalization"`
	EncodePaths          bool   `toml:"encode_paths"`
}

// PollConfig bounds the retries used to wait out eventual consistency.
type PollConfig struct {
	MaxAttempts int    `toml:"max_attempts"`
	Delay       string `toml:"delay"`
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	RequestTimeout       string  `toml:"request_timeout"`
	UserAgent            string  `toml:"user_agent"`
	MaxRequestsPerSecond float64 `toml:"max_requests_per_second"`
}

// UploadConfig holds chunked upload defaults.
type UploadConfig struct {
	ChunkSize string `toml:"chunk_size"`
	Protocol  string `toml:"protocol"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// StateConfig locates the persisted scenario state of the CLI.
type StateConfig struct {
	StateFile string `toml:"state_file"`
}

// Account is one basic-auth identity. An empty username under [users.x]
// means the username is x.
type Account struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath    string  // --config flag (empty = use default)
	BaseURL       *string // --base-url flag
	DAVPath       *string // --dav-path flag
	InfiniteDepth *bool   // --infinite-depth flag
	StateFile     *string // --state flag
}
