package config

import (
	"github.com/tonimelisma/davharness/internal/davpath"
	"github.com/tonimelisma/davharness/internal/graph"
)

// Default values for configuration options. These represent the "layer 0"
// of the four-layer override chain.
const (
	defaultDAVPath        = "new"
	defaultMaxAttempts    = 10
	defaultPollDelay      = "1s"
	defaultRequestTimeout = "60s"
	defaultChunkSize      = "1MiB"
	defaultProtocol       = "legacy"
	defaultLogLevel       = "info"
	defaultLogFormat      = "auto"
	defaultAdminUser      = "admin"
)

// DefaultConfig returns a Config populated with all default values.
// It is the starting point for TOML decoding, so unset fields keep their
// defaults.
func DefaultConfig() *Config {
	return &Config{
		Server:  defaultServerConfig(),
		Poll:    defaultPollConfig(),
		Network: defaultNetworkConfig(),
		Upload:  defaultUploadConfig(),
		Logging: defaultLoggingConfig(),
		Admin:   Account{Username: defaultAdminUser},
		Users:   make(map[string]Account),
	}
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		LegacyDAVRoot: davpath.DefaultLegacyRoot,
		NewDAVRoot:    davpath.DefaultNewRoot,
		GraphRoot:     graph.DefaultRoot,
		DAVPath:       defaultDAVPath,
		EncodePaths:   true,
	}
}

func defaultPollConfig() PollConfig {
	return PollConfig{
		MaxAttempts: defaultMaxAttempts,
		Delay:       defaultPollDelay,
	}
}

func defaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		RequestTimeout: defaultRequestTimeout,
	}
}

func defaultUploadConfig() UploadConfig {
	return UploadConfig{
		ChunkSize: defaultChunkSize,
		Protocol:  defaultProtocol,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
	}
}
