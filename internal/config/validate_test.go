package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Defaults(t *testing.T) {
	t.Parallel()

	require.NoError(t, Validate(DefaultConfig()))
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad scheme", func(c *Config) { c.Server.BaseURL = "ftp://x" }, "scheme must be http or https"},
		{"missing host", func(c *Config) { c.Server.BaseURL = "http://" }, "missing host"},
		{"bad dav path", func(c *Config) { c.Server.DAVPath = "sideways" }, "dav_path"},
		{"bad normalization", func(c *Config) { c.Server.UnicodeNormalization = "NFKC" }, "unicode_normalization"},
		{"zero attempts", func(c *Config) { c.Poll.MaxAttempts = 0 }, "max_attempts"},
		{"bad delay", func(c *Config) { c.Poll.Delay = "soon" }, "delay: invalid duration"},
		{"negative delay", func(c *Config) { c.Poll.Delay = "-1s" }, "delay: must not be negative"},
		{"short timeout", func(c *Config) { c.Network.RequestTimeout = "10ms" }, "request_timeout"},
		{"negative rate", func(c *Config) { c.Network.MaxRequestsPerSecond = -1 }, "max_requests_per_second"},
		{"bad chunk size", func(c *Config) { c.Upload.ChunkSize = "lots" }, "chunk_size"},
		{"zero chunk size", func(c *Config) { c.Upload.ChunkSize = "0" }, "chunk_size: must be positive"},
		{"bad protocol", func(c *Config) { c.Upload.Protocol = "carrier-pigeon" }, "protocol"},
		{"bad log level", func(c *Config) { c.Logging.LogLevel = "trace" }, "log_level"},
		{"bad log format", func(c *Config) { c.Logging.LogFormat = "xml" }, "log_format"},
		{"reserved actor", func(c *Config) { c.Users["admin"] = Account{} }, "reserved actor name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateResolved(t *testing.T) {
	t.Parallel()

	r := &Resolved{Config: DefaultConfig(), StatePath: "/tmp/state.db"}

	err := ValidateResolved(r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvBaseURL)

	r.Server.BaseURL = "https://cloud.example.com"
	require.NoError(t, ValidateResolved(r))

	r.StatePath = ""
	require.Error(t, ValidateResolved(r))
}
