package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/tonimelisma/davharness/internal/chunk"
	"github.com/tonimelisma/davharness/internal/davpath"
)

// Validation range constants.
const (
	minMaxAttempts    = 1
	maxMaxAttempts    = 1000
	minRequestTimeout = 1 * time.Second
)

var (
	validLogLevels     = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats    = map[string]bool{"auto": true, "text": true, "json": true}
	validNormalization = map[string]bool{"": true, "none": true, "NFC": true, "nfc": true, "NFD": true, "nfd": true}
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validatePoll(&cfg.Poll)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateUpload(&cfg.Upload)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateUsers(cfg)...)

	return errors.Join(errs...)
}

// ValidateResolved checks constraints that only make sense once every
// override layer has been applied. The base URL may be absent from the
// file as long as the environment or a flag supplies it.
func ValidateResolved(r *Resolved) error {
	var errs []error

	if r.Server.BaseURL == "" {
		errs = append(errs, fmt.Errorf("base_url: must be set (config file, %s or --base-url)", EnvBaseURL))
	} else if err := validateBaseURL(r.Server.BaseURL); err != nil {
		errs = append(errs, err)
	}

	if r.StatePath == "" {
		errs = append(errs, errors.New("state_file: no default location available, set it explicitly"))
	}

	return errors.Join(errs...)
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("base_url: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url: scheme must be http or https, got %q", raw)
	}

	if u.Host == "" {
		return fmt.Errorf("base_url: missing host in %q", raw)
	}

	return nil
}

func validateServer(s *ServerConfig) []error {
	var errs []error

	if s.BaseURL != "" {
		if err := validateBaseURL(s.BaseURL); err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := davpath.ParseMode(s.DAVPath); err != nil {
		errs = append(errs, fmt.Errorf("dav_path: %w", err))
	}

	if !validNormalization[s.UnicodeNormalization] {
		errs = append(errs, fmt.Errorf(
			"unicode_normalization: must be one of none, NFC, NFD; got %q", s.UnicodeNormalization))
	}

	return errs
}

func validatePoll(p *PollConfig) []error {
	var errs []error

	if p.MaxAttempts < minMaxAttempts || p.MaxAttempts > maxMaxAttempts {
		errs = append(errs, fmt.Errorf("max_attempts: must be %d-%d, got %d",
			minMaxAttempts, maxMaxAttempts, p.MaxAttempts))
	}

	d, err := time.ParseDuration(p.Delay)
	if err != nil {
		errs = append(errs, fmt.Errorf("delay: invalid duration %q: %w", p.Delay, err))
	} else if d < 0 {
		errs = append(errs, fmt.Errorf("delay: must not be negative, got %s", p.Delay))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	d, err := time.ParseDuration(n.RequestTimeout)
	if err != nil {
		errs = append(errs, fmt.Errorf("request_timeout: invalid duration %q: %w", n.RequestTimeout, err))
	} else if d < minRequestTimeout {
		errs = append(errs, fmt.Errorf("request_timeout: must be >= %s, got %s", minRequestTimeout, n.RequestTimeout))
	}

	if n.MaxRequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("max_requests_per_second: must not be negative, got %g",
			n.MaxRequestsPerSecond))
	}

	return errs
}

func validateUpload(u *UploadConfig) []error {
	var errs []error

	size, err := ParseSize(u.ChunkSize)
	if err != nil {
		errs = append(errs, fmt.Errorf("chunk_size: %w", err))
	} else if size <= 0 {
		errs = append(errs, fmt.Errorf("chunk_size: must be positive, got %q", u.ChunkSize))
	}

	if _, err := chunk.ParseProtocol(u.Protocol); err != nil {
		errs = append(errs, fmt.Errorf("protocol: %w", err))
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

func validateUsers(cfg *Config) []error {
	var errs []error

	if _, ok := cfg.Users[adminActor]; ok {
		errs = append(errs, fmt.Errorf("users.%s: reserved actor name, use the [admin] section", adminActor))
	}

	for name := range cfg.Users {
		if name == "" {
			errs = append(errs, errors.New("users: actor name must not be empty"))
		}
	}

	return errs
}
