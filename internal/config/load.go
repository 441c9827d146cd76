package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/davharness/internal/chunk"
	"github.com/tonimelisma/davharness/internal/davpath"
)

// Resolved is a Config after the override chain, with its string settings
// parsed into the types the rest of the harness consumes.
type Resolved struct {
	*Config

	ConfigPath     string
	StatePath      string
	Mode           davpath.Mode
	PollDelay      time.Duration
	RequestTimeout time.Duration
	ChunkSize      int64
	Protocol       chunk.Protocol
}

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal, with "did you mean?" suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	// 1. Resolve config path: CLI > env > default
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	// 2. Load config file (returns defaults if no file exists)
	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	// 3. Apply env overrides
	applyEnv(cfg, env)

	// 4. Apply CLI overrides (pointer fields: nil = not specified)
	applyCLI(cfg, cli)

	// 5. Re-validate: env and flags bypass the file-level check.
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	// 6. Parse and check the final result
	resolved, err := newResolved(cfg, cfgPath)
	if err != nil {
		return nil, err
	}

	if err := ValidateResolved(resolved); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return resolved, nil
}

func applyEnv(cfg *Config, env EnvOverrides) {
	if env.BaseURL != "" {
		cfg.Server.BaseURL = env.BaseURL
	}

	if env.DAVPath != "" {
		cfg.Server.DAVPath = env.DAVPath
	}

	if env.StateFile != "" {
		cfg.State.StateFile = env.StateFile
	}
}

func applyCLI(cfg *Config, cli CLIOverrides) {
	if cli.BaseURL != nil {
		cfg.Server.BaseURL = *cli.BaseURL
	}

	if cli.DAVPath != nil {
		cfg.Server.DAVPath = *cli.DAVPath
	}

	if cli.InfiniteDepth != nil {
		cfg.Server.InfiniteDepth = *cli.InfiniteDepth
	}

	if cli.StateFile != nil {
		cfg.State.StateFile = *cli.StateFile
	}
}

// newResolved parses the string-typed settings of an already validated
// Config.
func newResolved(cfg *Config, cfgPath string) (*Resolved, error) {
	mode, err := davpath.ParseMode(cfg.Server.DAVPath)
	if err != nil {
		return nil, fmt.Errorf("dav_path: %w", err)
	}

	delay, err := time.ParseDuration(cfg.Poll.Delay)
	if err != nil {
		return nil, fmt.Errorf("delay: %w", err)
	}

	timeout, err := time.ParseDuration(cfg.Network.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("request_timeout: %w", err)
	}

	size, err := ParseSize(cfg.Upload.ChunkSize)
	if err != nil {
		return nil, fmt.Errorf("chunk_size: %w", err)
	}

	proto, err := chunk.ParseProtocol(cfg.Upload.Protocol)
	if err != nil {
		return nil, fmt.Errorf("protocol: %w", err)
	}

	statePath := cfg.State.StateFile
	if statePath == "" {
		statePath = DefaultStatePath()
	}

	return &Resolved{
		Config:         cfg,
		ConfigPath:     cfgPath,
		StatePath:      statePath,
		Mode:           mode,
		PollDelay:      delay,
		RequestTimeout: timeout,
		ChunkSize:      size,
		Protocol:       proto,
	}, nil
}

// ResolverOptions returns the path resolver options the server settings
// call for.
func (r *Resolved) ResolverOptions() []davpath.Option {
	opts := []davpath.Option{davpath.WithRoots(r.Server.LegacyDAVRoot, r.Server.NewDAVRoot)}

	if form, ok := normalizationForm(r.Server.UnicodeNormalization); ok {
		opts = append(opts, davpath.WithNormalization(form))
	}

	if !r.Server.EncodePaths {
		opts = append(opts, davpath.WithoutSegmentEncoding())
	}

	return opts
}

// normalizationForm maps a unicode_normalization value to its form. The
// second result is false when no normalization is configured.
func normalizationForm(s string) (norm.Form, bool) {
	switch s {
	case "NFC", "nfc":
		return norm.NFC, true
	case "NFD", "nfd":
		return norm.NFD, true
	default:
		return 0, false
	}
}
