package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/davharness/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// defaultActor is the actor requests are sent as when --as is not given.
const defaultActor = "admin"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath    string
	flagBaseURL       string
	flagDAVPath       string
	flagInfiniteDepth bool
	flagStateFile     string
	flagActor         string
	flagExpect        int
	flagJSON          bool
	flagVerbose       bool
	flagQuiet         bool
)

// errStatusMismatch is returned when --expect names a status code the
// response did not have.
var errStatusMismatch = errors.New("unexpected status")

// CLIFlags are the output-affecting global flags.
type CLIFlags struct {
	Actor   string
	Expect  int
	JSON    bool
	Verbose bool
	Quiet   bool
}

// CLIContext is what PersistentPreRunE hands every subcommand through the
// command context.
type CLIContext struct {
	Cfg    *config.Resolved
	Logger *slog.Logger
	Flags  CLIFlags
	Out    io.Writer

	// ModeOverride and DepthOverride record that the addressing mode or
	// the infinite-depth toggle came from a flag or the environment.
	ModeOverride  bool
	DepthOverride bool
}

type cliContextKey struct{}

func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cc)
}

// mustCLIContext returns the CLIContext stored by the root pre-run. Only
// cobra built-ins run without it, so a missing context is a programming
// error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("davharness: command ran without CLI context")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "davharness",
		Short: "WebDAV acceptance test harness",
		Long: `Drive a WebDAV server through the same resource in every addressing
mode, chunked uploads in both protocols, and eventually consistent reads,
reporting raw responses so scenarios can assert on them.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipsConfig(cmd) {
				return nil
			}

			return loadConfig(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flagConfigPath, "config", "", "config file path")
	pf.StringVar(&flagBaseURL, "base-url", "", "server base URL (overrides config)")
	pf.StringVar(&flagDAVPath, "dav-path", "", "addressing mode: old, new, spaces or public")
	pf.BoolVar(&flagInfiniteDepth, "infinite-depth", false, "allow PROPFIND with Depth: infinity")
	pf.StringVar(&flagStateFile, "state", "", "scenario state database path")
	pf.StringVar(&flagActor, "as", defaultActor, "actor whose credentials requests are sent with")
	pf.IntVar(&flagExpect, "expect", 0, "fail unless the response has this status code")
	pf.BoolVar(&flagJSON, "json", false, "output in JSON format")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newPropfindCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newMkcolCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newMoveCmd())
	cmd.AddCommand(newCopyCmd())
	cmd.AddCommand(newPutChunkedCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newETagCmd())
	cmd.AddCommand(newFileIDCmd())
	cmd.AddCommand(newSpaceCmd())
	cmd.AddCommand(newShareCmd())
	cmd.AddCommand(newScenarioCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// skipConfigCommands are cobra built-ins that never touch the server.
var skipConfigCommands = map[string]bool{
	"help":                          true,
	"completion":                    true,
	cobra.ShellCompRequestCmd:       true,
	cobra.ShellCompNoDescRequestCmd: true,
}

// skipsConfig reports whether cmd or one of its parents is a built-in that
// runs without configuration.
func skipsConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if skipConfigCommands[c.Name()] {
			return true
		}
	}

	return false
}

// loadConfig resolves the effective configuration from the four-layer
// override chain and stores it, with a logger, in the command context.
func loadConfig(cmd *cobra.Command) error {
	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
	}

	// Only explicitly set flags take part in the override chain.
	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cli.BaseURL = &flagBaseURL
	}

	if flags.Changed("dav-path") {
		cli.DAVPath = &flagDAVPath
	}

	if flags.Changed("infinite-depth") {
		cli.InfiniteDepth = &flagInfiniteDepth
	}

	if flags.Changed("state") {
		cli.StateFile = &flagStateFile
	}

	env := config.ReadEnvOverrides()

	resolved, err := config.Resolve(env, cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cc := &CLIContext{
		Cfg:    resolved,
		Logger: buildLogger(resolved, os.Stderr),
		Out:    cmd.OutOrStdout(),
		Flags: CLIFlags{
			Actor:   flagActor,
			Expect:  flagExpect,
			JSON:    flagJSON,
			Verbose: flagVerbose,
			Quiet:   flagQuiet,
		},

		ModeOverride:  cli.DAVPath != nil || env.DAVPath != "",
		DepthOverride: cli.InfiniteDepth != nil,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(withCLIContext(ctx, cc))

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it. log_format "auto" picks text on a terminal and JSON
// otherwise.
func buildLogger(cfg *config.Resolved, w *os.File) *slog.Logger {
	level := slog.LevelInfo

	if cfg != nil {
		switch cfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	format := "auto"
	if cfg != nil {
		format = cfg.Logging.LogFormat
	}

	if useJSONLogs(format, w) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

func useJSONLogs(format string, w *os.File) bool {
	switch format {
	case "json":
		return true
	case "text":
		return false
	default:
		return !isTerminal(w)
	}
}

func isTerminal(f *os.File) bool {
	if f == nil {
		return false
	}

	fd := f.Fd()

	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
