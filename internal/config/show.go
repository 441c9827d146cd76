package config

import (
	"fmt"
	"io"
	"strings"
)

const maskedPassword = "********"

// RenderEffective writes the resolved configuration as a human-readable
// annotated summary to w. Passwords are masked.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	if r.ConfigPath != "" {
		ew.printf("# Effective configuration (file: %s)\n\n", r.ConfigPath)
	} else {
		ew.printf("# Effective configuration (defaults)\n\n")
	}

	renderServerSection(ew, r)
	renderPollSection(ew, r)
	renderNetworkSection(ew, &r.Network)
	renderUploadSection(ew, r)
	renderLoggingSection(ew, &r.Logging)
	renderStateSection(ew, r)
	renderAccounts(ew, r.Config)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderServerSection(ew *errWriter, r *Resolved) {
	s := &r.Server

	ew.printf("[server]\n")
	ew.printf("  base_url              = %q\n", s.BaseURL)
	ew.printf("  dav_path              = %q\n", r.Mode.String())
	ew.printf("  legacy_dav_root       = %q\n", s.LegacyDAVRoot)
	ew.printf("  new_dav_root          = %q\n", s.NewDAVRoot)
	ew.printf("  graph_root            = %q\n", s.GraphRoot)
	ew.printf("  infinite_depth        = %v\n", s.InfiniteDepth)
	ew.printf("  encode_paths          = %v\n", s.EncodePaths)

	if s.UnicodeNormalization != "" {
		ew.printf("  unicode_normalization = %q\n", s.UnicodeNormalization)
	}

	ew.printf("\n")
}

func renderPollSection(ew *errWriter, r *Resolved) {
	ew.printf("[poll]\n")
	ew.printf("  max_attempts = %d\n", r.Poll.MaxAttempts)
	ew.printf("  delay        = %q\n", r.PollDelay.String())
	ew.printf("\n")
}

func renderNetworkSection(ew *errWriter, n *NetworkConfig) {
	ew.printf("[network]\n")
	ew.printf("  request_timeout = %q\n", n.RequestTimeout)

	if n.UserAgent != "" {
		ew.printf("  user_agent      = %q\n", n.UserAgent)
	}

	if n.MaxRequestsPerSecond > 0 {
		ew.printf("  max_requests_per_second = %g\n", n.MaxRequestsPerSecond)
	}

	ew.printf("\n")
}

func renderUploadSection(ew *errWriter, r *Resolved) {
	ew.printf("[upload]\n")
	ew.printf("  chunk_size = %q  # %s\n", r.Upload.ChunkSize, FormatSize(r.ChunkSize))
	ew.printf("  protocol   = %q\n", r.Protocol.String())
	ew.printf("\n")
}

func renderLoggingSection(ew *errWriter, l *LoggingConfig) {
	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", l.LogLevel)
	ew.printf("  log_format = %q\n", l.LogFormat)
	ew.printf("\n")
}

func renderStateSection(ew *errWriter, r *Resolved) {
	ew.printf("[state]\n")
	ew.printf("  state_file = %q\n", r.StatePath)
	ew.printf("\n")
}

func renderAccounts(ew *errWriter, cfg *Config) {
	for _, actor := range cfg.Actors() {
		creds, err := cfg.Credentials(actor)
		if err != nil {
			continue
		}

		header := "[admin]"
		if actor != adminActor {
			header = "[users." + actor + "]"
		}

		ew.printf("%s\n", header)
		ew.printf("  username = %q\n", creds.Username)
		ew.printf("  password = %q\n", mask(creds.Password))
		ew.printf("\n")
	}
}

func mask(password string) string {
	if strings.TrimSpace(password) == "" {
		return ""
	}

	return maskedPassword
}
