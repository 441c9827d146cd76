// Package testutil provides shared environment helpers for the live-server
// E2E suite. It depends only on stdlib so that E2E tests (which cannot
// import internal/) can use it.
package testutil

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Environment variables read by the E2E suite.
const (
	EnvAllowedServers = "DAVHARNESS_ALLOWED_TEST_SERVERS"
	EnvBaseURL        = "DAVHARNESS_E2E_BASE_URL"
	EnvAdminUser      = "DAVHARNESS_E2E_ADMIN_USER"
	EnvAdminPassword  = "DAVHARNESS_E2E_ADMIN_PASSWORD"
	EnvUser           = "DAVHARNESS_E2E_USER"
	EnvUserPassword   = "DAVHARNESS_E2E_USER_PASSWORD"
)

// LoadDotEnv reads KEY=VALUE pairs from a .env file at the given path.
// Missing file is not an error (CI sets env vars directly).
// Existing env vars take precedence over .env values.
func LoadDotEnv(envPath string) {
	f, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// ValidateAllowlist crashes the process unless the server named by
// DAVHARNESS_E2E_BASE_URL appears in DAVHARNESS_ALLOWED_TEST_SERVERS.
// The suite creates and deletes spaces, so it must never reach a server
// nobody opted in.
func ValidateAllowlist() string {
	allowlist := os.Getenv(EnvAllowedServers)
	if allowlist == "" {
		fmt.Fprintf(os.Stderr, "FATAL: %s not set\n", EnvAllowedServers)
		fmt.Fprintln(os.Stderr, "Set it in .env or as an environment variable.")
		fmt.Fprintf(os.Stderr, "Example: %s=https://cloud.test.example\n", EnvAllowedServers)
		os.Exit(1)
	}

	server := strings.TrimRight(os.Getenv(EnvBaseURL), "/")
	if server == "" {
		fmt.Fprintf(os.Stderr, "FATAL: %s not set\n", EnvBaseURL)
		os.Exit(1)
	}

	for _, a := range strings.Split(allowlist, ",") {
		if strings.TrimRight(strings.TrimSpace(a), "/") == server {
			return server
		}
	}

	fmt.Fprintf(os.Stderr, "FATAL: %s=%q is not in %s=%q\n",
		EnvBaseURL, server, EnvAllowedServers, allowlist)
	os.Exit(1)

	return ""
}

// RequireEnv returns the value of name or crashes when it is empty.
func RequireEnv(name string) string {
	v := os.Getenv(name)
	if v == "" {
		fmt.Fprintf(os.Stderr, "FATAL: %s not set\n", name)
		os.Exit(1)
	}

	return v
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}
