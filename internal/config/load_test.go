package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/davharness/internal/chunk"
	"github.com/tonimelisma/davharness/internal/davpath"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)

	return path
}

func TestLoad_ValidFullConfig(t *testing.T) {
	t.Parallel()

	path := writeTestConfig(t, `
[server]
base_url = "https://cloud.example.com"
dav_path = "spaces"
legacy_dav_root = "/remote.php/webdav/"
infinite_depth = true
unicode_normalization = "NFC"

[poll]
max_attempts = 5
delay = "250ms"

[network]
request_timeout = "10s"
user_agent = "harness/1"
max_requests_per_second = 20

[upload]
chunk_size = "5MiB"
protocol = "session"

[logging]
log_level = "debug"
log_format = "json"

[state]
state_file = "/tmp/davharness.db"

[admin]
username = "root"
password = "secret"

[users.alice]
password = "alice-pw"

[users.bob]
username = "bob@example.com"
password = "bob-pw"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://cloud.example.com", cfg.Server.BaseURL)
	assert.Equal(t, "spaces", cfg.Server.DAVPath)
	assert.True(t, cfg.Server.InfiniteDepth)
	assert.True(t, cfg.Server.EncodePaths, "unset keys keep their defaults")
	assert.Equal(t, davpath.DefaultNewRoot, cfg.Server.NewDAVRoot)
	assert.Equal(t, 5, cfg.Poll.MaxAttempts)
	assert.Equal(t, "250ms", cfg.Poll.Delay)
	assert.InDelta(t, 20.0, cfg.Network.MaxRequestsPerSecond, 0)
	assert.Equal(t, "5MiB", cfg.Upload.ChunkSize)
	assert.Equal(t, "json", cfg.Logging.LogFormat)
	assert.Equal(t, "/tmp/davharness.db", cfg.State.StateFile)
	assert.Equal(t, "root", cfg.Admin.Username)
	require.Len(t, cfg.Users, 2)
	assert.Equal(t, "bob@example.com", cfg.Users["bob"].Username)
}

func TestLoad_Empty_ReturnsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeTestConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_InvalidTOML(t *testing.T) {
	t.Parallel()

	_, err := Load(writeTestConfig(t, "[server\nbase_url = "))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_UnknownKeyIsFatal(t *testing.T) {
	t.Parallel()

	_, err := Load(writeTestConfig(t, "[server]\nbase_ur = \"http://x\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `did you mean "base_url"`)
}

func TestLoad_ValidationErrorsAccumulate(t *testing.T) {
	t.Parallel()

	_, err := Load(writeTestConfig(t, `
[poll]
max_attempts = 0
[logging]
log_level = "loud"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_attempts")
	assert.Contains(t, err.Error(), "log_level")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	t.Parallel()

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestResolve_OverrideChain(t *testing.T) {
	t.Parallel()

	path := writeTestConfig(t, `
[server]
base_url = "http://file.example"
dav_path = "old"
[state]
state_file = "/from/file.db"
`)

	t.Run("file only", func(t *testing.T) {
		t.Parallel()

		r, err := Resolve(EnvOverrides{}, CLIOverrides{ConfigPath: path})
		require.NoError(t, err)
		assert.Equal(t, "http://file.example", r.Server.BaseURL)
		assert.Equal(t, davpath.ModeLegacyUser, r.Mode)
		assert.Equal(t, "/from/file.db", r.StatePath)
		assert.Equal(t, path, r.ConfigPath)
	})

	t.Run("env beats file", func(t *testing.T) {
		t.Parallel()

		r, err := Resolve(EnvOverrides{
			ConfigPath: path,
			BaseURL:    "http://env.example",
			DAVPath:    "new",
		}, CLIOverrides{})
		require.NoError(t, err)
		assert.Equal(t, "http://env.example", r.Server.BaseURL)
		assert.Equal(t, davpath.ModeNewUser, r.Mode)
	})

	t.Run("cli beats env", func(t *testing.T) {
		t.Parallel()

		base := "http://cli.example"
		mode := "spaces"
		depth := true
		state := "/from/cli.db"

		r, err := Resolve(
			EnvOverrides{ConfigPath: path, BaseURL: "http://env.example", DAVPath: "new", StateFile: "/env.db"},
			CLIOverrides{BaseURL: &base, DAVPath: &mode, InfiniteDepth: &depth, StateFile: &state},
		)
		require.NoError(t, err)
		assert.Equal(t, base, r.Server.BaseURL)
		assert.Equal(t, davpath.ModeSpaceID, r.Mode)
		assert.True(t, r.Server.InfiniteDepth)
		assert.Equal(t, state, r.StatePath)
	})
}

func TestResolve_ParsesTypedValues(t *testing.T) {
	t.Parallel()

	path := writeTestConfig(t, `
[server]
base_url = "http://localhost:8080"
[poll]
delay = "1500ms"
[network]
request_timeout = "2m"
[upload]
chunk_size = "2MB"
protocol = "v2"
`)

	r, err := Resolve(EnvOverrides{}, CLIOverrides{ConfigPath: path})
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, r.PollDelay)
	assert.Equal(t, 2*time.Minute, r.RequestTimeout)
	assert.Equal(t, int64(2_000_000), r.ChunkSize)
	assert.Equal(t, chunk.ProtocolTusLike, r.Protocol)
}

func TestResolve_MissingBaseURL(t *testing.T) {
	t.Parallel()

	_, err := Resolve(EnvOverrides{}, CLIOverrides{ConfigPath: writeTestConfig(t, "")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
}

func TestResolve_InvalidOverrideIsRejected(t *testing.T) {
	t.Parallel()

	path := writeTestConfig(t, "[server]\nbase_url = \"http://x\"\n")

	_, err := Resolve(EnvOverrides{ConfigPath: path, DAVPath: "sideways"}, CLIOverrides{})
	require.Error(t, err)
	assert.ErrorIs(t, err, davpath.ErrInvalidMode)
}

func TestResolved_ResolverOptions(t *testing.T) {
	t.Parallel()

	path := writeTestConfig(t, `
[server]
base_url = "http://x"
legacy_dav_root = "webdav"
new_dav_root = "dav"
unicode_normalization = "NFD"
encode_paths = false
`)

	r, err := Resolve(EnvOverrides{}, CLIOverrides{ConfigPath: path})
	require.NoError(t, err)

	resolver := davpath.NewResolver(r.ResolverOptions()...)

	got, err := resolver.Resolve(davpath.Descriptor{Principal: "alice", Path: "a b.txt"},
		davpath.ModeLegacyUser, davpath.KindFiles)
	require.NoError(t, err)
	assert.Equal(t, "/webdav/files/alice/a%20b.txt", got)
}
