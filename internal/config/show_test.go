package config

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEffective(t *testing.T) {
	t.Parallel()

	path := writeTestConfig(t, `
[server]
base_url = "http://localhost:9200"
dav_path = "spaces"
[admin]
password = "top-secret"
[users.alice]
password = "alice-secret"
`)

	r, err := Resolve(EnvOverrides{}, CLIOverrides{ConfigPath: path})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(r, &buf))

	out := buf.String()
	assert.Contains(t, out, path)
	assert.Contains(t, out, `base_url              = "http://localhost:9200"`)
	assert.Contains(t, out, `dav_path              = "spaces"`)
	assert.Contains(t, out, "1.0 MiB")
	assert.Contains(t, out, "[users.alice]")
	assert.Contains(t, out, maskedPassword)
	assert.NotContains(t, out, "top-secret")
	assert.NotContains(t, out, "alice-secret")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestRenderEffective_WriteError(t *testing.T) {
	t.Parallel()

	r := &Resolved{Config: DefaultConfig()}

	err := RenderEffective(r, failingWriter{})
	require.EqualError(t, err, "disk full")
}
