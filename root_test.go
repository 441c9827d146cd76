package main

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/davharness/internal/chunk"
	"github.com/tonimelisma/davharness/internal/config"
	"github.com/tonimelisma/davharness/internal/dav"
)

func TestNewRootCmd_RegistersCommands(t *testing.T) {
	cmd := newRootCmd()

	want := []string{
		"propfind", "get", "put", "mkcol", "rm", "move", "copy", "put-chunked",
		"upload", "etag", "fileid", "space", "share", "scenario", "config",
	}

	for _, name := range want {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
}

func TestSkipsConfig(t *testing.T) {
	root := &cobra.Command{Use: "davharness"}
	help := &cobra.Command{Use: "help"}
	completion := &cobra.Command{Use: "completion"}
	bash := &cobra.Command{Use: "bash"}
	get := &cobra.Command{Use: "get"}

	completion.AddCommand(bash)
	root.AddCommand(help, completion, get)

	assert.True(t, skipsConfig(help))
	assert.True(t, skipsConfig(bash))
	assert.False(t, skipsConfig(get))
	assert.False(t, skipsConfig(root))
}

func TestMustCLIContext_PanicsWithoutContext(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { mustCLIContext(context.Background()) })

	cc := &CLIContext{}
	assert.Same(t, cc, mustCLIContext(withCLIContext(context.Background(), cc)))
}

func TestUseJSONLogs(t *testing.T) {
	t.Parallel()

	f, err := os.Create(filepath.Join(t.TempDir(), "log"))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	assert.True(t, useJSONLogs("json", f))
	assert.False(t, useJSONLogs("text", f))
	// A regular file is never a terminal.
	assert.True(t, useJSONLogs("auto", f))
	assert.False(t, isTerminal(nil))
}

func TestParseHeaders(t *testing.T) {
	t.Parallel()

	h, err := parseHeaders([]string{"X-Test: one", "X-Test:two", "Depth: 0"})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, h.Values("X-Test"))
	assert.Equal(t, "0", h.Get("Depth"))

	_, err = parseHeaders([]string{"no-colon"})
	require.Error(t, err)

	_, err = parseHeaders([]string{": value"})
	require.Error(t, err)
}

func TestParseOverwrite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want *bool
		err  bool
	}{
		{in: "", want: nil},
		{in: "T", want: ptr(true)},
		{in: "f", want: ptr(false)},
		{in: "true", want: ptr(true)},
		{in: "FALSE", want: ptr(false)},
		{in: "maybe", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := parseOverwrite(tt.in)
			if tt.err {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMtime(t *testing.T) {
	t.Parallel()

	got, err := parseMtime("")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	got, err = parseMtime("1700000000")
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1700000000, 0), got)

	_, err = parseMtime("yesterday")
	require.Error(t, err)
}

func TestParseOrder(t *testing.T) {
	t.Parallel()

	got, err := parseOrder("2, 0,1,1")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0, 1, 1}, got)

	got, err = parseOrder("")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseOrder("1,x")
	require.Error(t, err)
}

func TestUntilPredicate(t *testing.T) {
	t.Parallel()

	ok := &dav.Response{StatusCode: http.StatusOK}
	missing := &dav.Response{StatusCode: http.StatusNotFound}

	assert.Nil(t, untilPredicate(0, 0))

	p := untilPredicate(http.StatusOK, 0)
	assert.True(t, p(ok))
	assert.False(t, p(missing))

	p = untilPredicate(0, http.StatusNotFound)
	assert.True(t, p(ok))
	assert.False(t, p(missing))

	p = untilPredicate(http.StatusOK, http.StatusNotFound)
	assert.True(t, p(ok))
	assert.False(t, p(&dav.Response{StatusCode: http.StatusMultiStatus}))
}

func TestCheckExpect(t *testing.T) {
	t.Parallel()

	resp := &dav.Response{Method: http.MethodGet, URL: "http://x/a", StatusCode: http.StatusNotFound}

	require.NoError(t, checkExpect(0, resp))
	require.NoError(t, checkExpect(http.StatusNotFound, resp))
	require.NoError(t, checkExpect(http.StatusOK, nil))

	err := checkExpect(http.StatusOK, resp)
	require.ErrorIs(t, err, errStatusMismatch)
	assert.Contains(t, err.Error(), "returned 404, expected 200")
}

func TestExpectBool(t *testing.T) {
	t.Parallel()

	require.NoError(t, expectBool("changed", true, true, false))
	require.NoError(t, expectBool("changed", false, false, true))
	require.NoError(t, expectBool("changed", true, false, false))
	require.ErrorIs(t, expectBool("changed", false, true, false), errAssertionFailed)
	require.ErrorIs(t, expectBool("changed", true, false, true), errAssertionFailed)
}

func TestChunkedOptions(t *testing.T) {
	t.Parallel()

	cfg := &config.Resolved{
		Config:    config.DefaultConfig(),
		ChunkSize: 1 << 20,
		Protocol:  chunk.ProtocolLegacy,
	}

	t.Run("config defaults", func(t *testing.T) {
		t.Parallel()

		opts, err := chunkedOptions(cfg, chunkedFlags{})
		require.NoError(t, err)
		assert.Equal(t, chunk.ProtocolLegacy, opts.Protocol)
		assert.Equal(t, 1<<20, opts.ChunkSize)
		assert.Nil(t, opts.Overwrite)
	})

	t.Run("flags win", func(t *testing.T) {
		t.Parallel()

		opts, err := chunkedOptions(cfg, chunkedFlags{
			protocol:  "session",
			chunkSize: "4KiB",
			order:     "1,0",
			overwrite: "F",
			mtime:     "42",
			headers:   []string{"X-A: b"},
			lazy:      true,
		})
		require.NoError(t, err)
		assert.Equal(t, chunk.ProtocolTusLike, opts.Protocol)
		assert.Equal(t, 4096, opts.ChunkSize)
		assert.Equal(t, []int{1, 0}, opts.Order)
		assert.Equal(t, ptr(false), opts.Overwrite)
		assert.Equal(t, time.Unix(42, 0), opts.Mtime)
		assert.Equal(t, "b", opts.Header.Get("X-A"))
		assert.True(t, opts.LazyOps)
	})

	t.Run("chunk count ignores size", func(t *testing.T) {
		t.Parallel()

		opts, err := chunkedOptions(cfg, chunkedFlags{chunks: 3})
		require.NoError(t, err)
		assert.Equal(t, 3, opts.Chunks)
		assert.Zero(t, opts.ChunkSize)
	})

	t.Run("bad protocol", func(t *testing.T) {
		t.Parallel()

		_, err := chunkedOptions(cfg, chunkedFlags{protocol: "ftp"})
		require.ErrorIs(t, err, chunk.ErrInvalidProtocol)
	})
}

func TestPrintResponse(t *testing.T) {
	t.Parallel()

	resp := &dav.Response{
		Method:     "PROPFIND",
		URL:        "http://x/remote.php/webdav/a",
		StatusCode: http.StatusMultiStatus,
		Header:     http.Header{"Etag": {`"1"`}, "Content-Type": {"application/xml"}},
		Body:       []byte("<d:multistatus/>"),
		Duration:   1500 * time.Microsecond,
	}

	var buf bytes.Buffer
	require.NoError(t, printResponse(&buf, resp, false))

	want := "PROPFIND http://x/remote.php/webdav/a\n" +
		"207 Multi-Status (16 B, 2ms)\n" +
		"Content-Type: application/xml\n" +
		"Etag: \"1\"\n" +
		"\n<d:multistatus/>\n"
	assert.Equal(t, want, buf.String())
}

func TestPrintTable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printTable(&buf, []string{"ID", "NAME"}, [][]string{{"1", "alpha"}, {"22", "b"}})

	assert.Equal(t, "ID  NAME\n1   alpha\n22  b\n", buf.String())
}

func TestFormatSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0 B", formatSize(0))
	assert.Equal(t, "1.0 KiB", formatSize(1024))
	assert.Equal(t, "-1 B", formatSize(-1))
}

func ptr[T any](v T) *T {
	return &v
}
