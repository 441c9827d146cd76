package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"0", 0},
		{"512", 512},
		{"1KB", 1000},
		{"1KiB", 1024},
		{"10MiB", 10 * 1024 * 1024},
		{" 2MB ", 2_000_000},
		{"1GiB", 1 << 30},
	}

	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseSize_Invalid(t *testing.T) {
	t.Parallel()

	_, err := ParseSize("ten megs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid size")
}

func TestFormatSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "1.0 MiB", FormatSize(1<<20))
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "-1 B", FormatSize(-1))
}
