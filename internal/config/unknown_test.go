package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_UnknownKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "typo in section key",
			content: "[poll]\nmax_atempts = 3\n",
			want:    `unknown key "max_atempts" in [poll], did you mean "max_attempts"?`,
		},
		{
			name:    "unknown key without suggestion",
			content: "[upload]\nparallelism = 3\n",
			want:    `unknown key "parallelism" in [upload]`,
		},
		{
			name:    "misspelled section",
			content: "[servre]\nbase_url = \"http://x\"\n",
			want:    "unknown config section [servre], did you mean [server]?",
		},
		{
			name:    "unknown section",
			content: "[telemetry]\nenabled = true\n",
			want:    "unknown config section [telemetry]",
		},
		{
			name:    "top-level key outside its section",
			content: "base_url = \"http://x\"\n",
			want:    `config key "base_url" belongs in the [server] section`,
		},
		{
			name:    "typo in user account",
			content: "[users.alice]\npasword = \"x\"\n",
			want:    `unknown key "pasword" in [users.alice], did you mean "password"?`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Load(writeTestConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_UnknownSectionReportedOnce(t *testing.T) {
	t.Parallel()

	_, err := Load(writeTestConfig(t, "[servre]\na = 1\nb = 2\n"))
	require.Error(t, err)
	assert.Equal(t, 1, countOccurrences(err.Error(), "unknown config section [servre]"))
}

func countOccurrences(s, sub string) int {
	n := 0

	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			n++
		}
	}

	return n
}

func TestClosestMatch(t *testing.T) {
	t.Parallel()

	known := []string{"delay", "max_attempts"}

	assert.Equal(t, "delay", closestMatch("dely", known))
	assert.Equal(t, "max_attempts", closestMatch("max_attempt", known))
	assert.Empty(t, closestMatch("completely_different", known))
}

func TestLevenshtein(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"same", "same", 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, levenshtein(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}
