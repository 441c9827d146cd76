package davpath

import (
	"fmt"
	"sort"
	"strings"
)

// Mode selects one of the four WebDAV addressing schemes the server exposes
// for the same underlying resource. The zero value is not a valid mode.
type Mode int

// Addressing modes.
const (
	ModeLegacyUser Mode = iota + 1
	ModeNewUser
	ModeSpaceID
	ModePublicToken
)

// modeNames maps every accepted spelling to its mode. Scenario directives
// uses "old", "new" and "spaces"; the remaining spellings are aliases.
var modeNames = map[string]Mode{
	"old":          ModeLegacyUser,
	"legacy":       ModeLegacyUser,
	"new":          ModeNewUser,
	"spaces":       ModeSpaceID,
	"spaceid":      ModeSpaceID,
	"public":       ModePublicToken,
	"public-token": ModePublicToken,
}

// ParseMode parses a DAV path directive ("old", "new", "spaces", "public").
// Matching is case-insensitive.
func ParseMode(s string) (Mode, error) {
	m, ok := modeNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("%w: %q (valid: %s)", ErrInvalidMode, s, validModeList())
	}

	return m, nil
}

// Valid reports whether m is one of the four addressing modes.
func (m Mode) Valid() bool {
	return m >= ModeLegacyUser && m <= ModePublicToken
}

// IsUserMode reports whether m addresses resources by user name.
func (m Mode) IsUserMode() bool {
	return m == ModeLegacyUser || m == ModeNewUser
}

func (m Mode) String() string {
	switch m {
	case ModeLegacyUser:
		return "old"
	case ModeNewUser:
		return "new"
	case ModeSpaceID:
		return "spaces"
	case ModePublicToken:
		return "public"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler so modes round-trip through
// TOML and JSON as their directive names.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, int(m))
	}

	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}

	*m = parsed

	return nil
}

func validModeList() string {
	names := make([]string, 0, len(modeNames))
	for name := range modeNames {
		names = append(names, name)
	}

	sort.Strings(names)

	return strings.Join(names, ", ")
}

// Kind is the resource collection a path is built for.
type Kind string

// Resource kinds.
const (
	KindFiles       Kind = "files"
	KindUploads     Kind = "uploads"
	KindPublicFiles Kind = "public-files"
	KindTrashBin    Kind = "trash-bin"
)

// Valid reports whether k is a known resource kind.
func (k Kind) Valid() bool {
	switch k {
	case KindFiles, KindUploads, KindPublicFiles, KindTrashBin:
		return true
	default:
		return false
	}
}
