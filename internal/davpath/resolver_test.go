package davpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/unicode/norm"
)

func TestResolve_Modes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		d    Descriptor
		mode Mode
		kind Kind
		want string
	}{
		{
			name: "legacy user",
			d:    Descriptor{Principal: "alice", Path: "/folder/doc.txt"},
			mode: ModeLegacyUser,
			kind: KindFiles,
			want: "/remote.php/webdav/files/alice/folder/doc.txt",
		},
		{
			name: "new user",
			d:    Descriptor{Principal: "alice", Path: "folder/doc.txt"},
			mode: ModeNewUser,
			kind: KindFiles,
			want: "/remote.php/dav/files/alice/folder/doc.txt",
		},
		{
			name: "new user trash-bin",
			d:    Descriptor{Principal: "alice"},
			mode: ModeNewUser,
			kind: KindTrashBin,
			want: "/remote.php/dav/trash-bin/alice",
		},
		{
			name: "space id ignores principal",
			d:    Descriptor{Principal: "alice", Space: "Project", SpaceID: "a0ca6a90$8ad1", Path: "doc.txt"},
			mode: ModeSpaceID,
			kind: KindFiles,
			want: "/remote.php/dav/spaces/files/a0ca6a90$8ad1/doc.txt",
		},
		{
			name: "space name used as id",
			d:    Descriptor{Space: "1284d238-aa92", Path: "doc.txt"},
			mode: ModeSpaceID,
			kind: KindTrashBin,
			want: "/remote.php/dav/spaces/trash-bin/1284d238-aa92/doc.txt",
		},
		{
			name: "public token",
			d:    Descriptor{Principal: "Hx8nT2", Path: "shared/doc.txt"},
			mode: ModePublicToken,
			kind: KindPublicFiles,
			want: "/remote.php/dav/public-files/Hx8nT2/shared/doc.txt",
		},
		{
			name: "trailing slash kept",
			d:    Descriptor{Principal: "alice", Path: "folder/"},
			mode: ModeNewUser,
			kind: KindFiles,
			want: "/remote.php/dav/files/alice/folder/",
		},
	}

	r := NewResolver()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := r.Resolve(tt.d, tt.mode, tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_Deterministic(t *testing.T) {
	t.Parallel()

	r := NewResolver()
	d := Descriptor{Principal: "brian", Path: "a b/(c)/d#e.txt"}

	first, err := r.Resolve(d, ModeNewUser, KindFiles)
	require.NoError(t, err)

	second, err := r.Resolve(d, ModeNewUser, KindFiles)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestResolve_SharesPrefix(t *testing.T) {
	t.Parallel()

	r := NewResolver()
	d := Descriptor{Principal: "brian", Space: SpaceShares, SpaceID: "a0ca6a90$a0ca6a90", Path: "doc.txt"}

	for _, mode := range []Mode{ModeLegacyUser, ModeNewUser} {
		got, err := r.Resolve(d, mode, KindFiles)
		require.NoError(t, err)
		assert.Contains(t, got, "/Shares/doc.txt", mode.String())
	}

	got, err := r.Resolve(d, ModeSpaceID, KindFiles)
	require.NoError(t, err)
	assert.NotContains(t, got, "Shares/")
	assert.Equal(t, "/remote.php/dav/spaces/files/a0ca6a90$a0ca6a90/doc.txt", got)
}

func TestResolve_Encoding(t *testing.T) {
	t.Parallel()

	r := NewResolver()

	got, err := r.Resolve(Descriptor{Principal: "alice", Path: "My Docs/report (final)#1?.txt"}, ModeNewUser, KindFiles)
	require.NoError(t, err)
	assert.Equal(t, "/remote.php/dav/files/alice/My%20Docs/report%20%28final%29%231%3F.txt", got)
}

func TestResolve_WithoutSegmentEncodingStillEscapesSpaceAndParens(t *testing.T) {
	t.Parallel()

	r := NewResolver(WithoutSegmentEncoding())

	got, err := r.Resolve(Descriptor{Principal: "alice", Path: "a b/(c)%41.txt"}, ModeNewUser, KindFiles)
	require.NoError(t, err)
	assert.Equal(t, "/remote.php/dav/files/alice/a%20b/%28c%29%41.txt", got)
}

func TestResolve_Normalization(t *testing.T) {
	t.Parallel()

	decomposed := "cafe\u0301.txt"
	r := NewResolver(WithNormalization(norm.NFC))

	got, err := r.Resolve(Descriptor{Principal: "alice", Path: decomposed}, ModeNewUser, KindFiles)
	require.NoError(t, err)
	assert.Equal(t, "/remote.php/dav/files/alice/caf%C3%A9.txt", got)
}

func TestResolve_CustomRoots(t *testing.T) {
	t.Parallel()

	r := NewResolver(WithRoots("/webdav/", "dav"))

	got, err := r.Resolve(Descriptor{Principal: "alice", Path: "x"}, ModeLegacyUser, KindFiles)
	require.NoError(t, err)
	assert.Equal(t, "/webdav/files/alice/x", got)

	got, err = r.Resolve(Descriptor{Principal: "alice", Path: "x"}, ModeNewUser, KindUploads)
	require.NoError(t, err)
	assert.Equal(t, "/dav/uploads/alice/x", got)
}

func TestResolve_Errors(t *testing.T) {
	t.Parallel()

	r := NewResolver()

	tests := []struct {
		name string
		d    Descriptor
		mode Mode
		kind Kind
		want error
	}{
		{"spaces without id", Descriptor{Principal: "alice", Path: "x"}, ModeSpaceID, KindFiles, ErrSpaceIDRequired},
		{"spaces with unresolved Shares", Descriptor{Space: SpaceShares}, ModeSpaceID, KindFiles, ErrSpaceIDRequired},
		{"project space in user mode", Descriptor{Principal: "alice", Space: "Project"}, ModeNewUser, KindFiles, ErrSpaceNotAddressable},
		{"missing principal", Descriptor{Path: "x"}, ModeLegacyUser, KindFiles, ErrPrincipalRequired},
		{"missing token", Descriptor{Path: "x"}, ModePublicToken, KindPublicFiles, ErrPrincipalRequired},
		{"zero mode", Descriptor{Principal: "alice"}, Mode(0), KindFiles, ErrInvalidMode},
		{"bad kind", Descriptor{Principal: "alice"}, ModeNewUser, Kind("versions"), ErrInvalidKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := r.Resolve(tt.d, tt.mode, tt.kind)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Mode{
		"old":    ModeLegacyUser,
		"NEW":    ModeNewUser,
		"spaces": ModeSpaceID,
		"public": ModePublicToken,
	} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseMode("webdav")
	require.ErrorIs(t, err, ErrInvalidMode)
}

func TestMode_TextRoundTrip(t *testing.T) {
	t.Parallel()

	text, err := ModeSpaceID.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "spaces", string(text))

	var m Mode
	require.NoError(t, m.UnmarshalText(text))
	assert.Equal(t, ModeSpaceID, m)

	_, err = Mode(0).MarshalText()
	require.ErrorIs(t, err, ErrInvalidMode)
}
