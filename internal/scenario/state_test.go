package scenario

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/davharness/internal/chunk"
	"github.com/tonimelisma/davharness/internal/dav"
	"github.com/tonimelisma/davharness/internal/davpath"
)

func testDeps() chunk.Deps {
	return chunk.Deps{
		Doer:        dav.NewClient("https://cloud.example.com", nil, slog.Default()),
		Credentials: dav.Credentials{Username: "alice", Password: "pw"},
	}
}

func depsFor(t *testing.T) DepsFunc {
	t.Helper()

	return func(owner string) (chunk.Deps, error) {
		assert.Equal(t, "alice", owner)
		return testDeps(), nil
	}
}

func populated(t *testing.T) *State {
	t.Helper()

	s := NewState(davpath.ModeSpaceID)
	s.SetInfiniteDepth(true)
	s.SetSpaceID("alice", "Project", "sp-1")
	s.AddCreatedSpace(CreatedSpace{ID: "sp-1", Name: "Project", Owner: "admin"})
	s.SetETag(Key{User: "alice", Space: "Project", Path: "a.txt"}, `"e1"`)
	s.SetFileID(Key{User: "alice", Space: "personal", Path: "b.txt"}, "00000042")

	sess := chunk.NewTusLike(testDeps(), davpath.Target{
		Mode:       davpath.ModeNewUser,
		Descriptor: davpath.Descriptor{Principal: "alice", Path: "big.bin"},
	}, "sess-1")
	sess.Owner = "alice"
	s.AddSession(sess)

	return s
}

func TestState_Accessors(t *testing.T) {
	t.Parallel()

	s := populated(t)

	assert.Equal(t, davpath.ModeSpaceID, s.Mode())
	assert.True(t, s.InfiniteDepth())

	id, ok := s.SpaceID("alice", "Project")
	require.True(t, ok)
	assert.Equal(t, "sp-1", id)

	_, ok = s.SpaceID("bob", "Project")
	assert.False(t, ok)

	etag, ok := s.ETag(Key{User: "alice", Space: "Project", Path: "a.txt"})
	require.True(t, ok)
	assert.Equal(t, `"e1"`, etag)

	sess, ok := s.Session("sess-1")
	require.True(t, ok)
	assert.Equal(t, chunk.StateNew, sess.State())

	s.RemoveSession("sess-1")
	assert.Empty(t, s.Sessions())

	s.ForgetSpace("Project")
	_, ok = s.SpaceID("alice", "Project")
	assert.False(t, ok)
}

func TestState_ResetKeepsMode(t *testing.T) {
	t.Parallel()

	s := populated(t)
	s.Reset()

	assert.Equal(t, davpath.ModeSpaceID, s.Mode())
	assert.False(t, s.InfiniteDepth())
	assert.Empty(t, s.CreatedSpaces())
	assert.Empty(t, s.Sessions())

	_, ok := s.FileID(Key{User: "alice", Space: "personal", Path: "b.txt"})
	assert.False(t, ok)
}

func TestState_SnapshotRestore(t *testing.T) {
	t.Parallel()

	s := populated(t)
	snap := s.Snapshot()

	restored := NewState(davpath.ModeLegacyUser)
	require.NoError(t, restored.Restore(snap, depsFor(t)))

	assert.Equal(t, snap, restored.Snapshot())
}

func TestStore_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "state.db")

	store, err := OpenStore(ctx, dbPath, slog.Default())
	require.NoError(t, err)

	store.nowFunc = func() time.Time { return time.Unix(1700000000, 0) }

	snap := populated(t).Snapshot()
	require.NoError(t, store.Save(ctx, snap))
	require.NoError(t, store.Close())

	store, err = OpenStore(ctx, dbPath, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	loaded, err := store.Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, snap.Mode, loaded.Mode)
	assert.Equal(t, snap.InfiniteDepth, loaded.InfiniteDepth)
	assert.Equal(t, snap.SpaceIDs, loaded.SpaceIDs)
	assert.Equal(t, snap.Created, loaded.Created)
	assert.Equal(t, snap.ETags, loaded.ETags)
	assert.Equal(t, snap.FileIDs, loaded.FileIDs)
	require.Len(t, loaded.Sessions, 1)
	assert.Equal(t, "sess-1", loaded.Sessions[0].ID)
	assert.Equal(t, "new", loaded.Sessions[0].State)
	assert.True(t, snap.Sessions[0].CreatedAt.Equal(loaded.Sessions[0].CreatedAt))

	st := NewState(0)
	require.NoError(t, st.Restore(loaded, depsFor(t)))

	sess, ok := st.Session("sess-1")
	require.True(t, ok)
	assert.Equal(t, chunk.ProtocolTusLike, sess.Protocol)
	assert.Equal(t, "alice", sess.Owner)
}

func TestStore_ResetAndEmptyLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	store, err := OpenStore(ctx, filepath.Join(t.TempDir(), "state.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	empty, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, empty.Mode.Valid())
	assert.Empty(t, empty.Sessions)

	require.NoError(t, store.Save(ctx, populated(t).Snapshot()))
	require.NoError(t, store.Reset(ctx))

	after, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, after.Created)
	assert.Empty(t, after.ETags)
	assert.Empty(t, after.Sessions)
}
