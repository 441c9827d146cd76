package graph

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/davharness/internal/dav"
	"github.com/tonimelisma/davharness/internal/davtest"
	"github.com/tonimelisma/davharness/internal/poll"
)

func newServerService(t *testing.T) (*Service, *davtest.Server) {
	t.Helper()

	srv := davtest.New(t)
	srv.AddUser("alice", "pw")
	srv.AddUser("admin", "admin")

	c := NewClient(dav.NewClient(srv.URL(), srv.Client(), nil), DefaultRoot, nil)
	c.sleepFunc = noopSleep

	poller := poll.New(nil).WithSleep(noopSleep)

	return NewService(c, NewLookup(c, poller, 3, time.Millisecond)), srv
}

var adminCreds = dav.Credentials{Username: "admin", Password: "admin"}

func TestSpaces_ListsPersonalProjectAndShares(t *testing.T) {
	t.Parallel()

	svc, srv := newServerService(t)
	id := srv.AddSpace("Team")

	spaces, err := svc.Spaces(context.Background(), testCreds)
	require.NoError(t, err)

	byType := map[string][]Space{}
	for _, sp := range spaces {
		byType[sp.DriveType] = append(byType[sp.DriveType], sp)
	}

	require.Len(t, byType[DriveTypePersonal], 1)
	assert.Equal(t, davtest.PersonalSpaceID("alice"), byType[DriveTypePersonal][0].ID)
	assert.Equal(t, "alice", byType[DriveTypePersonal][0].OwnerID)

	require.Len(t, byType[DriveTypeProject], 1)
	assert.Equal(t, id, byType[DriveTypeProject][0].ID)
	assert.Equal(t, srv.URL()+"/remote.php/dav/spaces/files/"+id, byType[DriveTypeProject][0].WebDAVURL)

	assert.Len(t, byType[DriveTypeVirtual], 1)
}

func TestSpaceLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, srv := newServerService(t)

	sp, err := svc.CreateSpace(ctx, adminCreds, "Quarterly", 5<<20)
	require.NoError(t, err)
	assert.Equal(t, "Quarterly", sp.Name)
	assert.Equal(t, int64(5<<20), sp.QuotaTotal)

	got, err := svc.WaitForSpace(ctx, testCreds, "Quarterly")
	require.NoError(t, err)
	assert.Equal(t, sp.ID, got.ID)

	err = svc.DeleteSpace(ctx, adminCreds, sp.ID)
	require.ErrorIs(t, err, ErrBadRequest, "purge needs a disabled space")

	require.NoError(t, svc.DisableSpace(ctx, adminCreds, sp.ID))
	assert.True(t, srv.SpaceDisabled(sp.ID))

	spaces, err := svc.Spaces(ctx, testCreds)
	require.NoError(t, err)

	for _, s := range spaces {
		if s.ID == sp.ID {
			assert.True(t, s.Trashed)
		}
	}

	require.NoError(t, svc.WaitForSpaceGone(ctx, testCreds, "Quarterly"))

	require.NoError(t, svc.DeleteSpace(ctx, adminCreds, sp.ID))
	assert.False(t, srv.HasSpace(sp.ID))

	err = svc.DisableSpace(ctx, adminCreds, sp.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeletePersonalSpaceForbidden(t *testing.T) {
	t.Parallel()

	svc, _ := newServerService(t)

	err := svc.DisableSpace(context.Background(), testCreds, davtest.PersonalSpaceID("alice"))
	require.ErrorIs(t, err, ErrForbidden)
}

func TestLookup_WellKnownNames(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _ := newServerService(t)

	id, err := svc.SpaceID(ctx, testCreds, SpaceNamePersonal)
	require.NoError(t, err)
	assert.Equal(t, davtest.PersonalSpaceID("alice"), id)

	id, err = svc.SpaceID(ctx, testCreds, SpaceNameShares)
	require.NoError(t, err)
	assert.Equal(t, "shares-alice", id)
}

func TestLookup_MissingSpaceExhaustsBudget(t *testing.T) {
	t.Parallel()

	svc, _ := newServerService(t)

	_, err := svc.SpaceID(context.Background(), testCreds, "Nowhere")
	require.ErrorIs(t, err, ErrSpaceNotFound)
}

func TestLookup_UnauthorizedCountsAsNotVisible(t *testing.T) {
	t.Parallel()

	svc, srv := newServerService(t)
	srv.DenyNext("alice", 2)

	id, err := svc.SpaceID(context.Background(), testCreds, SpaceNamePersonal)
	require.NoError(t, err)
	assert.Equal(t, davtest.PersonalSpaceID("alice"), id)
}

func TestLookup_SpaceAppearsLater(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := calls.Add(1)

		w.Header().Set("Content-Type", "application/json")

		if n < 3 {
			_, _ = w.Write([]byte(`{"value":[]}`))
			return
		}

		_, _ = w.Write([]byte(`{"value":[{"id":"sp-9","name":"Late","driveType":"project"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	l := NewLookup(c, poll.New(nil).WithSleep(noopSleep), 5, time.Millisecond)

	id, err := l.SpaceID(context.Background(), testCreds, "Late")
	require.NoError(t, err)
	assert.Equal(t, "sp-9", id)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSharedWithMe_WaitsForSynchronize(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, srv := newServerService(t)
	srv.AddShare("alice", "report.pdf", 2)

	items, err := svc.SharedWithMe(ctx, testCreds)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.False(t, items[0].Synchronize)

	item, err := svc.WaitForShareSynced(ctx, testCreds, "report.pdf")
	require.NoError(t, err)
	assert.True(t, item.Synchronize)

	_, err = svc.WaitForShareSynced(ctx, testCreds, "missing.pdf")
	require.ErrorIs(t, err, ErrShareNotSynced)
}

func TestMatchSpace(t *testing.T) {
	t.Parallel()

	assert.True(t, MatchSpace(Space{DriveType: DriveTypePersonal, Name: "Alice"}, SpaceNamePersonal))
	assert.True(t, MatchSpace(Space{DriveType: DriveTypeVirtual}, SpaceNameShares))
	assert.True(t, MatchSpace(Space{DriveType: DriveTypeProject, Name: "Team"}, "Team"))
	assert.False(t, MatchSpace(Space{DriveType: DriveTypeProject, Name: "Team", Trashed: true}, "Team"))
	assert.False(t, MatchSpace(Space{DriveType: DriveTypeProject, Name: "personal"}, SpaceNamePersonal))
}
