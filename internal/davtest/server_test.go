package davtest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/studio-b12/gowebdav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func do(t *testing.T, s *Server, method, path, body string, header ...string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, s.URL()+path, strings.NewReader(body))
	require.NoError(t, err)
	req.SetBasicAuth("alice", "pw")

	for len(header) >= 2 {
		req.Header.Set(header[0], header[1])
		header = header[2:]
	}

	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func newServer(t *testing.T, opts ...Option) *Server {
	t.Helper()

	s := New(t, opts...)
	s.AddUser("alice", "pw")
	s.AddUser("bob", "pw")

	return s
}

func TestServer_RequiresBasicAuth(t *testing.T) {
	t.Parallel()

	s := newServer(t)

	resp, err := s.Client().Get(s.URL() + "/remote.php/dav/files/alice/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_PutVisibleThroughEveryUserRoot(t *testing.T) {
	t.Parallel()

	s := newServer(t)

	resp := do(t, s, http.MethodPut, "/remote.php/dav/files/alice/a.txt", "hello")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	c := gowebdav.NewClient(s.URL(), "alice", "pw")

	for _, p := range []string{
		"/remote.php/dav/files/alice/a.txt",
		"/remote.php/webdav/files/alice/a.txt",
		"/remote.php/dav/spaces/files/" + PersonalSpaceID("alice") + "/a.txt",
	} {
		got, err := c.Read(p)
		require.NoError(t, err, p)
		assert.Equal(t, "hello", string(got), p)
	}
}

func TestServer_OtherUsersHomeIsNotFound(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	require.NoError(t, s.WriteFile("bob", "secret.txt", []byte("x")))

	resp := do(t, s, http.MethodGet, "/remote.php/dav/files/bob/secret.txt", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_DeleteMissingIs404(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	resp := do(t, s, http.MethodDelete, "/remote.php/dav/files/alice/nope.txt", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_LegacyChunksAssembleOnLastChunk(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	base := "/remote.php/webdav/files/alice/big.txt-chunking-77-2-"

	resp := do(t, s, http.MethodPut, base+"1", "second", "OC-Chunked", "1")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	_, err := s.ReadFile("alice", "big.txt")
	require.Error(t, err)

	resp = do(t, s, http.MethodPut, base+"0", "first ", "OC-Chunked", "1")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("OC-FileId"))

	got, err := s.ReadFile("alice", "big.txt")
	require.NoError(t, err)
	assert.Equal(t, "first second", string(got))
}

func TestServer_SessionUploadAssemblesIntoSpace(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	id := s.AddSpace("Project")

	assert.Equal(t, http.StatusCreated, do(t, s, "MKCOL", "/remote.php/dav/uploads/alice/u1", "").StatusCode)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, "MKCOL", "/remote.php/dav/uploads/alice/u1", "").StatusCode)
	assert.Equal(t, http.StatusCreated, do(t, s, http.MethodPut, "/remote.php/dav/uploads/alice/u1/1", "B").StatusCode)
	assert.Equal(t, http.StatusCreated, do(t, s, http.MethodPut, "/remote.php/dav/uploads/alice/u1/0", "A").StatusCode)

	dest := s.URL() + "/remote.php/dav/spaces/files/" + id + "/ab.txt"
	resp := do(t, s, "MOVE", "/remote.php/dav/uploads/alice/u1/.file", "", "Destination", dest, "OC-Total-Length", "2")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	got, err := s.ReadSpaceFile(id, "ab.txt")
	require.NoError(t, err)
	assert.Equal(t, "AB", string(got))

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodPut, "/remote.php/dav/uploads/alice/u1/2", "C").StatusCode)
}

func TestServer_SessionUploadRejectsOverwriteFalse(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	require.NoError(t, s.WriteFile("alice", "x.txt", []byte("old")))

	do(t, s, "MKCOL", "/remote.php/dav/uploads/alice/u2", "")
	do(t, s, http.MethodPut, "/remote.php/dav/uploads/alice/u2/0", "new")

	resp := do(t, s, "MOVE", "/remote.php/dav/uploads/alice/u2/.file", "",
		"Destination", s.URL()+"/remote.php/dav/files/alice/x.txt", "Overwrite", "F")
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
}

func TestServer_LazyAssemblyReportsJob(t *testing.T) {
	t.Parallel()

	s := newServer(t, WithLazyAssembly(1))

	do(t, s, "MKCOL", "/remote.php/dav/uploads/alice/u3", "")
	do(t, s, http.MethodPut, "/remote.php/dav/uploads/alice/u3/0", "lazy")

	resp := do(t, s, "MOVE", "/remote.php/dav/uploads/alice/u3/.file", "",
		"Destination", s.URL()+"/remote.php/dav/files/alice/lazy.txt", "OC-LazyOps", "true")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	loc := resp.Header.Get("OC-JobStatus-Location")
	require.NotEmpty(t, loc)

	statuses := make([]string, 0, 2)
	for range 2 {
		var body struct {
			Status string `json:"status"`
		}

		require.NoError(t, json.NewDecoder(do(t, s, http.MethodGet, loc, "").Body).Decode(&body))
		statuses = append(statuses, body.Status)
	}

	assert.Equal(t, []string{"started", "finished"}, statuses)

	got, err := s.ReadFile("alice", "lazy.txt")
	require.NoError(t, err)
	assert.Equal(t, "lazy", string(got))
}

func TestServer_CrossModeMoveWithinSameTree(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	require.NoError(t, s.WriteFile("alice", "src.txt", []byte("data")))

	resp := do(t, s, "MOVE", "/remote.php/webdav/files/alice/src.txt", "",
		"Destination", s.URL()+"/remote.php/dav/spaces/files/"+PersonalSpaceID("alice")+"/dst.txt")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	got, err := s.ReadFile("alice", "dst.txt")
	require.NoError(t, err)
	assert.Equal(t, "data", string(got))
}

func TestServer_InfiniteDepthDenied(t *testing.T) {
	t.Parallel()

	s := newServer(t, WithoutInfiniteDepth())

	resp := do(t, s, "PROPFIND", "/remote.php/dav/files/alice/", "", "Depth", "infinity")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = do(t, s, "PROPFIND", "/remote.php/dav/files/alice/", "", "Depth", "1")
	assert.Equal(t, http.StatusMultiStatus, resp.StatusCode)
}

func TestServer_DenyNext(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	s.DenyNext("alice", 1)

	assert.Equal(t, http.StatusUnauthorized, do(t, s, "PROPFIND", "/remote.php/dav/files/alice/", "", "Depth", "0").StatusCode)
	assert.Equal(t, http.StatusMultiStatus, do(t, s, "PROPFIND", "/remote.php/dav/files/alice/", "", "Depth", "0").StatusCode)
}

func TestServer_FileIDIsDeadProperty(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	do(t, s, http.MethodPut, "/remote.php/dav/files/alice/id.txt", "x")

	body := `<?xml version="1.0"?><d:propfind xmlns:d="DAV:" xmlns:oc="http://owncloud.org/ns"><d:prop><oc:fileid/></d:prop></d:propfind>`
	resp := do(t, s, "PROPFIND", "/remote.php/dav/files/alice/id.txt", body, "Depth", "0")
	require.Equal(t, http.StatusMultiStatus, resp.StatusCode)

	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "00000001")
}

func TestServer_GraphSpacesLifecycle(t *testing.T) {
	t.Parallel()

	s := newServer(t)

	resp := do(t, s, http.MethodPost, "/graph/v1.0/drives", `{"name":"Team","driveType":"project"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.True(t, s.HasSpace(created.ID))

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodDelete, "/graph/v1.0/drives/"+created.ID, "", "Purge", "T").StatusCode)
	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodDelete, "/graph/v1.0/drives/"+created.ID, "").StatusCode)
	assert.True(t, s.SpaceDisabled(created.ID))
	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodDelete, "/graph/v1.0/drives/"+created.ID, "", "Purge", "T").StatusCode)
	assert.False(t, s.HasSpace(created.ID))
}

func TestServer_LegacyChunksWithDottedTransferID(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	base := "/remote.php/webdav/files/alice/v.txt-chunking-v1.2_x-1-"

	resp := do(t, s, http.MethodPut, base+"0", "only", "OC-Chunked", "1")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	got, err := s.ReadFile("alice", "v.txt")
	require.NoError(t, err)
	assert.Equal(t, "only", string(got))
}
