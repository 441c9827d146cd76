// Package davtest runs an in-process WebDAV server that mimics the
// addressing, chunked-upload and space endpoints of the server under test.
// File storage is golang.org/x/net/webdav's in-memory file system; one
// file system backs each user and each project space.
package davtest

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"
	"testing"

	"golang.org/x/net/webdav"
)

const (
	legacyRoot = "/remote.php/webdav"
	newRoot    = "/remote.php/dav"
	graphRoot  = "/graph/v1.0"

	ownCloudNS = "http://owncloud.org/ns"
)

var fileIDProp = xml.Name{Space: ownCloudNS, Local: "fileid"}

// Option configures a Server.
type Option func(*Server)

// WithLazyAssembly makes session assemblies requested with OC-LazyOps
// answer 202 and report "started" for polls status requests before the
// job finishes.
func WithLazyAssembly(polls int) Option {
	return func(s *Server) {
		s.lazy = true
		s.lazyPolls = polls
	}
}

// WithoutInfiniteDepth rejects PROPFIND with Depth: infinity.
func WithoutInfiniteDepth() Option {
	return func(s *Server) {
		s.denyInfinite = true
	}
}

// Recorded is one request as the server received it.
type Recorded struct {
	Method string
	Path   string
	User   string
	Header http.Header
}

// tree is one independently stored tree: a user's home or a space.
type tree struct {
	owner string
	fs    webdav.FileSystem
	ls    webdav.LockSystem
}

func newTree(owner string) *tree {
	return &tree{owner: owner, fs: webdav.NewMemFS(), ls: webdav.NewMemLS()}
}

type account struct {
	password     string
	home         *tree
	unauthorized int
	shares       []*share
}

// Server is a fake server. Use New.
type Server struct {
	ts *httptest.Server

	lazy         bool
	lazyPolls    int
	denyInfinite bool

	mu       sync.Mutex
	users    map[string]*account
	spaces   map[string]*space
	legacy   map[string]*legacyTransfer
	uploads  map[string]*uploadSession
	jobs     map[string]*job
	requests []Recorded
	nextID   int
}

// New starts a server and registers its shutdown with t.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()

	s := &Server{
		users:   make(map[string]*account),
		spaces:  make(map[string]*space),
		legacy:  make(map[string]*legacyTransfer),
		uploads: make(map[string]*uploadSession),
		jobs:    make(map[string]*job),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.ts = httptest.NewServer(s)
	t.Cleanup(s.ts.Close)

	return s
}

// URL returns the server base URL.
func (s *Server) URL() string {
	return s.ts.URL
}

// Client returns an HTTP client for the server.
func (s *Server) Client() *http.Client {
	return s.ts.Client()
}

// AddUser creates a user with an empty home and a personal space.
func (s *Server) AddUser(name, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct := &account{password: password, home: newTree(name)}
	s.users[name] = acct
	s.spaces[PersonalSpaceID(name)] = &space{
		id:        PersonalSpaceID(name),
		name:      name,
		driveType: "personal",
		tree:      acct.home,
	}
}

// PersonalSpaceID is the space id the server assigns to a user's home.
func PersonalSpaceID(user string) string {
	return "personal-" + user
}

// DenyNext makes the next n requests of user fail with 401, as a freshly
// provisioned account does until it propagates.
func (s *Server) DenyNext(user string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acct, ok := s.users[user]; ok {
		acct.unauthorized = n
	}
}

// Requests returns a copy of the request log.
func (s *Server) Requests() []Recorded {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Recorded(nil), s.requests...)
}

// ReadFile returns the content of p in user's home.
func (s *Server) ReadFile(user, p string) ([]byte, error) {
	s.mu.Lock()
	acct, ok := s.users[user]
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("davtest: unknown user %q", user)
	}

	return readFile(context.Background(), acct.home.fs, p)
}

// ReadSpaceFile returns the content of p in the space with id.
func (s *Server) ReadSpaceFile(id, p string) ([]byte, error) {
	s.mu.Lock()
	sp, ok := s.spaces[id]
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("davtest: unknown space %q", id)
	}

	return readFile(context.Background(), sp.tree.fs, p)
}

// WriteFile seeds p in user's home, creating parent folders.
func (s *Server) WriteFile(user, p string, content []byte) error {
	s.mu.Lock()
	acct, ok := s.users[user]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("davtest: unknown user %q", user)
	}

	ctx := context.Background()
	if err := mkdirAll(ctx, acct.home.fs, path.Dir(cleanName(p))); err != nil {
		return err
	}

	_, err := s.writeFile(ctx, acct.home.fs, p, content)

	return err
}

// ServeHTTP dispatches to the DAV, upload, job status and Graph endpoints.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	p := r.URL.Path

	switch {
	case strings.HasPrefix(p, graphRoot+"/"):
		s.serveGraph(w, r, user, strings.TrimPrefix(p, graphRoot))
	case strings.HasPrefix(p, newRoot+"/job-status/"):
		s.serveJobStatus(w, r, user, strings.TrimPrefix(p, newRoot+"/job-status/"))
	case strings.HasPrefix(p, newRoot+"/uploads/"):
		s.serveUploads(w, r, user, strings.TrimPrefix(p, newRoot+"/uploads/"))
	default:
		s.serveFiles(w, r, user)
	}
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	user, pass, _ := r.BasicAuth()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, Recorded{
		Method: r.Method,
		Path:   r.URL.Path,
		User:   user,
		Header: r.Header.Clone(),
	})

	acct, ok := s.users[user]
	if ok && acct.unauthorized > 0 {
		acct.unauthorized--
		ok = false
	}

	if !ok || acct.password != pass {
		w.Header().Set("WWW-Authenticate", `Basic realm="davtest"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)

		return "", false
	}

	return user, true
}

// route maps a request path onto a stored tree. prefix is the decoded
// path prefix the tree is mounted at.
type route struct {
	prefix string
	tree   *tree
	name   string
}

func (s *Server) route(p string) (route, bool) {
	for _, base := range []string{legacyRoot + "/files/", newRoot + "/files/"} {
		if rest, ok := strings.CutPrefix(p, base); ok {
			user, name, _ := strings.Cut(rest, "/")

			s.mu.Lock()
			acct, found := s.users[user]
			s.mu.Unlock()

			if !found {
				return route{}, false
			}

			return route{prefix: base + user, tree: acct.home, name: cleanName(name)}, true
		}
	}

	if rest, ok := strings.CutPrefix(p, newRoot+"/spaces/files/"); ok {
		id, name, _ := strings.Cut(rest, "/")

		s.mu.Lock()
		sp, found := s.spaces[id]
		usable := found && !sp.disabled
		s.mu.Unlock()

		if !usable {
			return route{}, false
		}

		return route{prefix: newRoot + "/spaces/files/" + id, tree: sp.tree, name: cleanName(name)}, true
	}

	return route{}, false
}

func (s *Server) serveFiles(w http.ResponseWriter, r *http.Request, user string) {
	rt, ok := s.route(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	if rt.tree.owner != "" && rt.tree.owner != user {
		http.NotFound(w, r)
		return
	}

	if r.Method == http.MethodPut && r.Header.Get("OC-Chunked") == "1" {
		s.serveLegacyChunk(w, r, rt)
		return
	}

	if r.Method == "PROPFIND" && s.denyInfinite && strings.EqualFold(r.Header.Get("Depth"), "infinity") {
		http.Error(w, "infinite depth not allowed", http.StatusForbidden)
		return
	}

	if r.Method == "MOVE" || r.Method == "COPY" {
		if status := s.rewriteDestination(r, rt); status != 0 {
			http.Error(w, http.StatusText(status), status)
			return
		}
	}

	h := &webdav.Handler{Prefix: rt.prefix, FileSystem: rt.tree.fs, LockSystem: rt.tree.ls}
	rec := &statusRecorder{ResponseWriter: w}
	h.ServeHTTP(rec, r)

	if (r.Method == http.MethodPut || r.Method == "MKCOL") && rec.status >= 200 && rec.status < 300 {
		s.assignFileID(r.Context(), rt.tree.fs, rt.name)
	}
}

// rewriteDestination maps an absolute Destination onto the source tree's
// mount prefix so that moves between addressing modes of the same tree
// work. Moves across trees answer 502, like a cross-storage move.
func (s *Server) rewriteDestination(r *http.Request, src route) int {
	u, err := url.Parse(r.Header.Get("Destination"))
	if err != nil || u.Path == "" {
		return http.StatusBadRequest
	}

	dst, ok := s.route(u.Path)
	if !ok {
		return http.StatusConflict
	}

	if dst.tree != src.tree {
		return http.StatusBadGateway
	}

	r.Header.Set("Destination", (&url.URL{Path: src.prefix + dst.name}).EscapedPath())

	return 0
}

// assignFileID stores an oc:fileid dead property on name unless present.
func (s *Server) assignFileID(ctx context.Context, fs webdav.FileSystem, name string) string {
	f, err := fs.OpenFile(ctx, name, os.O_RDONLY, 0)
	if err != nil {
		return ""
	}
	defer f.Close()

	holder, ok := f.(webdav.DeadPropsHolder)
	if !ok {
		return ""
	}

	props, err := holder.DeadProps()
	if err == nil {
		if p, found := props[fileIDProp]; found {
			return string(p.InnerXML)
		}
	}

	s.mu.Lock()
	s.nextID++
	id := fmt.Sprintf("%08d", s.nextID)
	s.mu.Unlock()

	_, _ = holder.Patch([]webdav.Proppatch{{
		Props: []webdav.Property{{XMLName: fileIDProp, InnerXML: []byte(id)}},
	}})

	return id
}

// writeFile creates or truncates name and assigns a file id. created is
// false when an existing file was replaced.
func (s *Server) writeFile(ctx context.Context, fs webdav.FileSystem, name string, content []byte) (bool, error) {
	name = cleanName(name)

	if _, err := fs.Stat(ctx, path.Dir(name)); err != nil {
		return false, fmt.Errorf("davtest: parent of %s: %w", name, err)
	}

	_, statErr := fs.Stat(ctx, name)
	created := statErr != nil

	f, err := fs.OpenFile(ctx, name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return false, err
	}

	if _, err := f.Write(content); err != nil {
		f.Close()
		return false, err
	}

	if err := f.Close(); err != nil {
		return false, err
	}

	s.assignFileID(ctx, fs, name)

	return created, nil
}

func readFile(ctx context.Context, fs webdav.FileSystem, name string) ([]byte, error) {
	f, err := fs.OpenFile(ctx, cleanName(name), os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(f)
}

func mkdirAll(ctx context.Context, fs webdav.FileSystem, dir string) error {
	if dir == "/" || dir == "." {
		return nil
	}

	if _, err := fs.Stat(ctx, dir); err == nil {
		return nil
	}

	if err := mkdirAll(ctx, fs, path.Dir(dir)); err != nil {
		return err
	}

	return fs.Mkdir(ctx, dir, 0o755)
}

func cleanName(name string) string {
	return path.Clean("/" + name)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}

	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}

	return r.ResponseWriter.Write(b)
}
