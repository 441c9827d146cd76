// Package scenario holds the per-scenario state a test run accumulates:
// the active addressing mode, resolved space ids, spaces created for
// cleanup, remembered etags and file ids, and upload sessions in flight.
// A State belongs to one scenario and is reset between scenarios.
package scenario

import (
	"sort"
	"sync"

	"github.com/tonimelisma/davharness/internal/chunk"
	"github.com/tonimelisma/davharness/internal/davpath"
)

// Key addresses a remembered value: one resource of one user in one space.
type Key struct {
	User  string
	Space string
	Path  string
}

// CreatedSpace is a space provisioned during the scenario.
type CreatedSpace struct {
	ID    string
	Name  string
	Owner string
}

type spaceKey struct {
	actor string
	name  string
}

// State is safe for concurrent use.
type State struct {
	mu sync.Mutex

	mode          davpath.Mode
	infiniteDepth bool

	spaceIDs map[spaceKey]string
	created  []CreatedSpace
	etags    map[Key]string
	fileIDs  map[Key]string
	sessions map[string]*chunk.Session
}

// NewState creates an empty State in mode.
func NewState(mode davpath.Mode) *State {
	s := &State{mode: mode}
	s.clear()

	return s
}

func (s *State) clear() {
	s.infiniteDepth = false
	s.spaceIDs = make(map[spaceKey]string)
	s.created = nil
	s.etags = make(map[Key]string)
	s.fileIDs = make(map[Key]string)
	s.sessions = make(map[string]*chunk.Session)
}

// Reset drops everything except the addressing mode.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clear()
}

// Mode returns the active addressing mode.
func (s *State) Mode() davpath.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mode
}

// SetMode changes the active addressing mode.
func (s *State) SetMode(m davpath.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mode = m
}

// InfiniteDepth reports whether Depth: infinity PROPFINDs are expected to
// be allowed by the server.
func (s *State) InfiniteDepth() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.infiniteDepth
}

// SetInfiniteDepth records the server's infinite-depth setting.
func (s *State) SetInfiniteDepth(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.infiniteDepth = enabled
}

// SpaceID returns the cached id of the space name as seen by actor.
func (s *State) SpaceID(actor, name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.spaceIDs[spaceKey{actor, name}]

	return id, ok
}

// SetSpaceID caches a resolved space id.
func (s *State) SetSpaceID(actor, name, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.spaceIDs[spaceKey{actor, name}] = id
}

// ForgetSpace drops every cached id for the space name.
func (s *State) ForgetSpace(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.spaceIDs {
		if k.name == name {
			delete(s.spaceIDs, k)
		}
	}
}

// AddCreatedSpace records a space for cleanup.
func (s *State) AddCreatedSpace(sp CreatedSpace) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.created = append(s.created, sp)
}

// CreatedSpaces returns the spaces recorded for cleanup, oldest first.
func (s *State) CreatedSpaces() []CreatedSpace {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]CreatedSpace(nil), s.created...)
}

// SetETag remembers an etag.
func (s *State) SetETag(k Key, etag string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.etags[k] = etag
}

// ETag returns a remembered etag.
func (s *State) ETag(k Key) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.etags[k]

	return v, ok
}

// SetFileID remembers a file id.
func (s *State) SetFileID(k Key, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fileIDs[k] = id
}

// FileID returns a remembered file id.
func (s *State) FileID(k Key) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.fileIDs[k]

	return v, ok
}

// AddSession tracks an upload session by id.
func (s *State) AddSession(sess *chunk.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.ID] = sess
}

// Session returns a tracked upload session.
func (s *State) Session(id string) (*chunk.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]

	return sess, ok
}

// RemoveSession stops tracking an upload session.
func (s *State) RemoveSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
}

// Sessions returns tracked sessions ordered by id.
func (s *State) Sessions() []*chunk.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*chunk.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// Snapshot is the persistable content of a State.
type Snapshot struct {
	Mode          davpath.Mode
	InfiniteDepth bool
	SpaceIDs      map[[2]string]string
	Created       []CreatedSpace
	ETags         map[Key]string
	FileIDs       map[Key]string
	Sessions      []chunk.Record
}

// Snapshot copies the state for persistence.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Mode:          s.mode,
		InfiniteDepth: s.infiniteDepth,
		SpaceIDs:      make(map[[2]string]string, len(s.spaceIDs)),
		Created:       append([]CreatedSpace(nil), s.created...),
		ETags:         make(map[Key]string, len(s.etags)),
		FileIDs:       make(map[Key]string, len(s.fileIDs)),
		Sessions:      make([]chunk.Record, 0, len(s.sessions)),
	}

	for k, v := range s.spaceIDs {
		snap.SpaceIDs[[2]string{k.actor, k.name}] = v
	}

	for k, v := range s.etags {
		snap.ETags[k] = v
	}

	for k, v := range s.fileIDs {
		snap.FileIDs[k] = v
	}

	for _, sess := range s.sessions {
		snap.Sessions = append(snap.Sessions, sess.Record())
	}

	sort.Slice(snap.Sessions, func(i, j int) bool { return snap.Sessions[i].ID < snap.Sessions[j].ID })

	return snap
}

// DepsFunc returns the collaborators a restored session of owner binds to.
type DepsFunc func(owner string) (chunk.Deps, error)

// Restore replaces the state with snap. Sessions are rebuilt bound to the
// deps of their owner.
func (s *State) Restore(snap Snapshot, deps DepsFunc) error {
	sessions := make(map[string]*chunk.Session, len(snap.Sessions))

	for _, rec := range snap.Sessions {
		d, err := deps(rec.Owner)
		if err != nil {
			return err
		}

		sess, err := chunk.Restore(d, rec)
		if err != nil {
			return err
		}

		sessions[sess.ID] = sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.clear()
	s.mode = snap.Mode
	s.infiniteDepth = snap.InfiniteDepth
	s.created = append(s.created, snap.Created...)
	s.sessions = sessions

	for k, v := range snap.SpaceIDs {
		s.spaceIDs[spaceKey{k[0], k[1]}] = v
	}

	for k, v := range snap.ETags {
		s.etags[k] = v
	}

	for k, v := range snap.FileIDs {
		s.fileIDs[k] = v
	}

	return nil
}
