package davtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var legacyChunkName = regexp.MustCompile(`^(.+)-chunking-([^-/]+)-(\d+)-(\d+)$`)

type legacyTransfer struct {
	total  int
	chunks map[int][]byte
}

type uploadSession struct {
	chunks map[int][]byte
}

type job struct {
	remaining int
	tree      *tree
	name      string
	content   []byte
	fileID    string
	failed    string
}

// serveLegacyChunk stores one legacy chunk and assembles the file once
// every index of the transfer is present. Transfers are keyed by name,
// transfer id and chunk count, so a chunk with a different count never
// completes the original transfer.
func (s *Server) serveLegacyChunk(w http.ResponseWriter, r *http.Request, rt route) {
	m := legacyChunkName.FindStringSubmatch(rt.name)
	if m == nil {
		http.Error(w, "malformed chunk name", http.StatusBadRequest)
		return
	}

	name, transfer := m[1], m[2]
	total, _ := strconv.Atoi(m[3])
	index, _ := strconv.Atoi(m[4])

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	key := fmt.Sprintf("%s|%s|%s|%d", rt.prefix, name, transfer, total)

	s.mu.Lock()
	t, ok := s.legacy[key]
	if !ok {
		t = &legacyTransfer{total: total, chunks: make(map[int][]byte)}
		s.legacy[key] = t
	}

	t.chunks[index] = body
	content, complete := t.assemble()

	if complete {
		delete(s.legacy, key)
	}
	s.mu.Unlock()

	if !complete {
		w.WriteHeader(http.StatusCreated)
		return
	}

	created, err := s.writeFile(r.Context(), rt.tree.fs, name, content)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	w.Header().Set("OC-FileId", s.assignFileID(r.Context(), rt.tree.fs, name))

	if created {
		w.WriteHeader(http.StatusCreated)
	} else {
		w.WriteHeader(http.StatusNoContent)
	}
}

func (t *legacyTransfer) assemble() ([]byte, bool) {
	var buf bytes.Buffer

	for i := range t.total {
		c, ok := t.chunks[i]
		if !ok {
			return nil, false
		}

		buf.Write(c)
	}

	return buf.Bytes(), true
}

// serveUploads handles the session protocol below uploads/{user}/.
func (s *Server) serveUploads(w http.ResponseWriter, r *http.Request, user, rest string) {
	owner, rest, _ := strings.Cut(rest, "/")
	if owner != user {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	id, node, _ := strings.Cut(strings.Trim(rest, "/"), "/")
	if id == "" {
		http.Error(w, "missing upload id", http.StatusBadRequest)
		return
	}

	key := user + "/" + id

	switch {
	case r.Method == "MKCOL" && node == "":
		s.mu.Lock()
		_, exists := s.uploads[key]
		if !exists {
			s.uploads[key] = &uploadSession{chunks: make(map[int][]byte)}
		}
		s.mu.Unlock()

		if exists {
			http.Error(w, "upload exists", http.StatusMethodNotAllowed)
			return
		}

		w.WriteHeader(http.StatusCreated)
	case r.Method == http.MethodPut && node != "":
		s.putUploadChunk(w, r, key, node)
	case r.Method == "MOVE" && node == ".file":
		s.assembleUpload(w, r, key)
	case r.Method == http.MethodDelete && node == "":
		s.mu.Lock()
		_, exists := s.uploads[key]
		delete(s.uploads, key)
		s.mu.Unlock()

		if !exists {
			http.NotFound(w, r)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "unsupported upload operation", http.StatusMethodNotAllowed)
	}
}

func (s *Server) putUploadChunk(w http.ResponseWriter, r *http.Request, key, node string) {
	index, err := strconv.Atoi(node)
	if err != nil {
		http.Error(w, "chunk name must be numeric", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	up, ok := s.uploads[key]
	if ok {
		up.chunks[index] = body
	}
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// assembleUpload concatenates the session's chunks in index order and
// writes the result to the Destination. With lazy assembly enabled and
// OC-LazyOps set, the write happens once the job status reports finished.
func (s *Server) assembleUpload(w http.ResponseWriter, r *http.Request, key string) {
	s.mu.Lock()
	up, ok := s.uploads[key]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	u, err := url.Parse(r.Header.Get("Destination"))
	if err != nil || u.Path == "" {
		http.Error(w, "bad destination", http.StatusBadRequest)
		return
	}

	dst, ok := s.route(u.Path)
	if !ok {
		http.Error(w, "destination not found", http.StatusConflict)
		return
	}

	content := up.content()

	if tl := r.Header.Get("OC-Total-Length"); tl != "" {
		if n, err := strconv.Atoi(tl); err != nil || n != len(content) {
			http.Error(w, "total length mismatch", http.StatusBadRequest)
			return
		}
	}

	_, statErr := dst.tree.fs.Stat(r.Context(), dst.name)
	exists := statErr == nil

	if exists && r.Header.Get("Overwrite") == "F" {
		http.Error(w, "destination exists", http.StatusPreconditionFailed)
		return
	}

	s.mu.Lock()
	delete(s.uploads, key)
	s.mu.Unlock()

	if s.lazy && r.Header.Get("OC-LazyOps") == "true" {
		user, _, _ := strings.Cut(key, "/")
		jobID := s.startJob(dst, content)

		w.Header().Set("OC-JobStatus-Location", newRoot+"/job-status/"+user+"/"+jobID)
		w.WriteHeader(http.StatusAccepted)

		return
	}

	if _, err := s.writeFile(r.Context(), dst.tree.fs, dst.name, content); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	w.Header().Set("OC-FileId", s.assignFileID(r.Context(), dst.tree.fs, dst.name))

	if exists {
		w.WriteHeader(http.StatusNoContent)
	} else {
		w.WriteHeader(http.StatusCreated)
	}
}

func (u *uploadSession) content() []byte {
	indices := make([]int, 0, len(u.chunks))
	for i := range u.chunks {
		indices = append(indices, i)
	}

	sort.Ints(indices)

	var buf bytes.Buffer
	for _, i := range indices {
		buf.Write(u.chunks[i])
	}

	return buf.Bytes()
}

func (s *Server) startJob(dst route, content []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := fmt.Sprintf("job-%d", s.nextID)
	s.jobs[id] = &job{remaining: s.lazyPolls, tree: dst.tree, name: dst.name, content: content}

	return id
}

// serveJobStatus reports "started" until the job's poll budget is spent,
// then performs the write and reports "finished" or "error".
func (s *Server) serveJobStatus(w http.ResponseWriter, r *http.Request, user, rest string) {
	owner, id, _ := strings.Cut(rest, "/")
	if owner != user {
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	j, ok := s.jobs[id]
	pending := ok && j.remaining > 0

	if pending {
		j.remaining--
	}
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	status := map[string]any{"id": id, "status": "started"}

	if !pending {
		fileID, failed := s.finishJob(r, j)

		if failed != "" {
			status["status"] = "error"
			status["errorMessage"] = failed
		} else {
			status["status"] = "finished"
			status["fileId"] = fileID
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

// finishJob performs the job's write once and returns its outcome.
func (s *Server) finishJob(r *http.Request, j *job) (fileID, failed string) {
	s.mu.Lock()
	fileID, failed = j.fileID, j.failed
	s.mu.Unlock()

	if fileID != "" || failed != "" {
		return fileID, failed
	}

	if _, err := s.writeFile(r.Context(), j.tree.fs, j.name, j.content); err != nil {
		failed = err.Error()
	} else {
		fileID = s.assignFileID(r.Context(), j.tree.fs, j.name)
	}

	s.mu.Lock()
	j.fileID, j.failed = fileID, failed
	s.mu.Unlock()

	return fileID, failed
}
