package davtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

type space struct {
	id        string
	name      string
	driveType string
	quota     int64
	disabled  bool
	tree      *tree
}

type share struct {
	id        string
	name      string
	syncAfter int
}

// AddSpace creates a project space and returns its id.
func (s *Server) AddSpace(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.addSpaceLocked(name, 0)
}

func (s *Server) addSpaceLocked(name string, quota int64) string {
	s.nextID++
	id := fmt.Sprintf("space-%d", s.nextID)
	s.spaces[id] = &space{id: id, name: name, driveType: "project", quota: quota, tree: newTree("")}

	return id
}

// AddShare lists a received share for user. It reports
// @client.synchronize only after syncAfter listings.
func (s *Server) AddShare(user, name string, syncAfter int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.users[user]
	if !ok {
		return
	}

	s.nextID++
	acct.shares = append(acct.shares, &share{id: fmt.Sprintf("share-%d", s.nextID), name: name, syncAfter: syncAfter})
}

// SpaceDisabled reports whether the space with id exists and is disabled.
func (s *Server) SpaceDisabled(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sp, ok := s.spaces[id]

	return ok && sp.disabled
}

// HasSpace reports whether a space with id exists, disabled or not.
func (s *Server) HasSpace(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.spaces[id]

	return ok
}

func (s *Server) serveGraph(w http.ResponseWriter, r *http.Request, user, p string) {
	switch {
	case r.Method == http.MethodGet && p == "/me/drives":
		s.listDrives(w, user)
	case r.Method == http.MethodPost && p == "/drives":
		s.createDrive(w, r)
	case r.Method == http.MethodDelete && strings.HasPrefix(p, "/drives/"):
		s.deleteDrive(w, r, strings.TrimPrefix(p, "/drives/"))
	case r.Method == http.MethodGet && p == "/me/drive/sharedWithMe":
		s.listShares(w, user)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) driveJSON(sp *space) map[string]any {
	prefix := newRoot + "/spaces/files/"
	d := map[string]any{
		"id":        sp.id,
		"name":      sp.name,
		"driveType": sp.driveType,
		"root":      map[string]any{"webDavUrl": s.ts.URL + prefix + sp.id},
	}

	if sp.tree.owner != "" {
		d["owner"] = map[string]any{"user": map[string]any{"id": sp.tree.owner}}
	}

	if sp.quota > 0 {
		d["quota"] = map[string]any{"total": sp.quota}
	}

	if sp.disabled {
		d["root"].(map[string]any)["deleted"] = map[string]any{"state": "trashed"}
	}

	return d
}

func (s *Server) listDrives(w http.ResponseWriter, user string) {
	s.mu.Lock()

	ids := make([]string, 0, len(s.spaces))
	for id, sp := range s.spaces {
		if sp.driveType == "personal" && sp.tree.owner != user {
			continue
		}

		ids = append(ids, id)
	}

	sort.Strings(ids)

	drives := make([]map[string]any, 0, len(ids)+1)
	for _, id := range ids {
		drives = append(drives, s.driveJSON(s.spaces[id]))
	}
	s.mu.Unlock()

	drives = append(drives, map[string]any{
		"id":        "shares-" + user,
		"name":      "Shares",
		"driveType": "virtual",
	})

	writeJSON(w, http.StatusOK, map[string]any{"value": drives})
}

func (s *Server) createDrive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Quota *struct {
			Total int64 `json:"total"`
		} `json:"quota"`
	}

	body, err := io.ReadAll(r.Body)
	if err == nil {
		err = json.Unmarshal(body, &req)
	}

	if err != nil || req.Name == "" {
		http.Error(w, "invalid drive", http.StatusBadRequest)
		return
	}

	var quota int64
	if req.Quota != nil {
		quota = req.Quota.Total
	}

	s.mu.Lock()
	id := s.addSpaceLocked(req.Name, quota)
	d := s.driveJSON(s.spaces[id])
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, d)
}

// deleteDrive disables a space, or purges an already disabled one when
// the Purge header is set.
func (s *Server) deleteDrive(w http.ResponseWriter, r *http.Request, id string) {
	purge := r.Header.Get("Purge") == "T"

	s.mu.Lock()
	defer s.mu.Unlock()

	sp, ok := s.spaces[id]
	switch {
	case !ok:
		http.NotFound(w, r)
	case sp.driveType != "project":
		http.Error(w, "only project spaces can be deleted", http.StatusForbidden)
	case purge && !sp.disabled:
		http.Error(w, "space must be disabled before purge", http.StatusBadRequest)
	case purge:
		delete(s.spaces, id)
		w.WriteHeader(http.StatusNoContent)
	default:
		sp.disabled = true
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) listShares(w http.ResponseWriter, user string) {
	s.mu.Lock()

	items := make([]map[string]any, 0)
	for _, sh := range s.users[user].shares {
		synced := sh.syncAfter <= 0
		if !synced {
			sh.syncAfter--
		}

		items = append(items, map[string]any{
			"id":                  sh.id,
			"name":                sh.name,
			"@client.synchronize": synced,
			"@UI.Hidden":          false,
		})
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"value": items})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
