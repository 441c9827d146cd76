package chunk

import (
	"fmt"
	"time"

	"github.com/tonimelisma/davharness/internal/davpath"
)

// Record is the persisted form of a Session, used to continue an upload
// across CLI invocations.
type Record struct {
	ID           string    `json:"id"`
	Owner        string    `json:"owner,omitempty"`
	Protocol     string    `json:"protocol"`
	State        string    `json:"state"`
	TotalChunks  int       `json:"total_chunks,omitempty"`
	Mode         string    `json:"mode"`
	Principal    string    `json:"principal,omitempty"`
	Space        string    `json:"space,omitempty"`
	SpaceID      string    `json:"space_id,omitempty"`
	Path         string    `json:"path"`
	Received     []int     `json:"received,omitempty"`
	JobStatusURL string    `json:"job_status_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Record snapshots the session.
func (s *Session) Record() Record {
	return Record{
		ID:           s.ID,
		Owner:        s.Owner,
		Protocol:     s.Protocol.String(),
		State:        s.state.String(),
		TotalChunks:  s.TotalChunks,
		Mode:         s.Destination.Mode.String(),
		Principal:    s.Destination.Principal,
		Space:        s.Destination.Space,
		SpaceID:      s.Destination.SpaceID,
		Path:         s.Destination.Path,
		Received:     s.Received(),
		JobStatusURL: s.jobStatusURL,
		CreatedAt:    s.CreatedAt,
	}
}

// Restore rebuilds a session from rec, bound to deps.
func Restore(deps Deps, rec Record) (*Session, error) {
	protocol, err := ParseProtocol(rec.Protocol)
	if err != nil {
		return nil, err
	}

	state, err := ParseState(rec.State)
	if err != nil {
		return nil, err
	}

	mode, err := davpath.ParseMode(rec.Mode)
	if err != nil {
		return nil, fmt.Errorf("chunk: restoring session %s: %w", rec.ID, err)
	}

	dest := davpath.Target{
		Mode: mode,
		Descriptor: davpath.Descriptor{
			Principal: rec.Principal,
			Space:     rec.Space,
			SpaceID:   rec.SpaceID,
			Path:      rec.Path,
		},
	}

	s := newSession(deps, dest, rec.ID, protocol, rec.TotalChunks, state)
	s.Owner = rec.Owner
	s.jobStatusURL = rec.JobStatusURL

	if !rec.CreatedAt.IsZero() {
		s.CreatedAt = rec.CreatedAt
	}

	for _, i := range rec.Received {
		s.received[i] = struct{}{}
	}

	return s, nil
}
