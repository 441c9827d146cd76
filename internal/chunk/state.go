package chunk

import (
	"fmt"
	"strings"
)

// State is where a chunked upload stands in its protocol.
type State int

// Upload states. Legacy uploads start Open, session uploads start New.
const (
	StateNew State = iota
	StateOpen
	StateCreated
	StateChunksUploading
	StateAssembling
	StateAssembled
	StateStalled
	StateOrphaned
	StateCanceled
)

var stateNames = map[State]string{
	StateNew:             "new",
	StateOpen:            "open",
	StateCreated:         "created",
	StateChunksUploading: "chunks-uploading",
	StateAssembling:      "assembling",
	StateAssembled:       "assembled",
	StateStalled:         "stalled",
	StateOrphaned:        "orphaned",
	StateCanceled:        "canceled",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}

	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further protocol step changes the outcome.
func (s State) Terminal() bool {
	switch s {
	case StateAssembled, StateOrphaned, StateCanceled:
		return true
	default:
		return false
	}
}

// ParseState is the inverse of String.
func ParseState(s string) (State, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for st, name := range stateNames {
		if name == want {
			return st, nil
		}
	}

	return 0, fmt.Errorf("chunk: unknown state %q", s)
}
