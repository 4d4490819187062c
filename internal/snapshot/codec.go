package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/loykin/winsession/internal/index"
)

// ErrMalformed is returned by Unmarshal for bytes that do not describe a
// usable snapshot. Callers treat it as "no prior session".
var ErrMalformed = errors.New("malformed snapshot")

func Marshal(s Snapshot) ([]byte, error) {
	if s.Version == 0 {
		s.Version = Version
	}
	if s.Windows == nil {
		s.Windows = []Record{}
	}
	return json.Marshal(s)
}

// Unmarshal decodes and validates a snapshot. It accepts the versioned
// envelope and the older bare list of window records.
func Unmarshal(b []byte) (Snapshot, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 {
		return Snapshot{}, fmt.Errorf("%w: empty input", ErrMalformed)
	}

	var s Snapshot
	if trimmed[0] == '[' {
		var windows []Record
		if err := json.Unmarshal(trimmed, &windows); err != nil {
			return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		s = Snapshot{Version: Version, Windows: windows}
	} else {
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if s.Version != Version {
			return Snapshot{}, fmt.Errorf("%w: unsupported version %d", ErrMalformed, s.Version)
		}
	}
	if err := s.Validate(); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// Validate checks the structural invariants of a decoded snapshot: windows
// are top level, tabs point at their window and carry no tabs, containers are
// known or unset and no index appears twice. Unset containers read as local.
func (s Snapshot) Validate() error {
	seen := make(map[int]struct{})
	mark := func(i int) error {
		if i < 0 {
			return fmt.Errorf("%w: negative index %d", ErrMalformed, i)
		}
		if _, dup := seen[i]; dup {
			return fmt.Errorf("%w: duplicate index %d", ErrMalformed, i)
		}
		seen[i] = struct{}{}
		return nil
	}
	for _, w := range s.Windows {
		if err := mark(w.Index); err != nil {
			return err
		}
		if w.ParentIndex != index.None {
			return fmt.Errorf("%w: window %d has parent %d", ErrMalformed, w.Index, w.ParentIndex)
		}
		if w.Container != "" && !w.Container.Valid() {
			return fmt.Errorf("%w: window %d has container %q", ErrMalformed, w.Index, w.Container)
		}
	}
	for _, w := range s.Windows {
		for _, t := range w.Tabs {
			if err := mark(t.Index); err != nil {
				return err
			}
			if t.ParentIndex != w.Index {
				return fmt.Errorf("%w: tab %d points at %d, listed under %d", ErrMalformed, t.Index, t.ParentIndex, w.Index)
			}
			if len(t.Tabs) > 0 {
				return fmt.Errorf("%w: tab %d has nested tabs", ErrMalformed, t.Index)
			}
			if t.Container != "" && !t.Container.Valid() {
				return fmt.Errorf("%w: tab %d has container %q", ErrMalformed, t.Index, t.Container)
			}
		}
	}
	return nil
}
