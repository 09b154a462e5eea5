package statefile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// State is the persisted form of the catalog store, spec.md §6.2.
type State struct {
	Timestamp uint64              `json:"timestamp"`
	Accounts  []string            `json:"accounts"`
	Apps      map[string]StateApp `json:"apps"`
	DepotKeys map[string]string   `json:"depot_keys"`
}

type StateApp struct {
	PICSAccessToken *uint64  `json:"pics_at,omitempty"`
	Depots          []uint32 `json:"depots"`
}

const fileName = "state.json"

// Load reads state.json from dir. A missing file is not an error: it
// means a cold start with no persisted accounts (spec.md §8 scenario 1).
func Load(dir string) (*State, error) {
	path := filepath.Join(dir, fileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &State{Apps: map[string]StateApp{}, DepotKeys: map[string]string{}}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading state.json")
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "parsing state.json")
	}
	if s.Apps == nil {
		s.Apps = map[string]StateApp{}
	}
	if s.DepotKeys == nil {
		s.DepotKeys = map[string]string{}
	}
	return &s, nil
}

// Save writes state.json atomically enough to survive a crash: the new
// content lands in a sibling temp file, is fsynced, then renamed over the
// real path, so a reader never observes a half-written file.
func Save(dir string, s *State) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "creating state directory")
	}

	path := filepath.Join(dir, fileName)
	tmpPath := path + ".tmp"

	data, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "encoding state.json")
	}

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrap(err, "opening state.json.tmp")
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return errors.Wrap(err, "writing state.json.tmp")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrap(err, "fsyncing state.json.tmp")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "closing state.json.tmp")
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrap(err, "renaming state.json.tmp into place")
	}
	return nil
}

// Now is split out so callers (and tests) can stamp State.Timestamp
// without importing time directly.
func Now() uint64 {
	return uint64(time.Now().Unix())
}
