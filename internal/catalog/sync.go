package catalog

import (
	"encoding/base64"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/steamcat/steamcat/internal/statefile"
)

// Sync is the builder's single sync_manifest step, spec.md §4.2: taken
// with the catalog lock held just long enough to snapshot, it rebuilds
// the JSON/binary buffers and their compressed variants when the catalog
// changed, and persists state.json when any state changed. Safe to call
// redundantly; it is a no-op when neither flag is set.
func (s *Store) Sync(stateDir string) {
	var (
		catalogDirty, stateDirty bool
		appsSnap                 map[uint32]*AppEntry
		keysSnap                 map[uint32][32]byte
		stateSnap                *statefile.State
	)

	s.mu.Lock()
	catalogDirty, stateDirty = s.catalogDirty, s.stateDirty
	if catalogDirty || stateDirty {
		appsSnap = cloneApps(s.apps)
		keysSnap = cloneKeys(s.depotKeys)
	}
	if stateDirty {
		stateSnap = buildStateSnapshot(s.accounts, appsSnap, keysSnap)
	}
	s.catalogDirty = false
	s.stateDirty = false
	s.mu.Unlock()

	if !catalogDirty && !stateDirty {
		return
	}

	now := statefile.Now()

	if catalogDirty {
		jsonBuf := buildJSON(appsSnap, keysSnap)
		jsonVariants := compressVariants(jsonBuf)
		binBuf := buildBinary(appsSnap, keysSnap)
		binVariants := compressVariants(binBuf)

		s.bufMu.Lock()
		s.timestamp = now
		s.jsonBuf = jsonBuf
		s.jsonVariants = jsonVariants
		s.binBuf = binBuf
		s.binVariants = binVariants
		s.bufMu.Unlock()

		s.log.Debug("catalog rebuilt",
			"apps", len(appsSnap),
			"json_size", humanize.Bytes(uint64(len(jsonBuf))),
			"binary_size", humanize.Bytes(uint64(len(binBuf))),
		)
	}

	if stateSnap != nil {
		stateSnap.Timestamp = now
		if err := statefile.Save(stateDir, stateSnap); err != nil {
			s.log.Error("failed to persist state.json", "err", err)
		}
	}
}

func cloneApps(apps map[uint32]*AppEntry) map[uint32]*AppEntry {
	out := make(map[uint32]*AppEntry, len(apps))
	for id, app := range apps {
		depots := make(map[uint32]*DepotEntry, len(app.Depots))
		for did, d := range app.Depots {
			accounts := make([]uint64, len(d.Accounts))
			copy(accounts, d.Accounts)
			depots[did] = &DepotEntry{Accounts: accounts, NextIdx: d.NextIdx}
		}
		out[id] = &AppEntry{Name: app.Name, PICSAccessToken: app.PICSAccessToken, Depots: depots}
	}
	return out
}

func cloneKeys(keys map[uint32][32]byte) map[uint32][32]byte {
	out := make(map[uint32][32]byte, len(keys))
	for k, v := range keys {
		out[k] = v
	}
	return out
}

// buildStateSnapshot renders the persisted state.json shape, spec.md
// §6.2: accounts flagged for removal are omitted, exactly as spec.md §8's
// "modulo accounts flagged for removal" invariant requires.
func buildStateSnapshot(accounts map[uint64]*Account, apps map[uint32]*AppEntry, keys map[uint32][32]byte) *statefile.State {
	st := &statefile.State{
		Apps:      map[string]statefile.StateApp{},
		DepotKeys: map[string]string{},
	}

	for _, a := range accounts {
		if a.Removal != RemovalNone {
			continue
		}
		st.Accounts = append(st.Accounts, a.Token)
	}

	for appID, app := range apps {
		depotIDs := sortedDepotIDs(app.Depots)
		sa := statefile.StateApp{Depots: depotIDs}
		if app.PICSAccessToken != 0 {
			tok := app.PICSAccessToken
			sa.PICSAccessToken = &tok
		}
		st.Apps[strconv.FormatUint(uint64(appID), 10)] = sa
	}

	for depotID, key := range keys {
		st.DepotKeys[strconv.FormatUint(uint64(depotID), 10)] = base64.StdEncoding.EncodeToString(key[:])
	}

	return st
}
