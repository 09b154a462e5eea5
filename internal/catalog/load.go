package catalog

import (
	"encoding/base64"
	"time"

	"github.com/steamcat/steamcat/internal/cmclient"
	"github.com/steamcat/steamcat/internal/statefile"
)

// LoadState seeds a freshly-constructed Store from a persisted state.json
// snapshot, per spec.md §6.2's load rule: tokens whose parsed expiry has
// already passed are dropped with a warning rather than reconnected.
//
// The app/depot tree itself is deliberately NOT restored from the
// snapshot: spec.md §3's invariant that every depot entry's account list
// is non-empty has no persisted account-ownership data to satisfy it
// from (state.json records only the app/depot *shape*, not who owns
// what) — ownership is rebuilt as each reloaded account walks the
// catalog builder pipeline again after reconnecting. Only depot
// decryption keys, which are retained for the life of the process
// regardless of which account first fetched them, are restored eagerly.
func LoadState(s *Store, st *statefile.State, now time.Time) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var loaded []uint64
	for _, token := range st.Accounts {
		info, err := cmclient.ParseToken(token)
		if err != nil {
			s.log.Warn("dropping unparseable persisted token", "err", err)
			continue
		}
		if !info.Expiry.After(now) {
			s.log.Warn("dropping expired persisted token", "expiry", info.Expiry)
			continue
		}

		steamID, _ := cmclient.SteamIDFromToken(token)
		a := newAccount(steamID, token, info)
		s.accounts[steamID] = a
		loaded = append(loaded, steamID)
	}

	for depotIDStr, encoded := range st.DepotKeys {
		depotID, ok := parseUint32(depotIDStr)
		if !ok {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil || len(raw) != 32 {
			s.log.Warn("dropping malformed persisted depot key", "depot_id", depotID)
			continue
		}
		var key [32]byte
		copy(key[:], raw)
		s.depotKeys[depotID] = key
	}

	return loaded
}

func parseUint32(s string) (uint32, bool) {
	var v uint64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + uint64(c-'0')
	}
	if v > 0xFFFFFFFF {
		return 0, false
	}
	return uint32(v), true
}
