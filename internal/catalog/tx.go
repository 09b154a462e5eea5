package catalog

import "github.com/steamcat/steamcat/internal/cmclient"

// --- accounts -----------------------------------------------------------

func (tx *Tx) Account(steamID uint64) (*Account, bool) {
	a, ok := tx.s.accounts[steamID]
	return a, ok
}

func (tx *Tx) Accounts() []*Account {
	out := make([]*Account, 0, len(tx.s.accounts))
	for _, a := range tx.s.accounts {
		out = append(out, a)
	}
	return out
}

// AddAccount registers a new account (from persisted state at startup, or
// from a completed sign-in). Returns the created Account.
func (tx *Tx) AddAccount(steamID uint64, token string, info cmclient.TokenInfo) *Account {
	a := newAccount(steamID, token, info)
	tx.s.accounts[steamID] = a
	tx.s.stateDirty = true
	return a
}

// RemoveAccount erases an account and prunes every depot/app entry that
// referenced it, per spec.md §4.2's catalog pruning.
func (tx *Tx) RemoveAccount(steamID uint64) {
	delete(tx.s.accounts, steamID)
	tx.s.stateDirty = true
	tx.prune(steamID)
}

func (tx *Tx) MarkStateDirty() { tx.s.stateDirty = true }
func (tx *Tx) MarkCatalogDirty() { tx.s.catalogDirty = true }

func (tx *Tx) StateDirty() bool   { return tx.s.stateDirty }
func (tx *Tx) CatalogDirty() bool { return tx.s.catalogDirty }

func (tx *Tx) ClearStateDirty()   { tx.s.stateDirty = false }
func (tx *Tx) ClearCatalogDirty() { tx.s.catalogDirty = false }

// --- ready / connection counters ----------------------------------------

func (tx *Tx) IncActiveConnections() { tx.s.activeConnections++ }

// DecActiveConnections returns the new count, and closes Store's drained
// signal when the count reaches zero while stopping.
func (tx *Tx) DecActiveConnections() int {
	tx.s.activeConnections--
	if tx.s.activeConnections == 0 && tx.s.status == StatusStopping {
		select {
		case <-tx.s.connDrained:
		default:
			close(tx.s.connDrained)
		}
	}
	return tx.s.activeConnections
}

func (tx *Tx) ActiveConnections() int { return tx.s.activeConnections }

func (tx *Tx) Status() ProcessStatus        { return tx.s.status }
func (tx *Tx) SetStatus(status ProcessStatus) { tx.s.setStatus(status) }

// MarkAccountReady increments the ready-account counter once, the first
// time this account completes its initial sweep, and reports whether
// every known account is now ready (the setup->running condition).
func (tx *Tx) MarkAccountReady(a *Account) (allReady bool) {
	if !a.Ready {
		a.Ready = true
		tx.s.numReadyAccounts++
	}
	return tx.s.numReadyAccounts == len(tx.s.accounts)
}

func (tx *Tx) NumAccounts() int      { return len(tx.s.accounts) }
func (tx *Tx) NumReadyAccounts() int { return tx.s.numReadyAccounts }

// --- apps / depots / keys ------------------------------------------------

func (tx *Tx) App(appID uint32) (*AppEntry, bool) {
	a, ok := tx.s.apps[appID]
	return a, ok
}

func (tx *Tx) Apps() map[uint32]*AppEntry { return tx.s.apps }

func (tx *Tx) SetAppName(appID uint32, name string) {
	tx.ensureApp(appID).Name = name
	tx.s.stateDirty = true
	tx.s.catalogDirty = true
}

func (tx *Tx) SetAppPICSToken(appID uint32, token uint64) {
	tx.ensureApp(appID).PICSAccessToken = token
	tx.s.stateDirty = true
	tx.s.catalogDirty = true
}

func (tx *Tx) ensureApp(appID uint32) *AppEntry {
	app, ok := tx.s.apps[appID]
	if !ok {
		app = &AppEntry{Depots: map[uint32]*DepotEntry{}}
		tx.s.apps[appID] = app
	}
	return app
}

// AddDepotOwnership records that steamID owns a license touching
// (appID, depotID), appending it to the depot's round-robin account list
// if not already present. Returns true if this is a newly-seen depot for
// this app (the caller then knows to check for a missing decryption key).
func (tx *Tx) AddDepotOwnership(appID, depotID uint32, steamID uint64) (isNewDepot bool) {
	app := tx.ensureApp(appID)
	depot, ok := app.Depots[depotID]
	if !ok {
		depot = &DepotEntry{}
		app.Depots[depotID] = depot
		isNewDepot = true
	}
	for _, id := range depot.Accounts {
		if id == steamID {
			return isNewDepot
		}
	}
	depot.Accounts = append(depot.Accounts, steamID)
	tx.s.stateDirty = true
	tx.s.catalogDirty = true
	return isNewDepot
}

func (tx *Tx) DepotKey(depotID uint32) ([32]byte, bool) {
	k, ok := tx.s.depotKeys[depotID]
	return k, ok
}

func (tx *Tx) SetDepotKey(depotID uint32, key [32]byte) {
	tx.s.depotKeys[depotID] = key
	tx.s.catalogDirty = true
	tx.s.stateDirty = true
}

// NextDepotAccount returns the CM session to ask for the next manifest
// request code for (appID, depotID), advancing the round-robin cursor.
// Returns ok=false if the depot is unknown.
func (tx *Tx) NextDepotAccount(appID, depotID uint32) (steamID uint64, ok bool) {
	app, ok := tx.s.apps[appID]
	if !ok {
		return 0, false
	}
	depot, ok := app.Depots[depotID]
	if !ok || len(depot.Accounts) == 0 {
		return 0, false
	}
	steamID = depot.Accounts[depot.NextIdx]
	depot.NextIdx = (depot.NextIdx + 1) % len(depot.Accounts)
	return steamID, true
}

// prune removes steamID from every depot's account list and erases empty
// depots/apps, per spec.md §4.2's catalog pruning. Called with the
// catalog lock held, from RemoveAccount.
func (tx *Tx) prune(steamID uint64) {
	for appID, app := range tx.s.apps {
		for depotID, depot := range app.Depots {
			depot.Accounts = removeUint64(depot.Accounts, steamID)
			if len(depot.Accounts) == 0 {
				delete(app.Depots, depotID)
			} else if depot.NextIdx >= len(depot.Accounts) {
				depot.NextIdx = 0
			}
		}
		if len(app.Depots) == 0 {
			delete(tx.s.apps, appID)
		}
	}
	tx.s.catalogDirty = true
	tx.s.stateDirty = true
}

func removeUint64(s []uint64, v uint64) []uint64 {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
