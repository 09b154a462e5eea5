package catalog

import (
	"github.com/steamcat/steamcat/internal/cmclient"
)

// RemovalState tracks spec.md §3's {none, pending-remove, remove-now}
// account removal flag.
type RemovalState int

const (
	RemovalNone RemovalState = iota
	RemovalPendingRemove
	RemovalRemoveNow
)

// RenewalState tracks spec.md §3's {not-scheduled, pending-schedule,
// scheduled} renewal-job flag. The Manager does not update Account.Renewal;
// renewal jobs are handed to renewalScheduler's command channel instead.
type RenewalState int

const (
	RenewalNotScheduled RenewalState = iota
	RenewalPendingSchedule
	RenewalScheduled
)

// Account is one registered Steam account and its upstream session.
// Every field is mutated only while the owning Store's lock is held.
type Account struct {
	SteamID   uint64
	Token     string
	TokenInfo cmclient.TokenInfo
	Session   cmclient.Session

	Removal RemovalState
	Renewal RenewalState

	// PendingDepotKeys is the work set of depot IDs this account still
	// needs to fetch decryption keys for.
	PendingDepotKeys map[uint32]struct{}

	// InFlightDepotKeys is the current burst batch (spec.md §4.2: bursts
	// of 5, one dispatched at a time within the burst).
	InFlightDepotKeys map[uint32]struct{}

	// Ready becomes true once this account's initial catalog sweep (get
	// licenses through PICS app info) has completed once.
	Ready bool
}

func newAccount(steamID uint64, token string, info cmclient.TokenInfo) *Account {
	return &Account{
		SteamID:           steamID,
		Token:             token,
		TokenInfo:         info,
		PendingDepotKeys:  map[uint32]struct{}{},
		InFlightDepotKeys: map[uint32]struct{}{},
	}
}
