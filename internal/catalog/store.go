// Package catalog holds the proxy's single piece of shared mutable
// state: the account map, the owned app/depot tree, depot decryption
// keys, and the serialized forms handed out over HTTP. spec.md §3
// describes it as one object guarded by a recursive lock; Go has no
// built-in recursive mutex; adapted here as two non-recursive locks with
// strict call-graph hygiene: Store.mu guards the logical catalog
// (accounts/apps/depots/counters/dirty flags) and is never held across a
// call into another locking method, while Store.bufMu is the spec's
// "download lock" — a plain sync.RWMutex is exactly the "reader-count +
// writer-wait pair" spec.md's design notes call for, guarding only the
// serialized buffers so HTTP responses can stream for an unbounded
// duration without blocking catalog mutations. Sync builds new buffers
// outside bufMu and waits behind in-flight readers only to swap them in.
package catalog

import (
	"log/slog"
	"sync"
)

// DepotEntry is one depot's ownership record, spec.md §3. Accounts is
// ordered for round-robin MRC selection; NextIdx always indexes a valid
// element when Accounts is non-empty.
type DepotEntry struct {
	Accounts []uint64
	NextIdx  int
}

// AppEntry is one owned application, spec.md §3.
type AppEntry struct {
	Name            string
	PICSAccessToken uint64
	Depots          map[uint32]*DepotEntry
}

// ProcessStatus is the global process status, spec.md §3.
type ProcessStatus int

const (
	StatusSetup ProcessStatus = iota
	StatusRunning
	StatusStopping
)

type CompressedVariant struct {
	Codec string // "deflate", "br", "zstd"
	Data  []byte
}

// Store is the root catalog object.
type Store struct {
	log *slog.Logger

	mu sync.Mutex

	accounts          map[uint64]*Account
	apps              map[uint32]*AppEntry
	depotKeys         map[uint32][32]byte
	numReadyAccounts  int
	activeConnections int
	catalogDirty      bool
	stateDirty        bool
	status            ProcessStatus

	connDrained chan struct{} // closed when activeConnections reaches 0 while stopping

	bufMu        sync.RWMutex
	timestamp    uint64
	jsonBuf      []byte
	jsonVariants []CompressedVariant
	binBuf       []byte
	binVariants  []CompressedVariant
}

func New(log *slog.Logger) *Store {
	return &Store{
		log:         log,
		accounts:    map[uint64]*Account{},
		apps:        map[uint32]*AppEntry{},
		depotKeys:   map[uint32][32]byte{},
		status:      StatusSetup,
		connDrained: make(chan struct{}),
	}
}

func (s *Store) Status() ProcessStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Store) setStatus(status ProcessStatus) {
	s.status = status
}

// SetStatus transitions the process status; used by the daemon for the
// setup->running and *->stopping transitions.
func (s *Store) SetStatus(status ProcessStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStatus(status)
}

// NumAccounts and NumReadyAccounts implement spec.md §8's
// num_ready_accs <= |accounts| invariant and the setup->running condition.
func (s *Store) NumAccounts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

func (s *Store) NumReadyAccounts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.numReadyAccounts
}

// Timestamp returns the catalog's Last-Modified time (unix seconds).
func (s *Store) Timestamp() uint64 {
	s.bufMu.RLock()
	defer s.bufMu.RUnlock()
	return s.timestamp
}

// AcquireDownload takes the download (reader) lock for the duration of one
// HTTP response and returns the buffer to stream plus a release func.
// Exactly one AcquireDownload/release pair per in-flight response, per
// spec.md §4.3.
func (s *Store) AcquireDownload(codec string, binary bool) (data []byte, release func()) {
	s.bufMu.RLock()
	variants := s.jsonVariants
	buf := s.jsonBuf
	if binary {
		variants = s.binVariants
		buf = s.binBuf
	}
	for _, v := range variants {
		if v.Codec == codec {
			return v.Data, s.bufMu.RUnlock
		}
	}
	return buf, s.bufMu.RUnlock
}

// ForceUnlockForShutdown is a no-op: sync.RWMutex has no force-unlock,
// so the download lock is released only by each response's own
// AcquireDownload release. The daemon's shutdown path does not call it.
func (s *Store) ForceUnlockForShutdown() {}

// WithCatalogLock runs fn with the catalog lock held. Used by the account
// manager and builder, which need multi-step read-modify-write sequences
// against the account/app/depot maps.
func (s *Store) WithCatalogLock(fn func(tx *Tx)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&Tx{s: s})
}

// Tx is the view of Store exposed while the catalog lock is held. Methods
// on Tx never re-lock s.mu themselves.
type Tx struct{ s *Store }

func (tx *Tx) Log() *slog.Logger { return tx.s.log }
