package catalog

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/steamcat/steamcat/internal/cmclient"
)

func newTestStore() *Store {
	return New(slog.New(slog.NewTextHandler(discardWriter{}, nil)))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestAddDepotOwnershipTracksNewDepotAndDedupes(t *testing.T) {
	s := newTestStore()

	var firstNew, secondNew bool
	s.WithCatalogLock(func(tx *Tx) {
		firstNew = tx.AddDepotOwnership(10, 100, 0xA)
		secondNew = tx.AddDepotOwnership(10, 100, 0xA)
	})
	require.True(t, firstNew)
	require.False(t, secondNew)

	s.WithCatalogLock(func(tx *Tx) {
		app, ok := tx.App(10)
		require.True(t, ok)
		require.Len(t, app.Depots[100].Accounts, 1)
	})
}

func TestNextDepotAccountRoundRobins(t *testing.T) {
	s := newTestStore()
	s.WithCatalogLock(func(tx *Tx) {
		tx.AddDepotOwnership(10, 100, 1)
		tx.AddDepotOwnership(10, 100, 2)
		tx.AddDepotOwnership(10, 100, 3)
	})

	var seen []uint64
	s.WithCatalogLock(func(tx *Tx) {
		for i := 0; i < 4; i++ {
			id, ok := tx.NextDepotAccount(10, 100)
			require.True(t, ok)
			seen = append(seen, id)
		}
	})
	require.Equal(t, []uint64{1, 2, 3, 1}, seen)
}

func TestRemoveAccountPrunesEmptyDepotsAndApps(t *testing.T) {
	s := newTestStore()
	s.WithCatalogLock(func(tx *Tx) {
		tx.AddAccount(42, "tok", cmclient.TokenInfo{})
		tx.AddDepotOwnership(10, 100, 42)
	})

	s.WithCatalogLock(func(tx *Tx) {
		tx.RemoveAccount(42)
	})

	s.WithCatalogLock(func(tx *Tx) {
		_, ok := tx.Account(42)
		require.False(t, ok)
		_, ok = tx.App(10)
		require.False(t, ok, "app should be pruned once its only depot loses its only account")
	})
}

func TestMarkAccountReadyReportsAllReadyOnce(t *testing.T) {
	s := newTestStore()
	var a1, a2 *Account
	s.WithCatalogLock(func(tx *Tx) {
		a1 = tx.AddAccount(1, "tok1", cmclient.TokenInfo{})
		a2 = tx.AddAccount(2, "tok2", cmclient.TokenInfo{})
	})

	var allReadyAfterFirst, allReadyAfterSecond bool
	s.WithCatalogLock(func(tx *Tx) {
		allReadyAfterFirst = tx.MarkAccountReady(a1)
	})
	require.False(t, allReadyAfterFirst)

	s.WithCatalogLock(func(tx *Tx) {
		allReadyAfterSecond = tx.MarkAccountReady(a2)
	})
	require.True(t, allReadyAfterSecond)
}

func TestSyncRebuildsBuffersAndAcquireDownloadServesIdentity(t *testing.T) {
	s := newTestStore()
	s.WithCatalogLock(func(tx *Tx) {
		tx.AddDepotOwnership(10, 100, 1)
		tx.SetAppName(10, "Half-Life 3")
		var key [32]byte
		tx.SetDepotKey(100, key)
	})

	s.Sync(t.TempDir())

	data, release := s.AcquireDownload("identity-does-not-exist", false)
	defer release()
	require.NotEmpty(t, data)

	parsed, err := ParseJSON(data)
	require.NoError(t, err)
	require.Equal(t, "Half-Life 3", parsed.Apps["10"].Name)
	require.Equal(t, []uint32{100}, parsed.Apps["10"].Depots)
}

func TestSyncIsNoOpWhenNothingDirty(t *testing.T) {
	s := newTestStore()
	s.Sync(t.TempDir())
	require.Zero(t, s.Timestamp())
}
