package catalog

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/steamcat/steamcat/internal/cmclient"
)

func newTestManager(t *testing.T) (*Manager, *Store) {
	t.Helper()
	s := newTestStore()
	m := NewManager(s, nil, t.TempDir(), testLogger())
	return m, s
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

// Binary VDF tag bytes, mirrored from the internal/vdf grammar (unexported
// there) so this package's tests can hand-assemble fixture payloads.
const (
	binTagNested = 0x00
	binTagInt32  = 0x02
	binTagEnd    = 0x08
)

// buildBinaryPackage hand-assembles a binary-VDF package document with the
// given app and depot ID lists.
func buildBinaryPackage(t *testing.T, pkgID uint32, appIDs, depotIDs []int32) []byte {
	t.Helper()
	var data []byte
	data = append(data, binTagNested)
	data = append(data, []byte(uint32ToString(pkgID)+"\x00")...)

	writeIntArray := func(key string, vals []int32) {
		data = append(data, binTagNested)
		data = append(data, []byte(key+"\x00")...)
		for i, v := range vals {
			data = append(data, binTagInt32)
			data = append(data, []byte(uint32ToString(uint32(i))+"\x00")...)
			data = append(data, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
		}
		data = append(data, binTagEnd)
	}
	writeIntArray("appids", appIDs)
	writeIntArray("depotids", depotIDs)

	data = append(data, binTagEnd)
	data = append(data, binTagEnd)
	return data
}

func uint32ToString(v uint32) string {
	if v == 0 {
		return "0"
	}
	digits := ""
	for v > 0 {
		digits = string(rune('0'+v%10)) + digits
		v /= 10
	}
	return digits
}

func TestResolvePackagesUnionsAppsAndSharesDepotsWithinAPackage(t *testing.T) {
	pkg := buildBinaryPackage(t, 1234, []int32{10, 20}, []int32{100, 200})
	appIDs, appDepots := resolvePackages(map[uint32][]byte{1234: pkg}, testLogger())

	require.ElementsMatch(t, []uint32{10, 20}, appIDs)
	require.ElementsMatch(t, []uint32{100, 200}, appDepots[10])
	require.ElementsMatch(t, []uint32{100, 200}, appDepots[20])
}

func TestResolvePackagesSkipsUnparsablePayloads(t *testing.T) {
	appIDs, appDepots := resolvePackages(map[uint32][]byte{1: {0xFF, 0xFF}}, testLogger())
	require.Empty(t, appIDs)
	require.Empty(t, appDepots)
}

func TestDedupeUint32PreservesFirstOccurrenceOrder(t *testing.T) {
	out := dedupeUint32([]uint32{3, 1, 3, 2, 1})
	require.Equal(t, []uint32{3, 1, 2}, out)
}

func TestApplyAppInfoRecordsNameDepotsAndQueuesMissingKeys(t *testing.T) {
	m, s := newTestManager(t)

	appInfo := `
"appinfo"
{
	"common"
	{
		"name"		"Half-Life 3"
	}
	"depots"
	{
		"workshopdepot"		"500"
		"300"
		{
			"manifests"
			{
				"public"	"1"
			}
		}
	}
}
`
	apps := map[uint32][]byte{10: []byte(appInfo)}
	appDepots := map[uint32][]uint32{10: {999}}
	tokens := []cmclient.AppAccessToken{{AppID: 10, AccessToken: 555}}

	a := newAccount(1, "tok", cmclient.TokenInfo{})
	m.applyAppInfo(a, apps, appDepots, tokens)

	s.WithCatalogLock(func(tx *Tx) {
		app, ok := tx.App(10)
		require.True(t, ok)
		require.Equal(t, "Half-Life 3", app.Name)
		require.EqualValues(t, 555, app.PICSAccessToken)

		var depotIDs []uint32
		for id := range app.Depots {
			depotIDs = append(depotIDs, id)
		}
		require.ElementsMatch(t, []uint32{300, 500, 999}, depotIDs)
	})

	require.Len(t, a.PendingDepotKeys, 3, "every newly-seen depot with no known key should be queued")
}

func TestApplyAppInfoSkipsQueueingDepotsThatAlreadyHaveAKey(t *testing.T) {
	m, s := newTestManager(t)
	s.WithCatalogLock(func(tx *Tx) {
		var key [32]byte
		tx.SetDepotKey(300, key)
	})

	appInfo := `
"appinfo"
{
	"common" { "name" "Portal 3" }
	"depots"
	{
		"300" { "manifests" { "public" "1" } }
	}
}
`
	a := newAccount(1, "tok", cmclient.TokenInfo{})
	m.applyAppInfo(a, map[uint32][]byte{10: []byte(appInfo)}, nil, nil)

	require.Empty(t, a.PendingDepotKeys)
}
