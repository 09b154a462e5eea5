package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleApps() (map[uint32]*AppEntry, map[uint32][32]byte) {
	apps := map[uint32]*AppEntry{
		10: {
			Name:            "Half-Life 3",
			PICSAccessToken: 999,
			Depots: map[uint32]*DepotEntry{
				100: {Accounts: []uint64{1}},
				9:   {Accounts: []uint64{1}},
			},
		},
		2: {
			Name:   "Portal 3",
			Depots: map[uint32]*DepotEntry{200: {Accounts: []uint64{2}}},
		},
	}
	keys := map[uint32][32]byte{100: {1, 2, 3}, 9: {9}}
	return apps, keys
}

func TestBuildJSONOrdersKeysNumericallyNotAlphabetically(t *testing.T) {
	apps, keys := sampleApps()
	data := buildJSON(apps, keys)

	// "2" must appear before "10" — alphabetic marshal would reverse this.
	idx2 := indexOf(t, string(data), `"2":`)
	idx10 := indexOf(t, string(data), `"10":`)
	require.Less(t, idx2, idx10)

	parsed, err := ParseJSON(data)
	require.NoError(t, err)
	require.Equal(t, "Half-Life 3", parsed.Apps["10"].Name)
	require.Equal(t, []uint32{9, 100}, parsed.Apps["10"].Depots, "depot IDs within an app are also numerically ordered")
	require.Len(t, parsed.DepotKeys, 2)
}

func TestBuildBinaryRoundTripsAndVerifiesCRC(t *testing.T) {
	apps, keys := sampleApps()
	data := buildBinary(apps, keys)

	parsed, err := ParseBinary(data)
	require.NoError(t, err)
	require.Len(t, parsed.Apps, 2)
	require.Len(t, parsed.DepotKeys, 2)

	var gotNames []string
	for _, a := range parsed.Apps {
		gotNames = append(gotNames, a.Name)
	}
	require.Contains(t, gotNames, "Half-Life 3")
	require.Contains(t, gotNames, "Portal 3")
}

func TestParseBinaryRejectsCorruptedCRC(t *testing.T) {
	apps, keys := sampleApps()
	data := buildBinary(apps, keys)
	data[0] ^= 0xFF

	_, err := ParseBinary(data)
	require.Error(t, err)
}

func indexOf(t *testing.T, haystack, needle string) int {
	t.Helper()
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	t.Fatalf("expected to find %q in %q", needle, haystack)
	return -1
}
