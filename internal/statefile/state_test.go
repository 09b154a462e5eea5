package statefile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadReturnsEmptyStateWhenFileMissing(t *testing.T) {
	st, err := Load(t.TempDir())
	require.NoError(t, err)
	require.Empty(t, st.Accounts)
	require.NotNil(t, st.Apps)
	require.NotNil(t, st.DepotKeys)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	want := &State{
		Timestamp: 12345,
		Accounts:  []string{"tok-a", "tok-b"},
		Apps: map[string]StateApp{
			"10": {Depots: []uint32{100, 200}},
		},
		DepotKeys: map[string]string{"100": "deadbeef"},
	}

	require.NoError(t, Save(dir, want))

	got, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, want.Timestamp, got.Timestamp)
	require.Equal(t, want.Accounts, got.Accounts)
	require.Equal(t, want.Apps, got.Apps)
	require.Equal(t, want.DepotKeys, got.DepotKeys)
}

func TestSaveLeavesNoTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Save(dir, &State{}))

	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	require.Empty(t, matches)
}
