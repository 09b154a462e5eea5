package catalog

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/steamcat/steamcat/internal/statefile"
)

func buildToken(t *testing.T, steamID uint64, expiry time.Time) string {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"sub": strconv.FormatUint(steamID, 10),
		"exp": expiry.Unix(),
	})
	require.NoError(t, err)
	return "header." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}

func TestLoadStateDropsExpiredTokensAndRestoresDepotKeys(t *testing.T) {
	s := newTestStore()
	now := time.Now()

	valid := buildToken(t, 1, now.Add(24*time.Hour))
	expired := buildToken(t, 2, now.Add(-time.Hour))

	var key [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))

	st := &statefile.State{
		Accounts:  []string{valid, expired},
		DepotKeys: map[string]string{"100": base64.StdEncoding.EncodeToString(key[:])},
	}

	loaded := LoadState(s, st, now)
	require.Len(t, loaded, 1, "only the unexpired token should load")

	s.WithCatalogLock(func(tx *Tx) {
		_, ok := tx.DepotKey(100)
		require.True(t, ok)
	})
}

func TestLoadStateSkipsMalformedDepotKeys(t *testing.T) {
	s := newTestStore()
	st := &statefile.State{
		DepotKeys: map[string]string{"100": "not-valid-base64!!"},
	}
	LoadState(s, st, time.Now())

	s.WithCatalogLock(func(tx *Tx) {
		_, ok := tx.DepotKey(100)
		require.False(t, ok)
	})
}
