package logging

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnabledGatesByLevel(t *testing.T) {
	h := New(slog.LevelWarn)
	require.False(t, h.Enabled(nil, slog.LevelInfo))
	require.True(t, h.Enabled(nil, slog.LevelWarn))
	require.True(t, h.Enabled(nil, slog.LevelError))
}

func TestWithAttrsAndWithGroupFlattenDottedKeys(t *testing.T) {
	h := New(slog.LevelInfo).WithAttrs([]slog.Attr{slog.String("steam_id", "42")}).WithGroup("mrc")

	hh, ok := h.(*handler)
	require.True(t, ok)
	require.Equal(t, []string{"mrc"}, hh.groups)
	require.Len(t, hh.attrs, 1)
	require.Equal(t, "steam_id", hh.attrs[0].Key)
}

func TestWithGroupNoOpOnEmptyName(t *testing.T) {
	h := New(slog.LevelInfo)
	require.Same(t, h, h.WithGroup(""))
}
