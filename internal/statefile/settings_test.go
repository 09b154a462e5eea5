package statefile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadSettingsDefaultsWhenFileMissing(t *testing.T) {
	s, err := LoadSettings(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, defaultListenEndpoint, s.ListenEndpoint)
}

func TestLoadSettingsReadsListenEndpoint(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte(`{"listen_endpoint":"0.0.0.0:9000"}`), 0o644))

	s, err := LoadSettings(dir)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", s.ListenEndpoint)
}

func TestParseListenEndpointTCP(t *testing.T) {
	spec, err := ParseListenEndpoint("127.0.0.1:8080")
	require.NoError(t, err)
	require.Equal(t, "tcp", spec.Network)
	require.Equal(t, "127.0.0.1:8080", spec.Address)
}

func TestParseListenEndpointIPv6(t *testing.T) {
	spec, err := ParseListenEndpoint("[::1]:8080")
	require.NoError(t, err)
	require.Equal(t, "tcp", spec.Network)
}

func TestParseListenEndpointUnixSocket(t *testing.T) {
	spec, err := ParseListenEndpoint("unix:steam:steam")
	require.NoError(t, err)
	require.Equal(t, "unix", spec.Network)
	require.Equal(t, "/run/tek-s3.sock", spec.SocketPath)
	require.Equal(t, "steam", spec.OwnerUser)
	require.Equal(t, "steam", spec.OwnerGroup)
}

func TestParseListenEndpointRejectsBadPort(t *testing.T) {
	_, err := ParseListenEndpoint("127.0.0.1:99999")
	require.Error(t, err)
}

func TestParseListenEndpointRejectsMalformedUnixSpec(t *testing.T) {
	_, err := ParseListenEndpoint("unix:steam")
	require.Error(t, err)
}
