package statefile

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Settings is the decoded form of settings.json (spec.md §6.1). Unknown
// keys are ignored by encoding/json's default decode behavior, which is
// exactly the tolerance the spec asks for.
type Settings struct {
	ListenEndpoint string `json:"listen_endpoint"`
}

const defaultListenEndpoint = "127.0.0.1:8080"

// LoadSettings reads settings.json from dir, defaulting every field that
// is absent or whose file does not exist at all.
func LoadSettings(dir string) (Settings, error) {
	s := Settings{ListenEndpoint: defaultListenEndpoint}

	path := dir + string(os.PathSeparator) + "settings.json"
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return Settings{}, errors.Wrap(err, "reading settings.json")
	}

	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, errors.Wrap(err, "parsing settings.json")
	}
	if s.ListenEndpoint == "" {
		s.ListenEndpoint = defaultListenEndpoint
	}
	return s, nil
}

// ListenSpec is a parsed listen_endpoint, ready to hand to net.Listen (or,
// for the unix-socket form, to the platform-specific socket setup that
// also applies ownership and mode).
type ListenSpec struct {
	Network string // "tcp" or "unix"
	Address string

	// unix-socket only
	SocketPath string
	OwnerUser  string
	OwnerGroup string
}

// ParseListenEndpoint implements spec.md §6.1's three accepted forms:
// "<ipv4>:<port>", "[<ipv6>]:<port>", and "unix:<user>:<group>". The unix
// form is parsed on every platform; only Unix builds can set the socket up.
func ParseListenEndpoint(raw string) (ListenSpec, error) {
	if strings.HasPrefix(raw, "unix:") {
		parts := strings.SplitN(raw, ":", 3)
		if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
			return ListenSpec{}, fmt.Errorf("listen_endpoint: malformed unix spec %q, want unix:<user>:<group>", raw)
		}
		return ListenSpec{
			Network:    "unix",
			SocketPath: "/run/tek-s3.sock",
			OwnerUser:  parts[1],
			OwnerGroup: parts[2],
		}, nil
	}

	host, portStr, err := net.SplitHostPort(raw)
	if err != nil {
		return ListenSpec{}, fmt.Errorf("listen_endpoint: %q is not <host>:<port>: %w", raw, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return ListenSpec{}, fmt.Errorf("listen_endpoint: port %q out of range [1,65535]", portStr)
	}
	if ip := net.ParseIP(host); ip == nil {
		return ListenSpec{}, fmt.Errorf("listen_endpoint: %q is not a valid IPv4/IPv6 address", host)
	}
	return ListenSpec{Network: "tcp", Address: raw}, nil
}
