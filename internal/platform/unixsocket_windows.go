//go:build windows

package platform

import "errors"

// SetupUnixSocket always fails on Windows: ParseListenEndpoint accepts the
// unix:<user>:<group> form on every platform, but there is no Windows
// implementation of it, so settings.json on Windows must use the host:port
// form.
func SetupUnixSocket(path, ownerUser, ownerGroup string) error {
	return errors.New("unix-socket listen_endpoint is not supported on Windows")
}
