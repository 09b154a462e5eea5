//go:build !windows

package platform

import (
	"os"
	"os/user"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// SetupUnixSocket applies the mode and ownership spec.md §6.1 requires for
// the "unix:<user>:<group>" listen_endpoint form: mode 0660, owned by the
// named user and group.
func SetupUnixSocket(path, ownerUser, ownerGroup string) error {
	if err := os.Chmod(path, 0660); err != nil {
		return errors.Wrapf(err, "chmod %s", path)
	}

	uid, err := lookupUID(ownerUser)
	if err != nil {
		return err
	}
	gid, err := lookupGID(ownerGroup)
	if err != nil {
		return err
	}
	if err := unix.Chown(path, uid, gid); err != nil {
		return errors.Wrapf(err, "chown %s to %s:%s", path, ownerUser, ownerGroup)
	}
	return nil
}

func lookupUID(name string) (int, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return 0, errors.Wrapf(err, "looking up user %q", name)
	}
	return strconv.Atoi(u.Uid)
}

func lookupGID(name string) (int, error) {
	g, err := user.LookupGroup(name)
	if err != nil {
		return 0, errors.Wrapf(err, "looking up group %q", name)
	}
	return strconv.Atoi(g.Gid)
}
