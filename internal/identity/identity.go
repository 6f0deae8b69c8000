// Package identity implements the user/group database collaborator:
// resolving an application's name to the user identity its sandboxed
// processes run as, and creating or resolving supplementary groups
// named in its configuration.
package identity

import (
	"fmt"
	"os/exec"
	"os/user"
	"strconv"
)

// UserDB is the user/group database collaborator contract.
type UserDB interface {
	// AppToUserName maps an application name to the user name a
	// sandboxed instance of it should run as.
	AppToUserName(appName string) (string, error)
	// IDsOf resolves a user name to its (uid, primary gid).
	IDsOf(userName string) (uid, gid uint32, err error)
	// CreateGroup creates name if absent, or resolves its existing gid,
	// and returns the gid either way.
	CreateGroup(name string) (gid uint32, err error)
}

// OSUserDB is a UserDB backed by the host's user/group database via
// os/user, with group creation shelled out to groupadd the way a real
// embedded Linux userland would (os/user has no group-creation API).
type OSUserDB struct {
	// UserPrefix is prepended to the app name to form the system user
	// name ("app_" + name is a common embedded-framework convention).
	UserPrefix string
}

// NewOSUserDB returns the default OS-backed UserDB.
func NewOSUserDB() *OSUserDB {
	return &OSUserDB{UserPrefix: "app_"}
}

func (d *OSUserDB) AppToUserName(appName string) (string, error) {
	if appName == "" {
		return "", fmt.Errorf("identity: empty app name")
	}
	return d.UserPrefix + appName, nil
}

func (d *OSUserDB) IDsOf(userName string) (uid, gid uint32, err error) {
	u, err := lookupUser(userName)
	if err != nil {
		return 0, 0, fmt.Errorf("identity: resolve user %q: %w", userName, err)
	}
	uid64, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("identity: parse uid %q: %w", u.Uid, err)
	}
	gid64, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("identity: parse gid %q: %w", u.Gid, err)
	}
	return uint32(uid64), uint32(gid64), nil
}

func (d *OSUserDB) CreateGroup(name string) (uint32, error) {
	if g, err := user.LookupGroup(name); err == nil {
		gid64, err := strconv.ParseUint(g.Gid, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("identity: parse gid %q: %w", g.Gid, err)
		}
		return uint32(gid64), nil
	}

	if path, err := exec.LookPath("groupadd"); err == nil {
		if out, err := exec.Command(path, name).CombinedOutput(); err != nil {
			return 0, fmt.Errorf("identity: groupadd %s: %w (%s)", name, err, out)
		}
	} else {
		return 0, fmt.Errorf("identity: group %q does not exist and groupadd is unavailable", name)
	}

	g, err := user.LookupGroup(name)
	if err != nil {
		return 0, fmt.Errorf("identity: lookup group %q after creation: %w", name, err)
	}
	gid64, err := strconv.ParseUint(g.Gid, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("identity: parse gid %q: %w", g.Gid, err)
	}
	return uint32(gid64), nil
}

// lookupUser resolves a username or numeric uid string.
func lookupUser(nameOrID string) (*user.User, error) {
	if _, err := strconv.ParseUint(nameOrID, 10, 32); err == nil {
		return user.LookupId(nameOrID)
	}
	return user.Lookup(nameOrID)
}
