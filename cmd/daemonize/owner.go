package main

import (
	"fmt"
	"os/user"
	"strconv"
)

// lookupOwner resolves the configured user and group to numeric ids,
// starting from the given defaults. A user without an explicit group runs
// with that user's primary group. Numeric names are accepted even when no
// account exists for them.
func lookupOwner(userName, groupName string, uid, gid int) (int, int, error) {
	if userName != "" {
		u, primary, err := lookupUser(userName)
		if err != nil {
			return 0, 0, err
		}
		uid = u
		if groupName == "" && primary >= 0 {
			gid = primary
		}
	}
	if groupName != "" {
		g, err := lookupGroup(groupName)
		if err != nil {
			return 0, 0, err
		}
		gid = g
	}
	return uid, gid, nil
}

// lookupUser returns the uid and primary gid for name. The gid is -1 for a
// numeric uid with no account.
func lookupUser(name string) (int, int, error) {
	if n, err := strconv.Atoi(name); err == nil && n >= 0 {
		u, err := user.LookupId(name)
		if err != nil {
			return n, -1, nil
		}
		gid, _ := strconv.Atoi(u.Gid)
		return n, gid, nil
	}
	u, err := user.Lookup(name)
	if err != nil {
		return 0, 0, fmt.Errorf("look up user %q: %w", name, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0, 0, fmt.Errorf("user %q has non-numeric uid %q", name, u.Uid)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		gid = -1
	}
	return uid, gid, nil
}

func lookupGroup(name string) (int, error) {
	if n, err := strconv.Atoi(name); err == nil && n >= 0 {
		return n, nil
	}
	g, err := user.LookupGroup(name)
	if err != nil {
		return 0, fmt.Errorf("look up group %q: %w", name, err)
	}
	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return 0, fmt.Errorf("group %q has non-numeric gid %q", name, g.Gid)
	}
	return gid, nil
}
