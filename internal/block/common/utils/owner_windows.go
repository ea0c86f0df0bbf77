//go:build windows

package utils

// Windows ACLs are inherited from the parent directory.
var elevated = func() bool { return false }

func ownerOf(string) (uid, gid int, ok bool) { return 0, 0, false }
