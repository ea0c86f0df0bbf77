package utils

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// MkdirAllOwned creates dir like os.MkdirAll. When running as root, every
// directory it creates takes the owner of the nearest existing ancestor, so a
// privileged run inside a user's home leaves the tree usable by that user.
func MkdirAllOwned(dir string, perm fs.FileMode) error {
	created := missingDirs(dir)
	if err := os.MkdirAll(dir, perm); err != nil {
		return err
	}
	if len(created) == 0 || !elevated() {
		return nil
	}
	uid, gid, ok := ownerOf(filepath.Dir(created[len(created)-1]))
	if !ok {
		return nil
	}
	for _, d := range created {
		if err := os.Lchown(d, uid, gid); err != nil {
			return err
		}
	}
	return nil
}

// MatchParentOwner gives path the owner of its directory when running as root.
func MatchParentOwner(path string) error {
	if !elevated() {
		return nil
	}
	uid, gid, ok := ownerOf(filepath.Dir(path))
	if !ok {
		return nil
	}
	fuid, fgid, ok := ownerOf(path)
	if !ok || (fuid == uid && fgid == gid) {
		return nil
	}
	return os.Lchown(path, uid, gid)
}

// missingDirs lists the directories MkdirAll(dir) would create, deepest first.
func missingDirs(dir string) []string {
	var out []string
	for d := filepath.Clean(dir); ; {
		if _, err := os.Stat(d); !errors.Is(err, fs.ErrNotExist) {
			return out
		}
		out = append(out, d)
		parent := filepath.Dir(d)
		if parent == d {
			return out
		}
		d = parent
	}
}
