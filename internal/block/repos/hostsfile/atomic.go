package hostsfile

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
)

const defaultPerm fs.FileMode = 0o644

// writeFileAtomic replaces path with data via a synced temp file and rename,
// keeping the existing file mode. When the rename is refused because path is a
// mount point (a bind-mounted /etc/hosts in containers), it falls back to an
// in-place truncate and write.
func writeFileAtomic(path string, data []byte) (err error) {
	perm := defaultPerm
	if info, statErr := os.Stat(path); statErr == nil {
		perm = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".restraint-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmpName, perm); err != nil {
		return err
	}

	if err = os.Rename(tmpName, path); err != nil {
		if !errors.Is(err, syscall.EBUSY) && !errors.Is(err, syscall.EXDEV) {
			return err
		}
		_ = os.Remove(tmpName)
		err = writeInPlace(path, data, perm)
		return err
	}
	return nil
}

// writeInPlace truncates and rewrites path through a single handle.
func writeInPlace(path string, data []byte, perm fs.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
