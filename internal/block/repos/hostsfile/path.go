package hostsfile

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultPath returns the system hosts file location for the running platform.
func DefaultPath() string {
	if runtime.GOOS == "windows" {
		root := os.Getenv("SystemRoot")
		if root == "" {
			root = `C:\Windows`
		}
		return filepath.Join(root, "System32", "drivers", "etc", "hosts")
	}
	return "/etc/hosts"
}
