package hostsfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Mode selects how the system hosts file is written.
type Mode string

const (
	// ModeAuto picks direct when the process can write the system file, staged otherwise.
	ModeAuto Mode = "auto"
	// ModeDirect writes the system file in place.
	ModeDirect Mode = "direct"
	// ModeStaged edits a staged copy and has an Elevator copy it over the system file.
	ModeStaged Mode = "staged"
)

// ParseMode converts a string into a Mode (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeAuto, ModeDirect, ModeStaged:
		return m, nil
	default:
		return "", fmt.Errorf("unsupported hosts mode: %q", s)
	}
}

// geteuid is swapped in tests.
var geteuid = os.Geteuid

// ResolveMode turns ModeAuto into a concrete mode once, at startup.
// Windows and root processes write directly; everything else stages.
func ResolveMode(m Mode) Mode {
	if m != ModeAuto {
		return m
	}
	if runtime.GOOS == "windows" || geteuid() == 0 {
		return ModeDirect
	}
	return ModeStaged
}

// Elevator performs the privileged "copy src over dst" step.
type Elevator interface {
	CopyFile(ctx context.Context, src, dst string) error
}

// access is the platform hosts access capability: one implementation per Mode.
type access interface {
	mode() Mode
	// stage snapshots the system file and returns the path that Commit will write.
	stage(current []byte) (string, error)
	// commit makes content the system file's content.
	commit(ctx context.Context, content []byte) error
	// discard removes any staged copy.
	discard() error
}

// directAccess writes the system file itself.
type directAccess struct {
	path string
}

func (a *directAccess) mode() Mode { return ModeDirect }

func (a *directAccess) stage([]byte) (string, error) { return a.path, nil }

func (a *directAccess) commit(_ context.Context, content []byte) error {
	return writeFileAtomic(a.path, content)
}

func (a *directAccess) discard() error { return nil }

// stagedAccess writes a working copy and elevates only the final copy.
type stagedAccess struct {
	path      string
	stagePath string
	elevator  Elevator
}

func (a *stagedAccess) mode() Mode { return ModeStaged }

func (a *stagedAccess) stage(current []byte) (string, error) {
	if err := os.MkdirAll(filepath.Dir(a.stagePath), 0o700); err != nil {
		return "", err
	}
	if err := writeFileAtomic(a.stagePath, current); err != nil {
		return "", err
	}
	return a.stagePath, nil
}

func (a *stagedAccess) commit(ctx context.Context, content []byte) error {
	if _, err := a.stage(content); err != nil {
		return err
	}
	return a.elevator.CopyFile(ctx, a.stagePath, a.path)
}

func (a *stagedAccess) discard() error {
	if err := os.Remove(a.stagePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
