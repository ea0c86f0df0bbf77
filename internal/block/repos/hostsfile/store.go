package hostsfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/haukened/restraint/internal/block/common/log"
	"github.com/haukened/restraint/internal/block/domain"
)

// stagedFileName is the working copy name inside the staging directory.
const stagedFileName = "hosts.staged"

// Options configures a Store.
type Options struct {
	// Path is the system hosts file.
	Path string
	// Mode selects direct or staged access; ModeAuto is resolved here.
	Mode Mode
	// StagingDir holds the staged copy in ModeStaged.
	StagingDir string
	// Elevator commits the staged copy. Required in ModeStaged.
	Elevator Elevator
	Logger   log.Logger
}

// Store reads and writes the system hosts file. It is the only component that
// mutates that file and knows nothing about block semantics.
type Store struct {
	path   string
	access access
	logger log.Logger
}

// New resolves the access mode and returns a Store.
func New(opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("hosts path must not be empty")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	var a access
	switch mode := ResolveMode(opts.Mode); mode {
	case ModeDirect:
		a = &directAccess{path: opts.Path}
	case ModeStaged:
		if opts.Elevator == nil {
			return nil, fmt.Errorf("staged hosts access requires an elevator")
		}
		if opts.StagingDir == "" {
			return nil, fmt.Errorf("staged hosts access requires a staging directory")
		}
		a = &stagedAccess{
			path:      opts.Path,
			stagePath: filepath.Join(opts.StagingDir, stagedFileName),
			elevator:  opts.Elevator,
		}
	default:
		return nil, fmt.Errorf("unsupported hosts mode: %q", opts.Mode)
	}

	logger.Debug(map[string]any{"path": opts.Path, "mode": a.mode()}, "hosts_store_ready")
	return &Store{path: opts.Path, access: a, logger: logger}, nil
}

// Path returns the system hosts file path.
func (s *Store) Path() string { return s.path }

// Mode returns the resolved access mode.
func (s *Store) Mode() Mode { return s.access.mode() }

// ReadAll returns the current content of the system hosts file.
func (s *Store) ReadAll(_ context.Context) (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", classify("read", s.path, err)
	}
	return string(data), nil
}

// StageCopy snapshots the system file to the staging location and returns the
// path that will be written on Commit. Under direct access it returns the
// system path and copies nothing.
func (s *Store) StageCopy(ctx context.Context) (string, error) {
	var current []byte
	if s.access.mode() == ModeStaged {
		content, err := s.ReadAll(ctx)
		if err != nil {
			return "", err
		}
		current = []byte(content)
	}
	staged, err := s.access.stage(current)
	if err != nil {
		return "", classify("stage", s.path, err)
	}
	s.logger.Debug(map[string]any{"staged_path": staged}, "hosts_staged")
	return staged, nil
}

// Commit makes content the system hosts file's content. Permission failures are
// returned as domain.ErrPermission and are never retried here.
func (s *Store) Commit(ctx context.Context, content string) error {
	if err := s.access.commit(ctx, []byte(content)); err != nil {
		if errors.Is(err, domain.ErrPermission) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return classify("commit", s.path, err)
	}
	s.logger.Info(map[string]any{"path": s.path, "bytes": len(content), "mode": s.access.mode()}, "hosts_committed")
	return nil
}

// Discard removes the staged copy, if any.
func (s *Store) Discard() error {
	return s.access.discard()
}

// classify maps file errors onto the domain taxonomy.
func classify(op, path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s %s: %v", domain.ErrHostsNotFound, op, path, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s %s: %v", domain.ErrPermission, op, path, err)
	default:
		return fmt.Errorf("%s %s: %w", op, path, err)
	}
}
