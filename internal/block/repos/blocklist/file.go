package blocklist

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	logpkg "github.com/haukened/restraint/internal/block/common/log"
	"github.com/haukened/restraint/internal/block/common/utils"
	"github.com/haukened/restraint/internal/block/domain"
)

// DefaultContent seeds a newly created blocklist file.
const DefaultContent = "# Add one website per line #\nexample.com\n"

// ErrNotFound reports that the blocklist file does not exist yet.
var ErrNotFound = errors.New("blocklist file not found")

// FileSource is the list editor backed by a plain text file in the state directory.
type FileSource struct {
	path   string
	logger logpkg.Logger
}

// NewFileSource returns a FileSource for path.
func NewFileSource(path string, logger logpkg.Logger) (*FileSource, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: blocklist path is empty", domain.ErrValidation)
	}
	if logger == nil {
		logger = logpkg.NewNoopLogger()
	}
	return &FileSource{path: path, logger: logger}, nil
}

// Path returns the blocklist file path.
func (f *FileSource) Path() string { return f.path }

// EnsureDefault creates the blocklist with DefaultContent when it is missing.
// created reports whether a file was written.
func (f *FileSource) EnsureDefault() (created bool, err error) {
	if _, err := os.Stat(f.path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat blocklist: %w", err)
	}
	if err := f.write([]byte(DefaultContent)); err != nil {
		return false, err
	}
	f.logger.Info(map[string]any{"path": f.path}, "blocklist_created")
	return true, nil
}

// Load parses the blocklist file. Invalid lines are skipped and logged.
func (f *FileSource) Load() (domain.DomainList, error) {
	fh, err := os.Open(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.DomainList{}, fmt.Errorf("%w: %s", ErrNotFound, f.path)
		}
		return domain.DomainList{}, fmt.Errorf("open blocklist: %w", err)
	}
	defer fh.Close()
	return ParseList(fh, f.path, f.logger)
}

// Add appends entry to the file unless its normalized name is already listed.
// It returns the normalized name and whether the file changed.
func (f *FileSource) Add(entry string) (name string, added bool, err error) {
	name, skip, err := domain.NormalizeDomain(entry)
	if err != nil {
		return "", false, err
	}
	if skip {
		return "", false, fmt.Errorf("%w: %q is not a site", domain.ErrValidation, entry)
	}
	raw, err := f.readRaw()
	if err != nil {
		return "", false, err
	}
	for _, line := range splitLines(raw) {
		if n, _, err := domain.NormalizeDomain(line); err == nil && n == name {
			return name, false, nil
		}
	}
	if len(raw) > 0 && !bytes.HasSuffix(raw, []byte("\n")) {
		raw = append(raw, '\n')
	}
	raw = append(raw, name...)
	raw = append(raw, '\n')
	if err := f.write(raw); err != nil {
		return "", false, err
	}
	f.logger.Info(map[string]any{"name": name}, "blocklist_entry_added")
	return name, true, nil
}

// Remove deletes every line whose normalized name matches entry. Comments and
// unrelated lines are kept as written.
func (f *FileSource) Remove(entry string) (removed bool, err error) {
	name, skip, err := domain.NormalizeDomain(entry)
	if err != nil {
		return false, err
	}
	if skip {
		return false, fmt.Errorf("%w: %q is not a site", domain.ErrValidation, entry)
	}
	raw, err := f.readRaw()
	if err != nil {
		return false, err
	}
	var out strings.Builder
	for _, line := range splitLines(raw) {
		if n, _, err := domain.NormalizeDomain(line); err == nil && n == name {
			removed = true
			continue
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	if !removed {
		return false, nil
	}
	if err := f.write([]byte(out.String())); err != nil {
		return false, err
	}
	f.logger.Info(map[string]any{"name": name}, "blocklist_entry_removed")
	return true, nil
}

func (f *FileSource) readRaw() ([]byte, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read blocklist: %w", err)
	}
	return raw, nil
}

// write replaces the file via a temp file in the same directory.
func (f *FileSource) write(data []byte) error {
	dir := filepath.Dir(f.path)
	if err := utils.MkdirAllOwned(dir, 0o755); err != nil {
		return fmt.Errorf("create blocklist directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".blocklist-*")
	if err != nil {
		return fmt.Errorf("write blocklist: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write blocklist: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write blocklist: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("write blocklist: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("write blocklist: %w", err)
	}
	return utils.MatchParentOwner(f.path)
}

func splitLines(raw []byte) []string {
	s := strings.TrimSuffix(string(raw), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
