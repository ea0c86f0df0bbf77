package elevation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/restraint/internal/block/common/log"
	"github.com/haukened/restraint/internal/block/domain"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses unix copy semantics")
	}
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestCommandElevator_NoPrefixCopies(t *testing.T) {
	skipOnWindows(t)
	src := writeTemp(t, "staged", "0.0.0.0\tfoo.com\n")
	dst := writeTemp(t, "hosts", "127.0.0.1 localhost\n")

	e := NewCommandElevator(nil, log.NewNoopLogger())
	require.NoError(t, e.CopyFile(context.Background(), src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0\tfoo.com\n", string(got))
}

func TestCommandElevator_PrefixIsPrepended(t *testing.T) {
	skipOnWindows(t)
	src := writeTemp(t, "staged", "new\n")
	dst := writeTemp(t, "hosts", "old\n")

	// env runs the remaining argv unchanged, standing in for sudo/pkexec
	e := NewCommandElevator([]string{" env ", ""}, log.NewNoopLogger())
	assert.Equal(t, []string{"env"}, e.Command())
	require.NoError(t, e.CopyFile(context.Background(), src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new\n", string(got))
}

func TestCommandElevator_DismissedPromptIsPermissionError(t *testing.T) {
	skipOnWindows(t)
	src := writeTemp(t, "staged", "new\n")
	dst := writeTemp(t, "hosts", "old\n")

	e := NewCommandElevator([]string{"false"}, log.NewNoopLogger())
	err := e.CopyFile(context.Background(), src, dst)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPermission)

	got, readErr := os.ReadFile(dst)
	require.NoError(t, readErr)
	assert.Equal(t, "old\n", string(got), "destination must be untouched")
}

func TestCommandElevator_WriteFailureIsNotPermissionError(t *testing.T) {
	skipOnWindows(t)
	src := writeTemp(t, "staged", "new\n")
	dst := writeTemp(t, "hosts", "old\n")

	// stands in for an elevated cp that ran out of disk
	full := []string{"sh", "-c", "echo \"cp: error writing '$2': No space left on device\" >&2; exit 1", "sh"}
	e := NewCommandElevator(full, log.NewNoopLogger())
	err := e.CopyFile(context.Background(), src, dst)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrPermission)
	assert.Contains(t, err.Error(), "No space left on device")
}

func TestCommandElevator_DeniedCopyIsPermissionError(t *testing.T) {
	skipOnWindows(t)
	denied := []string{"sh", "-c", "echo \"cp: cannot create regular file '$2': Permission denied\" >&2; exit 1", "sh"}
	e := NewCommandElevator(denied, log.NewNoopLogger())
	err := e.CopyFile(context.Background(), "a", "b")
	assert.ErrorIs(t, err, domain.ErrPermission)
}

func TestIsWriteFailure(t *testing.T) {
	assert.True(t, isWriteFailure("cp: error writing '/etc/hosts': No space left on device"))
	assert.True(t, isWriteFailure("cp: cannot create regular file '/etc/hosts': Read-only file system"))
	assert.True(t, isWriteFailure("There is not enough space on the disk."))
	assert.False(t, isWriteFailure("sudo: a password is required"))
	assert.False(t, isWriteFailure(""))
}

func TestCommandElevator_MissingBinaryIsPermissionError(t *testing.T) {
	e := NewCommandElevator([]string{"restraint-no-such-elevator"}, log.NewNoopLogger())
	err := e.CopyFile(context.Background(), "a", "b")
	assert.ErrorIs(t, err, domain.ErrPermission)
}

func TestCommandElevator_CancelledContext(t *testing.T) {
	orig := runCommand
	defer func() { runCommand = orig }()
	runCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("killed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := NewCommandElevator([]string{"pkexec"}, log.NewNoopLogger())
	err := e.CopyFile(ctx, "a", "b")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrPermission)
}

func TestCommandElevator_Argv(t *testing.T) {
	orig := runCommand
	defer func() { runCommand = orig }()
	var gotName string
	var gotArgs []string
	runCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return nil, nil
	}

	e := NewCommandElevator([]string{"sudo", "-n"}, log.NewNoopLogger())
	require.NoError(t, e.CopyFile(context.Background(), "/tmp/staged", "/etc/hosts"))
	assert.Equal(t, "sudo", gotName)
	assert.Equal(t, append([]string{"-n"}, copyArgs("/tmp/staged", "/etc/hosts")...), gotArgs)
}
