package elevation

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/haukened/restraint/internal/block/common/log"
	"github.com/haukened/restraint/internal/block/domain"
)

// runCommand executes the copy and returns its combined output.
// It is a variable so tests can observe or replace process execution.
var runCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// CommandElevator copies a file over a privileged path by running the platform
// copy command behind an elevation prefix such as "pkexec" or "sudo".
// An empty prefix runs the copy with the caller's own privileges.
type CommandElevator struct {
	prefix []string
	logger log.Logger
}

// NewCommandElevator returns an elevator that prefixes the copy with command.
func NewCommandElevator(command []string, logger log.Logger) *CommandElevator {
	prefix := make([]string, 0, len(command))
	for _, c := range command {
		if c = strings.TrimSpace(c); c != "" {
			prefix = append(prefix, c)
		}
	}
	return &CommandElevator{prefix: prefix, logger: logger}
}

// writeFailures are copy diagnostics that mean the elevated copy ran and the
// write itself failed.
var writeFailures = []string{
	"no space left on device",
	"disk quota exceeded",
	"input/output error",
	"read-only file system",
	"there is not enough space on the disk",
}

// CopyFile copies src over dst. A copy that ran and reported a write failure
// such as a full disk returns a plain error. Every other failure of the
// elevated step, including a dismissed prompt or a missing elevation binary, is
// reported as domain.ErrPermission. A cancelled context is reported as the
// context error.
func (e *CommandElevator) CopyFile(ctx context.Context, src, dst string) error {
	argv := append(append([]string{}, e.prefix...), copyArgs(src, dst)...)
	e.logger.Debug(map[string]any{"argv": argv}, "elevated_copy_start")

	out, err := runCommand(ctx, argv[0], argv[1:]...)
	if err == nil {
		e.logger.Debug(map[string]any{"dst": dst}, "elevated_copy_done")
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	detail := strings.TrimSpace(string(out))
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		e.logger.Warn(map[string]any{"exit_code": exitErr.ExitCode(), "output": detail}, "elevated_copy_failed")
		if isWriteFailure(detail) {
			return fmt.Errorf("write %s: %s exited with code %d: %s", dst, argv[0], exitErr.ExitCode(), detail)
		}
		return fmt.Errorf("%w: %s exited with code %d: %s", domain.ErrPermission, argv[0], exitErr.ExitCode(), detail)
	}
	e.logger.Warn(map[string]any{"error": err}, "elevated_copy_failed")
	return fmt.Errorf("%w: run %s: %v", domain.ErrPermission, argv[0], err)
}

func isWriteFailure(output string) bool {
	output = strings.ToLower(output)
	for _, marker := range writeFailures {
		if strings.Contains(output, marker) {
			return true
		}
	}
	return false
}

// Command returns the elevation prefix in use.
func (e *CommandElevator) Command() []string {
	return append([]string{}, e.prefix...)
}

// copyArgs returns the platform command that copies src over dst.
func copyArgs(src, dst string) []string {
	if runtime.GOOS == "windows" {
		return []string{"cmd", "/C", "copy", "/Y", src, dst}
	}
	return []string{"cp", src, dst}
}
