// Package exec runs host processes for the control plane.
package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	osexec "os/exec"
	"strings"

	"craftfleet/internal/fleet"
)

var _ fleet.CommandRunner = Runner{}

// Runner implements fleet.CommandRunner with os/exec. A process that starts
// and exits non-zero is not an error: the exit code and output are returned
// for the caller to judge.
type Runner struct{}

func (Runner) Run(ctx context.Context, c fleet.Command) (fleet.CommandResult, error) {
	cmd := osexec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("run command", "component", "exec", "cmd", c.Name, "args", strings.Join(c.Args, " "), "dir", c.Dir)
	err := cmd.Run()
	res := fleet.CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *osexec.ExitError
	switch {
	case err == nil:
		return res, nil
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	default:
		return res, fmt.Errorf("run %s: %w", c.Name, err)
	}
}
