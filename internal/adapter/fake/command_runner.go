package fake

import (
	"context"
	"strings"

	"craftfleet/internal/fleet"
)

var _ fleet.CommandRunner = (*CommandRunner)(nil)

// CommandRunner records host commands instead of running them.
type CommandRunner struct {
	CallRecorder

	// RunFunc answers Run. The default succeeds with empty output.
	RunFunc func(ctx context.Context, cmd fleet.Command) (fleet.CommandResult, error)
}

func (r *CommandRunner) Run(ctx context.Context, cmd fleet.Command) (fleet.CommandResult, error) {
	r.record("Run", cmd)
	if r.RunFunc != nil {
		return r.RunFunc(ctx, cmd)
	}
	return fleet.CommandResult{}, nil
}

// Commands returns every recorded command line, space-joined.
func (r *CommandRunner) Commands() []string {
	calls := r.Calls("Run")
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		cmd := c.Args[0].(fleet.Command)
		out = append(out, strings.Join(append([]string{cmd.Name}, cmd.Args...), " "))
	}
	return out
}
