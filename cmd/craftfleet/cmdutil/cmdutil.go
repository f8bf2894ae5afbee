package cmdutil

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"craftfleet/internal/controlplane"
	"craftfleet/internal/fleet"
	"craftfleet/internal/settings"
)

// GlobalFlags are the root persistent flags shared by every subcommand.
type GlobalFlags struct {
	Debug         bool
	ConfigPath    string
	LogFormat     string
	NoInteraction bool
}

// Bind registers the flags on the root command.
func (f *GlobalFlags) Bind(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&f.ConfigPath, "config", "", "Settings file (YAML)")
	cmd.PersistentFlags().StringVar(&f.LogFormat, "log-format", "text", "Log format: text or json")
	cmd.PersistentFlags().BoolVar(&f.NoInteraction, "no-interaction", false, "Disable spinners and colors")
}

// Open loads settings and builds a production control plane. The caller
// closes it.
func Open(ctx context.Context, flags *GlobalFlags) (*controlplane.Plane, error) {
	s, err := settings.Load(flags.ConfigPath)
	if err != nil {
		return nil, err
	}
	return controlplane.NewProduction(ctx, s)
}

// WithPlane opens the control plane, runs fn and closes it.
func WithPlane(ctx context.Context, flags *GlobalFlags, fn func(p *controlplane.Plane) error) error {
	p, err := Open(ctx, flags)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()
	return fn(p)
}

// Describe turns an error into a one-line message with a hint for the
// failures an operator can act on.
func Describe(err error) string {
	var (
		protected *fleet.ProtectedError
		tool      *fleet.ToolError
	)
	switch {
	case errors.Is(err, fleet.ErrRetryLater):
		return err.Error() + " (retry once it finishes)"
	case errors.As(err, &protected):
		return err.Error() + " (unset general.enable_env_protection, or pick another environment)"
	case errors.As(err, &tool):
		out := strings.TrimSpace(tool.Output)
		if out == "" {
			return err.Error()
		}
		return fmt.Sprintf("%s exited with code %d:\n%s", tool.Tool, tool.ExitCode, out)
	default:
		return err.Error()
	}
}

// SplitList splits a comma-separated flag value and drops empty entries.
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
