package controlplane

import (
	"context"

	"github.com/spf13/afero"

	"craftfleet/internal/adapter/docker"
	"craftfleet/internal/adapter/exec"
	"craftfleet/internal/adapter/pty"
	"craftfleet/internal/settings"
)

// NewProduction creates a Plane over the host filesystem, the Docker engine
// named by the environment, and the docker CLI for compose and attach.
func NewProduction(ctx context.Context, s settings.Settings, opts ...Option) (*Plane, error) {
	rt, err := docker.NewRuntime()
	if err != nil {
		return nil, err
	}
	if err := rt.WaitReady(ctx); err != nil {
		_ = rt.Close() // best-effort cleanup
		return nil, err
	}

	base := []Option{
		WithFs(afero.NewOsFs()),
		WithRuntime(rt),
		WithRunner(exec.Runner{}),
		WithAttacher(pty.Attacher{Docker: s.DockerBinary, Timeout: s.ConsoleAttachTimeout}),
	}
	p, err := New(s, append(base, opts...)...)
	if err != nil {
		_ = rt.Close() // best-effort cleanup
		return nil, err
	}
	return p, nil
}
