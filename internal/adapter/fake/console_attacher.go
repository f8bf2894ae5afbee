package fake

import (
	"context"

	"craftfleet/internal/fleet"
)

var _ fleet.ConsoleAttacher = (*ConsoleAttacher)(nil)

type ConsoleAttacher struct {
	CallRecorder
	AttachErr error
}

func (a *ConsoleAttacher) Attach(_ context.Context, containerName string) error {
	a.record("Attach", containerName)
	return a.AttachErr
}
