// Package pty attaches a pseudo-terminal to container consoles.
package pty

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/creack/pty"

	"craftfleet/internal/fleet"
)

var _ fleet.ConsoleAttacher = Attacher{}

// Attacher runs `docker attach` under a pty and waits for the first byte of
// console output. The engine only streams a console to later web socket
// attaches once a tty-backed client has attached.
type Attacher struct {
	Docker  string
	Timeout time.Duration
}

func (a Attacher) Attach(ctx context.Context, containerName string) error {
	cmd := exec.CommandContext(ctx, a.Docker, "attach", "--sig-proxy=false", containerName)
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("attach pty to %s: %w", containerName, err)
	}
	defer func() {
		_ = ptmx.Close()
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	read := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		_, err := ptmx.Read(buf)
		read <- err
	}()

	timer := time.NewTimer(a.Timeout)
	defer timer.Stop()
	select {
	case err := <-read:
		// EOF or EIO once the attach client exits; either way it attached.
		if err != nil {
			slog.Debug("console read ended", "component", "pty", "container", containerName, "err", err)
		}
	case <-timer.C:
		slog.Debug("no console output before timeout", "component", "pty", "container", containerName, "timeout", a.Timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
