package docker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/docker/docker/client"
)

const pingInterval = time.Second

// WaitReady blocks until the daemon answers a ping. Connection failures are
// retried until ctx is done; any other ping error is returned immediately.
func WaitReady(ctx context.Context, cli *client.Client) error {
	log := slog.With("component", "docker")
	logged := false
	for {
		_, err := cli.Ping(ctx)
		switch {
		case err == nil:
			if logged {
				log.Info("docker daemon reachable")
			}
			return nil
		case !client.IsErrConnectionFailed(err):
			return fmt.Errorf("ping docker daemon: %w", err)
		case !logged:
			logged = true
			log.Info("waiting for docker daemon", "err", err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for docker daemon: %w", ctx.Err())
		case <-time.After(pingInterval):
		}
	}
}
