package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"craftfleet/internal/fleet"
)

var _ fleet.ContainerRuntime = (*Runtime)(nil)

// Runtime implements fleet.ContainerRuntime using the Docker Engine API.
type Runtime struct {
	cli *client.Client
	log *slog.Logger
}

// NewRuntime creates a Runtime with a Docker client configured from the
// environment (DOCKER_HOST and friends).
func NewRuntime() (*Runtime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return NewRuntimeFromClient(cli), nil
}

func NewRuntimeFromClient(cli *client.Client) *Runtime {
	return &Runtime{cli: cli, log: slog.With("component", "docker")}
}

func (r *Runtime) WaitReady(ctx context.Context) error {
	return WaitReady(ctx, r.cli)
}

func (r *Runtime) ContainerInspect(ctx context.Context, name string) (fleet.ContainerInfo, error) {
	info, err := r.cli.ContainerInspect(ctx, name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return fleet.ContainerInfo{Exists: false}, nil
		}
		return fleet.ContainerInfo{}, fmt.Errorf("inspect container %q: %w", name, err)
	}
	out := fleet.ContainerInfo{
		ID:      info.ID,
		Exists:  true,
		Running: info.State != nil && info.State.Running,
	}
	if info.Config != nil {
		out.Labels = info.Config.Labels
	}
	return out, nil
}

// ContainerList lists containers in any state whose labels match every
// entry of labelFilter.
func (r *Runtime) ContainerList(ctx context.Context, labelFilter map[string]string) ([]fleet.ContainerListEntry, error) {
	args := filters.NewArgs()
	for k, v := range labelFilter {
		args.Add("label", k+"="+v)
	}
	summaries, err := r.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	out := make([]fleet.ContainerListEntry, 0, len(summaries))
	for _, s := range summaries {
		entry := fleet.ContainerListEntry{
			Name:    containerName(s.Names, s.ID),
			Image:   s.Image,
			State:   s.State,
			Status:  s.Status,
			Running: s.State == container.StateRunning,
			Labels:  s.Labels,
		}
		for _, m := range s.Mounts {
			entry.Mounts = append(entry.Mounts, fleet.Mount{Source: m.Source, Target: m.Destination, ReadOnly: !m.RW})
		}
		if s.NetworkSettings != nil {
			for name := range s.NetworkSettings.Networks {
				entry.Networks = append(entry.Networks, name)
			}
			sort.Strings(entry.Networks)
		}
		for _, p := range s.Ports {
			port := fleet.Port{HostIP: p.IP, ContainerPort: uint32(p.PrivatePort), Protocol: p.Type}
			if p.PublicPort != 0 {
				port.HostPort = strconv.Itoa(int(p.PublicPort))
			}
			entry.Ports = append(entry.Ports, port)
		}
		out = append(out, entry)
	}
	return out, nil
}

func (r *Runtime) ContainerStart(ctx context.Context, name string) error {
	return notFound(name, r.cli.ContainerStart(ctx, name, container.StartOptions{}))
}

func (r *Runtime) ContainerStop(ctx context.Context, name string) error {
	return notFound(name, r.cli.ContainerStop(ctx, name, container.StopOptions{}))
}

func (r *Runtime) ContainerRestart(ctx context.Context, name string) error {
	return notFound(name, r.cli.ContainerRestart(ctx, name, container.StopOptions{}))
}

func (r *Runtime) ContainerExec(ctx context.Context, name string, cmd []string) (fleet.ExecResult, error) {
	created, err := r.cli.ContainerExecCreate(ctx, name, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return fleet.ExecResult{}, notFound(name, fmt.Errorf("create exec: %w", err))
	}
	attach, err := r.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return fleet.ExecResult{}, fmt.Errorf("attach exec: %w", err)
	}
	defer attach.Close()

	// One buffer for both streams keeps their arrival order.
	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, attach.Reader); err != nil {
		return fleet.ExecResult{}, fmt.Errorf("read exec output: %w", err)
	}
	inspect, err := r.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return fleet.ExecResult{}, fmt.Errorf("inspect exec: %w", err)
	}
	return fleet.ExecResult{Output: buf.Bytes(), ExitCode: inspect.ExitCode}, nil
}

// ContainerRun creates and starts a container, waits for it to exit,
// collects its logs and removes it. The image is pulled when missing.
// Cancelling ctx aborts creation and start only; a started container is
// always waited for before it is removed.
func (r *Runtime) ContainerRun(ctx context.Context, cfg fleet.ContainerRunConfig) (fleet.ExecResult, error) {
	cc := &container.Config{
		Image:  cfg.Image,
		Cmd:    cfg.Cmd,
		Env:    cfg.Env,
		Labels: cfg.Labels,
	}
	hc := &container.HostConfig{NetworkMode: container.NetworkMode(cfg.NetworkMode)}
	for _, m := range cfg.Mounts {
		hc.Mounts = append(hc.Mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	created, err := r.cli.ContainerCreate(ctx, cc, hc, nil, nil, cfg.Name)
	if errdefs.IsNotFound(err) {
		if err := r.pull(ctx, cfg.Image); err != nil {
			return fleet.ExecResult{}, err
		}
		created, err = r.cli.ContainerCreate(ctx, cc, hc, nil, nil, cfg.Name)
	}
	if err != nil {
		return fleet.ExecResult{}, fmt.Errorf("create container %q: %w", cfg.Name, err)
	}
	detached := context.WithoutCancel(ctx)
	defer func() {
		if err := r.cli.ContainerRemove(detached, created.ID, container.RemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
			r.log.Warn("remove finished container", "container", cfg.Name, "id", created.ID, "err", err)
		}
	}()

	waitCh, errCh := r.cli.ContainerWait(detached, created.ID, container.WaitConditionNextExit)
	if err := r.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return fleet.ExecResult{}, fmt.Errorf("start container %q: %w", cfg.Name, err)
	}

	var exitCode int
	select {
	case res := <-waitCh:
		exitCode = int(res.StatusCode)
		if res.Error != nil && res.Error.Message != "" {
			r.log.Warn("container wait reported error", "container", cfg.Name, "err", res.Error.Message)
		}
	case err := <-errCh:
		return fleet.ExecResult{}, fmt.Errorf("wait container %q: %w", cfg.Name, err)
	case <-ctx.Done():
		r.log.Warn("interrupted, waiting for container to exit", "container", cfg.Name)
		select {
		case res := <-waitCh:
			exitCode = int(res.StatusCode)
		case err := <-errCh:
			return fleet.ExecResult{}, fmt.Errorf("wait container %q: %w", cfg.Name, err)
		}
	}

	logs, err := r.cli.ContainerLogs(detached, created.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return fleet.ExecResult{ExitCode: exitCode}, fmt.Errorf("container logs %q: %w", cfg.Name, err)
	}
	defer logs.Close()
	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, logs); err != nil {
		return fleet.ExecResult{ExitCode: exitCode}, fmt.Errorf("read container logs %q: %w", cfg.Name, err)
	}
	return fleet.ExecResult{Output: buf.Bytes(), ExitCode: exitCode}, nil
}

func (r *Runtime) pull(ctx context.Context, img string) error {
	r.log.Info("pulling image", "image", img)
	rc, err := r.cli.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %q: %w", img, err)
	}
	defer rc.Close()
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("pull image %q: %w", img, err)
	}
	return nil
}

func (r *Runtime) Close() error {
	return r.cli.Close()
}

func notFound(name string, err error) error {
	if err == nil {
		return nil
	}
	if errdefs.IsNotFound(err) {
		return &fleet.NotFoundError{Kind: "container", Name: name}
	}
	return err
}

// containerName returns the primary name of a container as reported by the
// list endpoint, which prefixes names with "/".
func containerName(names []string, id string) string {
	for _, n := range names {
		n = strings.TrimPrefix(n, "/")
		if !strings.Contains(n, "/") {
			return n
		}
	}
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
