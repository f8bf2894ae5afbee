package fleet

import (
	"context"
	"time"
)

// Clock abstracts time.Now() for deterministic testing.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// ContainerRuntime abstracts container engine operations.
// Production: adapter/docker.Runtime (wrapping Docker *client.Client)
// Testing: adapter/fake.ContainerRuntime
type ContainerRuntime interface {
	// Daemon health
	WaitReady(ctx context.Context) error

	// Container lifecycle
	ContainerInspect(ctx context.Context, name string) (ContainerInfo, error)
	ContainerList(ctx context.Context, labelFilter map[string]string) ([]ContainerListEntry, error)
	ContainerStart(ctx context.Context, name string) error
	ContainerStop(ctx context.Context, name string) error
	ContainerRestart(ctx context.Context, name string) error

	// ContainerExec runs cmd inside a running container and returns stdout
	// and stderr interleaved in arrival order.
	ContainerExec(ctx context.Context, name string, cmd []string) (ExecResult, error)

	// ContainerRun creates, starts and waits for a disposable container,
	// returning its merged output. The container is removed afterwards.
	ContainerRun(ctx context.Context, cfg ContainerRunConfig) (ExecResult, error)

	Close() error
}

// CommandRunner runs host processes (docker compose, docker attach).
// Production: adapter/exec.Runner
// Testing: adapter/fake.CommandRunner
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (CommandResult, error)
}

// ConsoleAttacher attaches a pseudo-terminal to a container console.
// Production: adapter/pty.Attacher
// Testing: adapter/fake.ConsoleAttacher
type ConsoleAttacher interface {
	Attach(ctx context.Context, containerName string) error
}

// ContainerInfo describes the state of a container.
type ContainerInfo struct {
	ID      string
	Exists  bool
	Running bool
	Labels  map[string]string
}

// ContainerListEntry is one container as reported live by the engine.
type ContainerListEntry struct {
	Name     string
	Image    string
	State    string
	Status   string
	Running  bool
	Labels   map[string]string
	Mounts   []Mount
	Networks []string
	Ports    []Port
}

// ContainerRunConfig holds parameters for a disposable container.
type ContainerRunConfig struct {
	Name        string
	Image       string
	Cmd         []string
	Env         []string
	NetworkMode string
	Labels      map[string]string
	Mounts      []Mount
}

// Mount describes a bind mount for a container.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// Port is a published or exposed container port.
type Port struct {
	HostIP        string
	HostPort      string
	ContainerPort uint32
	Protocol      string
}

// ExecResult is the output and exit status of a process in a container.
type ExecResult struct {
	Output   []byte
	ExitCode int
}

// Command is a host process invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string
}

// CommandResult holds the captured output of a host process.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Combined returns stdout followed by stderr, trimmed.
func (r CommandResult) Combined() string {
	out, errOut := trimSpace(r.Stdout), trimSpace(r.Stderr)
	switch {
	case errOut == "":
		return out
	case out == "":
		return errOut
	default:
		return out + "\n" + errOut
	}
}
