package fake

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"craftfleet/internal/fleet"
)

var _ fleet.ContainerRuntime = (*ContainerRuntime)(nil)

// ContainerRuntime is an in-memory fleet.ContainerRuntime. Containers are
// seeded with AddContainer; disposable runs are answered by RunFunc.
type ContainerRuntime struct {
	CallRecorder
	mu         sync.Mutex
	ready      bool
	containers map[string]*fleet.ContainerListEntry

	// RunFunc answers ContainerRun. The default returns empty output.
	RunFunc func(ctx context.Context, cfg fleet.ContainerRunConfig) (fleet.ExecResult, error)
	// ExecFunc answers ContainerExec on a running container.
	ExecFunc func(ctx context.Context, name string, cmd []string) (fleet.ExecResult, error)

	WaitReadyErr        func(ctx context.Context) error
	ContainerInspectErr func(ctx context.Context, name string) error
	ContainerListErr    func(ctx context.Context, labelFilter map[string]string) error
	ContainerStartErr   func(ctx context.Context, name string) error
	ContainerStopErr    func(ctx context.Context, name string) error
	ContainerRestartErr func(ctx context.Context, name string) error
}

// NewContainerRuntime creates a ContainerRuntime that is ready by default.
func NewContainerRuntime() *ContainerRuntime {
	return &ContainerRuntime{
		ready:      true,
		containers: make(map[string]*fleet.ContainerListEntry),
	}
}

// AddContainer registers a container. Its Running field sets the initial state.
func (r *ContainerRuntime) AddContainer(entry fleet.ContainerListEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := entry
	c.Labels = maps.Clone(entry.Labels)
	r.containers[entry.Name] = &c
}

// RemoveContainer forgets a container.
func (r *ContainerRuntime) RemoveContainer(name string) {
	r.mu.Lock()
	delete(r.containers, name)
	r.mu.Unlock()
}

// SetReady controls whether WaitReady succeeds.
func (r *ContainerRuntime) SetReady(ready bool) {
	r.mu.Lock()
	r.ready = ready
	r.mu.Unlock()
}

func (r *ContainerRuntime) WaitReady(ctx context.Context) error {
	r.record("WaitReady")
	if r.WaitReadyErr != nil {
		if err := r.WaitReadyErr(ctx); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ready {
		return fmt.Errorf("container runtime not ready")
	}
	return nil
}

func (r *ContainerRuntime) ContainerInspect(ctx context.Context, name string) (fleet.ContainerInfo, error) {
	r.record("ContainerInspect", name)
	if r.ContainerInspectErr != nil {
		if err := r.ContainerInspectErr(ctx, name); err != nil {
			return fleet.ContainerInfo{}, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.containers[name]
	if !ok {
		return fleet.ContainerInfo{}, nil
	}
	return fleet.ContainerInfo{
		ID:      "fake-" + name,
		Exists:  true,
		Running: c.Running,
		Labels:  maps.Clone(c.Labels),
	}, nil
}

func (r *ContainerRuntime) ContainerList(ctx context.Context, labelFilter map[string]string) ([]fleet.ContainerListEntry, error) {
	r.record("ContainerList", labelFilter)
	if r.ContainerListErr != nil {
		if err := r.ContainerListErr(ctx, labelFilter); err != nil {
			return nil, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []fleet.ContainerListEntry
	for _, c := range r.containers {
		if !matchLabels(c.Labels, labelFilter) {
			continue
		}
		entry := *c
		entry.Labels = maps.Clone(c.Labels)
		if entry.Running {
			entry.State = "running"
		} else if entry.State == "" {
			entry.State = "exited"
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *ContainerRuntime) ContainerStart(ctx context.Context, name string) error {
	r.record("ContainerStart", name)
	if r.ContainerStartErr != nil {
		if err := r.ContainerStartErr(ctx, name); err != nil {
			return err
		}
	}
	return r.setRunning(name, true)
}

func (r *ContainerRuntime) ContainerStop(ctx context.Context, name string) error {
	r.record("ContainerStop", name)
	if r.ContainerStopErr != nil {
		if err := r.ContainerStopErr(ctx, name); err != nil {
			return err
		}
	}
	return r.setRunning(name, false)
}

func (r *ContainerRuntime) ContainerRestart(ctx context.Context, name string) error {
	r.record("ContainerRestart", name)
	if r.ContainerRestartErr != nil {
		if err := r.ContainerRestartErr(ctx, name); err != nil {
			return err
		}
	}
	return r.setRunning(name, true)
}

func (r *ContainerRuntime) ContainerExec(ctx context.Context, name string, cmd []string) (fleet.ExecResult, error) {
	r.record("ContainerExec", name, cmd)
	r.mu.Lock()
	c, ok := r.containers[name]
	running := ok && c.Running
	r.mu.Unlock()
	if !ok {
		return fleet.ExecResult{}, &fleet.NotFoundError{Kind: "container", Name: name}
	}
	if !running {
		return fleet.ExecResult{}, fmt.Errorf("container %q is not running", name)
	}
	if r.ExecFunc != nil {
		return r.ExecFunc(ctx, name, cmd)
	}
	return fleet.ExecResult{}, nil
}

func (r *ContainerRuntime) ContainerRun(ctx context.Context, cfg fleet.ContainerRunConfig) (fleet.ExecResult, error) {
	r.record("ContainerRun", cfg)
	if r.RunFunc != nil {
		return r.RunFunc(ctx, cfg)
	}
	return fleet.ExecResult{}, nil
}

func (r *ContainerRuntime) Close() error {
	r.record("Close")
	return nil
}

// RunConfigs returns the config of every ContainerRun call in order.
func (r *ContainerRuntime) RunConfigs() []fleet.ContainerRunConfig {
	calls := r.Calls("ContainerRun")
	out := make([]fleet.ContainerRunConfig, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Args[0].(fleet.ContainerRunConfig))
	}
	return out
}

func (r *ContainerRuntime) setRunning(name string, running bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.containers[name]
	if !ok {
		return &fleet.NotFoundError{Kind: "container", Name: name}
	}
	c.Running = running
	return nil
}

func matchLabels(labels, filter map[string]string) bool {
	for k, v := range filter {
		if labels[k] != v {
			return false
		}
	}
	return true
}
