// Package container operates an environment's containers: the cluster
// through `docker compose` over the generated artifacts, single containers
// through the engine API.
package container

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	composetypes "github.com/compose-spec/compose-go/v2/types"
	"github.com/docker/go-connections/nat"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"craftfleet/internal/artifact"
	"craftfleet/internal/envconfig"
	"craftfleet/internal/fleet"
	"craftfleet/internal/settings"
	"craftfleet/internal/telemetry"
)

// composeServiceLabel is set by docker compose on every container it creates.
const composeServiceLabel = "com.docker.compose.service"

// Container is a container as defined by the compose artifact or as
// reported live by the engine. State and Status are empty for definitions.
type Container struct {
	Name     string            `json:"name"`
	Service  string            `json:"service,omitempty"`
	Env      string            `json:"env"`
	Logical  string            `json:"logical_name,omitempty"`
	Type     string            `json:"type,omitempty"`
	Image    string            `json:"image"`
	Labels   map[string]string `json:"labels,omitempty"`
	Mounts   []fleet.Mount     `json:"mounts,omitempty"`
	Networks []string          `json:"networks,omitempty"`
	Ports    []string          `json:"ports,omitempty"`
	State    string            `json:"state,omitempty"`
	Status   string            `json:"status,omitempty"`
}

// Orchestrator drives container lifecycle for environments.
type Orchestrator struct {
	settings settings.Settings
	layout   artifact.Layout
	fs       afero.Fs
	rt       fleet.ContainerRuntime
	runner   fleet.CommandRunner
	attacher fleet.ConsoleAttacher
	tracer   trace.Tracer
	log      *slog.Logger
}

type Option func(*Orchestrator)

func WithTracer(t trace.Tracer) Option { return func(o *Orchestrator) { o.tracer = t } }

func New(s settings.Settings, fsys afero.Fs, rt fleet.ContainerRuntime, runner fleet.CommandRunner, attacher fleet.ConsoleAttacher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		settings: s,
		layout:   artifact.Layout{RepoRoot: s.RepoRoot},
		fs:       fsys,
		rt:       rt,
		runner:   runner,
		attacher: attacher,
		tracer:   otel.Tracer("craftfleet/container"),
		log:      slog.With("component", "container"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ListDefined returns the containers the compose artifact of env declares,
// with ${VAR} references resolved from the generated env file.
func (o *Orchestrator) ListDefined(ctx context.Context, env string) ([]Container, error) {
	if _, err := envconfig.ParseName(env); err != nil {
		return nil, err
	}
	composePath := o.layout.ComposeFile(env)
	data, err := o.readArtifact(composePath)
	if err != nil {
		return nil, err
	}
	vars, err := o.envFileVars(env)
	if err != nil {
		return nil, err
	}

	project, err := loader.LoadWithContext(ctx, composetypes.ConfigDetails{
		WorkingDir:  o.settings.RepoRoot,
		ConfigFiles: []composetypes.ConfigFile{{Filename: composePath, Content: data}},
		Environment: composetypes.Mapping(vars),
	}, func(opts *loader.Options) {
		opts.SetProjectName(env, true)
		opts.SkipResolveEnvironment = true
	})
	if err != nil {
		return nil, fmt.Errorf("parse compose artifact %s: %w", composePath, err)
	}

	out := make([]Container, 0, len(project.Services))
	for key, svc := range project.Services {
		c := Container{
			Name:    svc.ContainerName,
			Service: key,
			Image:   svc.Image,
			Labels:  map[string]string(svc.Labels),
		}
		if c.Name == "" {
			c.Name = key
		}
		for _, v := range svc.Volumes {
			if v.Target == "" {
				continue
			}
			c.Mounts = append(c.Mounts, fleet.Mount{Source: v.Source, Target: v.Target, ReadOnly: v.ReadOnly})
		}
		for name := range svc.Networks {
			c.Networks = append(c.Networks, name)
		}
		sort.Strings(c.Networks)
		for _, p := range svc.Ports {
			c.Ports = append(c.Ports, formatPort(p.HostIP, p.Published, p.Target, p.Protocol))
		}
		o.fillFromLabels(&c)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListActive returns every container the engine knows carrying the env
// label of env, running or not. None is not an error.
func (o *Orchestrator) ListActive(ctx context.Context, env string) ([]Container, error) {
	if _, err := envconfig.ParseName(env); err != nil {
		return nil, err
	}
	entries, err := o.rt.ContainerList(ctx, map[string]string{o.label(fleet.LabelEnv): env})
	if err != nil {
		return nil, fmt.Errorf("list containers of %s: %w", env, err)
	}

	out := make([]Container, 0, len(entries))
	for _, e := range entries {
		c := Container{
			Name:     e.Name,
			Image:    e.Image,
			Labels:   e.Labels,
			Mounts:   e.Mounts,
			Networks: e.Networks,
			State:    e.State,
			Status:   e.Status,
		}
		for _, p := range e.Ports {
			c.Ports = append(c.Ports, formatPort(p.HostIP, p.HostPort, p.ContainerPort, p.Protocol))
		}
		o.fillFromLabels(&c)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (o *Orchestrator) fillFromLabels(c *Container) {
	c.Env = c.Labels[o.label(fleet.LabelEnv)]
	c.Logical = c.Labels[o.label(fleet.LabelName)]
	c.Type = c.Labels[o.label(fleet.LabelType)]
	if svc := c.Labels[composeServiceLabel]; svc != "" {
		c.Service = svc
	}
}

func (o *Orchestrator) label(key string) string {
	return fleet.LabelKey(o.settings.LabelPrefix, key)
}

func (o *Orchestrator) readArtifact(path string) ([]byte, error) {
	data, err := afero.ReadFile(o.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &fleet.NotFoundError{Kind: "artifact", Name: path}
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func (o *Orchestrator) envFileVars(env string) (map[string]string, error) {
	data, err := o.readArtifact(o.layout.EnvFile(env))
	if err != nil {
		return nil, err
	}
	vars, err := godotenv.UnmarshalBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse env file of %s: %w", env, err)
	}
	return vars, nil
}

func (o *Orchestrator) startOp(ctx context.Context, name string, steps []string, attrs ...attribute.KeyValue) (*telemetry.Operation, error) {
	return telemetry.Start(ctx, o.tracer, name, steps, attrs...)
}

// formatPort renders a port the way `docker ps` does: [ip:hostPort->]port/proto.
func formatPort(hostIP, hostPort string, containerPort uint32, proto string) string {
	proto = strings.ToLower(strings.TrimSpace(proto))
	if proto == "" {
		proto = "tcp"
	}
	port, err := nat.NewPort(proto, strconv.FormatUint(uint64(containerPort), 10))
	if err != nil {
		return fmt.Sprintf("%d/%s", containerPort, proto)
	}
	if hostPort == "" {
		return string(port)
	}
	if hostIP == "" {
		hostIP = "0.0.0.0"
	}
	return hostIP + ":" + hostPort + "->" + string(port)
}
