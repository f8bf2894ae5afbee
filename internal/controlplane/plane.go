// Package controlplane is the single entry point the CLI talks to. It wires
// the provisioning, container and backup orchestrators over one set of
// adapters and resolves environment names before delegating.
package controlplane

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/trace"

	"craftfleet/internal/artifact"
	"craftfleet/internal/backup"
	"craftfleet/internal/container"
	"craftfleet/internal/envconfig"
	"craftfleet/internal/fleet"
	"craftfleet/internal/generate"
	"craftfleet/internal/provision"
	"craftfleet/internal/settings"
	"craftfleet/internal/templates"
)

type Plane struct {
	settings  settings.Settings
	rt        fleet.ContainerRuntime
	provision *provision.Provisioner
	container *container.Orchestrator
	backup    *backup.Orchestrator
	log       *slog.Logger
}

type planeCfg struct {
	fs       afero.Fs
	rt       fleet.ContainerRuntime
	runner   fleet.CommandRunner
	attacher fleet.ConsoleAttacher
	clock    fleet.Clock
	tracer   trace.Tracer
}

// Option configures a Plane.
type Option func(*planeCfg)

// WithFs sets the filesystem every artifact is read from and written to.
// NewProduction uses the host filesystem.
func WithFs(fsys afero.Fs) Option {
	return func(c *planeCfg) { c.fs = fsys }
}

// WithRuntime injects the container engine.
// NewProduction wires adapter/docker.Runtime.
func WithRuntime(rt fleet.ContainerRuntime) Option {
	return func(c *planeCfg) { c.rt = rt }
}

// WithRunner injects the host process runner used for docker compose.
func WithRunner(r fleet.CommandRunner) Option {
	return func(c *planeCfg) { c.runner = r }
}

// WithAttacher injects the console attacher.
func WithAttacher(a fleet.ConsoleAttacher) Option {
	return func(c *planeCfg) { c.attacher = a }
}

func WithClock(clock fleet.Clock) Option {
	return func(c *planeCfg) { c.clock = clock }
}

func WithTracer(t trace.Tracer) Option {
	return func(c *planeCfg) { c.tracer = t }
}

// New builds a Plane from settings and injected adapters. The filesystem,
// runtime, runner and attacher are required.
func New(s settings.Settings, opts ...Option) (*Plane, error) {
	cfg := planeCfg{clock: fleet.RealClock{}}
	for _, o := range opts {
		o(&cfg)
	}
	if err := validatePlaneConfig(cfg); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	w := artifact.NewWriter(cfg.fs)
	tpls := templates.NewStore(cfg.fs, s.TemplatesDir)
	gen := generate.New(s, w, tpls)

	var (
		containerOpts []container.Option
		backupOpts    = []backup.Option{backup.WithClock(cfg.clock)}
	)
	if cfg.tracer != nil {
		containerOpts = append(containerOpts, container.WithTracer(cfg.tracer))
		backupOpts = append(backupOpts, backup.WithTracer(cfg.tracer))
	}

	return &Plane{
		settings:  s,
		rt:        cfg.rt,
		provision: provision.New(s, w, gen),
		container: container.New(s, cfg.fs, cfg.rt, cfg.runner, cfg.attacher, containerOpts...),
		backup:    backup.New(s, cfg.rt, w, backupOpts...),
		log:       slog.With("component", "controlplane"),
	}, nil
}

func validatePlaneConfig(cfg planeCfg) error {
	var missing []error
	if cfg.fs == nil {
		missing = append(missing, errors.New("filesystem is required"))
	}
	if cfg.rt == nil {
		missing = append(missing, errors.New("container runtime is required"))
	}
	if cfg.runner == nil {
		missing = append(missing, errors.New("command runner is required"))
	}
	if cfg.attacher == nil {
		missing = append(missing, errors.New("console attacher is required"))
	}
	if len(missing) > 0 {
		return fmt.Errorf("configure control plane: %w", errors.Join(missing...))
	}
	return nil
}

// Close releases the container runtime.
func (p *Plane) Close() error {
	return p.rt.Close()
}

// CreateEnvironment provisions a new environment and returns it. Steps after
// input validation log their failures and never abort; use Provision to
// inspect them.
func (p *Plane) CreateEnvironment(ctx context.Context, port int, alias, description, flavor string, protect bool) (envconfig.Environment, error) {
	res, err := p.Provision(ctx, provision.Request{
		Port:        port,
		Alias:       alias,
		Description: description,
		Flavor:      flavor,
		Protect:     protect,
	})
	if err != nil {
		return envconfig.Environment{}, err
	}
	return res.Env, nil
}

// Provision is CreateEnvironment with the per-step outcome.
func (p *Plane) Provision(ctx context.Context, req provision.Request) (provision.Result, error) {
	res, err := p.provision.Create(ctx, req)
	if err != nil {
		return res, err
	}
	for _, stepErr := range res.Errors {
		p.log.Warn("provisioning step failed", "env", res.Env.Name, "step", stepErr.Step, "err", stepErr.Err)
	}
	return res, nil
}

func (p *Plane) DeleteEnvironment(ctx context.Context, name string) (bool, error) {
	return p.provision.Delete(ctx, name)
}

// RegenerateArtifacts recompiles every generated file of name from its
// source config.
func (p *Plane) RegenerateArtifacts(ctx context.Context, name string) error {
	_, err := p.provision.Regenerate(ctx, name)
	return err
}

func (p *Plane) ListEnvironments(ctx context.Context) ([]envconfig.Environment, error) {
	return p.provision.List(ctx)
}

// Environment loads a single environment by name.
func (p *Plane) Environment(name string) (envconfig.Environment, error) {
	return p.provision.Load(name)
}

// ProxyRoutes returns the forced-host and try-order table env's proxy is
// generated with.
func (p *Plane) ProxyRoutes(name string) (generate.Routes, error) {
	env, err := p.provision.Load(name)
	if err != nil {
		return generate.Routes{}, err
	}
	return generate.ProxyRoutes(env), nil
}

// ContainerUp starts one container of env, or the whole cluster when
// containerName is empty. Bringing the cluster up regenerates its artifacts
// first so edits to the source config take effect.
func (p *Plane) ContainerUp(ctx context.Context, env, containerName string) (string, error) {
	if containerName != "" {
		return p.container.UpOne(ctx, env, containerName)
	}
	if err := p.RegenerateArtifacts(ctx, env); err != nil {
		return "", err
	}
	return p.container.Up(ctx, env)
}

func (p *Plane) ContainerDown(ctx context.Context, env, containerName string) (string, error) {
	if containerName != "" {
		return p.container.DownOne(ctx, env, containerName)
	}
	return p.container.Down(ctx, env)
}

func (p *Plane) ContainerRestart(ctx context.Context, env, containerName string) (string, error) {
	if containerName != "" {
		return p.container.RestartOne(ctx, env, containerName)
	}
	return p.container.Restart(ctx, env)
}

// ListDefinedContainers returns the containers env's compose artifact
// declares, whether or not they exist.
func (p *Plane) ListDefinedContainers(ctx context.Context, env string) ([]container.Container, error) {
	return p.container.ListDefined(ctx, env)
}

// ListActiveContainers returns the containers the engine reports for env.
func (p *Plane) ListActiveContainers(ctx context.Context, env string) ([]container.Container, error) {
	return p.container.ListActive(ctx, env)
}

func (p *Plane) Exec(ctx context.Context, containerName, command string) (string, error) {
	return p.container.Exec(ctx, containerName, command)
}

func (p *Plane) SendConsoleCommand(ctx context.Context, containerName, command string) (string, error) {
	return p.container.SendConsoleCommand(ctx, containerName, command)
}

func (p *Plane) CopyConfigs(ctx context.Context, containerName string, kind container.ConfigKind) (string, error) {
	return p.container.CopyConfigs(ctx, containerName, kind)
}

func (p *Plane) PrepareConsole(ctx context.Context, containerName string) error {
	return p.container.PrepareConsole(ctx, containerName)
}

// ListBackups returns env's snapshots carrying every tag in tags, oldest
// first.
func (p *Plane) ListBackups(ctx context.Context, env string, tags []string) ([]backup.Snapshot, error) {
	e, err := p.provision.Load(env)
	if err != nil {
		return nil, err
	}
	return p.backup.List(ctx, e, tags)
}

func (p *Plane) Backup(ctx context.Context, env, world string) (string, error) {
	e, err := p.provision.Load(env)
	if err != nil {
		return "", err
	}
	return p.backup.Backup(ctx, e, world)
}

// Restore archives world's live files and restores snapshotID in their
// place. The server must be stopped.
func (p *Plane) Restore(ctx context.Context, env, world, snapshotID string) (string, error) {
	e, err := p.provision.Load(env)
	if err != nil {
		return "", err
	}
	return p.backup.Restore(ctx, e, world, snapshotID)
}

// RecoverLatestArchive moves the newest archive of world back into place
// after a failed restore.
func (p *Plane) RecoverLatestArchive(ctx context.Context, env, world string) (string, error) {
	e, err := p.provision.Load(env)
	if err != nil {
		return "", err
	}
	return p.backup.RecoverLatestArchive(ctx, e, world)
}
