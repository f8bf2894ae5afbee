package container

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"craftfleet/internal/envconfig"
	"craftfleet/internal/fleet"
	"craftfleet/internal/telemetry"
)

// Action is a lifecycle verb.
type Action string

const (
	ActionUp      Action = "up"
	ActionDown    Action = "down"
	ActionRestart Action = "restart"
)

func (a Action) composeArgs() []string {
	if a == ActionUp {
		return []string{"up", "-d"}
	}
	return []string{string(a)}
}

// Up starts every container of env with docker compose.
func (o *Orchestrator) Up(ctx context.Context, env string) (string, error) {
	return o.cluster(ctx, env, ActionUp)
}

// Down stops and removes every container of env.
func (o *Orchestrator) Down(ctx context.Context, env string) (string, error) {
	return o.cluster(ctx, env, ActionDown)
}

func (o *Orchestrator) Restart(ctx context.Context, env string) (string, error) {
	return o.cluster(ctx, env, ActionRestart)
}

func (o *Orchestrator) UpOne(ctx context.Context, env, name string) (string, error) {
	return o.single(ctx, env, name, ActionUp)
}

func (o *Orchestrator) DownOne(ctx context.Context, env, name string) (string, error) {
	return o.single(ctx, env, name, ActionDown)
}

func (o *Orchestrator) RestartOne(ctx context.Context, env, name string) (string, error) {
	return o.single(ctx, env, name, ActionRestart)
}

// cluster runs `docker compose <action>` over the generated artifacts. The
// call blocks until compose exits.
func (o *Orchestrator) cluster(ctx context.Context, env string, action Action) (out string, err error) {
	if _, err := envconfig.ParseName(env); err != nil {
		return "", err
	}
	composePath, envPath := o.layout.ComposeFile(env), o.layout.EnvFile(env)
	for _, p := range []string{composePath, envPath} {
		if _, err := o.readArtifact(p); err != nil {
			return "", err
		}
	}

	op, err := o.startOp(ctx, "container."+string(action), []string{"compose", "console"},
		attribute.String(telemetry.EnvKey, env))
	if err != nil {
		return "", err
	}
	defer func() { op.End(err) }()

	args := append([]string{
		"compose",
		"-f", composePath,
		"--project-name", env,
		"--project-directory", o.settings.RepoRoot,
		"--env-file", envPath,
	}, action.composeArgs()...)

	err = op.Step("compose", func(ctx context.Context) error {
		o.log.Info("running docker compose", "env", env, "action", action)
		res, err := o.runner.Run(ctx, fleet.Command{Name: o.settings.DockerBinary, Args: args, Dir: o.settings.RepoRoot})
		out = res.Combined()
		if err != nil {
			return fmt.Errorf("docker compose %s: %w", action, err)
		}
		if res.ExitCode != 0 {
			return &fleet.ToolError{Tool: "docker compose", ExitCode: res.ExitCode, Output: out}
		}
		return nil
	})
	if err != nil {
		return out, err
	}

	if action != ActionDown {
		_ = op.Step("console", func(ctx context.Context) error {
			o.prepareConsoles(ctx, env)
			return nil
		})
	}
	return out, nil
}

// single starts, stops or restarts one container of env through the engine.
func (o *Orchestrator) single(ctx context.Context, env, name string, action Action) (string, error) {
	if _, err := envconfig.ParseName(env); err != nil {
		return "", err
	}
	info, err := o.resolve(ctx, env, name)
	if err != nil {
		return "", err
	}

	op, err := o.startOp(ctx, "container."+string(action)+"_one", nil,
		attribute.String(telemetry.EnvKey, env),
		attribute.String(telemetry.ContainerKey, name))
	if err != nil {
		return "", err
	}

	switch action {
	case ActionUp:
		err = o.rt.ContainerStart(op.Context(), name)
	case ActionDown:
		err = o.rt.ContainerStop(op.Context(), name)
	case ActionRestart:
		err = o.rt.ContainerRestart(op.Context(), name)
	}
	if err != nil {
		err = fmt.Errorf("%s %s: %w", action, name, err)
		op.End(err)
		return "", err
	}
	op.End(nil)
	o.log.Info("container "+string(action), "env", env, "container", name)

	if action != ActionDown && info.Labels[o.label(fleet.LabelType)] == fleet.TypeMinecraft {
		o.attach(ctx, name)
	}
	return fmt.Sprintf("%s: %s done", name, action), nil
}

// resolve inspects name and checks it belongs to env. A container without
// the env label is reported as not found.
func (o *Orchestrator) resolve(ctx context.Context, env, name string) (fleet.ContainerInfo, error) {
	info, err := o.rt.ContainerInspect(ctx, name)
	if err != nil {
		return fleet.ContainerInfo{}, fmt.Errorf("inspect %s: %w", name, err)
	}
	if !info.Exists || info.Labels[o.label(fleet.LabelEnv)] != env {
		return fleet.ContainerInfo{}, &fleet.NotFoundError{Kind: "container", Name: name}
	}
	return info, nil
}

// PrepareConsole attaches a pty to a minecraft container's console so later
// web socket attaches receive output. Other container types are skipped.
func (o *Orchestrator) PrepareConsole(ctx context.Context, name string) error {
	info, err := o.rt.ContainerInspect(ctx, name)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", name, err)
	}
	if !info.Exists {
		return &fleet.NotFoundError{Kind: "container", Name: name}
	}
	if info.Labels[o.label(fleet.LabelType)] != fleet.TypeMinecraft {
		return &fleet.ValidationError{Field: "container", Message: fmt.Sprintf("%s is not a game server", name)}
	}
	return o.attacher.Attach(ctx, name)
}

func (o *Orchestrator) prepareConsoles(ctx context.Context, env string) {
	active, err := o.rt.ContainerList(ctx, map[string]string{
		o.label(fleet.LabelEnv):  env,
		o.label(fleet.LabelType): fleet.TypeMinecraft,
	})
	if err != nil {
		o.log.Warn("list game servers for console attach", "env", env, "err", err)
		return
	}
	for _, c := range active {
		if c.Running {
			o.attach(ctx, c.Name)
		}
	}
}

// attach failures never fail the lifecycle operation.
func (o *Orchestrator) attach(ctx context.Context, name string) {
	if err := o.attacher.Attach(ctx, name); err != nil {
		o.log.Warn("console attach failed", "container", name, "err", err)
	}
}
