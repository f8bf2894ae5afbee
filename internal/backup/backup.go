// Package backup lists restic snapshots and runs guarded ad-hoc backups and
// restores of world data. Targets are located by naming convention only.
package backup

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"craftfleet/internal/artifact"
	"craftfleet/internal/envconfig"
	"craftfleet/internal/fleet"
	"craftfleet/internal/settings"
	"craftfleet/internal/telemetry"
)

// Paths inside the backup and restic containers.
const (
	worldsMount       = "/worlds-bindmount"
	repoMount         = "/backups"
	resticPasswordIn  = "/restic.password"
	rconPasswordIn    = "/rcon.password"
	adhocTag          = "adhoc"
	entrypointLive    = "/usr/bin/backup now"
	entrypointOffline = "/scripts/restic.sh backup"
	entrypointRestore = "/scripts/restic.sh restore"
)

// Orchestrator runs backup tooling in disposable containers.
type Orchestrator struct {
	settings settings.Settings
	rt       fleet.ContainerRuntime
	writer   *artifact.Writer
	clock    fleet.Clock
	tracer   trace.Tracer
	log      *slog.Logger
}

type Option func(*Orchestrator)

func WithClock(c fleet.Clock) Option { return func(o *Orchestrator) { o.clock = c } }

func WithTracer(t trace.Tracer) Option { return func(o *Orchestrator) { o.tracer = t } }

func New(s settings.Settings, rt fleet.ContainerRuntime, w *artifact.Writer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		settings: s,
		rt:       rt,
		writer:   w,
		clock:    fleet.RealClock{},
		tracer:   otel.Tracer("craftfleet/backup"),
		log:      slog.With("component", "backup"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// List returns the snapshots of env carrying every tag in tags, oldest
// first. restic only ORs tag filters, so the query is scoped by the env tag
// and the rest is filtered here.
func (o *Orchestrator) List(ctx context.Context, env envconfig.Environment, tags []string) (snaps []Snapshot, err error) {
	if err := ValidateTags(tags); err != nil {
		return nil, err
	}
	op, err := telemetry.Start(ctx, o.tracer, "backup.list", []string{"restic_snapshots", "filter"},
		attribute.String(telemetry.EnvKey, env.Name),
		attribute.StringSlice("craftfleet.tags", tags))
	if err != nil {
		return nil, err
	}
	defer func() { op.End(err) }()

	var raw []byte
	err = op.Step("restic_snapshots", func(ctx context.Context) error {
		res, err := o.rt.ContainerRun(ctx, fleet.ContainerRunConfig{
			Image: o.settings.ResticImage,
			Cmd:   []string{"snapshots", "--json", "--tag", env.Name},
			Env: []string{
				"RESTIC_REPOSITORY=" + repoMount,
				"RESTIC_PASSWORD_FILE=" + resticPasswordIn,
			},
			Mounts: []fleet.Mount{
				{Source: env.BackupsRoot, Target: repoMount},
				{Source: o.settings.ResticPasswordPath(), Target: resticPasswordIn, ReadOnly: true},
			},
		})
		if err != nil {
			return fmt.Errorf("list snapshots: %w", err)
		}
		if res.ExitCode != 0 {
			return &fleet.ToolError{Tool: "restic", ExitCode: res.ExitCode, Output: string(res.Output)}
		}
		raw = res.Output
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = op.Step("filter", func(context.Context) error {
		all, err := ParseSnapshots(raw)
		if err != nil {
			return err
		}
		snaps = FilterSnapshots(all, append([]string{env.Name}, tags...))
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.log.Debug("listed snapshots", "env", env.Name, "tags", tags, "count", len(snaps))
	return snaps, nil
}

// Backup runs an ad-hoc backup of one world group and returns the tool
// output. The existence of the ad-hoc container is the in-progress marker.
// Checking and starting are not atomic; two racing callers may both start,
// and the second fails on the container name.
func (o *Orchestrator) Backup(ctx context.Context, env envconfig.Environment, world string) (out string, err error) {
	if err := requireWorld(env, world); err != nil {
		return "", err
	}
	guard := fleet.AdhocBackupName(env.Name, world)
	server := fleet.ContainerName(env.Name, world)

	op, err := telemetry.Start(ctx, o.tracer, "backup.create", []string{"guard", "run"},
		attribute.String(telemetry.EnvKey, env.Name),
		attribute.String(telemetry.WorldKey, world),
		attribute.String(telemetry.ContainerKey, guard))
	if err != nil {
		return "", err
	}
	defer func() { op.End(err) }()

	var serverUp bool
	err = op.Step("guard", func(ctx context.Context) error {
		info, err := o.rt.ContainerInspect(ctx, guard)
		if err != nil {
			return fmt.Errorf("inspect %s: %w", guard, err)
		}
		if info.Exists {
			return &fleet.InProgressError{Kind: fleet.OperationBackup, Container: guard}
		}
		serverUp, err = o.running(ctx, server)
		return err
	})
	if err != nil {
		return "", err
	}

	entrypoint, network := entrypointOffline, ""
	if serverUp {
		entrypoint, network = entrypointLive, env.Name+"_ycnet"
	}
	o.log.Info("starting ad-hoc backup", "env", env.Name, "world", world, "container", guard, "server_running", serverUp)

	err = op.Step("run", func(ctx context.Context) error {
		res, err := o.rt.ContainerRun(ctx, fleet.ContainerRunConfig{
			Name:        guard,
			Image:       o.settings.BackupImage,
			NetworkMode: network,
			Labels:      o.labels(env.Name, world),
			Env: []string{
				"BACKUP_NAME=" + world + "-" + adhocTag,
				"BACKUP_METHOD=restic",
				"SRC_DIR=" + worldsMount,
				"RESTIC_REPOSITORY=" + repoMount,
				"RESTIC_PASSWORD_FILE=" + resticPasswordIn,
				"RESTIC_ADDITIONAL_TAGS=" + strings.Join([]string{env.Name, world, adhocTag}, " "),
				"ENTRYPOINT_TARGET=" + entrypoint,
				"RESTIC_HOSTNAME=" + server,
				"RCON_HOST=" + server,
				"RCON_PASSWORD_FILE=" + rconPasswordIn,
			},
			Mounts: []fleet.Mount{
				{Source: artifact.Data(env.FSRoot, env.Name).WorldFilesDir(world), Target: worldsMount},
				{Source: env.BackupsRoot, Target: repoMount},
				{Source: o.settings.ResticPasswordPath(), Target: resticPasswordIn, ReadOnly: true},
				{Source: o.settings.RconPasswordPath(), Target: rconPasswordIn, ReadOnly: true},
			},
		})
		if err != nil {
			return fmt.Errorf("run backup %s: %w", guard, err)
		}
		out = string(res.Output)
		if res.ExitCode != 0 {
			return &fleet.ToolError{Tool: "backup", ExitCode: res.ExitCode, Output: out}
		}
		return nil
	})
	if err != nil {
		return out, err
	}
	return out, nil
}

// Restore replaces a world's live data with a snapshot. The server must be
// stopped. The live directory is archived first; if the restore fails the
// archive stays in place and the live directory is left as the restore
// container left it.
func (o *Orchestrator) Restore(ctx context.Context, env envconfig.Environment, world, snapshotID string) (out string, err error) {
	if err := requireWorld(env, world); err != nil {
		return "", err
	}
	if snapshotID == "" || strings.IndexFunc(snapshotID, isSpaceOrComma) >= 0 {
		return "", &fleet.ValidationError{Field: "snapshot", Message: fmt.Sprintf("invalid snapshot id %q", snapshotID)}
	}
	server := fleet.ContainerName(env.Name, world)
	guard := fleet.RestoreName(env.Name, world)
	live := artifact.Data(env.FSRoot, env.Name).WorldFilesDir(world)

	op, err := telemetry.Start(ctx, o.tracer, "backup.restore", []string{"guard", "archive", "restore"},
		attribute.String(telemetry.EnvKey, env.Name),
		attribute.String(telemetry.WorldKey, world),
		attribute.String("craftfleet.snapshot", snapshotID))
	if err != nil {
		return "", err
	}
	defer func() { op.End(err) }()

	err = op.Step("guard", func(ctx context.Context) error {
		up, err := o.running(ctx, server)
		if err != nil {
			return err
		}
		if up {
			return &fleet.RestoreTargetRunningError{Container: server}
		}
		info, err := o.rt.ContainerInspect(ctx, guard)
		if err != nil {
			return fmt.Errorf("inspect %s: %w", guard, err)
		}
		if info.Exists {
			return &fleet.InProgressError{Kind: fleet.OperationRestore, Container: guard}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	err = op.Step("archive", func(context.Context) error {
		if err := o.requireUnrecovered(live); err != nil {
			return err
		}
		if _, err := Archive(o.writer, live, ArchiveSuffix, o.settings.MaxArchives, o.clock); err != nil {
			return err
		}
		return o.writer.MkdirAll(live)
	})
	if err != nil {
		return "", fmt.Errorf("archive %s before restore: %w", live, err)
	}

	o.log.Info("restoring snapshot", "env", env.Name, "world", world, "snapshot", snapshotID, "container", guard)
	err = op.Step("restore", func(ctx context.Context) error {
		res, err := o.rt.ContainerRun(ctx, fleet.ContainerRunConfig{
			Name:   guard,
			Image:  o.settings.BackupImage,
			Labels: o.labels(env.Name, world),
			Env: []string{
				"BACKUP_TARGET_ID=" + snapshotID,
				"BACKUP_DEST_PATH=" + worldsMount,
				"RESTIC_REPOSITORY=" + repoMount,
				"RESTIC_PASSWORD_FILE=" + resticPasswordIn,
				"ENTRYPOINT_TARGET=" + entrypointRestore,
			},
			Mounts: []fleet.Mount{
				{Source: live, Target: worldsMount},
				{Source: env.BackupsRoot, Target: repoMount},
				{Source: o.settings.ResticPasswordPath(), Target: resticPasswordIn, ReadOnly: true},
			},
		})
		if err != nil {
			return fmt.Errorf("run restore %s: %w", guard, err)
		}
		out = string(res.Output)
		if res.ExitCode != 0 {
			return &fleet.ToolError{Tool: "restore", ExitCode: res.ExitCode, Output: out}
		}
		return nil
	})
	if err != nil {
		o.log.Error("restore failed, previous world data is in the archive",
			"env", env.Name, "world", world, "archive", live+ArchiveSuffix, "err", err)
		return out, err
	}
	return out, nil
}

// RecoverLatestArchive moves the newest archived copy of a world's data back
// into place after a failed restore. Whatever the failed restore left in the
// live directory is moved aside first.
func (o *Orchestrator) RecoverLatestArchive(ctx context.Context, env envconfig.Environment, world string) (string, error) {
	if err := requireWorld(env, world); err != nil {
		return "", err
	}
	server := fleet.ContainerName(env.Name, world)
	up, err := o.running(ctx, server)
	if err != nil {
		return "", err
	}
	if up {
		return "", &fleet.RestoreTargetRunningError{Container: server}
	}
	return RecoverLatestArchive(o.writer, artifact.Data(env.FSRoot, env.Name).WorldFilesDir(world), ArchiveSuffix, o.clock)
}

// requireUnrecovered refuses a restore while the live directory is missing
// and archives of it exist. The newest archive must be recovered first.
func (o *Orchestrator) requireUnrecovered(live string) error {
	exists, err := o.writer.Exists(live)
	if err != nil || exists {
		return err
	}
	existing, err := archives(o.writer.Fs(), live+ArchiveSuffix, filepath.Base(live))
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return &fleet.ValidationError{
			Field:   "world",
			Message: fmt.Sprintf("%s is missing but %d archive(s) exist; run `craftfleet backup recover` first", live, len(existing)),
		}
	}
	return nil
}

func (o *Orchestrator) running(ctx context.Context, name string) (bool, error) {
	info, err := o.rt.ContainerInspect(ctx, name)
	if err != nil {
		return false, fmt.Errorf("inspect %s: %w", name, err)
	}
	return info.Exists && info.Running, nil
}

func (o *Orchestrator) labels(env, world string) map[string]string {
	p := o.settings.LabelPrefix
	return map[string]string{
		fleet.LabelKey(p, fleet.LabelEnv):  env,
		fleet.LabelKey(p, fleet.LabelName): world,
		fleet.LabelKey(p, fleet.LabelType): fleet.TypeBackup,
	}
}

func requireWorld(env envconfig.Environment, world string) error {
	if _, ok := env.WorldGroup(world); !ok {
		return &fleet.NotFoundError{Kind: "world group", Name: env.Name + "/" + world}
	}
	return nil
}
