package container

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/spf13/afero"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"craftfleet/internal/adapter/fake"
	"craftfleet/internal/artifact"
	"craftfleet/internal/envconfig"
	"craftfleet/internal/fleet"
	"craftfleet/internal/generate"
	"craftfleet/internal/settings"
	"craftfleet/internal/templates"
)

type fixture struct {
	s        settings.Settings
	fs       afero.Fs
	rt       *fake.ContainerRuntime
	runner   *fake.CommandRunner
	attacher *fake.ConsoleAttacher
	recorder *tracetest.SpanRecorder
	orch     *Orchestrator
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	s := settings.Default()
	s.RepoRoot = "/srv/craftfleet"
	s.DataRoot = "/srv/data"
	s.BackupsRoot = "/srv/backups"

	fsys := afero.NewMemMapFs()
	rt := fake.NewContainerRuntime()
	runner := &fake.CommandRunner{}
	attacher := &fake.ConsoleAttacher{}
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	orch := New(s, fsys, rt, runner, attacher, WithTracer(provider.Tracer("container-test")))
	return fixture{s: s, fs: fsys, rt: rt, runner: runner, attacher: attacher, recorder: recorder, orch: orch}
}

// generate writes real artifacts for env2 with lobby and survival.
func (f fixture) generate(t *testing.T) {
	t.Helper()
	var src bytes.Buffer
	cfg := envconfig.NewConfig(envconfig.NewConfigParams{
		Name:        "env2",
		Alias:       "staging",
		Port:        25602,
		Flavor:      envconfig.FlavorPaper,
		Hostname:    f.s.Hostname,
		WorldGroups: []string{"lobby", "survival"},
		FSRoot:      f.s.DataRoot,
		BackupsRoot: f.s.BackupsRoot,
	})
	if err := envconfig.Encode(&src, cfg); err != nil {
		t.Fatal(err)
	}
	env, err := envconfig.Decode(src.Bytes(), "env2.toml", "env2", f.s)
	if err != nil {
		t.Fatal(err)
	}
	gen := generate.New(f.s, artifact.NewWriter(f.fs), templates.NewStore(nil, ""))
	if err := gen.WriteArtifacts(context.Background(), env); err != nil {
		t.Fatal(err)
	}
}

func (f fixture) addServer(name, env, kind string, running bool) {
	f.rt.AddContainer(fleet.ContainerListEntry{
		Name:    name,
		Image:   "itzg/minecraft-server:latest",
		Running: running,
		Labels: map[string]string{
			"net.craftfleet.env":  env,
			"net.craftfleet.type": kind,
			"net.craftfleet.name": strings.Split(name, "-")[1],
		},
	})
}

func TestListDefinedResolvesArtifactVariables(t *testing.T) {
	f := newFixture(t)
	f.generate(t)

	defs, err := f.orch.ListDefined(context.Background(), "env2")
	if err != nil {
		t.Fatalf("ListDefined() error = %v", err)
	}
	byName := map[string]Container{}
	for _, c := range defs {
		byName[c.Name] = c
	}

	lobby, ok := byName["YC-lobby-env2"]
	if !ok {
		t.Fatalf("missing lobby server in %v", defs)
	}
	if lobby.Env != "env2" || lobby.Type != fleet.TypeMinecraft || lobby.Logical != "lobby" || lobby.Service != "mc_lobby" {
		t.Fatalf("lobby = %+v", lobby)
	}
	if !slices.Contains(lobby.Networks, "ycnet") {
		t.Fatalf("lobby networks = %v", lobby.Networks)
	}
	var worlds bool
	for _, m := range lobby.Mounts {
		if m.Target == "/worlds-bindmount" && m.Source == "/srv/data/env/env2/lobby/data/worlds" {
			worlds = true
		}
	}
	if !worlds {
		t.Fatalf("lobby mounts = %+v", lobby.Mounts)
	}

	proxy, ok := byName["YC-velocity-env2"]
	if !ok {
		t.Fatal("missing proxy")
	}
	if len(proxy.Ports) != 1 || proxy.Ports[0] != "0.0.0.0:25602->25577/tcp" {
		t.Fatalf("proxy ports = %v", proxy.Ports)
	}
	if _, ok := byName["YC-survival-env2_backup"]; ok {
		t.Fatal("backup sidecar defined although backups are disabled")
	}
}

func TestListDefinedMissingArtifact(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.ListDefined(context.Background(), "env2")
	var nf *fleet.NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "artifact" {
		t.Fatalf("error = %v, want artifact NotFoundError", err)
	}
}

func TestListActiveFiltersByEnv(t *testing.T) {
	f := newFixture(t)
	f.addServer("YC-lobby-env2", "env2", fleet.TypeMinecraft, true)
	f.addServer("YC-lobby-env3", "env3", fleet.TypeMinecraft, true)
	f.rt.AddContainer(fleet.ContainerListEntry{
		Name:   "YC-velocity-env2",
		Labels: map[string]string{"net.craftfleet.env": "env2", "com.docker.compose.service": "velocity"},
		Ports:  []fleet.Port{{HostPort: "25602", ContainerPort: 25577, Protocol: "tcp"}},
	})

	got, err := f.orch.ListActive(context.Background(), "env2")
	if err != nil {
		t.Fatalf("ListActive() error = %v", err)
	}
	if len(got) != 2 || got[0].Name != "YC-lobby-env2" || got[1].Name != "YC-velocity-env2" {
		t.Fatalf("ListActive() = %+v", got)
	}
	if got[0].State != "running" || got[1].Service != "velocity" || got[1].Ports[0] != "0.0.0.0:25602->25577/tcp" {
		t.Fatalf("ListActive() = %+v", got)
	}

	none, err := f.orch.ListActive(context.Background(), "env9")
	if err != nil || len(none) != 0 {
		t.Fatalf("ListActive(env9) = %v, %v, want empty", none, err)
	}
}

func TestClusterUpRunsComposeAndAttaches(t *testing.T) {
	f := newFixture(t)
	f.generate(t)
	f.addServer("YC-lobby-env2", "env2", fleet.TypeMinecraft, true)
	f.addServer("YC-survival-env2", "env2", fleet.TypeMinecraft, false)
	f.runner.RunFunc = func(context.Context, fleet.Command) (fleet.CommandResult, error) {
		return fleet.CommandResult{Stderr: "Container YC-lobby-env2  Started"}, nil
	}

	out, err := f.orch.Up(context.Background(), "env2")
	if err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if out != "Container YC-lobby-env2  Started" {
		t.Fatalf("Up() = %q", out)
	}
	want := "docker compose -f /srv/craftfleet/gen/docker-compose-env2.yml --project-name env2 " +
		"--project-directory /srv/craftfleet --env-file /srv/craftfleet/gen/env2.env up -d"
	if cmds := f.runner.Commands(); len(cmds) != 1 || cmds[0] != want {
		t.Fatalf("commands = %q, want %q", cmds, want)
	}
	attaches := f.attacher.Calls("Attach")
	if len(attaches) != 1 || attaches[0].Args[0] != "YC-lobby-env2" {
		t.Fatalf("attaches = %+v", attaches)
	}
}

func TestClusterDownToolError(t *testing.T) {
	f := newFixture(t)
	f.generate(t)
	f.runner.RunFunc = func(context.Context, fleet.Command) (fleet.CommandResult, error) {
		return fleet.CommandResult{Stderr: "no such service", ExitCode: 1}, nil
	}

	out, err := f.orch.Down(context.Background(), "env2")
	var terr *fleet.ToolError
	if !errors.As(err, &terr) || terr.Output != "no such service" || out != "no such service" {
		t.Fatalf("Down() = %q, %v, want ToolError with raw output", out, err)
	}
	if f.attacher.Count("Attach") != 0 {
		t.Fatal("down must not attach consoles")
	}
}

func TestClusterRequiresArtifacts(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.Restart(context.Background(), "env2")
	var nf *fleet.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, want NotFoundError", err)
	}
	if f.runner.Count("Run") != 0 {
		t.Fatal("compose ran without artifacts")
	}
}

func TestSingleStartAttachesOnce(t *testing.T) {
	f := newFixture(t)
	f.addServer("YC-lobby-env2", "env2", fleet.TypeMinecraft, false)

	if _, err := f.orch.UpOne(context.Background(), "env2", "YC-lobby-env2"); err != nil {
		t.Fatalf("UpOne() error = %v", err)
	}
	if f.rt.Count("ContainerStart") != 1 {
		t.Fatal("container not started")
	}
	if got := f.attacher.Count("Attach"); got != 1 {
		t.Fatalf("attaches = %d, want 1", got)
	}
	if findSpan(f.recorder.Ended(), "container.up_one") == nil {
		t.Fatal("missing container.up_one span")
	}
}

func TestSingleNonMinecraftDoesNotAttach(t *testing.T) {
	f := newFixture(t)
	f.addServer("YC-velocity-env2", "env2", fleet.TypeProxy, true)

	if _, err := f.orch.RestartOne(context.Background(), "env2", "YC-velocity-env2"); err != nil {
		t.Fatalf("RestartOne() error = %v", err)
	}
	if f.attacher.Count("Attach") != 0 {
		t.Fatal("proxy restart attached a console")
	}
}

func TestSingleAttachFailureIsNotReturned(t *testing.T) {
	f := newFixture(t)
	f.addServer("YC-lobby-env2", "env2", fleet.TypeMinecraft, true)
	f.attacher.AttachErr = errors.New("timeout")

	if _, err := f.orch.RestartOne(context.Background(), "env2", "YC-lobby-env2"); err != nil {
		t.Fatalf("RestartOne() error = %v", err)
	}
}

func TestSingleResolvesWithinEnv(t *testing.T) {
	f := newFixture(t)
	f.addServer("YC-lobby-env3", "env3", fleet.TypeMinecraft, true)

	for _, name := range []string{"YC-lobby-env3", "missing"} {
		_, err := f.orch.DownOne(context.Background(), "env2", name)
		var nf *fleet.NotFoundError
		if !errors.As(err, &nf) {
			t.Fatalf("DownOne(%s) error = %v, want NotFoundError", name, err)
		}
	}
	if f.rt.Count("ContainerStop") != 0 {
		t.Fatal("stopped a container of another environment")
	}
}

func TestExecRepairsInvalidUTF8(t *testing.T) {
	f := newFixture(t)
	f.addServer("YC-lobby-env2", "env2", fleet.TypeMinecraft, true)
	f.rt.ExecFunc = func(_ context.Context, _ string, cmd []string) (fleet.ExecResult, error) {
		if !slices.Equal(cmd, []string{"sh", "-c", "ls /data"}) {
			t.Errorf("cmd = %q", cmd)
		}
		return fleet.ExecResult{Output: []byte("world\xff\n")}, nil
	}

	out, err := f.orch.Exec(context.Background(), "YC-lobby-env2", "ls /data")
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if out != "world�\n" {
		t.Fatalf("Exec() = %q", out)
	}
}

func TestExecNonZeroExit(t *testing.T) {
	f := newFixture(t)
	f.addServer("YC-lobby-env2", "env2", fleet.TypeMinecraft, true)
	f.rt.ExecFunc = func(context.Context, string, []string) (fleet.ExecResult, error) {
		return fleet.ExecResult{Output: []byte("sh: nope: not found"), ExitCode: 127}, nil
	}

	out, err := f.orch.Exec(context.Background(), "YC-lobby-env2", "nope")
	var terr *fleet.ToolError
	if !errors.As(err, &terr) || terr.ExitCode != 127 || out != "sh: nope: not found" {
		t.Fatalf("Exec() = %q, %v", out, err)
	}
}

func TestSendConsoleCommandAndCopyConfigs(t *testing.T) {
	f := newFixture(t)
	f.addServer("YC-lobby-env2", "env2", fleet.TypeMinecraft, true)
	f.rt.ExecFunc = func(context.Context, string, []string) (fleet.ExecResult, error) {
		return fleet.ExecResult{Output: []byte("There are 0 of a max of 20 players online\n")}, nil
	}

	out, err := f.orch.SendConsoleCommand(context.Background(), "YC-lobby-env2", "list")
	if err != nil || out != "There are 0 of a max of 20 players online" {
		t.Fatalf("SendConsoleCommand() = %q, %v", out, err)
	}
	kind, err := ParseConfigKind("Plugin")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.orch.CopyConfigs(context.Background(), "YC-lobby-env2", kind); err != nil {
		t.Fatalf("CopyConfigs() error = %v", err)
	}

	calls := f.rt.Calls("ContainerExec")
	if got := calls[0].Args[1].([]string); !slices.Equal(got, []string{"rcon-cli", "list"}) {
		t.Fatalf("console cmd = %q", got)
	}
	if got := calls[1].Args[1].([]string); got[2] != "cp -r /data/plugins/* /yc-plugins" {
		t.Fatalf("copy cmd = %q", got)
	}

	if _, err := ParseConfigKind("datapacks"); err == nil {
		t.Fatal("ParseConfigKind(datapacks) should fail")
	}
}

func TestPrepareConsole(t *testing.T) {
	f := newFixture(t)
	f.addServer("YC-lobby-env2", "env2", fleet.TypeMinecraft, true)
	f.addServer("YC-velocity-env2", "env2", fleet.TypeProxy, true)

	if err := f.orch.PrepareConsole(context.Background(), "YC-lobby-env2"); err != nil {
		t.Fatalf("PrepareConsole() error = %v", err)
	}
	var verr *fleet.ValidationError
	if err := f.orch.PrepareConsole(context.Background(), "YC-velocity-env2"); !errors.As(err, &verr) {
		t.Fatalf("PrepareConsole(proxy) error = %v, want ValidationError", err)
	}
}

func findSpan(spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	for _, s := range spans {
		if s.Name() == name {
			return s
		}
	}
	return nil
}
