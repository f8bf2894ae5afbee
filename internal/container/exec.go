package container

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"craftfleet/internal/fleet"
)

// ConfigKind selects which server configs CopyConfigs exports.
type ConfigKind string

const (
	ConfigPlugin   ConfigKind = "plugin"
	ConfigMod      ConfigKind = "mod"
	ConfigModFiles ConfigKind = "modfiles"
)

// copyCommands maps a kind to the in-container copy. The destinations are
// bind mounts of the world group's configs directory.
var copyCommands = map[ConfigKind]string{
	ConfigPlugin:   "cp -r /data/plugins/* /yc-plugins",
	ConfigMod:      "cp -r /data/config/* /modsconfig-bindmount",
	ConfigModFiles: "cp -r /data/mods /mods-bindmount",
}

func ParseConfigKind(raw string) (ConfigKind, error) {
	k := ConfigKind(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := copyCommands[k]; !ok {
		return "", &fleet.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown config kind %q (want plugin, mod or modfiles)", raw)}
	}
	return k, nil
}

// Exec runs command through `sh -c` in a running container and returns
// stdout and stderr merged. A non-zero exit returns the output together
// with a ToolError.
func (o *Orchestrator) Exec(ctx context.Context, name, command string) (string, error) {
	return o.exec(ctx, name, []string{"sh", "-c", command})
}

// SendConsoleCommand sends a command to a game server console over rcon.
func (o *Orchestrator) SendConsoleCommand(ctx context.Context, name, command string) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", &fleet.ValidationError{Field: "command", Message: "empty console command"}
	}
	out, err := o.exec(ctx, name, []string{"rcon-cli", command})
	return strings.TrimSpace(out), err
}

// CopyConfigs copies a server's live plugin or mod configs out to the bind
// mounted config directories.
func (o *Orchestrator) CopyConfigs(ctx context.Context, name string, kind ConfigKind) (string, error) {
	cmd, ok := copyCommands[kind]
	if !ok {
		return "", &fleet.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown config kind %q", kind)}
	}
	return o.Exec(ctx, name, cmd)
}

func (o *Orchestrator) exec(ctx context.Context, name string, cmd []string) (string, error) {
	info, err := o.rt.ContainerInspect(ctx, name)
	if err != nil {
		return "", fmt.Errorf("inspect %s: %w", name, err)
	}
	if !info.Exists {
		return "", &fleet.NotFoundError{Kind: "container", Name: name}
	}

	res, err := o.rt.ContainerExec(ctx, name, cmd)
	if err != nil {
		return "", fmt.Errorf("exec in %s: %w", name, err)
	}
	out := string(res.Output)
	if !utf8.ValidString(out) {
		o.log.Warn("exec output is not valid UTF-8, replacing invalid bytes", "container", name, "cmd", cmd[0])
		out = strings.ToValidUTF8(out, "\uFFFD")
	}
	if res.ExitCode != 0 {
		return out, &fleet.ToolError{Tool: cmd[0], ExitCode: res.ExitCode, Output: out}
	}
	return out, nil
}
