package fleet

import (
	"fmt"
	"strings"
)

const (
	containerNameMaxLen = 255

	// ServerPort is the port every game server listens on inside its container.
	ServerPort = 25565

	// WorldGroupToken is replaced with the world-group name in templates.
	WorldGroupToken = "<<WORLDGROUP>>"
)

// ContainerName returns the container and host name of a world-group's
// server process. Format: YC-{world}-{env}
//
// The proxy resolves backends by this name, so it must stay a pure function
// of its inputs.
func ContainerName(env, world string) string {
	return truncateName(fmt.Sprintf("YC-%s-%s", world, env))
}

// ServiceName returns the compose service key of a world-group's server.
func ServiceName(world string) string {
	return "mc_" + world
}

// BackupServiceName returns the compose service key of a world-group's
// scheduled backup sidecar.
func BackupServiceName(world string) string {
	return ServiceName(world) + "_backup"
}

// BackupSidecarName returns the container name of the scheduled backup sidecar.
func BackupSidecarName(env, world string) string {
	return ContainerName(env, world) + "_backup"
}

// AdhocBackupName returns the container name used for an ad-hoc backup run.
// Its existence doubles as the in-progress marker.
func AdhocBackupName(env, world string) string {
	return ContainerName(env, world) + "_backup_adhoc"
}

// RestoreName returns the container name used for a restore run.
func RestoreName(env, world string) string {
	return ContainerName(env, world) + "_restore"
}

// VolumeName returns the named data volume of a world-group.
func VolumeName(world string) string {
	return "mcdata_" + world
}

// ProxyServerKey returns the key a world-group is registered under in the
// proxy config. The proxy rejects dashes in server names.
func ProxyServerKey(world string) string {
	return strings.ReplaceAll(world, "-", "_")
}

// Label keys set on every managed container, under the configured prefix.
const (
	LabelEnv  = "env"
	LabelName = "name"
	LabelType = "type"
)

// Container types carried in the type label.
const (
	TypeProxy     = "velocity"
	TypeMinecraft = "minecraft"
	TypeBackup    = "backup"
)

// LabelKey joins a label prefix and a key.
func LabelKey(prefix, key string) string {
	return strings.TrimSuffix(prefix, ".") + "." + key
}

func truncateName(name string) string {
	if len(name) <= containerNameMaxLen {
		return name
	}
	return name[:containerNameMaxLen]
}

func trimSpace(s string) string {
	return strings.TrimSpace(s)
}
