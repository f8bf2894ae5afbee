package artifact

import "path/filepath"

// Layout derives every control-plane path under the repository root.
type Layout struct {
	RepoRoot string
}

func (l Layout) SourceDir() string { return filepath.Join(l.RepoRoot, "env") }

func (l Layout) GenDir() string { return filepath.Join(l.RepoRoot, "gen") }

// SourceConfig is the operator-edited env/<env>.toml.
func (l Layout) SourceConfig(env string) string {
	return filepath.Join(l.SourceDir(), env+".toml")
}

func (l Layout) ComposeFile(env string) string {
	return filepath.Join(l.GenDir(), "docker-compose-"+env+".yml")
}

func (l Layout) VelocityFile(env string) string {
	return filepath.Join(l.GenDir(), "velocity-"+env+".toml")
}

func (l Layout) EnvFile(env string) string {
	return filepath.Join(l.GenDir(), env+".env")
}

// GeneratedFiles lists every artifact compiled for env.
func (l Layout) GeneratedFiles(env string) []string {
	return []string{l.ComposeFile(env), l.VelocityFile(env), l.EnvFile(env)}
}

// Config directory kinds under <world>/configs.
const (
	ConfigMods    = "mods"
	ConfigPlugins = "plugins"
	ConfigServer  = "server"
)

// Data directory kinds under <world>/data.
const (
	DataWorlds = "worlds"
	DataLogs   = "logs"
)

// DataLayout derives paths of one environment under its filesystem root.
type DataLayout struct {
	FSRoot string
	Env    string
}

// Data returns the data layout of env rooted at fsRoot.
func Data(fsRoot, env string) DataLayout {
	return DataLayout{FSRoot: fsRoot, Env: env}
}

// Root is <fs>/env/<env>, removed when the environment is deleted.
func (d DataLayout) Root() string {
	return filepath.Join(d.FSRoot, "env", d.Env)
}

func (d DataLayout) WorldDir(world string) string {
	return filepath.Join(d.Root(), world)
}

func (d DataLayout) ConfigDir(world, kind string) string {
	return filepath.Join(d.WorldDir(world), "configs", kind)
}

func (d DataLayout) DataDir(world, kind string) string {
	return filepath.Join(d.WorldDir(world), "data", kind)
}

// WorldFilesDir is the live world data restored from and archived by backups.
func (d DataLayout) WorldFilesDir(world string) string {
	return d.DataDir(world, DataWorlds)
}

func (d DataLayout) ServerProperties(world string) string {
	return filepath.Join(d.ConfigDir(world, ConfigServer), "server.properties")
}

func (d DataLayout) DefaultConfigsDir() string {
	return filepath.Join(d.Root(), "defaultconfigs")
}

func (d DataLayout) PaperGlobal() string {
	return filepath.Join(d.DefaultConfigsDir(), "paper-global.yml")
}

func (d DataLayout) CertsDir() string {
	return filepath.Join(d.Root(), "certs")
}

// Skeleton lists the directories every world group needs.
func (d DataLayout) Skeleton(world string) []string {
	return []string{
		d.ConfigDir(world, ConfigMods),
		d.ConfigDir(world, ConfigPlugins),
		d.ConfigDir(world, ConfigServer),
		d.DataDir(world, DataWorlds),
		d.DataDir(world, DataLogs),
	}
}
