// Package settings loads the control-plane settings: where environments live
// on disk, which images run backups, and the policy knobs shared by every
// environment.
//
// Sources, lowest precedence first: built-in defaults, an optional YAML file,
// then CRAFTFLEET_* environment variables.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables that override settings.
const EnvPrefix = "CRAFTFLEET_"

// Settings holds every knob of the control plane.
type Settings struct {
	// RepoRoot holds env/<name>.toml sources and the gen/ artifact directory.
	RepoRoot string `koanf:"repo_root" validate:"required"`
	// DataRoot is the default MC_FS_ROOT written into new environments.
	DataRoot string `koanf:"data_root" validate:"required"`
	// BackupsRoot is the restic repository on the host.
	BackupsRoot string `koanf:"backups_root" validate:"required"`
	// SecretsDir holds forwarding.secret, restic.password and rcon.password.
	SecretsDir string `koanf:"secrets_dir" validate:"required"`
	// TemplatesDir overrides the embedded templates file by file when set.
	TemplatesDir string `koanf:"templates_dir"`

	ProxyPortMin int `koanf:"proxy_port_min" validate:"min=1,max=65535"`
	ProxyPortMax int `koanf:"proxy_port_max" validate:"min=1,max=65535,gtefield=ProxyPortMin"`

	ProtectedEnv       string   `koanf:"protected_env" validate:"required"`
	Hostname           string   `koanf:"hostname" validate:"required,hostname_rfc1123"`
	DefaultWorldGroups []string `koanf:"default_world_groups" validate:"min=1,dive,required"`
	LabelPrefix        string   `koanf:"label_prefix" validate:"required"`

	BackupImage string `koanf:"backup_image" validate:"required"`
	ResticImage string `koanf:"restic_image" validate:"required"`
	MaxArchives int    `koanf:"max_archives" validate:"min=1"`

	DockerBinary         string        `koanf:"docker_binary" validate:"required"`
	ConsoleAttachTimeout time.Duration `koanf:"console_attach_timeout" validate:"gt=0"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		RepoRoot:             ".",
		DataRoot:             "/var/lib/craftfleet",
		BackupsRoot:          "/var/lib/craftfleet-backups",
		SecretsDir:           "secrets",
		ProxyPortMin:         25600,
		ProxyPortMax:         25700,
		ProtectedEnv:         "env1",
		Hostname:             "craftfleet.net",
		DefaultWorldGroups:   []string{"lobby", "survival"},
		LabelPrefix:          "net.craftfleet",
		BackupImage:          "itzg/mc-backup",
		ResticImage:          "restic/restic",
		MaxArchives:          10,
		DockerBinary:         "docker",
		ConsoleAttachTimeout: 5 * time.Second,
	}
}

// Load builds Settings from defaults, the YAML file at path (skipped when
// path is empty) and the process environment.
func Load(path string) (Settings, error) {
	return load(path, os.Environ)
}

func load(path string, environ func() []string) (Settings, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Settings{}, fmt.Errorf("load default settings: %w", err)
	}

	if path != "" {
		data, err := readFile(path)
		if err != nil {
			return Settings{}, err
		}
		if err := k.Load(rawMap(data), nil); err != nil {
			return Settings{}, fmt.Errorf("apply settings file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), value
		},
		EnvironFunc: environ,
	}), nil); err != nil {
		return Settings{}, fmt.Errorf("load environment settings: %w", err)
	}

	var s Settings
	if err := k.UnmarshalWithConf("", &s, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &s,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks struct constraints.
func (s Settings) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return fmt.Errorf("validate settings: %w", err)
	}
	return nil
}

// ForwardingSecretPath is the proxy forwarding secret shared with servers.
func (s Settings) ForwardingSecretPath() string {
	return s.secretPath("forwarding.secret")
}

// ResticPasswordPath is the restic repository password file.
func (s Settings) ResticPasswordPath() string {
	return s.secretPath("restic.password")
}

// RconPasswordPath is the rcon password file used by backup sidecars.
func (s Settings) RconPasswordPath() string {
	return s.secretPath("rcon.password")
}

// secretPath resolves a relative SecretsDir against RepoRoot.
func (s Settings) secretPath(name string) string {
	dir := s.SecretsDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(s.RepoRoot, dir)
	}
	return filepath.Join(dir, name)
}

func readFile(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings file: %w", err)
	}
	data := map[string]any{}
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse settings file %s: %w", path, err)
	}
	return data, nil
}

// rawMap adapts an already-decoded map to koanf.Provider.
type rawMap map[string]any

func (r rawMap) Read() (map[string]any, error) {
	return r, nil
}

func (r rawMap) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("ReadBytes not implemented")
}
