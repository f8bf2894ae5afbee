// Package envconfig loads and writes the per-environment source config
// (env/<name>.toml), the only human-edited input artifacts are compiled from.
package envconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"

	"craftfleet/internal/fleet"
	"craftfleet/internal/settings"
	"craftfleet/internal/tree"
)

// Source config sections.
const (
	SectionGeneral          = "general"
	SectionWorldGroups      = "world-groups"
	SectionClusterVariables = "cluster-variables"
	SectionRuntimeVariables = "runtime-environment-variables"
	SectionServiceOverrides = "mc-service-overrides"

	keyEnabledGroups = "enabled_groups"
	keyOverrides     = "overrides"
	keyEnableBackups = "enable_backups"
)

// Cluster variable keys with a meaning to the control plane.
const (
	VarEnv          = "ENV"
	VarAlias        = "ENV_ALIAS"
	VarVelocityPort = "VELOCITY_PORT"
	VarFlavor       = "MC_TYPE"
	VarFSRoot       = "MC_FS_ROOT"
	VarBackupsRoot  = "BACKUPS_ROOT"
)

// ParseError reports a source document that could not be decoded.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// WorldGroup is one enabled world and its per-group configuration.
type WorldGroup struct {
	Name      string `validate:"required"`
	Backups   bool
	Overrides tree.Tree
}

// Environment is the resolved, validated view of one source config. All
// defaults are applied at load; generators never consult the raw document.
type Environment struct {
	Name        string `validate:"required"`
	ID          int    `validate:"min=1"`
	Alias       string
	Description string

	// ProtectionEnabled mirrors general.enable_env_protection.
	ProtectionEnabled bool
	// Designated is set on the environment named by settings.protected_env.
	Designated bool

	BackupsEnabled bool
	Flavor         Flavor `validate:"required"`
	Hostname       string `validate:"required"`
	ProxyPort      int    `validate:"min=1,max=65535"`
	FSRoot         string `validate:"required"`
	BackupsRoot    string `validate:"required"`

	WorldGroups      []WorldGroup `validate:"dive"`
	ServiceOverrides tree.Tree

	// ClusterVariables and RuntimeVariables are rendered to strings.
	ClusterVariables map[string]string
	RuntimeVariables map[string]string
}

// Protected reports whether the environment may never be deleted.
func (e Environment) Protected() bool {
	return e.Designated || e.ProtectionEnabled
}

// WorldGroupNames returns enabled group names in declared order.
func (e Environment) WorldGroupNames() []string {
	names := make([]string, len(e.WorldGroups))
	for i, g := range e.WorldGroups {
		names[i] = g.Name
	}
	return names
}

// WorldGroup returns the named enabled group.
func (e Environment) WorldGroup(name string) (WorldGroup, bool) {
	for _, g := range e.WorldGroups {
		if g.Name == name {
			return g, true
		}
	}
	return WorldGroup{}, false
}

// SourcePath returns env/<name>.toml under repoRoot.
func SourcePath(repoRoot, name string) string {
	return filepath.Join(repoRoot, "env", name+".toml")
}

// Load reads and resolves the source config at path. The environment name
// is the file's base name.
func Load(fsys afero.Fs, path string, s settings.Settings) (Environment, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Environment{}, &fleet.NotFoundError{Kind: "environment", Name: NameFromPath(path)}
		}
		return Environment{}, fmt.Errorf("read env config: %w", err)
	}
	return Decode(data, path, NameFromPath(path), s)
}

// Decode resolves a source document. path is only used in errors.
func Decode(data []byte, path, name string, s settings.Settings) (Environment, error) {
	raw := tree.Tree{}
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return Environment{}, &ParseError{Path: path, Err: err}
	}
	return resolve(raw, name, s)
}

func resolve(raw tree.Tree, name string, s settings.Settings) (Environment, error) {
	id, err := ParseName(name)
	if err != nil {
		return Environment{}, err
	}

	cluster := stringifyTable(tree.Map(raw, SectionClusterVariables))
	runtime := stringifyTable(tree.Map(raw, SectionRuntimeVariables))

	flavorRaw := cluster[VarFlavor]
	if flavorRaw == "" {
		flavorRaw = string(FlavorPaper)
	}
	flavor, err := ParseFlavor(flavorRaw)
	if err != nil {
		return Environment{}, err
	}

	env := Environment{
		Name:              name,
		ID:                id,
		Alias:             cluster[VarAlias],
		Description:       tree.String(raw, "", SectionGeneral, "description"),
		ProtectionEnabled: tree.Bool(raw, false, SectionGeneral, "enable_env_protection"),
		Designated:        name == s.ProtectedEnv,
		BackupsEnabled:    tree.Bool(raw, false, SectionGeneral, keyEnableBackups),
		Flavor:            flavor,
		Hostname:          tree.String(raw, s.Hostname, SectionGeneral, "hostname"),
		ProxyPort:         tree.Int(raw, 0, SectionClusterVariables, VarVelocityPort),
		FSRoot:            valueOr(cluster[VarFSRoot], s.DataRoot),
		BackupsRoot:       valueOr(cluster[VarBackupsRoot], s.BackupsRoot),
		ServiceOverrides:  tree.Clone(tree.Map(raw, SectionServiceOverrides)),
		ClusterVariables:  cluster,
		RuntimeVariables:  runtime,
	}
	if env.Alias == "" {
		env.Alias = name
	}

	groups, err := resolveWorldGroups(tree.Map(raw, SectionWorldGroups))
	if err != nil {
		return Environment{}, err
	}
	env.WorldGroups = groups

	if err := validateEnvironment(env); err != nil {
		return Environment{}, err
	}
	return env, nil
}

func resolveWorldGroups(section tree.Tree) ([]WorldGroup, error) {
	enabled := tree.Strings(section, nil, keyEnabledGroups)
	if _, ok := section[keyEnabledGroups]; ok && enabled == nil {
		return nil, &fleet.ValidationError{
			Field:   SectionWorldGroups + "." + keyEnabledGroups,
			Message: "must be a list of strings",
		}
	}

	seen := make(map[string]struct{}, len(enabled))
	groups := make([]WorldGroup, 0, len(enabled))
	for _, name := range enabled {
		if IsReservedWorldGroup(name) {
			return nil, &fleet.ValidationError{
				Field:   SectionWorldGroups + "." + keyEnabledGroups,
				Message: fmt.Sprintf("%q is a reserved name and cannot be a world group", name),
			}
		}
		if strings.TrimSpace(name) == "" || strings.ContainsAny(name, " /\\") {
			return nil, &fleet.ValidationError{
				Field:   SectionWorldGroups + "." + keyEnabledGroups,
				Message: fmt.Sprintf("invalid world group name %q", name),
			}
		}
		if _, dup := seen[name]; dup {
			return nil, &fleet.ValidationError{
				Field:   SectionWorldGroups + "." + keyEnabledGroups,
				Message: fmt.Sprintf("world group %q listed twice", name),
			}
		}
		seen[name] = struct{}{}

		// Reserved keys never reach here, so a [world-groups.defaultconfigs]
		// table is ignored rather than mistaken for a group.
		groupTable := tree.Map(section, name)
		groups = append(groups, WorldGroup{
			Name:      name,
			Backups:   tree.Bool(groupTable, true, keyEnableBackups),
			Overrides: tree.Clone(tree.Map(groupTable, keyOverrides)),
		})
	}
	return groups, nil
}

func validateEnvironment(env Environment) error {
	err := validator.New().Struct(env)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &fleet.ValidationError{
			Field:   fe.Namespace(),
			Message: fmt.Sprintf("failed %q constraint (value %v)", fe.Tag(), fe.Value()),
		}
	}
	return fmt.Errorf("validate environment %s: %w", env.Name, err)
}

func stringifyTable(t tree.Tree) map[string]string {
	out := make(map[string]string, len(t))
	for k, v := range t {
		switch val := v.(type) {
		case string:
			out[k] = val
		case map[string]any, []map[string]any:
			// Nested tables have no flat env-var form.
			continue
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// NameFromPath returns the environment name of a source config path.
func NameFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
