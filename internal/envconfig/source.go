package envconfig

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
)

// SourceConfig is a freshly provisioned source document. Field order is the
// canonical section order of the written file.
type SourceConfig struct {
	General          GeneralSection    `toml:"general"`
	WorldGroups      WorldGroupSection `toml:"world-groups"`
	ClusterVariables map[string]any    `toml:"cluster-variables"`
	RuntimeVariables map[string]any    `toml:"runtime-environment-variables"`
}

type GeneralSection struct {
	Description         string `toml:"description"`
	EnableEnvProtection bool   `toml:"enable_env_protection"`
	EnableBackups       bool   `toml:"enable_backups"`
	Hostname            string `toml:"hostname"`
}

type WorldGroupSection struct {
	EnabledGroups []string `toml:"enabled_groups"`
}

// NewConfigParams are the operator inputs of a new environment.
type NewConfigParams struct {
	Name        string
	Alias       string
	Description string
	Port        int
	Flavor      Flavor
	Protect     bool
	Hostname    string
	WorldGroups []string
	FSRoot      string
	BackupsRoot string
}

// NewConfig builds the source document of a new environment. Backups start
// disabled.
func NewConfig(p NewConfigParams) SourceConfig {
	alias := p.Alias
	if alias == "" {
		alias = p.Name
	}
	return SourceConfig{
		General: GeneralSection{
			Description:         p.Description,
			EnableEnvProtection: p.Protect,
			EnableBackups:       false,
			Hostname:            p.Hostname,
		},
		WorldGroups: WorldGroupSection{
			EnabledGroups: append([]string{}, p.WorldGroups...),
		},
		ClusterVariables: map[string]any{
			VarAlias:        alias,
			VarVelocityPort: p.Port,
			VarFlavor:       string(p.Flavor),
			VarFSRoot:       p.FSRoot,
			VarBackupsRoot:  p.BackupsRoot,
		},
		RuntimeVariables: map[string]any{},
	}
}

// Encode writes cfg as TOML. Source configs are operator-owned and carry no
// generated banner.
func Encode(w io.Writer, cfg SourceConfig) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("encode env config: %w", err)
	}
	return nil
}
