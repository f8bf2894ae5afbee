package envconfig

import (
	"fmt"
	"strings"

	"craftfleet/internal/fleet"
)

// Flavor is the server software an environment runs.
type Flavor string

const (
	FlavorPaper  Flavor = "PAPER"
	FlavorBukkit Flavor = "BUKKIT"
	FlavorFabric Flavor = "FABRIC"
	FlavorForge  Flavor = "FORGE"
)

// ParseFlavor accepts a flavor name in any case.
func ParseFlavor(raw string) (Flavor, error) {
	f := Flavor(strings.ToUpper(strings.TrimSpace(raw)))
	if !f.IsValid() {
		return "", &fleet.ValidationError{
			Field:   "flavor",
			Message: fmt.Sprintf("unknown server flavor %q (want PAPER, BUKKIT, FABRIC or FORGE)", raw),
		}
	}
	return f, nil
}

func (f Flavor) IsValid() bool {
	switch f {
	case FlavorPaper, FlavorBukkit, FlavorFabric, FlavorForge:
		return true
	default:
		return false
	}
}

// PluginBased reports whether the flavor loads server plugins.
func (f Flavor) PluginBased() bool {
	return f == FlavorPaper || f == FlavorBukkit
}

// ModBased reports whether the flavor loads compiled mods.
func (f Flavor) ModBased() bool {
	return f == FlavorFabric || f == FlavorForge
}

func (f Flavor) String() string { return string(f) }
