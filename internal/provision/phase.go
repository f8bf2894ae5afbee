package provision

import (
	"encoding/json"
	"fmt"

	"craftfleet/internal/check"
)

// Phase is how far provisioning of a new environment got.
type Phase uint8

const (
	PhaseNew Phase = iota + 1
	PhaseConfigWritten
	PhaseDirsScaffolded
	PhaseFlavorConfigured
	PhaseArtifactsGenerated
)

func (p Phase) String() string {
	switch p {
	case PhaseNew:
		return "new"
	case PhaseConfigWritten:
		return "config_written"
	case PhaseDirsScaffolded:
		return "dirs_scaffolded"
	case PhaseFlavorConfigured:
		return "flavor_configured"
	case PhaseArtifactsGenerated:
		return "artifacts_generated"
	default:
		return "unknown"
	}
}

func (p Phase) IsValid() bool {
	return p >= PhaseNew && p <= PhaseArtifactsGenerated
}

// Terminal reports whether provisioning completed.
func (p Phase) Terminal() bool {
	return p == PhaseArtifactsGenerated
}

// Transition advances to the next phase. Phases only move forward one step
// at a time.
func (p Phase) Transition(to Phase) Phase {
	ok := p.IsValid() && !p.Terminal() && to == p+1
	check.Assertf(ok, "provision phase transition: %s -> %s", p, to)
	if !ok {
		return p
	}
	return to
}

// MarshalJSON encodes the phase by name.
func (p Phase) MarshalJSON() ([]byte, error) {
	if !p.IsValid() {
		return nil, fmt.Errorf("invalid provision phase: %d", p)
	}
	return json.Marshal(p.String())
}
