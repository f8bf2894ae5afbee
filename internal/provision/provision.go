// Package provision creates, regenerates, lists and deletes environments.
package provision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"craftfleet/internal/artifact"
	"craftfleet/internal/envconfig"
	"craftfleet/internal/fleet"
	"craftfleet/internal/generate"
	"craftfleet/internal/settings"
)

// Request describes a new environment.
type Request struct {
	Port        int
	Alias       string
	Description string
	Flavor      string
	Protect     bool
}

// StepError records a provisioning step that failed without aborting.
type StepError struct {
	Step string
	Err  error
}

func (e StepError) Error() string { return e.Step + ": " + e.Err.Error() }

func (e StepError) Unwrap() error { return e.Err }

// Result is the outcome of Create. A Phase short of PhaseArtifactsGenerated
// leaves a state Regenerate can finish.
type Result struct {
	Env    envconfig.Environment
	Phase  Phase
	Errors []StepError
}

// Report is the machine-readable form of a Result.
type Report struct {
	Env    string   `json:"env"`
	Phase  Phase    `json:"phase"`
	Errors []string `json:"errors,omitempty"`
}

func (r Result) Report() Report {
	out := Report{Env: r.Env.Name, Phase: r.Phase}
	for _, e := range r.Errors {
		out.Errors = append(out.Errors, e.Error())
	}
	return out
}

// Err joins every step error, or returns nil.
func (r Result) Err() error {
	errs := make([]error, len(r.Errors))
	for i := range r.Errors {
		errs[i] = r.Errors[i]
	}
	return errors.Join(errs...)
}

type Provisioner struct {
	settings settings.Settings
	layout   artifact.Layout
	writer   *artifact.Writer
	gen      *generate.Generator
	log      *slog.Logger
}

func New(s settings.Settings, w *artifact.Writer, gen *generate.Generator) *Provisioner {
	return &Provisioner{
		settings: s,
		layout:   artifact.Layout{RepoRoot: s.RepoRoot},
		writer:   w,
		gen:      gen,
		log:      slog.With("component", "provision"),
	}
}

// Create provisions a new environment. Only invalid input aborts; every
// later step logs its failure and the next step still runs.
func (p *Provisioner) Create(ctx context.Context, req Request) (Result, error) {
	res := Result{Phase: PhaseNew}

	if req.Port < p.settings.ProxyPortMin || req.Port > p.settings.ProxyPortMax {
		return res, &fleet.ValidationError{
			Field: "port",
			Message: fmt.Sprintf("proxy port %d outside allowed range %d-%d",
				req.Port, p.settings.ProxyPortMin, p.settings.ProxyPortMax),
		}
	}
	flavor, err := envconfig.ParseFlavor(req.Flavor)
	if err != nil {
		return res, err
	}

	ids, err := p.existingIDs()
	if err != nil {
		return res, err
	}
	name := envconfig.NameFor(envconfig.NextID(ids))
	log := p.log.With("env", name)
	log.Info("provisioning environment", "port", req.Port, "flavor", flavor, "protect", req.Protect)

	var source bytes.Buffer
	cfg := envconfig.NewConfig(envconfig.NewConfigParams{
		Name:        name,
		Alias:       req.Alias,
		Description: req.Description,
		Port:        req.Port,
		Flavor:      flavor,
		Protect:     req.Protect,
		Hostname:    p.settings.Hostname,
		WorldGroups: p.settings.DefaultWorldGroups,
		FSRoot:      p.settings.DataRoot,
		BackupsRoot: p.settings.BackupsRoot,
	})
	if err := envconfig.Encode(&source, cfg); err != nil {
		return res, err
	}
	env, err := envconfig.Decode(source.Bytes(), p.layout.SourceConfig(name), name, p.settings)
	if err != nil {
		// Settings produced a config that does not load back.
		return res, fmt.Errorf("derive config for %s: %w", name, err)
	}
	res.Env = env

	failed := false
	step := func(next Phase, label string, fn func() error) {
		if err := fn(); err != nil {
			log.Error("provisioning step failed", "step", label, "err", err)
			res.Errors = append(res.Errors, StepError{Step: label, Err: err})
			failed = true
			return
		}
		if !failed {
			res.Phase = res.Phase.Transition(next)
		}
	}

	step(PhaseConfigWritten, "write config", func() error {
		return p.writer.WriteFile(p.layout.SourceConfig(name), source.Bytes())
	})
	step(PhaseDirsScaffolded, "scaffold directories", func() error {
		if _, err := p.gen.SeedWorldGroups(ctx, env); err != nil {
			return err
		}
		return p.seedDefaultConfigs(env)
	})
	step(PhaseFlavorConfigured, "configure server type", func() error {
		return p.gen.ConfigureServerType(ctx, env)
	})
	step(PhaseArtifactsGenerated, "generate artifacts", func() error {
		return p.gen.WriteArtifacts(ctx, env)
	})

	log.Info("provisioned environment", "phase", res.Phase, "errors", len(res.Errors))
	return res, nil
}

// seedDefaultConfigs copies the protected environment's defaultconfigs tree
// into a new environment that has none yet.
func (p *Provisioner) seedDefaultConfigs(env envconfig.Environment) error {
	dst := artifact.Data(env.FSRoot, env.Name).DefaultConfigsDir()
	if exists, err := p.writer.Exists(dst); err != nil || exists {
		if exists {
			p.log.Info("defaultconfigs already present, not copying", "env", env.Name, "path", dst)
		}
		return err
	}

	srcRoot := p.settings.DataRoot
	if base, err := p.Load(p.settings.ProtectedEnv); err == nil {
		srcRoot = base.FSRoot
	}
	src := artifact.Data(srcRoot, p.settings.ProtectedEnv).DefaultConfigsDir()
	exists, err := p.writer.Exists(src)
	if err != nil {
		return err
	}
	if !exists {
		p.log.Warn("no defaultconfigs to copy", "env", env.Name, "source", src)
		return nil
	}
	if err := p.writer.CopyTree(src, dst); err != nil {
		return fmt.Errorf("copy defaultconfigs: %w", err)
	}
	return nil
}

// Regenerate recompiles every artifact of an existing environment from its
// source config and seeds any newly enabled world group. A source config or
// template that fails to parse aborts before anything is written.
func (p *Provisioner) Regenerate(ctx context.Context, name string) (envconfig.Environment, error) {
	env, err := p.Load(name)
	if err != nil {
		return envconfig.Environment{}, err
	}
	if err := p.gen.WriteArtifacts(ctx, env); err != nil {
		return env, fmt.Errorf("regenerate %s: %w", name, err)
	}
	if _, err := p.gen.SeedWorldGroups(ctx, env); err != nil {
		return env, fmt.Errorf("seed world groups of %s: %w", name, err)
	}
	p.log.Info("regenerated artifacts", "env", name)
	return env, nil
}

// Delete removes an environment's data directory, source config and
// generated artifacts. Missing files are ignored. A source config that no
// longer loads does not block deletion.
func (p *Provisioner) Delete(_ context.Context, name string) (bool, error) {
	if _, err := envconfig.ParseName(name); err != nil {
		return false, err
	}
	if name == p.settings.ProtectedEnv {
		return false, &fleet.ProtectedError{Env: name}
	}

	env, err := p.Load(name)
	if err != nil {
		if !unreadable(err) {
			return false, err
		}
		if env, err = p.brokenEnv(name, err); err != nil {
			return false, err
		}
	}
	if env.Protected() {
		return false, &fleet.ProtectedError{Env: name}
	}

	paths := append([]string{artifact.Data(env.FSRoot, name).Root(), p.layout.SourceConfig(name)},
		p.layout.GeneratedFiles(name)...)
	for _, path := range paths {
		if err := p.writer.Remove(path); err != nil {
			return false, err
		}
	}
	p.log.Info("deleted environment", "env", name)
	return true, nil
}

var protectionFlag = regexp.MustCompile(`(?m)^\s*enable_env_protection\s*=\s*true\b`)

// brokenEnv stands in for an environment whose source config exists but does
// not load, so it can still be deleted. Its data is assumed to live under the
// default data root. A config that still visibly enables protection stays
// protected.
func (p *Provisioner) brokenEnv(name string, loadErr error) (envconfig.Environment, error) {
	path := p.layout.SourceConfig(name)
	raw, err := afero.ReadFile(p.writer.Fs(), path)
	if err != nil {
		return envconfig.Environment{}, fmt.Errorf("read env config: %w", err)
	}
	p.log.Warn("source config does not load, deleting with defaults",
		"env", name, "data_root", p.settings.DataRoot, "err", loadErr)
	return envconfig.Environment{
		Name:              name,
		FSRoot:            p.settings.DataRoot,
		ProtectionEnabled: protectionFlag.Match(raw),
	}, nil
}

func unreadable(err error) bool {
	var (
		perr *envconfig.ParseError
		verr *fleet.ValidationError
		serr *fleet.SchemaError
	)
	return errors.As(err, &perr) || errors.As(err, &verr) || errors.As(err, &serr)
}

// List returns every environment whose source config loads, ordered by id.
func (p *Provisioner) List(_ context.Context) ([]envconfig.Environment, error) {
	names, err := p.sourceNames()
	if err != nil {
		return nil, err
	}
	envs := make([]envconfig.Environment, 0, len(names))
	for _, name := range names {
		env, err := p.Load(name)
		if err != nil {
			p.log.Warn("skipping environment", "env", name, "err", err)
			continue
		}
		envs = append(envs, env)
	}
	sort.Slice(envs, func(i, j int) bool { return envs[i].ID < envs[j].ID })
	return envs, nil
}

// Load reads and resolves the named environment's source config.
func (p *Provisioner) Load(name string) (envconfig.Environment, error) {
	if _, err := envconfig.ParseName(name); err != nil {
		return envconfig.Environment{}, err
	}
	return envconfig.Load(p.writer.Fs(), p.layout.SourceConfig(name), p.settings)
}

// existingIDs returns the ids of every env<N>.toml, loadable or not, so a
// broken config still holds its id.
func (p *Provisioner) existingIDs() ([]int, error) {
	names, err := p.sourceNames()
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(names))
	for _, name := range names {
		if id, err := envconfig.ParseName(name); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (p *Provisioner) sourceNames() ([]string, error) {
	entries, err := afero.ReadDir(p.writer.Fs(), p.layout.SourceDir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list environments: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".toml") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".toml")
		if _, err := envconfig.ParseName(name); err != nil {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}
