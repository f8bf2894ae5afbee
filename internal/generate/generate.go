// Package generate compiles an environment's deployment artifacts from its
// source config and the shared templates: the compose topology, the proxy
// config, the compose env file, per-world server.properties and flavor side
// configs.
package generate

import (
	"context"
	"fmt"
	"log/slog"

	"craftfleet/internal/artifact"
	"craftfleet/internal/envconfig"
	"craftfleet/internal/settings"
	"craftfleet/internal/templates"
)

type Generator struct {
	settings  settings.Settings
	layout    artifact.Layout
	writer    *artifact.Writer
	templates *templates.Store
	log       *slog.Logger
}

func New(s settings.Settings, w *artifact.Writer, tpls *templates.Store) *Generator {
	return &Generator{
		settings:  s,
		layout:    artifact.Layout{RepoRoot: s.RepoRoot},
		writer:    w,
		templates: tpls,
		log:       slog.With("component", "generator"),
	}
}

// Artifacts are the rendered bodies of an environment's gen/ files, without
// banners.
type Artifacts struct {
	Compose  []byte
	Velocity []byte
	EnvFile  []byte
}

// Render compiles every gen/ artifact of env in memory.
func (g *Generator) Render(env envconfig.Environment) (Artifacts, error) {
	composeRaw, err := g.templates.Read(templates.Compose)
	if err != nil {
		return Artifacts{}, err
	}
	composeTpl, err := ParseComposeTemplate(composeRaw)
	if err != nil {
		return Artifacts{}, err
	}
	doc, err := RenderCompose(env, composeTpl, g.settings.LabelPrefix)
	if err != nil {
		return Artifacts{}, fmt.Errorf("render compose for %s: %w", env.Name, err)
	}
	compose, err := EncodeCompose(doc)
	if err != nil {
		return Artifacts{}, err
	}

	velocityTpl, err := g.templates.Read(templates.Velocity)
	if err != nil {
		return Artifacts{}, err
	}
	velocity, err := RenderProxy(env, velocityTpl)
	if err != nil {
		return Artifacts{}, fmt.Errorf("render proxy config for %s: %w", env.Name, err)
	}

	vars, err := EnvVars(env)
	if err != nil {
		return Artifacts{}, fmt.Errorf("render env file for %s: %w", env.Name, err)
	}

	return Artifacts{
		Compose:  compose,
		Velocity: velocity,
		EnvFile:  RenderEnvFile(vars),
	}, nil
}

// WriteArtifacts renders and writes every gen/ artifact of env. Nothing is
// written unless every artifact renders.
func (g *Generator) WriteArtifacts(_ context.Context, env envconfig.Environment) error {
	out, err := g.Render(env)
	if err != nil {
		return err
	}

	files := []struct {
		path string
		body []byte
	}{
		{g.layout.ComposeFile(env.Name), out.Compose},
		{g.layout.VelocityFile(env.Name), out.Velocity},
		{g.layout.EnvFile(env.Name), out.EnvFile},
	}
	for _, f := range files {
		if err := g.writer.WriteGenerated(f.path, f.body); err != nil {
			return fmt.Errorf("write artifact: %w", err)
		}
		g.log.Debug("wrote artifact", "env", env.Name, "path", f.path)
	}
	return nil
}

// SeedWorldGroups creates the directory skeleton of every enabled world
// group and seeds server.properties where none exists. Existing files are
// never touched. It returns the property files it wrote.
func (g *Generator) SeedWorldGroups(_ context.Context, env envconfig.Environment) ([]string, error) {
	tpl, err := g.templates.Read(templates.ServerProperties)
	if err != nil {
		return nil, err
	}

	data := artifact.Data(env.FSRoot, env.Name)
	if err := g.writer.MkdirAll(data.CertsDir()); err != nil {
		return nil, err
	}

	var seeded []string
	for _, world := range env.WorldGroupNames() {
		for _, dir := range data.Skeleton(world) {
			if err := g.writer.MkdirAll(dir); err != nil {
				return seeded, err
			}
		}

		body, err := RenderServerProperties(tpl, world)
		if err != nil {
			return seeded, err
		}
		path := data.ServerProperties(world)
		wrote, err := g.writer.WriteGeneratedIfAbsent(path, body)
		if err != nil {
			return seeded, fmt.Errorf("seed server.properties for %s: %w", world, err)
		}
		if wrote {
			g.log.Info("seeded server.properties", "env", env.Name, "world", world)
			seeded = append(seeded, path)
		}
	}
	return seeded, nil
}
