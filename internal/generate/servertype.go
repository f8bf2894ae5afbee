package generate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"craftfleet/internal/artifact"
	"craftfleet/internal/envconfig"
	"craftfleet/internal/templates"
	"craftfleet/internal/tree"
)

// PlaceholderSecret is written when no forwarding secret is available, so a
// misconfigured proxy is obvious from the generated file.
const PlaceholderSecret = "CouldNotFindValidSecret?"

// ConfigureServerType writes flavor-specific side configs.
func (g *Generator) ConfigureServerType(ctx context.Context, env envconfig.Environment) error {
	switch {
	case env.Flavor.ModBased():
		return g.mergeLoaderMods(ctx, env)
	case env.Flavor.PluginBased():
		return g.writePaperGlobal(env)
	default:
		g.log.Info("no server type actions", "env", env.Name, "flavor", env.Flavor)
		return nil
	}
}

func (g *Generator) mergeLoaderMods(_ context.Context, env envconfig.Environment) error {
	g.log.Info("mod prerequisite merge not implemented", "env", env.Name, "flavor", env.Flavor)
	return nil
}

func (g *Generator) writePaperGlobal(env envconfig.Environment) error {
	tpl, err := g.templates.Read(templates.PaperGlobal)
	if err != nil {
		return err
	}
	body, err := RenderPaperGlobal(tpl, g.forwardingSecret())
	if err != nil {
		return err
	}
	path := artifact.Data(env.FSRoot, env.Name).PaperGlobal()
	if err := g.writer.WriteGenerated(path, body); err != nil {
		return fmt.Errorf("write paper-global: %w", err)
	}
	g.log.Debug("wrote paper-global", "env", env.Name, "path", path)
	return nil
}

// RenderPaperGlobal sets proxies.velocity.secret in the paper-global template.
func RenderPaperGlobal(tpl []byte, secret string) ([]byte, error) {
	doc := tree.Tree{}
	if err := yaml.Unmarshal(tpl, &doc); err != nil {
		return nil, fmt.Errorf("parse paper-global template: %w", err)
	}

	proxies := tree.Map(doc, "proxies")
	if proxies == nil {
		proxies = tree.Tree{}
		doc["proxies"] = proxies
	}
	velocity := tree.Map(proxies, "velocity")
	if velocity == nil {
		velocity = tree.Tree{}
		proxies["velocity"] = velocity
	}
	velocity["secret"] = secret

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode paper-global: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode paper-global: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *Generator) forwardingSecret() string {
	path := g.settings.ForwardingSecretPath()
	data, err := afero.ReadFile(g.writer.Fs(), path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			g.log.Warn("forwarding secret not found, using placeholder", "path", path)
		} else {
			g.log.Warn("read forwarding secret failed, using placeholder", "path", path, "err", err)
		}
		return PlaceholderSecret
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		g.log.Warn("forwarding secret is empty, using placeholder", "path", path)
		return PlaceholderSecret
	}
	return secret
}
