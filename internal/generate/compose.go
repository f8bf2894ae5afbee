package generate

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"craftfleet/internal/artifact"
	"craftfleet/internal/envconfig"
	"craftfleet/internal/fleet"
	"craftfleet/internal/tree"
)

// Compose template extension keys.
const (
	keyVelocityTemplate = "x-velocity-template"
	keyServiceTemplate  = "x-mc-service-template"
	keyBackupTemplate   = "x-mc-backup-template"
)

// ProxyServiceName is the compose service key of the proxy.
const ProxyServiceName = "velocity"

// ComposeTemplate is a parsed docker-compose.tpl.yml.
type ComposeTemplate struct {
	Services tree.Tree
	Volumes  tree.Tree
	Networks tree.Tree

	Velocity tree.Tree
	Service  tree.Tree
	// Backup is nil when the template declares no sidecar.
	Backup tree.Tree
}

// ParseComposeTemplate decodes and checks a compose template.
func ParseComposeTemplate(data []byte) (ComposeTemplate, error) {
	doc := tree.Tree{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return ComposeTemplate{}, fmt.Errorf("parse compose template: %w", err)
	}

	tpl := ComposeTemplate{
		Services: tree.Map(doc, "services"),
		Volumes:  tree.Map(doc, "volumes"),
		Networks: tree.Map(doc, "networks"),
		Velocity: tree.Map(doc, keyVelocityTemplate),
		Service:  tree.Map(doc, keyServiceTemplate),
		Backup:   tree.Map(doc, keyBackupTemplate),
	}
	if tpl.Velocity == nil {
		return ComposeTemplate{}, fmt.Errorf("compose template: missing %s", keyVelocityTemplate)
	}
	if tpl.Service == nil {
		return ComposeTemplate{}, fmt.Errorf("compose template: missing %s", keyServiceTemplate)
	}
	return tpl, nil
}

// RenderCompose compiles the compose topology of env. It never mutates tpl.
func RenderCompose(env envconfig.Environment, tpl ComposeTemplate, labelPrefix string) (tree.Tree, error) {
	services := normalizeTable(tpl.Services)
	for _, name := range tree.Keys(services) {
		svc, ok := services[name].(map[string]any)
		if !ok {
			continue
		}
		setLabels(svc, serviceLabels(labelPrefix, name, ""))
	}

	services[ProxyServiceName] = renderProxyService(env, tpl, labelPrefix)

	volumes := normalizeTable(tpl.Volumes)
	volumes["velocity-"+env.Name] = map[string]any{}
	volumes["dbdata-"+env.Name] = map[string]any{}
	volumes["certs-"+env.Name] = map[string]any{
		"driver": "local",
		"driver_opts": map[string]any{
			"type":   "none",
			"o":      "bind",
			"device": artifact.Data(env.FSRoot, env.Name).CertsDir(),
		},
	}

	backupsOn := env.Protected() || env.BackupsEnabled
	for _, group := range env.WorldGroups {
		svc, err := renderWorldService(env, group, tpl, labelPrefix)
		if err != nil {
			return nil, err
		}
		services[fleet.ServiceName(group.Name)] = svc
		volumes[fleet.VolumeName(group.Name)] = map[string]any{}

		if !backupsOn || !group.Backups {
			continue
		}
		if tpl.Backup == nil {
			return nil, fmt.Errorf("compose template: missing %s required by world group %q", keyBackupTemplate, group.Name)
		}
		services[fleet.BackupServiceName(group.Name)] = renderBackupService(env, group, tpl, labelPrefix)
	}

	return tree.Tree{
		"services": services,
		"volumes":  volumes,
		"networks": normalizeTable(tpl.Networks),
	}, nil
}

// EncodeCompose renders a compose tree as YAML. Map keys come out sorted, so
// unchanged input gives byte-identical output.
func EncodeCompose(doc tree.Tree) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode compose: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode compose: %w", err)
	}
	return buf.Bytes(), nil
}

func renderProxyService(env envconfig.Environment, tpl ComposeTemplate, labelPrefix string) tree.Tree {
	svc := tree.Clone(tpl.Velocity)
	deps := dependsOn(svc)
	for _, group := range env.WorldGroups {
		deps[fleet.ServiceName(group.Name)] = map[string]any{"condition": "service_healthy"}
	}
	svc["depends_on"] = deps
	setLabels(svc, serviceLabels(labelPrefix, ProxyServiceName, fleet.TypeProxy))
	return svc
}

func renderWorldService(env envconfig.Environment, group envconfig.WorldGroup, tpl ComposeTemplate, labelPrefix string) (tree.Tree, error) {
	svc := tree.InterpolateTree(tpl.Service, fleet.WorldGroupToken, group.Name)

	var err error
	if len(env.ServiceOverrides) > 0 {
		envOverrides := tree.InterpolateTree(env.ServiceOverrides, fleet.WorldGroupToken, group.Name)
		if svc, err = tree.MergeSections(svc, envOverrides); err != nil {
			return nil, fmt.Errorf("apply service overrides to %s: %w", group.Name, err)
		}
	}
	if len(group.Overrides) > 0 {
		groupOverrides := tree.InterpolateTree(group.Overrides, fleet.WorldGroupToken, group.Name)
		if svc, err = tree.MergeSections(svc, groupOverrides); err != nil {
			return nil, fmt.Errorf("apply world group overrides to %s: %w", group.Name, err)
		}
	}

	// The proxy only resolves backends by explicit container name.
	name := fleet.ContainerName(env.Name, group.Name)
	svc["container_name"] = name
	svc["hostname"] = name
	setLabels(svc, serviceLabels(labelPrefix, group.Name, fleet.TypeMinecraft))
	return svc, nil
}

func renderBackupService(env envconfig.Environment, group envconfig.WorldGroup, tpl ComposeTemplate, labelPrefix string) tree.Tree {
	svc := tree.InterpolateTree(tpl.Backup, fleet.WorldGroupToken, group.Name)
	svc["container_name"] = fleet.BackupSidecarName(env.Name, group.Name)

	deps := dependsOn(svc)
	deps[fleet.ServiceName(group.Name)] = map[string]any{"condition": "service_healthy"}
	svc["depends_on"] = deps

	mount := fleet.VolumeName(group.Name) + ":/data:ro"
	switch vols := svc["volumes"].(type) {
	case []any:
		svc["volumes"] = append(vols, mount)
	default:
		svc["volumes"] = []any{mount}
	}
	setLabels(svc, serviceLabels(labelPrefix, group.Name+"_backup", fleet.TypeBackup))
	return svc
}

func serviceLabels(prefix, name, kind string) map[string]string {
	labels := map[string]string{
		fleet.LabelKey(prefix, fleet.LabelEnv):  "${ENV}",
		fleet.LabelKey(prefix, fleet.LabelName): name,
	}
	if kind != "" {
		labels[fleet.LabelKey(prefix, fleet.LabelType)] = kind
	}
	return labels
}

// setLabels adds labels to a service in whichever form (map or KEY=VALUE
// list) the template uses.
func setLabels(svc tree.Tree, labels map[string]string) {
	switch existing := svc["labels"].(type) {
	case []any:
		for _, k := range sortedKeys(labels) {
			existing = append(existing, k+"="+labels[k])
		}
		svc["labels"] = existing
	case map[string]any:
		for k, v := range labels {
			existing[k] = v
		}
	default:
		m := make(map[string]any, len(labels))
		for k, v := range labels {
			m[k] = v
		}
		svc["labels"] = m
	}
}

// dependsOn returns the service's depends_on in long (map) form.
func dependsOn(svc tree.Tree) map[string]any {
	switch deps := svc["depends_on"].(type) {
	case map[string]any:
		return deps
	case []any:
		out := make(map[string]any, len(deps))
		for _, d := range deps {
			if name, ok := d.(string); ok {
				out[name] = map[string]any{"condition": "service_started"}
			}
		}
		return out
	default:
		return map[string]any{}
	}
}

// normalizeTable deep-copies t and replaces null entries with empty tables,
// which compose treats identically and which survive YAML round trips.
func normalizeTable(t tree.Tree) tree.Tree {
	out := tree.Clone(t)
	if out == nil {
		return tree.Tree{}
	}
	for k, v := range out {
		if v == nil {
			out[k] = map[string]any{}
		}
	}
	return out
}
