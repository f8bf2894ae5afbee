package generate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"dario.cat/mergo"

	"craftfleet/internal/envconfig"
)

// EnvVars is the flat process environment handed to compose: cluster
// variables with their resolved defaults, then runtime variables, then ENV.
// Later sources win.
func EnvVars(env envconfig.Environment) (map[string]string, error) {
	vars := make(map[string]string, len(env.ClusterVariables)+len(env.RuntimeVariables)+6)
	layers := []map[string]string{
		env.ClusterVariables,
		{
			envconfig.VarAlias:        env.Alias,
			envconfig.VarVelocityPort: strconv.Itoa(env.ProxyPort),
			envconfig.VarFlavor:       string(env.Flavor),
			envconfig.VarFSRoot:       env.FSRoot,
			envconfig.VarBackupsRoot:  env.BackupsRoot,
		},
		env.RuntimeVariables,
		{envconfig.VarEnv: env.Name},
	}
	for _, layer := range layers {
		if err := mergo.Merge(&vars, layer, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("layer variables: %w", err)
		}
	}
	return vars, nil
}

// RenderEnvFile writes vars as sorted KEY="value" lines.
func RenderEnvFile(vars map[string]string) []byte {
	var b strings.Builder
	for _, k := range sortedKeys(vars) {
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(escapeEnvValue(vars[k]))
		b.WriteString("\"\n")
	}
	return []byte(b.String())
}

var envValueEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"$", `\$`,
)

func escapeEnvValue(v string) string {
	return envValueEscaper.Replace(v)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
