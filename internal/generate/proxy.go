package generate

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/BurntSushi/toml"

	"craftfleet/internal/envconfig"
	"craftfleet/internal/fleet"
	"craftfleet/internal/tree"
)

// LobbyWorldGroup also answers on mc.<hostname> when enabled.
const LobbyWorldGroup = "lobby"

// Routes is the proxy's view of an environment.
type Routes struct {
	// Servers maps proxy server keys to backend addresses.
	Servers map[string]string
	// Try lists server keys in connection-attempt order.
	Try []string
	// ForcedHosts maps virtual hosts to the servers they route to.
	ForcedHosts map[string][]string
}

// ProxyRoutes derives proxy routing from env alone.
func ProxyRoutes(env envconfig.Environment) Routes {
	r := Routes{
		Servers:     make(map[string]string, len(env.WorldGroups)),
		Try:         make([]string, 0, len(env.WorldGroups)),
		ForcedHosts: make(map[string][]string, len(env.WorldGroups)+1),
	}
	for _, group := range env.WorldGroups {
		key := fleet.ProxyServerKey(group.Name)
		r.Servers[key] = fleet.ContainerName(env.Name, group.Name) + ":" + strconv.Itoa(fleet.ServerPort)
		r.Try = append(r.Try, key)

		if group.Name == LobbyWorldGroup {
			r.ForcedHosts["mc."+env.Hostname] = []string{key}
		}
		r.ForcedHosts[group.Name+"."+env.Hostname] = []string{key}
	}
	return r
}

// RenderProxy overlays env's routes onto the proxy template.
func RenderProxy(env envconfig.Environment, tpl []byte) ([]byte, error) {
	doc := tree.Tree{}
	if _, err := toml.Decode(string(tpl), &doc); err != nil {
		return nil, fmt.Errorf("parse proxy template: %w", err)
	}

	routes := ProxyRoutes(env)
	servers := make(map[string]any, len(routes.Servers)+1)
	for k, v := range routes.Servers {
		servers[k] = v
	}
	servers["try"] = routes.Try

	forced := make(map[string]any, len(routes.ForcedHosts))
	for k, v := range routes.ForcedHosts {
		forced[k] = v
	}

	doc["servers"] = servers
	doc["forced-hosts"] = forced

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return nil, fmt.Errorf("encode proxy config: %w", err)
	}
	return buf.Bytes(), nil
}
