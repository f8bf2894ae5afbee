package generate

import (
	"bytes"
	"fmt"

	"github.com/magiconair/properties"
)

// RenderServerProperties seeds a server.properties for world from the
// template, with level-name set to the world group.
func RenderServerProperties(tpl []byte, world string) ([]byte, error) {
	loader := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	props, err := loader.LoadBytes(tpl)
	if err != nil {
		return nil, fmt.Errorf("parse server.properties template: %w", err)
	}
	props.WriteSeparator = "="
	if _, _, err := props.Set("level-name", world); err != nil {
		return nil, fmt.Errorf("set level-name: %w", err)
	}

	var buf bytes.Buffer
	if _, err := props.Write(&buf, properties.UTF8); err != nil {
		return nil, fmt.Errorf("encode server.properties: %w", err)
	}
	return buf.Bytes(), nil
}
