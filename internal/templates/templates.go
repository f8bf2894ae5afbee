// Package templates provides the source templates artifacts are compiled
// from. Defaults are embedded in the binary; a template of the same name in
// the override directory takes precedence.
package templates

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"

	"github.com/spf13/afero"
)

const (
	Compose          = "docker-compose.tpl.yml"
	Velocity         = "velocity.tpl.toml"
	PaperGlobal      = "paper-global.tpl.yml"
	ServerProperties = "server.tpl.properties"
)

//go:embed defaults/*
var defaults embed.FS

// Store resolves templates by name.
type Store struct {
	fs  afero.Fs
	dir string
}

// NewStore returns a Store reading overrides from dir on fsys. An empty dir
// serves only the embedded defaults.
func NewStore(fsys afero.Fs, dir string) *Store {
	return &Store{fs: fsys, dir: dir}
}

// Read returns the contents of the named template.
func (s *Store) Read(name string) ([]byte, error) {
	if s != nil && s.dir != "" && s.fs != nil {
		data, err := afero.ReadFile(s.fs, filepath.Join(s.dir, name))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read template override %s: %w", name, err)
		}
	}

	data, err := defaults.ReadFile(path.Join("defaults", name))
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", name, err)
	}
	return data, nil
}
