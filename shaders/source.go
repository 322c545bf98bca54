package shaders

import (
	"fmt"
	"os"
	"path/filepath"
)

// Source supplies WGSL text by stage name.
type Source interface {
	Source(name string) (string, error)
}

// DirSource reads <dir>/<name>.wgsl.
type DirSource string

// Source implements Source.
func (d DirSource) Source(name string) (string, error) {
	b, err := os.ReadFile(d.Path(name))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Path returns the file a stage is read from.
func (d DirSource) Path(name string) string {
	return filepath.Join(string(d), name+".wgsl")
}

// MapSource serves sources from memory.
type MapSource map[string]string

// Source implements Source.
func (m MapSource) Source(name string) (string, error) {
	s, ok := m[name]
	if !ok {
		return "", fmt.Errorf("%w: no source for %q", ErrUnknownShader, name)
	}
	return s, nil
}
