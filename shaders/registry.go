package shaders

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/vgraph/internal/logging"
	"github.com/gogpu/vgraph/recording"
)

// ErrUnknownShader is returned for names or ids that were never registered.
var ErrUnknownShader = errors.New("shaders: unknown shader")

// Shader is a registered compute stage.
type Shader struct {
	ID            recording.ShaderID
	Name          string
	Layout        []BindType
	WorkgroupSize [3]uint32
	WGSL          string

	// Version increases every time the source is replaced.
	Version uint64
}

// Registry assigns ids to compute stages. Ids are dense, starting at zero,
// in registration order.
//
// Thread safety: Registry is safe for concurrent use. Replace may run from a
// file watcher while engines look stages up.
type Registry struct {
	mu      sync.RWMutex
	shaders []Shader
	byName  map[string]recording.ShaderID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]recording.ShaderID)}
}

// Add registers a stage. Names must be unique and non-empty.
func (r *Registry) Add(name, wgsl string, workgroupSize [3]uint32, layout ...BindType) (recording.ShaderID, error) {
	if name == "" {
		return 0, errors.New("shaders: empty shader name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.byName[name]; dup {
		return 0, fmt.Errorf("shaders: %q already registered", name)
	}
	id := recording.ShaderID(len(r.shaders))
	r.shaders = append(r.shaders, Shader{
		ID:            id,
		Name:          name,
		Layout:        append([]BindType(nil), layout...),
		WorkgroupSize: workgroupSize,
		WGSL:          wgsl,
	})
	r.byName[name] = id

	logging.Logger().Debug("shaders: registered", "name", name, "id", id, "bindings", len(layout))
	return id, nil
}

// Lookup returns a copy of the stage with the given id.
func (r *Registry) Lookup(id recording.ShaderID) (Shader, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.shaders) {
		return Shader{}, false
	}
	return r.shaders[id], true
}

// ID returns the id registered for name.
func (r *Registry) ID(name string) (recording.ShaderID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	return id, ok
}

// Replace swaps the source of a registered stage and bumps its Version.
// The layout is fixed at registration and never changes.
func (r *Registry) Replace(name, wgsl string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byName[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownShader, name)
	}
	s := &r.shaders[id]
	s.WGSL = wgsl
	s.Version++
	return nil
}

// Len returns the number of registered stages.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.shaders)
}

// Shaders returns a snapshot of every stage in id order.
func (r *Registry) Shaders() []Shader {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Shader(nil), r.shaders...)
}
