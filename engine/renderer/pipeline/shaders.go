package pipeline

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
)

// ShaderSource provides compiled shader bytecode by name.
type ShaderSource interface {
	Bytecode(name string) ([]byte, error)
}

// ShaderCache creates each shader module once and keeps it until it is
// invalidated.
type ShaderCache struct {
	mu      sync.Mutex
	dev     driver.Device
	src     ShaderSource
	modules map[string]driver.ShaderModule
}

func NewShaderCache(dev driver.Device, src ShaderSource) *ShaderCache {
	return &ShaderCache{dev: dev, src: src, modules: make(map[string]driver.ShaderModule)}
}

func (c *ShaderCache) Module(name string) (driver.ShaderModule, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.modules[name]; ok {
		return m, nil
	}
	code, err := c.src.Bytecode(name)
	if err != nil {
		return nil, errors.Wrapf(err, "shader %q", name)
	}
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, errors.Newf("shader %q: bytecode size %d is not a multiple of 4", name, len(code))
	}
	m, err := c.dev.CreateShaderModule(code)
	if err != nil {
		return nil, errors.Wrapf(err, "shader %q", name)
	}
	c.modules[name] = m
	return m, nil
}

// Invalidate destroys the module so the next Module call reloads it. The
// device must not be using it anymore.
func (c *ShaderCache) Invalidate(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.modules[name]
	if ok {
		m.Destroy()
		delete(c.modules, name)
	}
	return ok
}

func (c *ShaderCache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, m := range c.modules {
		m.Destroy()
		delete(c.modules, name)
	}
}
