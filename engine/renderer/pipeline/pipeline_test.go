package pipeline

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/renderer/descriptor"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
	"github.com/spaghettifunk/vireo/engine/renderer/driver/drivertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type shaders map[string][]byte

func (s shaders) Bytecode(name string) ([]byte, error) {
	code, ok := s[name]
	if !ok {
		return nil, errors.Wrapf(core.ErrNotFound, "shader %q", name)
	}
	return code, nil
}

func modules(t *testing.T, dev *drivertest.Device) *ShaderCache {
	t.Helper()
	return NewShaderCache(dev, shaders{
		"mesh.vert": make([]byte, 64),
		"mesh.frag": make([]byte, 64),
		"cull.comp": make([]byte, 32),
		"broken":    make([]byte, 3),
	})
}

func TestGraphicsBuilder(t *testing.T) {
	dev := drivertest.NewDevice()
	cache := modules(t, dev)
	vert, err := cache.Module("mesh.vert")
	require.NoError(t, err)
	frag, err := cache.Module("mesh.frag")
	require.NoError(t, err)

	layout, err := descriptor.NewLayoutBuilder().
		AddBinding(0, driver.DescriptorUniformBuffer, driver.ShaderStageVertex, 1).
		Build(dev)
	require.NoError(t, err)

	p, err := NewGraphics("mesh").
		Shader(driver.ShaderStageVertex, vert).
		Shader(driver.ShaderStageFragment, frag).
		VertexBinding(0, 32).
		Attribute(0, 0, driver.FormatR32G32B32Sfloat, 0).
		SetLayouts(layout).
		PushConstants(driver.ShaderStageVertex, 0, 64).
		Attachments(driver.FormatD32Sfloat, driver.FormatR8G8B8A8Unorm).
		Build(dev)
	require.NoError(t, err)
	assert.Equal(t, driver.BindPointGraphics, p.BindPoint)

	info := p.Handle.(*drivertest.Object).Info.(driver.GraphicsPipelineInfo)
	assert.True(t, info.DepthTest)
	assert.Equal(t, driver.CullModeBack, info.CullMode)
	assert.Equal(t, []driver.Format{driver.FormatR8G8B8A8Unorm}, info.ColorFormats)
	assert.Same(t, p.Layout, info.Layout)

	p.Destroy()
	layout.Destroy()
	cache.Destroy()
	assert.Empty(t, dev.LiveKinds())
}

func TestGraphicsBuilderValidation(t *testing.T) {
	dev := drivertest.NewDevice()
	cache := modules(t, dev)
	defer cache.Destroy()
	vert, err := cache.Module("mesh.vert")
	require.NoError(t, err)

	_, err = NewGraphics("no-formats").Shader(driver.ShaderStageVertex, vert).Build(dev)
	assert.Error(t, err)

	_, err = NewGraphics("too-big").
		Shader(driver.ShaderStageVertex, vert).
		PushConstants(driver.ShaderStageVertex, 64, 128).
		Attachments(driver.FormatD32Sfloat).
		Build(dev)
	assert.ErrorIs(t, err, core.ErrNotSupported)

	dev.Fail["CreateGraphicsPipeline"] = core.ErrOutOfMemory
	_, err = NewGraphics("oom").
		Shader(driver.ShaderStageVertex, vert).
		Attachments(driver.FormatD32Sfloat).
		Build(dev)
	assert.ErrorIs(t, err, core.ErrOutOfMemory)
	// the layout created before the failure is released
	assert.Zero(t, dev.Live("PipelineLayout"))
}

func TestComputeBuilder(t *testing.T) {
	dev := drivertest.NewDevice()
	cache := modules(t, dev)
	defer cache.Destroy()

	_, err := NewCompute("empty").Build(dev)
	assert.ErrorIs(t, err, core.ErrNotFound)

	comp, err := cache.Module("cull.comp")
	require.NoError(t, err)
	p, err := NewCompute("cull").Shader(comp).PushConstants(0, 16).Build(dev)
	require.NoError(t, err)
	assert.Equal(t, driver.BindPointCompute, p.BindPoint)
	p.Destroy()
	p.Destroy()
}

func TestShaderCache(t *testing.T) {
	dev := drivertest.NewDevice()
	cache := modules(t, dev)

	a, err := cache.Module("mesh.vert")
	require.NoError(t, err)
	b, err := cache.Module("mesh.vert")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, dev.Live("ShaderModule"))

	_, err = cache.Module("broken")
	assert.Error(t, err)
	_, err = cache.Module("missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.True(t, cache.Invalidate("mesh.vert"))
	assert.False(t, cache.Invalidate("mesh.vert"))
	assert.Zero(t, dev.Live("ShaderModule"))

	c, err := cache.Module("mesh.vert")
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	cache.Destroy()
	assert.Empty(t, dev.LiveKinds())
}
