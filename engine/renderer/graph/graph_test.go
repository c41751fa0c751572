package graph

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
	"github.com/spaghettifunk/vireo/engine/renderer/driver/drivertest"
	"github.com/spaghettifunk/vireo/engine/renderer/memory"
	"github.com/spaghettifunk/vireo/engine/renderer/pass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFrame(t *testing.T) (*pass.Frame, *drivertest.CommandBuffer) {
	t.Helper()
	dev := drivertest.NewDevice()
	alloc, err := memory.New(dev, memory.Config{BlockSize: 1 << 24, BudgetFraction: 1})
	require.NoError(t, err)
	pool, err := dev.CreateCommandPool()
	require.NoError(t, err)
	cmds, err := pool.Allocate(driver.CommandBufferLevelPrimary, 1)
	require.NoError(t, err)
	require.NoError(t, cmds[0].Begin(driver.BeginInfo{OneTimeSubmit: true}))
	secondaries, err := pool.Allocate(driver.CommandBufferLevelSecondary, 2)
	require.NoError(t, err)

	color, err := alloc.AllocateImage(memory.ImageDesc{
		Name:   "color",
		Extent: driver.Extent2D{Width: 64, Height: 64},
		Format: driver.FormatB8G8R8A8Unorm,
		Usage:  driver.ImageUsageColorAttachment,
	})
	require.NoError(t, err)
	return &pass.Frame{
		Extent:      driver.Extent2D{Width: 64, Height: 64},
		Cmd:         cmds[0],
		Secondaries: secondaries,
		Images:      map[string]*memory.Image{pass.Backbuffer: color},
	}, cmds[0].(*drivertest.CommandBuffer)
}

func TestExecuteRunsPassesInRegistrationOrder(t *testing.T) {
	f, cmd := newFrame(t)
	var order []string
	record := func(name string) RecordFunc {
		return func(_ *pass.Frame, ctx *pass.Context) error {
			assert.Equal(t, pass.Active, ctx.State())
			order = append(order, name)
			return nil
		}
	}
	g := New().
		AddPass("A", record("A")).
		AddPass("B", record("B")).
		AddPass("C", record("C"))
	require.NoError(t, g.SetPassContext("B",
		pass.New("B").AddColor(pass.Backbuffer, driver.LoadOpClear, driver.StoreOpStore, [4]float32{})))

	for frame := 0; frame < 4; frame++ {
		order = nil
		require.NoError(t, g.Execute(f))
		assert.Equal(t, []string{"A", "B", "C"}, order)
	}
	assert.Equal(t, []string{"A", "B", "C"}, g.Passes())
	assert.Equal(t, pass.Closed, g.Context("B").State())

	labels := cmd.Find("BeginLabel")
	require.Len(t, labels, 12)
	assert.Equal(t, "A", labels[0].Args)
	assert.Len(t, cmd.Find("EndLabel"), 12)
	assert.Len(t, cmd.Find("BeginRendering"), 4)
	assert.Len(t, cmd.Find("EndRendering"), 4)
}

func TestDuplicatePassPanics(t *testing.T) {
	g := New().AddPass("shadow", func(*pass.Frame, *pass.Context) error { return nil })
	assert.Panics(t, func() {
		g.AddPass("shadow", func(*pass.Frame, *pass.Context) error { return nil })
	})
}

func TestSetPassContextUnknown(t *testing.T) {
	g := New()
	err := g.SetPassContext("nope", pass.New("nope"))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestFailingPassStopsExecution(t *testing.T) {
	f, cmd := newFrame(t)
	boom := errors.New("boom")
	var ran []string
	g := New().
		AddPass("A", func(*pass.Frame, *pass.Context) error { ran = append(ran, "A"); return boom }).
		AddPass("B", func(*pass.Frame, *pass.Context) error { ran = append(ran, "B"); return nil })
	require.NoError(t, g.SetPassContext("A",
		pass.New("A").AddColor(pass.Backbuffer, driver.LoadOpLoad, driver.StoreOpStore, [4]float32{})))

	err := g.Execute(f)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"A"}, ran)
	// the scope is closed and the label balanced
	assert.Equal(t, []string{"BeginLabel", "PipelineBarrier", "BeginRendering", "SetViewport", "SetScissor",
		"EndRendering", "EndLabel"}, cmd.Names())
}

func TestPassBeginFailureClosesScope(t *testing.T) {
	f, cmd := newFrame(t)
	// a secondary that is still recording cannot begin again
	require.NoError(t, f.Secondaries[0].Begin(driver.BeginInfo{}))
	ran := false
	g := New().AddPass("geometry", func(*pass.Frame, *pass.Context) error { ran = true; return nil })
	require.NoError(t, g.SetPassContext("geometry", pass.New("geometry").
		AddColor(pass.Backbuffer, driver.LoadOpClear, driver.StoreOpStore, [4]float32{}).
		SetParallelism(2)))

	err := g.Execute(f)
	require.Error(t, err)
	assert.False(t, ran)
	assert.Equal(t, pass.Closed, g.Context("geometry").State())
	assert.Equal(t, []string{"BeginLabel", "PipelineBarrier", "BeginRendering", "EndRendering", "EndLabel"}, cmd.Names())
}

func TestRemovePass(t *testing.T) {
	noop := func(*pass.Frame, *pass.Context) error { return nil }
	g := New().AddPass("A", noop).AddPass("B", noop).AddPass("C", noop)
	assert.True(t, g.RemovePass("B"))
	assert.False(t, g.RemovePass("B"))
	assert.Equal(t, []string{"A", "C"}, g.Passes())
	require.NoError(t, g.SetPassContext("C", pass.New("C")))
	g.AddPass("B", noop)
	assert.Equal(t, []string{"A", "C", "B"}, g.Passes())
}
