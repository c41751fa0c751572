package drivertest

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
)

// Cmd is one recorded command.
type Cmd struct {
	Name string
	Args interface{}
}

// CommandBuffer records commands in order. Each buffer is only touched by one
// goroutine at a time, like a real one.
type CommandBuffer struct {
	ID        int
	Cmds      []Cmd
	Recording bool
	Resets    int
	BeginInfo driver.BeginInfo
	level     driver.CommandBufferLevel
	pool      *CommandPool
}

func (c *CommandBuffer) String() string {
	return fmt.Sprintf("CommandBuffer#%d(level=%d)", c.ID, c.level)
}

func (c *CommandBuffer) rec(name string, args interface{}) {
	if !c.Recording {
		panic(fmt.Sprintf("drivertest: %s recorded into %s outside Begin/End", name, c))
	}
	c.Cmds = append(c.Cmds, Cmd{Name: name, Args: args})
}

// Names returns the recorded command names in order.
func (c *CommandBuffer) Names() []string {
	names := make([]string, len(c.Cmds))
	for i, cmd := range c.Cmds {
		names[i] = cmd.Name
	}
	return names
}

// Find returns every recorded command called name.
func (c *CommandBuffer) Find(name string) []Cmd {
	var out []Cmd
	for _, cmd := range c.Cmds {
		if cmd.Name == name {
			out = append(out, cmd)
		}
	}
	return out
}

func (c *CommandBuffer) Level() driver.CommandBufferLevel { return c.level }

func (c *CommandBuffer) Begin(info driver.BeginInfo) error {
	if c.Recording {
		return errors.Newf("%s: Begin while recording", c)
	}
	if err := c.pool.dev.failure("BeginCommandBuffer"); err != nil {
		return err
	}
	c.Cmds = nil
	c.BeginInfo = info
	c.Recording = true
	return nil
}

func (c *CommandBuffer) End() error {
	if !c.Recording {
		return errors.Newf("%s: End while not recording", c)
	}
	c.Recording = false
	return c.pool.dev.failure("EndCommandBuffer")
}

// Reset keeps the recorded commands until the next Begin so tests can still
// inspect them.
func (c *CommandBuffer) Reset() error {
	c.Recording = false
	c.Resets++
	return nil
}

func (c *CommandBuffer) PipelineBarrier(b driver.Barrier)         { c.rec("PipelineBarrier", b) }
func (c *CommandBuffer) BeginRendering(info driver.RenderingInfo) { c.rec("BeginRendering", info) }
func (c *CommandBuffer) EndRendering()                            { c.rec("EndRendering", nil) }
func (c *CommandBuffer) SetViewport(v driver.Viewport)            { c.rec("SetViewport", v) }
func (c *CommandBuffer) SetScissor(r driver.Rect2D)               { c.rec("SetScissor", r) }

func (c *CommandBuffer) BindPipeline(bp driver.PipelineBindPoint, p driver.Pipeline) {
	c.rec("BindPipeline", p)
}

// BindSetsArgs are the arguments of a recorded BindDescriptorSets.
type BindSetsArgs struct {
	BindPoint driver.PipelineBindPoint
	Layout    driver.PipelineLayout
	FirstSet  uint32
	Sets      []driver.DescriptorSet
}

func (c *CommandBuffer) BindDescriptorSets(bp driver.PipelineBindPoint, layout driver.PipelineLayout, firstSet uint32, sets []driver.DescriptorSet) {
	c.rec("BindDescriptorSets", BindSetsArgs{bp, layout, firstSet, append([]driver.DescriptorSet(nil), sets...)})
}

func (c *CommandBuffer) PushConstants(layout driver.PipelineLayout, stages driver.ShaderStage, offset uint32, data []byte) {
	c.rec("PushConstants", append([]byte(nil), data...))
}

func (c *CommandBuffer) BindVertexBuffers(first uint32, buffers []driver.Buffer, offsets []uint64) {
	c.rec("BindVertexBuffers", buffers)
}

func (c *CommandBuffer) BindIndexBuffer(buf driver.Buffer, offset uint64, t driver.IndexType) {
	c.rec("BindIndexBuffer", buf)
}

// DrawArgs are the arguments of a recorded Draw or DrawIndexed.
type DrawArgs struct {
	Count, Instances, First uint32
	VertexOffset            int32
	FirstInstance           uint32
}

func (c *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	c.rec("Draw", DrawArgs{Count: vertexCount, Instances: instanceCount, First: firstVertex, FirstInstance: firstInstance})
}

func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	c.rec("DrawIndexed", DrawArgs{indexCount, instanceCount, firstIndex, vertexOffset, firstInstance})
}

func (c *CommandBuffer) DrawIndexedIndirect(buf driver.Buffer, offset uint64, drawCount, stride uint32) {
	c.rec("DrawIndexedIndirect", drawCount)
}

func (c *CommandBuffer) Dispatch(x, y, z uint32) {
	c.rec("Dispatch", [3]uint32{x, y, z})
}

func (c *CommandBuffer) ExecuteCommands(secondaries []driver.CommandBuffer) {
	for _, s := range secondaries {
		if s.Level() != driver.CommandBufferLevelSecondary {
			panic(fmt.Sprintf("drivertest: ExecuteCommands with %s", s))
		}
		if s.(*CommandBuffer).Recording {
			panic(fmt.Sprintf("drivertest: ExecuteCommands with %s still recording", s))
		}
	}
	c.rec("ExecuteCommands", append([]driver.CommandBuffer(nil), secondaries...))
}

func (c *CommandBuffer) CopyBuffer(src, dst driver.Buffer, regions []driver.BufferCopy) {
	c.rec("CopyBuffer", regions)
}

func (c *CommandBuffer) CopyBufferToImage(src driver.Buffer, dst driver.Image, layout driver.ImageLayout, regions []driver.BufferImageCopy) {
	c.rec("CopyBufferToImage", regions)
}

func (c *CommandBuffer) FillBuffer(dst driver.Buffer, offset, size uint64, data uint32) {
	c.rec("FillBuffer", [2]uint64{offset, size})
}

func (c *CommandBuffer) BeginLabel(name string, color [4]float32) { c.rec("BeginLabel", name) }
func (c *CommandBuffer) EndLabel()                                { c.rec("EndLabel", nil) }
