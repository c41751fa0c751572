package pass

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
	"github.com/spaghettifunk/vireo/engine/renderer/memory"
)

type State int

const (
	Unbegun State = iota
	Active
	Closed
)

func (s State) String() string {
	return [...]string{"unbegun", "active", "closed"}[s]
}

type colorTarget struct {
	resource string
	load     driver.LoadOp
	store    driver.StoreOp
	clear    [4]float32
}

type depthTarget struct {
	resource string
	load     driver.LoadOp
	store    driver.StoreOp
	clear    float32
}

type queuedImage struct {
	resource string
	layout   driver.ImageLayout
}

type queuedBuffer struct {
	resource             string
	srcStage, dstStage   driver.PipelineStage
	srcAccess, dstAccess driver.Access
}

// Context is the dynamic rendering scope of one pass. The attachment and
// barrier declarations are a template that survives across frames, while
// everything Begin derives from them is rebuilt after every Bind.
type Context struct {
	name        string
	colors      []colorTarget
	depth       *depthTarget
	images      []queuedImage
	buffers     []queuedBuffer
	parallelism int

	// per frame
	frame       *Frame
	state       State
	extent      driver.Extent2D
	secondaries []driver.CommandBuffer
	rendering   bool
}

func New(name string) *Context {
	return &Context{name: name, parallelism: 1}
}

func (c *Context) Name() string {
	return c.name
}

// AddColor appends a color attachment. The image is transitioned to the
// color attachment layout at Begin if it is not there already.
func (c *Context) AddColor(resource string, load driver.LoadOp, store driver.StoreOp, clear [4]float32) *Context {
	c.colors = append(c.colors, colorTarget{resource: resource, load: load, store: store, clear: clear})
	return c
}

func (c *Context) SetDepth(resource string, load driver.LoadOp, store driver.StoreOp, clear float32) *Context {
	c.depth = &depthTarget{resource: resource, load: load, store: store, clear: clear}
	return c
}

// SetParallelism asks Begin to fan out to n secondary command buffers. The
// frame may provide fewer.
func (c *Context) SetParallelism(n int) *Context {
	if n < 1 {
		n = 1
	}
	c.parallelism = n
	return c
}

// QueueBarrier requests a transition of resource to layout, flushed at Begin.
func (c *Context) QueueBarrier(resource string, layout driver.ImageLayout) *Context {
	c.images = append(c.images, queuedImage{resource: resource, layout: layout})
	return c
}

// QueueBufferBarrier requests a buffer memory dependency, flushed at Begin.
func (c *Context) QueueBufferBarrier(resource string, srcStage, dstStage driver.PipelineStage, srcAccess, dstAccess driver.Access) *Context {
	c.buffers = append(c.buffers, queuedBuffer{
		resource:  resource,
		srcStage:  srcStage,
		dstStage:  dstStage,
		srcAccess: srcAccess,
		dstAccess: dstAccess,
	})
	return c
}

// Bind attaches the context to the current frame and resets it to Unbegun.
func (c *Context) Bind(f *Frame) {
	c.frame = f
	c.state = Unbegun
	c.extent = f.Extent
	c.secondaries = nil
	c.rendering = false
}

func (c *Context) State() State                         { return c.state }
func (c *Context) Frame() *Frame                        { return c.frame }
func (c *Context) Extent() driver.Extent2D              { return c.extent }
func (c *Context) Cmd() driver.CommandBuffer            { return c.frame.Cmd }
func (c *Context) Parallel() bool                       { return len(c.secondaries) > 0 }
func (c *Context) Workers() int                         { return max(1, len(c.secondaries)) }
func (c *Context) ComputeOnly() bool                    { return len(c.colors) == 0 && c.depth == nil }
func (c *Context) Secondary(i int) driver.CommandBuffer { return c.secondaries[i] }

// Begin opens the scope on the frame's primary command buffer. It flushes the
// queued barriers in one pipeline barrier together with the color attachment
// transitions, transitions the depth attachment with a barrier of its own,
// begins dynamic rendering over the attachments, sets a full viewport and
// scissor and, when parallel, begins the secondaries with matching
// inheritance. A context without attachments only flushes its barriers.
//
// Every resource is resolved before any barrier is built, so a missing one
// leaves both the command buffer and the tracked layouts untouched. A failure
// after rendering began closes the scope again and leaves the context Closed.
func (c *Context) Begin() error {
	if c.frame == nil {
		panic(errors.AssertionFailedf("pass %q: Begin before Bind", c.name))
	}
	if c.state != Unbegun {
		panic(errors.AssertionFailedf("pass %q: Begin in state %s", c.name, c.state))
	}
	cmd := c.frame.Cmd

	colors := make([]*memory.Image, len(c.colors))
	for i, t := range c.colors {
		img, err := c.frame.Image(t.resource)
		if err != nil {
			return errors.Wrapf(err, "pass %q", c.name)
		}
		colors[i] = img
	}
	var depth *memory.Image
	if c.depth != nil {
		img, err := c.frame.Image(c.depth.resource)
		if err != nil {
			return errors.Wrapf(err, "pass %q", c.name)
		}
		depth = img
	}

	queued := make([]*memory.Image, len(c.images))
	for i, q := range c.images {
		img, err := c.frame.Image(q.resource)
		if err != nil {
			return errors.Wrapf(err, "pass %q", c.name)
		}
		queued[i] = img
	}
	buffers := make([]*memory.Buffer, len(c.buffers))
	for i, q := range c.buffers {
		buf, err := c.frame.Buffer(q.resource)
		if err != nil {
			return errors.Wrapf(err, "pass %q", c.name)
		}
		buffers[i] = buf
	}

	// (a) queued barriers and color transitions, one call
	imageBarriers := make([]driver.ImageBarrier, 0, len(c.images)+len(colors))
	for i, q := range c.images {
		imageBarriers = append(imageBarriers, Transition(queued[i], q.layout))
	}
	for _, img := range colors {
		if img.Layout != driver.ImageLayoutColorAttachmentOptimal {
			imageBarriers = append(imageBarriers, Transition(img, driver.ImageLayoutColorAttachmentOptimal))
		}
	}
	bufferBarriers := make([]driver.BufferBarrier, 0, len(c.buffers))
	for i, q := range c.buffers {
		buf := buffers[i]
		bufferBarriers = append(bufferBarriers, driver.BufferBarrier{
			Buffer:    buf.Handle,
			Offset:    0,
			Size:      buf.Size,
			SrcStage:  q.srcStage,
			DstStage:  q.dstStage,
			SrcAccess: q.srcAccess,
			DstAccess: q.dstAccess,
		})
	}
	if len(imageBarriers) > 0 || len(bufferBarriers) > 0 {
		cmd.PipelineBarrier(Batch(imageBarriers, bufferBarriers))
	}

	c.state = Active
	if c.ComputeOnly() {
		return nil
	}

	switch {
	case len(colors) > 0:
		c.extent = colors[0].Extent
	case depth != nil:
		c.extent = depth.Extent
	}

	// (b) color attachments
	info := driver.RenderingInfo{
		Area:   driver.Rect2D{Extent: c.extent},
		Colors: make([]driver.RenderingAttachment, len(colors)),
	}
	for i, img := range colors {
		info.Colors[i] = driver.RenderingAttachment{
			View:   img.View,
			Layout: driver.ImageLayoutColorAttachmentOptimal,
			Load:   c.colors[i].load,
			Store:  c.colors[i].store,
			Clear:  driver.ClearValue{Color: c.colors[i].clear},
		}
	}

	// (c) depth has its own aspect and stages
	if depth != nil {
		cmd.PipelineBarrier(Batch([]driver.ImageBarrier{
			Transition(depth, driver.ImageLayoutDepthStencilAttachmentOptimal),
		}, nil))
		info.Depth = &driver.RenderingAttachment{
			View:   depth.View,
			Layout: driver.ImageLayoutDepthStencilAttachmentOptimal,
			Load:   c.depth.load,
			Store:  c.depth.store,
			Clear:  driver.ClearValue{Depth: c.depth.clear},
		}
	}

	workers := min(c.parallelism, len(c.frame.Secondaries))
	if workers > 1 {
		info.Flags = driver.RenderingContentsSecondary
	}

	// (d) and (e)
	cmd.BeginRendering(info)
	c.rendering = true
	if workers <= 1 {
		c.setDynamicState(cmd)
		return nil
	}

	// (f)
	inheritance := &driver.Inheritance{
		ColorFormats: make([]driver.Format, len(colors)),
		DepthFormat:  driver.FormatUndefined,
		Samples:      driver.SampleCount1,
	}
	for i, img := range colors {
		inheritance.ColorFormats[i] = img.Format
	}
	if depth != nil {
		inheritance.DepthFormat = depth.Format
	}
	c.secondaries = c.frame.Secondaries[:workers]
	for i, sec := range c.secondaries {
		if err := sec.Begin(driver.BeginInfo{OneTimeSubmit: true, Inheritance: inheritance}); err != nil {
			// only the secondaries that began are ended and executed
			c.secondaries = c.secondaries[:i]
			err = errors.Wrapf(err, "pass %q: beginning secondary %d", c.name, i)
			return errors.CombineErrors(err, c.End())
		}
		c.setDynamicState(sec)
	}
	return nil
}

func (c *Context) setDynamicState(cmd driver.CommandBuffer) {
	cmd.SetViewport(driver.Viewport{
		Width:    float32(c.extent.Width),
		Height:   float32(c.extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	})
	cmd.SetScissor(driver.Rect2D{Extent: c.extent})
}

// End closes the secondaries, executes them in worker order into the primary
// buffer and ends dynamic rendering. A secondary that fails to end is left
// out of the execution.
func (c *Context) End() error {
	if c.state != Active {
		panic(errors.AssertionFailedf("pass %q: End in state %s", c.name, c.state))
	}
	c.state = Closed
	var errs error
	if len(c.secondaries) > 0 {
		ended := make([]driver.CommandBuffer, 0, len(c.secondaries))
		for i, sec := range c.secondaries {
			if err := sec.End(); err != nil {
				errs = errors.CombineErrors(errs, errors.Wrapf(err, "pass %q: ending secondary %d", c.name, i))
				continue
			}
			ended = append(ended, sec)
		}
		if len(ended) > 0 {
			c.frame.Cmd.ExecuteCommands(ended)
		}
	}
	// the primary always leaves the scope, even when a secondary failed
	if c.rendering {
		c.frame.Cmd.EndRendering()
		c.rendering = false
	}
	return errs
}

// InsertBufferBarrier records a buffer memory dependency right away. It is
// meant for producers, such as a compute pass whose output is read by the
// next pass, and is illegal inside dynamic rendering.
func (c *Context) InsertBufferBarrier(buf *memory.Buffer, srcStage, dstStage driver.PipelineStage, srcAccess, dstAccess driver.Access) {
	if c.rendering {
		panic(errors.AssertionFailedf("pass %q: buffer barrier inside dynamic rendering", c.name))
	}
	c.frame.Cmd.PipelineBarrier(Batch(nil, []driver.BufferBarrier{{
		Buffer:    buf.Handle,
		Offset:    0,
		Size:      buf.Size,
		SrcStage:  srcStage,
		DstStage:  dstStage,
		SrcAccess: srcAccess,
		DstAccess: dstAccess,
	}}))
}
