package pass

import (
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
	"github.com/spaghettifunk/vireo/engine/renderer/memory"
)

type layoutUsage struct {
	stage  driver.PipelineStage
	access driver.Access
}

// usages is how an image in a given layout is produced or consumed. It serves
// both as the source scope (old layout) and the destination scope (new
// layout) of a transition.
var usages = map[driver.ImageLayout]layoutUsage{
	driver.ImageLayoutUndefined: {driver.StageTopOfPipe, driver.AccessNone},
	driver.ImageLayoutGeneral: {
		driver.StageComputeShader,
		driver.AccessShaderRead | driver.AccessShaderWrite,
	},
	driver.ImageLayoutColorAttachmentOptimal: {
		driver.StageColorAttachmentOutput,
		driver.AccessColorAttachmentRead | driver.AccessColorAttachmentWrite,
	},
	driver.ImageLayoutDepthStencilAttachmentOptimal: {
		driver.StageEarlyFragmentTests | driver.StageLateFragmentTests,
		driver.AccessDepthStencilRead | driver.AccessDepthStencilWrite,
	},
	driver.ImageLayoutDepthStencilReadOnlyOptimal: {
		driver.StageEarlyFragmentTests | driver.StageFragmentShader,
		driver.AccessDepthStencilRead | driver.AccessShaderRead,
	},
	driver.ImageLayoutShaderReadOnlyOptimal: {driver.StageFragmentShader, driver.AccessShaderRead},
	driver.ImageLayoutTransferSrcOptimal:    {driver.StageTransfer, driver.AccessTransferRead},
	driver.ImageLayoutTransferDstOptimal:    {driver.StageTransfer, driver.AccessTransferWrite},
	driver.ImageLayoutPresentSrc:            {driver.StageBottomOfPipe, driver.AccessNone},
}

func usageOf(l driver.ImageLayout) layoutUsage {
	if u, ok := usages[l]; ok {
		return u
	}
	return layoutUsage{driver.StageAllCommands, driver.AccessMemoryRead | driver.AccessMemoryWrite}
}

// Transition builds the barrier entry that moves img from its tracked layout
// to newLayout, and records newLayout as the image's layout.
func Transition(img *memory.Image, newLayout driver.ImageLayout) driver.ImageBarrier {
	src, dst := usageOf(img.Layout), usageOf(newLayout)
	b := driver.ImageBarrier{
		Image:      img.Handle,
		OldLayout:  img.Layout,
		NewLayout:  newLayout,
		SrcStage:   src.stage,
		DstStage:   dst.stage,
		SrcAccess:  src.access,
		DstAccess:  dst.access,
		Aspect:     img.Aspect,
		BaseMip:    0,
		MipCount:   img.MipLevels,
		BaseLayer:  0,
		LayerCount: img.ArrayLayers,
	}
	img.Layout = newLayout
	return b
}

// Batch folds image and buffer entries into one pipeline barrier command.
func Batch(images []driver.ImageBarrier, buffers []driver.BufferBarrier) driver.Barrier {
	b := driver.Barrier{Images: images, Buffers: buffers}
	for _, i := range images {
		b.SrcStage |= i.SrcStage
		b.DstStage |= i.DstStage
	}
	for _, buf := range buffers {
		b.SrcStage |= buf.SrcStage
		b.DstStage |= buf.DstStage
	}
	return b
}
