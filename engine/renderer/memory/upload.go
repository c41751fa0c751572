package memory

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
)

// Uploader copies host data into device-local resources through a staging
// buffer and a one-shot command buffer. Every upload waits for the GPU, so it
// belongs to load time and not to the frame loop.
type Uploader struct {
	alloc   *Allocator
	pool    driver.CommandPool
	timeout time.Duration
}

func NewUploader(a *Allocator, timeout time.Duration) (*Uploader, error) {
	pool, err := a.dev.CreateCommandPool()
	if err != nil {
		return nil, errors.Wrap(err, "creating upload command pool")
	}
	return &Uploader{alloc: a, pool: pool, timeout: timeout}, nil
}

func (u *Uploader) Destroy() {
	if u.pool != nil {
		u.pool.Destroy()
		u.pool = nil
	}
}

func (u *Uploader) submitOnce(record func(cmd driver.CommandBuffer)) error {
	dev := u.alloc.dev
	cmds, err := u.pool.Allocate(driver.CommandBufferLevelPrimary, 1)
	if err != nil {
		return errors.Wrap(err, "allocating upload command buffer")
	}
	defer u.pool.Reset()
	cmd := cmds[0]
	if err := cmd.Begin(driver.BeginInfo{OneTimeSubmit: true}); err != nil {
		return err
	}
	record(cmd)
	if err := cmd.End(); err != nil {
		return err
	}
	fence, err := dev.CreateFence(false)
	if err != nil {
		return err
	}
	defer fence.Destroy()
	if err := dev.Submit(driver.SubmitInfo{CommandBuffers: cmds, Fence: fence}); err != nil {
		return errors.Wrap(err, "submitting upload")
	}
	return fence.Wait(u.timeout)
}

func (u *Uploader) staging(data []byte) (*Buffer, error) {
	staging, err := u.alloc.AllocateBuffer("staging", uint64(len(data)), driver.BufferUsageTransferSrc, HostSequentialWrite)
	if err != nil {
		return nil, err
	}
	if err := staging.Write(0, data); err != nil {
		staging.Destroy()
		return nil, err
	}
	return staging, nil
}

// Buffer uploads data into dst at offset.
func (u *Uploader) Buffer(dst *Buffer, offset uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	staging, err := u.staging(data)
	if err != nil {
		return err
	}
	defer staging.Destroy()
	return u.submitOnce(func(cmd driver.CommandBuffer) {
		cmd.CopyBuffer(staging.Handle, dst.Handle, []driver.BufferCopy{{
			DstOffset: offset,
			Size:      uint64(len(data)),
		}})
	})
}

// Image uploads data into dst and leaves it ready for sampling. regions
// address data, one per mip level and layer.
func (u *Uploader) Image(dst *Image, data []byte, regions []driver.BufferImageCopy) error {
	staging, err := u.staging(data)
	if err != nil {
		return err
	}
	defer staging.Destroy()
	full := driver.ImageBarrier{
		Image:      dst.Handle,
		Aspect:     dst.Aspect,
		MipCount:   dst.MipLevels,
		LayerCount: dst.ArrayLayers,
	}
	toDst := full
	toDst.OldLayout, toDst.NewLayout = dst.Layout, driver.ImageLayoutTransferDstOptimal
	toDst.DstAccess = driver.AccessTransferWrite
	toRead := full
	toRead.OldLayout, toRead.NewLayout = driver.ImageLayoutTransferDstOptimal, driver.ImageLayoutShaderReadOnlyOptimal
	toRead.SrcAccess, toRead.DstAccess = driver.AccessTransferWrite, driver.AccessShaderRead

	err = u.submitOnce(func(cmd driver.CommandBuffer) {
		cmd.PipelineBarrier(driver.Barrier{
			SrcStage: driver.StageTopOfPipe,
			DstStage: driver.StageTransfer,
			Images:   []driver.ImageBarrier{toDst},
		})
		cmd.CopyBufferToImage(staging.Handle, dst.Handle, driver.ImageLayoutTransferDstOptimal, regions)
		cmd.PipelineBarrier(driver.Barrier{
			SrcStage: driver.StageTransfer,
			DstStage: driver.StageFragmentShader | driver.StageComputeShader,
			Images:   []driver.ImageBarrier{toRead},
		})
	})
	if err != nil {
		return err
	}
	dst.Layout = driver.ImageLayoutShaderReadOnlyOptimal
	return nil
}
