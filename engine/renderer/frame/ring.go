// Package frame owns the per in-flight frame resources and hands them out in
// a fixed rotation.
package frame

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/math"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
)

// Slot is the set of resources one in-flight frame records and submits with.
// The CPU must not touch any of it before InFlight has signaled.
type Slot struct {
	Index   int
	Primary driver.CommandBuffer
	// Secondaries holds one buffer per worker, each from its own pool.
	Secondaries    []driver.CommandBuffer
	ImageAvailable driver.Semaphore
	RenderFinished driver.Semaphore
	InFlight       driver.Fence
	// UniformOffset is where this slot's slice of the per-frame buffers starts.
	UniformOffset uint64

	primaryPool driver.CommandPool
	workerPools []driver.CommandPool
}

type Config struct {
	FramesInFlight int
	Workers        int
	// UniformSliceSize is the bytes of per-frame uniform data one slot owns.
	UniformSliceSize uint64
	FenceTimeout     time.Duration
}

type Ring struct {
	dev     driver.Device
	slots   []*Slot
	index   int
	timeout time.Duration
	stride  uint64
}

// NewRing creates every slot up front. On failure nothing is left allocated.
func NewRing(dev driver.Device, cfg Config) (*Ring, error) {
	if cfg.FramesInFlight < 2 {
		return nil, errors.Newf("frame ring needs at least 2 slots, got %d", cfg.FramesInFlight)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	r := &Ring{
		dev:     dev,
		timeout: cfg.FenceTimeout,
		stride:  math.AlignUp(cfg.UniformSliceSize, dev.Limits().MinUniformBufferOffsetAlignment),
	}
	for i := 0; i < cfg.FramesInFlight; i++ {
		s, err := r.newSlot(i, cfg.Workers)
		if err != nil {
			r.Destroy()
			return nil, errors.Wrapf(err, "creating frame slot %d", i)
		}
		r.slots = append(r.slots, s)
	}
	core.LogDebug("frame ring created with %d slots and %d workers", cfg.FramesInFlight, cfg.Workers)
	return r, nil
}

func (r *Ring) newSlot(i, workers int) (_ *Slot, err error) {
	s := &Slot{Index: i, UniformOffset: uint64(i) * r.stride}
	defer func() {
		if err != nil {
			s.destroy()
		}
	}()

	if s.primaryPool, err = r.dev.CreateCommandPool(); err != nil {
		return nil, err
	}
	cmds, err := s.primaryPool.Allocate(driver.CommandBufferLevelPrimary, 1)
	if err != nil {
		return nil, err
	}
	s.Primary = cmds[0]

	for w := 0; w < workers; w++ {
		pool, err := r.dev.CreateCommandPool()
		if err != nil {
			return nil, err
		}
		s.workerPools = append(s.workerPools, pool)
		cmds, err := pool.Allocate(driver.CommandBufferLevelSecondary, 1)
		if err != nil {
			return nil, err
		}
		s.Secondaries = append(s.Secondaries, cmds[0])
	}

	if s.ImageAvailable, err = r.dev.CreateSemaphore(); err != nil {
		return nil, err
	}
	if s.RenderFinished, err = r.dev.CreateSemaphore(); err != nil {
		return nil, err
	}
	// Created signaled so the first wait on each slot returns immediately.
	if s.InFlight, err = r.dev.CreateFence(true); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Slot) destroy() {
	if s.InFlight != nil {
		s.InFlight.Destroy()
		s.InFlight = nil
	}
	if s.RenderFinished != nil {
		s.RenderFinished.Destroy()
		s.RenderFinished = nil
	}
	if s.ImageAvailable != nil {
		s.ImageAvailable.Destroy()
		s.ImageAvailable = nil
	}
	for _, p := range s.workerPools {
		p.Destroy()
	}
	s.workerPools = nil
	s.Secondaries = nil
	if s.primaryPool != nil {
		s.primaryPool.Destroy()
		s.primaryPool = nil
	}
	s.Primary = nil
}

func (r *Ring) Len() int {
	return len(r.slots)
}

func (r *Ring) Index() int {
	return r.index
}

func (r *Ring) Slot(i int) *Slot {
	return r.slots[i]
}

// AcquireSlot blocks until the GPU is done with the current slot's previous
// use and resets its command pools. A fence that does not signal within the
// timeout is reported as device loss.
func (r *Ring) AcquireSlot() (*Slot, error) {
	s := r.slots[r.index]
	if err := s.InFlight.Wait(r.timeout); err != nil {
		if errors.Is(err, core.ErrTimeOut) {
			return nil, errors.WithSecondaryError(
				errors.Wrapf(core.ErrDeviceLost, "frame slot %d fence not signaled after %s", s.Index, r.timeout), err)
		}
		return nil, errors.Wrapf(err, "waiting for frame slot %d", s.Index)
	}
	if err := s.primaryPool.Reset(); err != nil {
		return nil, errors.Wrapf(err, "resetting frame slot %d", s.Index)
	}
	for _, p := range s.workerPools {
		if err := p.Reset(); err != nil {
			return nil, errors.Wrapf(err, "resetting frame slot %d", s.Index)
		}
	}
	return s, nil
}

func (r *Ring) CurrentCommandBuffer(slot int) driver.CommandBuffer {
	return r.slots[slot].Primary
}

// PrepareSubmit resets the slot's fence right before the submission that
// will signal it again.
func (r *Ring) PrepareSubmit(s *Slot) error {
	if err := s.InFlight.Reset(); err != nil {
		return errors.Wrapf(err, "resetting fence of frame slot %d", s.Index)
	}
	return nil
}

// Advance moves to the next slot.
func (r *Ring) Advance() {
	r.index = (r.index + 1) % len(r.slots)
}

// Destroy releases every slot. The device must be idle.
func (r *Ring) Destroy() {
	for _, s := range r.slots {
		s.destroy()
	}
	r.slots = nil
	r.index = 0
}
