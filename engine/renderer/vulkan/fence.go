package vulkan

import (
	"time"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
)

type Fence struct {
	dev    *Device
	handle vk.Fence
}

func (d *Device) CreateFence(signaled bool) (driver.Fence, error) {
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if signaled {
		// Signaled so the first wait on a fresh slot returns immediately.
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	f := &Fence{dev: d}
	if err := check(vk.CreateFence(d.handle, &info, nil, &f.handle), "vkCreateFence"); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Fence) Wait(timeout time.Duration) error {
	res := vk.WaitForFences(f.dev.handle, 1, []vk.Fence{f.handle}, vk.True, uint64(timeout.Nanoseconds()))
	if res == vk.Timeout {
		return errors.Wrapf(core.ErrTimeOut, "fence not signaled after %s", timeout)
	}
	return check(res, "vkWaitForFences")
}

func (f *Fence) Reset() error {
	return check(vk.ResetFences(f.dev.handle, 1, []vk.Fence{f.handle}), "vkResetFences")
}

func (f *Fence) Signaled() (bool, error) {
	switch res := vk.GetFenceStatus(f.dev.handle, f.handle); res {
	case vk.Success:
		return true, nil
	case vk.NotReady:
		return false, nil
	default:
		return false, check(res, "vkGetFenceStatus")
	}
}

func (f *Fence) Destroy() {
	if f.handle != vk.NullFence {
		vk.DestroyFence(f.dev.handle, f.handle, nil)
		f.handle = vk.NullFence
	}
}

type Semaphore struct {
	dev    *Device
	handle vk.Semaphore
}

func (d *Device) CreateSemaphore() (driver.Semaphore, error) {
	s := &Semaphore{dev: d}
	info := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	if err := check(vk.CreateSemaphore(d.handle, &info, nil, &s.handle), "vkCreateSemaphore"); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Semaphore) Destroy() {
	if s.handle != vk.NullSemaphore {
		vk.DestroySemaphore(s.dev.handle, s.handle, nil)
		s.handle = vk.NullSemaphore
	}
}

func semaphores(list []driver.Semaphore) []vk.Semaphore {
	out := make([]vk.Semaphore, len(list))
	for i, s := range list {
		out[i] = s.(*Semaphore).handle
	}
	return out
}
