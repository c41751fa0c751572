// Package memory is the GPU memory allocator used by every renderer
// component. Small resources are sub-allocated out of large blocks, large or
// dedicated ones get their own device memory.
package memory

import (
	"math/bits"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/math"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
)

// Flags describe how the host accesses an allocation. They compose with OR.
type Flags uint32

const (
	// PersistentlyMapped keeps the allocation mapped for its whole lifetime.
	PersistentlyMapped Flags = 1 << iota
	// HostSequentialWrite is for write-only staging and per-frame uniforms.
	HostSequentialWrite
	// HostRandomAccess is for memory the host reads back.
	HostRandomAccess
	// Dedicated gives the resource its own device memory object.
	Dedicated
)

func (f Flags) hostVisible() bool {
	return f&(PersistentlyMapped|HostSequentialWrite|HostRandomAccess) != 0
}

type Config struct {
	BlockSize      uint64
	BudgetFraction float64
}

// Stats is a snapshot of the allocator bookkeeping.
type Stats struct {
	LiveAllocations      int
	Blocks               int
	DedicatedAllocations int
	BytesInUse           uint64
	BytesReserved        uint64
}

// Allocation is a range of device memory backing one buffer or image.
type Allocation struct {
	ID         uuid.UUID
	Size       uint64
	Offset     uint64
	Flags      Flags
	Properties driver.MemoryProperty
	Name       string

	memory    driver.DeviceMemory
	typeIndex uint32
	block     *block
	mapped    []byte
	mapCount  int
}

// HostVisible reports whether the allocation may be mapped.
func (a *Allocation) HostVisible() bool {
	return a.Properties&driver.MemoryPropertyHostVisible != 0
}

// Mapped returns the persistent mapping, nil when the allocation is not mapped.
func (a *Allocation) Mapped() []byte {
	return a.mapped
}

type Allocator struct {
	mu     sync.Mutex
	dev    driver.Device
	props  driver.MemoryProperties
	limits driver.Limits
	cfg    Config

	blocks    map[uint32][]*block
	heapUsage []uint64
	live      map[uuid.UUID]*Allocation
	dedicated int
	inUse     uint64
}

func New(dev driver.Device, cfg Config) (*Allocator, error) {
	if cfg.BlockSize == 0 {
		return nil, errors.New("memory: block size must be > 0")
	}
	if cfg.BudgetFraction <= 0 || cfg.BudgetFraction > 1 {
		cfg.BudgetFraction = 1
	}
	props := dev.MemoryProperties()
	return &Allocator{
		dev:       dev,
		props:     props,
		limits:    dev.Limits(),
		cfg:       cfg,
		blocks:    make(map[uint32][]*block),
		heapUsage: make([]uint64, len(props.Heaps)),
		live:      make(map[uuid.UUID]*Allocation),
	}, nil
}

func (a *Allocator) Device() driver.Device {
	return a.dev
}

// memoryPreferences turns the access flags into required, preferred and
// not-preferred memory properties.
func memoryPreferences(flags Flags) (required, preferred, notPreferred driver.MemoryProperty) {
	switch {
	case flags&HostRandomAccess != 0:
		required = driver.MemoryPropertyHostVisible
		preferred = driver.MemoryPropertyHostCached | driver.MemoryPropertyHostCoherent
	case flags.hostVisible():
		required = driver.MemoryPropertyHostVisible
		preferred = driver.MemoryPropertyHostCoherent
		notPreferred = driver.MemoryPropertyHostCached
	default:
		preferred = driver.MemoryPropertyDeviceLocal
		notPreferred = driver.MemoryPropertyHostVisible
	}
	return required, preferred, notPreferred
}

// findMemoryTypeIndex picks the allowed type with every required property and
// the fewest preference misses.
func (a *Allocator) findMemoryTypeIndex(typeBits uint32, flags Flags) (uint32, error) {
	required, preferred, notPreferred := memoryPreferences(flags)
	best, bestCost := -1, 1<<30
	for i, t := range a.props.Types {
		if typeBits&(1<<uint(i)) == 0 {
			continue
		}
		if t.Properties&required != required {
			continue
		}
		cost := bits.OnesCount32(uint32(preferred&^t.Properties)) + bits.OnesCount32(uint32(notPreferred&t.Properties))
		if cost < bestCost {
			best, bestCost = i, cost
		}
	}
	if best < 0 {
		return 0, errors.Wrapf(core.ErrNotSupported, "no memory type for bits=%b flags=%b", typeBits, flags)
	}
	return uint32(best), nil
}

func (a *Allocator) heapOf(typeIndex uint32) uint32 {
	return a.props.Types[typeIndex].HeapIndex
}

// Budget returns how many bytes of heap are reserved and how many may be.
func (a *Allocator) Budget(heap uint32) (usage, budget uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(heap) >= len(a.props.Heaps) {
		return 0, 0
	}
	return a.heapUsage[heap], a.budgetOf(heap)
}

func (a *Allocator) budgetOf(heap uint32) uint64 {
	return uint64(float64(a.props.Heaps[heap].Size) * a.cfg.BudgetFraction)
}

// allocateDeviceMemory must be called with a.mu held.
func (a *Allocator) allocateDeviceMemory(size uint64, typeIndex uint32) (driver.DeviceMemory, error) {
	heap := a.heapOf(typeIndex)
	if a.heapUsage[heap]+size > a.budgetOf(heap) {
		return nil, errors.Wrapf(core.ErrOutOfMemory, "heap %d budget exceeded (%d + %d > %d)",
			heap, a.heapUsage[heap], size, a.budgetOf(heap))
	}
	mem, err := a.dev.AllocateMemory(size, typeIndex)
	if err != nil {
		return nil, errors.Wrapf(err, "allocating %d bytes of memory type %d", size, typeIndex)
	}
	a.heapUsage[heap] += size
	return mem, nil
}

func (a *Allocator) freeDeviceMemory(mem driver.DeviceMemory, size uint64, typeIndex uint32) {
	a.heapUsage[a.heapOf(typeIndex)] -= size
	mem.Free()
}

// allocate reserves memory for the given requirements. Called with a.mu held.
func (a *Allocator) allocate(req driver.MemoryRequirements, flags Flags, name string) (*Allocation, error) {
	typeIndex, err := a.findMemoryTypeIndex(req.TypeBits, flags)
	if err != nil {
		return nil, err
	}
	alloc := &Allocation{
		ID:         uuid.New(),
		Size:       req.Size,
		Flags:      flags,
		Properties: a.props.Types[typeIndex].Properties,
		Name:       name,
		typeIndex:  typeIndex,
	}

	if flags&Dedicated != 0 || req.Size > a.cfg.BlockSize/2 {
		mem, err := a.allocateDeviceMemory(req.Size, typeIndex)
		if err != nil {
			return nil, err
		}
		alloc.memory = mem
		a.dedicated++
	} else {
		b, offset, err := a.subAllocate(req, typeIndex)
		if err != nil {
			return nil, err
		}
		alloc.block = b
		alloc.memory = b.memory
		alloc.Offset = offset
	}

	if flags&PersistentlyMapped != 0 {
		if err := a.mapLocked(alloc); err != nil {
			a.releaseLocked(alloc)
			return nil, err
		}
	}

	a.live[alloc.ID] = alloc
	a.inUse += alloc.Size
	return alloc, nil
}

func (a *Allocator) subAllocate(req driver.MemoryRequirements, typeIndex uint32) (*block, uint64, error) {
	for _, b := range a.blocks[typeIndex] {
		if offset, ok := b.alloc(req.Size, req.Alignment); ok {
			return b, offset, nil
		}
	}
	mem, err := a.allocateDeviceMemory(a.cfg.BlockSize, typeIndex)
	if err != nil {
		return nil, 0, err
	}
	b := newBlock(mem, typeIndex, a.cfg.BlockSize)
	a.blocks[typeIndex] = append(a.blocks[typeIndex], b)
	core.LogDebug("memory: new %d byte block for type %d", a.cfg.BlockSize, typeIndex)
	offset, ok := b.alloc(req.Size, req.Alignment)
	if !ok {
		return nil, 0, errors.Wrapf(core.ErrBufferTooSmall, "%d bytes do not fit a fresh block", req.Size)
	}
	return b, offset, nil
}

// releaseLocked returns the allocation's memory. Called with a.mu held.
func (a *Allocator) releaseLocked(alloc *Allocation) {
	if alloc.block == nil {
		if alloc.mapped != nil {
			a.dev.UnmapMemory(alloc.memory)
		}
		a.freeDeviceMemory(alloc.memory, alloc.Size, alloc.typeIndex)
		a.dedicated--
	} else {
		b := alloc.block
		b.release(alloc.Offset, alloc.Size)
		if b.empty() {
			a.dropBlock(b)
		}
	}
	alloc.mapped = nil
	alloc.memory = nil
	alloc.block = nil
}

func (a *Allocator) dropBlock(b *block) {
	list := a.blocks[b.typeIndex]
	for i, other := range list {
		if other == b {
			a.blocks[b.typeIndex] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if b.mapped != nil {
		a.dev.UnmapMemory(b.memory)
		b.mapped = nil
	}
	a.freeDeviceMemory(b.memory, b.size, b.typeIndex)
}

// Free releases an allocation. Freeing twice is a no-op.
func (a *Allocator) Free(alloc *Allocation) {
	if alloc == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.live[alloc.ID]; !ok {
		return
	}
	delete(a.live, alloc.ID)
	a.inUse -= alloc.Size
	a.releaseLocked(alloc)
}

// Map returns the host view of the allocation. Allocations whose memory is not
// host visible fail with core.ErrMemoryMapFailed.
func (a *Allocator) Map(alloc *Allocation) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.mapLocked(alloc); err != nil {
		return nil, err
	}
	return alloc.mapped, nil
}

func (a *Allocator) mapLocked(alloc *Allocation) error {
	if !alloc.HostVisible() {
		return errors.Wrapf(core.ErrMemoryMapFailed, "allocation %s (%s) is not host visible", alloc.ID, alloc.Name)
	}
	if alloc.mapped != nil {
		alloc.mapCount++
		return nil
	}
	if b := alloc.block; b != nil {
		// blocks stay mapped once any sub-allocation needed it
		if b.mapped == nil {
			data, err := a.dev.MapMemory(b.memory)
			if err != nil {
				return errors.Wrapf(err, "mapping block of type %d", b.typeIndex)
			}
			b.mapped = data
		}
		alloc.mapped = b.mapped[alloc.Offset : alloc.Offset+alloc.Size : alloc.Offset+alloc.Size]
	} else {
		data, err := a.dev.MapMemory(alloc.memory)
		if err != nil {
			return errors.Wrapf(err, "mapping allocation %s", alloc.ID)
		}
		alloc.mapped = data[:alloc.Size:alloc.Size]
	}
	alloc.mapCount++
	return nil
}

// Unmap balances a Map. Persistently mapped allocations stay mapped.
func (a *Allocator) Unmap(alloc *Allocation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if alloc.mapCount == 0 {
		return
	}
	alloc.mapCount--
	if alloc.mapCount > 0 || alloc.Flags&PersistentlyMapped != 0 {
		return
	}
	if alloc.block == nil {
		a.dev.UnmapMemory(alloc.memory)
	}
	alloc.mapped = nil
}

// atomRange widens [offset, offset+size) of alloc to the non-coherent atom
// size, in device memory offsets.
func (a *Allocator) atomRange(alloc *Allocation, offset, size uint64) (uint64, uint64) {
	atom := a.limits.NonCoherentAtomSize
	if atom == 0 {
		atom = 1
	}
	start := (alloc.Offset + offset) / atom * atom
	end := math.AlignUp(alloc.Offset+offset+size, atom)
	limit := alloc.Offset + alloc.Size
	if alloc.block != nil {
		limit = alloc.block.size
	}
	if end > limit {
		end = limit
	}
	return start, end - start
}

// Flush makes host writes visible to the device. No-op for coherent memory.
func (a *Allocator) Flush(alloc *Allocation, offset, size uint64) error {
	if alloc.Properties&driver.MemoryPropertyHostCoherent != 0 {
		return nil
	}
	start, n := a.atomRange(alloc, offset, size)
	return a.dev.FlushMemory(alloc.memory, start, n)
}

// Invalidate makes device writes visible to the host. No-op for coherent memory.
func (a *Allocator) Invalidate(alloc *Allocation, offset, size uint64) error {
	if alloc.Properties&driver.MemoryPropertyHostCoherent != 0 {
		return nil
	}
	start, n := a.atomRange(alloc, offset, size)
	return a.dev.InvalidateMemory(alloc.memory, start, n)
}

// Write copies data into the allocation at offset and flushes it.
func (a *Allocator) Write(alloc *Allocation, offset uint64, data []byte) error {
	if offset+uint64(len(data)) > alloc.Size {
		return errors.Wrapf(core.ErrBufferTooSmall, "writing %d bytes at %d into %d byte allocation", len(data), offset, alloc.Size)
	}
	dst, err := a.Map(alloc)
	if err != nil {
		return err
	}
	defer a.Unmap(alloc)
	copy(dst[offset:], data)
	return a.Flush(alloc, offset, uint64(len(data)))
}

func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := Stats{
		LiveAllocations:      len(a.live),
		DedicatedAllocations: a.dedicated,
		BytesInUse:           a.inUse,
	}
	for _, list := range a.blocks {
		s.Blocks += len(list)
	}
	for _, u := range a.heapUsage {
		s.BytesReserved += u
	}
	return s
}

// Destroy frees every block. Allocations still alive are reported as leaks
// and their memory is released with the blocks.
func (a *Allocator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, alloc := range a.live {
		core.LogWarn("memory: leaked allocation %s (%s, %d bytes)", id, alloc.Name, alloc.Size)
		if alloc.block == nil {
			a.releaseLocked(alloc)
		}
	}
	a.live = map[uuid.UUID]*Allocation{}
	for _, list := range a.blocks {
		for _, b := range list {
			if b.mapped != nil {
				a.dev.UnmapMemory(b.memory)
			}
			a.freeDeviceMemory(b.memory, b.size, b.typeIndex)
		}
	}
	a.blocks = map[uint32][]*block{}
	a.inUse = 0
}
