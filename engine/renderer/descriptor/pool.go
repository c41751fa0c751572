package descriptor

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
)

type PoolBuilder struct {
	sizes []driver.DescriptorPoolSize
}

func NewPoolBuilder() *PoolBuilder {
	return &PoolBuilder{}
}

// AddPoolSize reserves count descriptors of type t. Adding the same type
// again grows its reservation.
func (b *PoolBuilder) AddPoolSize(t driver.DescriptorType, count uint32) *PoolBuilder {
	for i := range b.sizes {
		if b.sizes[i].Type == t {
			b.sizes[i].Count += count
			return b
		}
	}
	b.sizes = append(b.sizes, driver.DescriptorPoolSize{Type: t, Count: count})
	return b
}

func (b *PoolBuilder) Build(dev driver.Device, maxSets uint32, flags driver.DescriptorPoolFlags) (*Pool, error) {
	if len(b.sizes) == 0 {
		return nil, errors.New("descriptor pool needs at least one pool size")
	}
	handle, err := dev.CreateDescriptorPool(driver.DescriptorPoolInfo{
		MaxSets: maxSets,
		Sizes:   append([]driver.DescriptorPoolSize(nil), b.sizes...),
		Flags:   flags,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating descriptor pool")
	}
	return &Pool{Handle: handle, dev: dev, updateAfterBind: flags&driver.DescriptorPoolUpdateAfterBind != 0}, nil
}

type Pool struct {
	Handle          driver.DescriptorPool
	dev             driver.Device
	updateAfterBind bool
}

// Allocate creates one set per layout.
func (p *Pool) Allocate(layouts ...*Layout) ([]*Set, error) {
	handles := make([]driver.DescriptorSetLayout, len(layouts))
	for i, l := range layouts {
		if l.UpdateAfterBind && !p.updateAfterBind {
			return nil, errors.New("bindless layout allocated from a pool without update-after-bind")
		}
		handles[i] = l.Handle
	}
	raw, err := p.Handle.Allocate(handles...)
	if err != nil {
		return nil, errors.Wrap(err, "allocating descriptor sets")
	}
	sets := make([]*Set, len(raw))
	for i, h := range raw {
		sets[i] = &Set{Handle: h, Layout: layouts[i], dev: p.dev}
	}
	return sets, nil
}

func (p *Pool) Destroy() {
	if p.Handle != nil {
		p.Handle.Destroy()
		p.Handle = nil
	}
}
