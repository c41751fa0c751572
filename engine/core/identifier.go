package core

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// IDPool hands out the lowest free integer id and lets it be reused after
// release. Safe for concurrent use.
type IDPool struct {
	mu     sync.Mutex
	owners []interface{}
	limit  uint32
}

// NewIDPool creates a pool with at most limit ids. A zero limit is unbounded.
func NewIDPool(limit uint32) *IDPool {
	return &IDPool{limit: limit}
}

func (p *IDPool) Acquire(owner interface{}) (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.owners {
		// Existing free spot. Take it.
		if p.owners[i] == nil {
			p.owners[i] = owner
			return uint32(i), nil
		}
	}
	if p.limit != 0 && uint32(len(p.owners)) >= p.limit {
		return 0, errors.Wrapf(ErrBufferTooSmall, "id pool exhausted (limit=%d)", p.limit)
	}
	p.owners = append(p.owners, owner)
	return uint32(len(p.owners) - 1), nil
}

func (p *IDPool) Release(id uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id >= uint32(len(p.owners)) {
		return errors.Newf("id '%d' out of range (max=%d), nothing was done", id, len(p.owners))
	}
	p.owners[id] = nil
	return nil
}

// Owner returns whoever currently holds id, or nil.
func (p *IDPool) Owner(id uint32) interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id >= uint32(len(p.owners)) {
		return nil
	}
	return p.owners[id]
}
