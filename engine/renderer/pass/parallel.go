package pass

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
)

// Range is a half-open index range [Begin, End).
type Range struct {
	Begin, End int
}

func (r Range) Len() int {
	return r.End - r.Begin
}

// Partition splits total items into workers contiguous ranges of
// ceil(total/workers) items. Trailing ranges may be empty.
func Partition(total, workers int) []Range {
	if workers < 1 {
		workers = 1
	}
	size := (total + workers - 1) / workers
	ranges := make([]Range, workers)
	for i := range ranges {
		begin := min(i*size, total)
		ranges[i] = Range{Begin: begin, End: min(begin+size, total)}
	}
	return ranges
}

// RecordFunc records the items of r into cmd. It runs on a worker goroutine
// and must only touch cmd and read-only frame data.
type RecordFunc func(worker int, cmd driver.CommandBuffer, r Range) error

// RecordParallel records total items. When the context fanned out, the items
// are partitioned across the secondaries and recorded concurrently on the
// frame's job system, one worker per buffer, and the call returns once every
// worker finished. Otherwise fn records everything into the primary buffer.
func (c *Context) RecordParallel(total int, fn RecordFunc) error {
	if c.state != Active {
		panic(errors.AssertionFailedf("pass %q: recording in state %s", c.name, c.state))
	}
	if !c.Parallel() {
		if total == 0 {
			return nil
		}
		return fn(0, c.frame.Cmd, Range{Begin: 0, End: total})
	}

	ranges := Partition(total, len(c.secondaries))
	tasks := make([]func() error, 0, len(ranges))
	for i, r := range ranges {
		if r.Len() == 0 {
			continue
		}
		i, r, cmd := i, r, c.secondaries[i]
		tasks = append(tasks, func() error {
			return fn(i, cmd, r)
		})
	}

	if c.frame.Jobs == nil {
		for _, task := range tasks {
			if err := task(); err != nil {
				return errors.Wrapf(err, "pass %q", c.name)
			}
		}
		return nil
	}
	if err := c.frame.Jobs.Run(c.frame.context(), tasks...); err != nil {
		return errors.Wrapf(err, "pass %q", c.name)
	}
	return nil
}
