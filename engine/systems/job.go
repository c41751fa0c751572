package systems

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/vireo/engine/core"
)

// JobTask is a unit of work for the job system.
type JobTask struct {
	// Required. Invoked on a worker goroutine.
	OnStart func() error
	// Optional. Invoked when OnStart returned nil.
	OnComplete func()
	// Optional. Invoked with the error returned by OnStart.
	OnFailure func(err error)
}

// JobSystem is a fixed set of worker goroutines fed by a buffered channel.
type JobSystem struct {
	numWorkers int
	jobQueue   chan JobTask
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

var ErrNoWorkers = errors.New("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = errors.New("attempting to create worker pool with a negative channel size")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan JobTask, channelSize),
	}

	js.start()

	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				if err := job.OnStart(); err != nil {
					core.LogError(err.Error())
					if job.OnFailure != nil {
						job.OnFailure(err)
					}
					continue
				}
				if job.OnComplete != nil {
					job.OnComplete()
				}
			}
		}()
	}
}

// Workers is the number of goroutines serving the queue.
func (js *JobSystem) Workers() int {
	return js.numWorkers
}

// Shutdown closes the queue and waits for queued jobs to drain.
func (js *JobSystem) Shutdown() error {
	js.closeOnce.Do(func() { close(js.jobQueue) })
	js.wg.Wait()
	return nil
}

// Submit queues a job for execution. Blocks while the queue is full.
func (js *JobSystem) Submit(jt JobTask) {
	js.jobQueue <- jt
}

// Run executes every task on the workers and blocks until all of them
// finished. The first error (by task index) is returned. Run must not be
// called from inside a job.
func (js *JobSystem) Run(ctx context.Context, tasks ...func() error) error {
	if len(tasks) == 0 {
		return nil
	}
	errs := make([]error, len(tasks))
	var done sync.WaitGroup
	done.Add(len(tasks))
	for i, task := range tasks {
		i, task := i, task
		select {
		case <-ctx.Done():
			// Nothing of the remaining tasks was queued.
			for j := i; j < len(tasks); j++ {
				errs[j] = ctx.Err()
				done.Done()
			}
			done.Wait()
			return firstError(errs)
		case js.jobQueue <- JobTask{
			OnStart: func() error {
				defer done.Done()
				errs[i] = task()
				return nil
			},
		}:
		}
	}
	done.Wait()
	return firstError(errs)
}

func firstError(errs []error) error {
	for i, err := range errs {
		if err != nil {
			return errors.Wrapf(err, "job %d", i)
		}
	}
	return nil
}
