package systems

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobSystemRejectsBadConfig(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)
}

func TestJobSystemRunJoinsAllTasks(t *testing.T) {
	js, err := NewJobSystem(4, 8)
	require.NoError(t, err)
	defer js.Shutdown()

	var n atomic.Int32
	tasks := make([]func() error, 16)
	for i := range tasks {
		tasks[i] = func() error {
			n.Add(1)
			return nil
		}
	}
	require.NoError(t, js.Run(context.Background(), tasks...))
	assert.Equal(t, int32(16), n.Load())
}

func TestJobSystemRunReportsFirstError(t *testing.T) {
	js, err := NewJobSystem(2, 0)
	require.NoError(t, err)
	defer js.Shutdown()

	boom := errors.New("boom")
	err = js.Run(context.Background(),
		func() error { return nil },
		func() error { return boom },
		func() error { return errors.New("later") },
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "job 1")
}

func TestJobSystemSubmitCallbacks(t *testing.T) {
	js, err := NewJobSystem(1, 1)
	require.NoError(t, err)

	failed := make(chan error, 1)
	completed := make(chan struct{}, 1)
	js.Submit(JobTask{
		OnStart:   func() error { return errors.New("nope") },
		OnFailure: func(err error) { failed <- err },
	})
	js.Submit(JobTask{
		OnStart:    func() error { return nil },
		OnComplete: func() { completed <- struct{}{} },
	})
	require.NoError(t, js.Shutdown())
	assert.EqualError(t, <-failed, "nope")
	<-completed
}
