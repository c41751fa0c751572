package core

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestNewErrorOkIsNil(t *testing.T) {
	assert.NoError(t, NewError(ResultOk, "anything"))
}

func TestErrorMatchesSentinel(t *testing.T) {
	err := NewError(ResultDeviceLost, "vkQueueSubmit")
	wrapped := errors.Wrap(err, "submitting frame")

	assert.ErrorIs(t, wrapped, ErrDeviceLost)
	assert.NotErrorIs(t, wrapped, ErrTimeOut)
	assert.Equal(t, ResultDeviceLost, ResultOf(wrapped))
	assert.Equal(t, "submitting frame: vkQueueSubmit: DeviceLost", wrapped.Error())
}

func TestResultOf(t *testing.T) {
	assert.Equal(t, ResultOk, ResultOf(nil))
	assert.Equal(t, ResultGeneric, ResultOf(errors.New("plain")))
	assert.Equal(t, ResultMemoryMapFailed, ResultOf(ErrMemoryMapFailed))
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "OutOfMemory", ResultOutOfMemory.String())
	assert.Equal(t, "Result(99)", Result(99).String())
}
