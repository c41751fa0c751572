package core

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Result is the engine-wide error taxonomy. Every native API status is
// translated into exactly one Result.
type Result int

const (
	ResultOk Result = iota
	ResultTimeOut
	ResultBufferTooSmall
	ResultOutOfMemory
	ResultInitializationFailed
	ResultDeviceLost
	ResultMemoryMapFailed
	ResultNotFound
	ResultWrongVersion
	ResultNotSupported
	ResultGeneric
)

var resultNames = [...]string{
	ResultOk:                   "Ok",
	ResultTimeOut:              "TimeOut",
	ResultBufferTooSmall:       "BufferTooSmall",
	ResultOutOfMemory:          "OutOfMemory",
	ResultInitializationFailed: "InitializationFailed",
	ResultDeviceLost:           "DeviceLost",
	ResultMemoryMapFailed:      "MemoryMapFailed",
	ResultNotFound:             "NotFound",
	ResultWrongVersion:         "WrongVersion",
	ResultNotSupported:         "NotSupported",
	ResultGeneric:              "Generic",
}

func (r Result) String() string {
	if r < 0 || int(r) >= len(resultNames) {
		return fmt.Sprintf("Result(%d)", int(r))
	}
	return resultNames[r]
}

// Error carries a Result together with the operation that produced it.
type Error struct {
	Result Result
	Op     string
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Result.String()
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Result)
}

// Is makes errors.Is(err, ErrDeviceLost) match any *Error with the same Result.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Result == e.Result
}

var (
	ErrTimeOut              = &Error{Result: ResultTimeOut}
	ErrBufferTooSmall       = &Error{Result: ResultBufferTooSmall}
	ErrOutOfMemory          = &Error{Result: ResultOutOfMemory}
	ErrInitializationFailed = &Error{Result: ResultInitializationFailed}
	ErrDeviceLost           = &Error{Result: ResultDeviceLost}
	ErrMemoryMapFailed      = &Error{Result: ResultMemoryMapFailed}
	ErrNotFound             = &Error{Result: ResultNotFound}
	ErrWrongVersion         = &Error{Result: ResultWrongVersion}
	ErrNotSupported         = &Error{Result: ResultNotSupported}
	ErrGeneric              = &Error{Result: ResultGeneric}
)

// NewError returns nil for ResultOk, otherwise an *Error for op.
func NewError(r Result, op string) error {
	if r == ResultOk {
		return nil
	}
	return &Error{Result: r, Op: op}
}

// ResultOf extracts the Result carried by err. Errors that do not carry one
// are reported as ResultGeneric.
func ResultOf(err error) Result {
	if err == nil {
		return ResultOk
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Result
	}
	return ResultGeneric
}
