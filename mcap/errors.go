package mcap

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinels matched by the concrete error types below through errors.Is.
var (
	ErrInvalidState     = errors.New("mcap: invalid writer state")
	ErrUnknownReference = errors.New("mcap: unknown reference")
	ErrEncoding         = errors.New("mcap: encoding error")
	ErrSinkWrite        = errors.New("mcap: sink write failed")
)

// InvalidStateError is returned when an operation is not legal in the
// writer's current lifecycle state.
type InvalidStateError struct {
	Op    string
	State State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("mcap: %s not allowed in state %s", e.Op, e.State)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// UnknownReferenceError is returned when a message names an unregistered
// channel or a channel names an unregistered schema. The writer is left
// unchanged.
type UnknownReferenceError struct {
	Kind string // "channel" or "schema"
	ID   uint16
}

func (e *UnknownReferenceError) Error() string {
	return fmt.Sprintf("mcap: unknown %s id %d", e.Kind, e.ID)
}

func (e *UnknownReferenceError) Is(target error) bool { return target == ErrUnknownReference }

// EncodingError is returned when a field does not fit its wire width or
// violates a format rule. The offending record is never written.
type EncodingError struct {
	Record OpCode
	Field  string
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("mcap: cannot encode %s %s: %s", e.Record, e.Field, e.Reason)
}

func (e *EncodingError) Is(target error) bool { return target == ErrEncoding }

// SinkWriteError wraps a failure of the underlying io.Writer. The core never
// retries.
type SinkWriteError struct {
	Op  string
	Err error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("mcap: write %s: %v", e.Op, e.Err)
}

func (e *SinkWriteError) Unwrap() error { return e.Err }

func (e *SinkWriteError) Is(target error) bool { return target == ErrSinkWrite }
