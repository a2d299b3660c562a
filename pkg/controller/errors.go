package controller

import (
	"errors"
	"fmt"
)

// ErrTuneInterrupted reports a retune sequence abandoned because Stop
// or Close began teardown while the tuner was settling.
var ErrTuneInterrupted = errors.New("tune interrupted by stop")

// ValidationError reports a rejected command parameter. The radio keeps
// running unchanged when one is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is a parameter rejection rather than
// a hardware or state failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// DeviceError wraps a tuner hardware failure. Fatal errors mean the
// device could not be brought up at all; non-fatal ones occurred on a
// running radio, which stays in its previous state.
type DeviceError struct {
	Op    string
	Err   error
	Fatal bool
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

func deviceErr(op string, err error) error {
	return &DeviceError{Op: op, Err: err}
}

func fatalDeviceErr(op string, err error) error {
	return &DeviceError{Op: op, Err: err, Fatal: true}
}
