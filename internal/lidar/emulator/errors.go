package emulator

import (
	"errors"
	"fmt"
)

// ErrValidation reports an unrecognised mount name or an unusable
// timestamp index. It is raised before any scan frame is read.
var ErrValidation = errors.New("emulator: validation failed")

// MountError attributes a failure to the mount whose processing it aborted.
type MountError struct {
	Mount string
	Err   error
}

func (e *MountError) Error() string {
	return fmt.Sprintf("mount %s: %v", e.Mount, e.Err)
}

func (e *MountError) Unwrap() error {
	return e.Err
}

// ErrCaptureMismatch reports a capture whose packet order or payload sizes
// do not match the expected emission pattern.
var ErrCaptureMismatch = errors.New("emulator: capture does not match emission pattern")
