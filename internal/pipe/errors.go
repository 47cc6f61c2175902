package pipe

import (
	"fmt"
	"strings"
)

// LaunchError indicates the external command could not be started at all,
// including working-directory isolation failures that precede the exec.
type LaunchError struct {
	Command []string
	Cause   error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch command %q: %v", strings.Join(e.Command, " "), e.Cause)
}

func (e *LaunchError) Unwrap() error {
	return e.Cause
}

// ExitError indicates the external command terminated with a non-zero status
// after all of its output had been drained.
type ExitError struct {
	Command []string
	Code    int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command %q exited with code %d", strings.Join(e.Command, " "), e.Code)
}

// FeederError wraps a failure captured while feeding the external command:
// either the upstream source failed mid-iteration or a write to the command's
// stdin failed.
type FeederError struct {
	Command []string
	Cause   error
}

func (e *FeederError) Error() string {
	return fmt.Sprintf("feeding command %q failed: %v", strings.Join(e.Command, " "), e.Cause)
}

func (e *FeederError) Unwrap() error {
	return e.Cause
}

// FramingError indicates malformed length-prefixed data on the wire.
type FramingError struct {
	Reason string
	Length int
}

func (e *FramingError) Error() string {
	if e.Length != 0 {
		return fmt.Sprintf("bad frame: %s (length %d)", e.Reason, e.Length)
	}
	return fmt.Sprintf("bad frame: %s", e.Reason)
}
