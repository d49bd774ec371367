package kms

import (
	"errors"
	"fmt"
)

// ErrUnsupported reports a request for a capability the hardware does not
// expose, e.g. rotation on a plane without a rotation property.
var ErrUnsupported = errors.New("kms: capability not supported")

// DiscoveryError means no usable topology could be built from the backend.
// It is fatal: a Display is never returned alongside one.
type DiscoveryError struct {
	Reason string
	Err    error
}

func (e *DiscoveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("kms: discovery failed: %s: %v", e.Reason, e.Err)
	}
	return "kms: discovery failed: " + e.Reason
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// ObjectID names the hardware object a commit call targeted.
// Plane is -1 when the pipe itself was the target.
type ObjectID struct {
	Pipe  int
	Plane int
}

func (o ObjectID) String() string {
	if o.Plane < 0 {
		return "pipe " + PipeName(o.Pipe)
	}
	return fmt.Sprintf("pipe %s plane %d", PipeName(o.Pipe), o.Plane)
}

// CommitError reports the first programming call that failed during a
// commit walk. Objects programmed before it stay programmed; there is no
// rollback, and the caller restores a sane state.
type CommitError struct {
	Object ObjectID
	Err    error // the backend's raw error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("kms: commit failed at %s: %v", e.Object, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// StyleUnsupportedError reports a plane role the requested commit style
// cannot program.
type StyleUnsupportedError struct {
	Style  CommitStyle
	Object ObjectID
	Role   PlaneRole
}

func (e *StyleUnsupportedError) Error() string {
	return fmt.Sprintf("kms: %s commit cannot program %s plane at %s", e.Style, e.Role, e.Object)
}

// PipeName returns the letter name of a pipe index: "A", "B", "C"...
func PipeName(pipe int) string {
	if pipe < 0 || pipe > 25 {
		return fmt.Sprintf("?%d", pipe)
	}
	return string(rune('A' + pipe))
}
