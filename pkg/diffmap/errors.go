package diffmap

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks. Use errors.As with the typed errors
// below for details.
var (
	// ErrIncomparableValue indicates that two leaf values could not be compared.
	ErrIncomparableValue = errors.New("incomparable value")
	// ErrLabelMismatch indicates that an artifact was replayed onto a tree it
	// was not computed for.
	ErrLabelMismatch = errors.New("label mismatch")
	// ErrPathNotFound indicates that a differing path does not exist in the target.
	ErrPathNotFound = errors.New("path not found")
)

// IncomparableValueError aborts a diff when a leaf value cannot be
// equality-compared.
type IncomparableValueError struct {
	Path Path
	Err  error
}

func (e *IncomparableValueError) Error() string {
	return fmt.Sprintf("cannot compare values at %q: %v", e.Path.String(), e.Err)
}

func (e *IncomparableValueError) Unwrap() error { return e.Err }

func (e *IncomparableValueError) Is(target error) bool { return target == ErrIncomparableValue }

// LabelMismatchError is returned by [Apply] when the artifact's A label is
// not the label of the target tree. The target is left untouched.
type LabelMismatchError struct {
	Artifact string
	Target   string
}

func (e *LabelMismatchError) Error() string {
	return fmt.Sprintf("artifact was computed against %q, refusing to apply it to %q", e.Artifact, e.Target)
}

func (e *LabelMismatchError) Is(target error) bool { return target == ErrLabelMismatch }

// PathNotFoundError is returned by [Apply] when a differing path cannot be
// resolved in the target. Missing is the first segment that was not found or
// was not a nested mapping.
type PathNotFoundError struct {
	Path    Path
	Missing string
}

func (e *PathNotFoundError) Error() string {
	return fmt.Sprintf("path %q: segment %q not found in target", e.Path.String(), e.Missing)
}

func (e *PathNotFoundError) Is(target error) bool { return target == ErrPathNotFound }
