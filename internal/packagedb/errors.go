package packagedb

import (
	"errors"
	"fmt"

	"github.com/zjrosen/pkgdb/internal/artifact"
)

var (
	// ErrInvalidDescriptor is wrapped by every ValidationError.
	ErrInvalidDescriptor = errors.New("invalid package descriptor")
	// ErrAlreadyRegistered is returned by Add in FailOnExisting mode.
	ErrAlreadyRegistered = errors.New("package already registered")
	// ErrDependencyNotRegistered is wrapped by UnresolvedDependencyError.
	ErrDependencyNotRegistered = errors.New("dependency not registered")
	// ErrUnsupportedFormat is returned when reading a stream written with
	// an unknown format version.
	ErrUnsupportedFormat = errors.New("unsupported package database format")
	// ErrCorruptStream is wrapped by every read error caused by bad input.
	ErrCorruptStream = errors.New("corrupt package database stream")
)

// ValidationError reports why a descriptor was rejected.
type ValidationError struct {
	Key    artifact.Instance
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("package %s: %s", e.Key, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidDescriptor }

// UnresolvedDependencyError reports a dependency that is neither in the
// database nor earlier in the same batch.
type UnresolvedDependencyError struct {
	Package    artifact.Instance
	Dependency artifact.Instance
}

func (e *UnresolvedDependencyError) Error() string {
	return fmt.Sprintf("package %s: dependency %s not registered", e.Package, e.Dependency)
}

func (e *UnresolvedDependencyError) Unwrap() error { return ErrDependencyNotRegistered }
