package registry

import "errors"

// Referential-integrity and invariant errors surfaced by the write path.
// All are terminal for the attempted write and are never retried here;
// retry policy, where it exists at all, belongs to the storage backend.
var (
	// ErrDuplicatePackage: the package name is already registered.
	ErrDuplicatePackage = errors.New("duplicate package")

	// ErrUnknownPackage: an operation referenced a package that was never
	// created.
	ErrUnknownPackage = errors.New("unknown package")

	// ErrPackageMismatch: a pin's distribution must belong to the pin's
	// coordinate package. This is the core invariant and is checked on
	// both the create and the update branch of an upsert.
	ErrPackageMismatch = errors.New("distribution package does not match coordinate package")

	// ErrDuplicateDependency: a with list named the same package twice.
	ErrDuplicateDependency = errors.New("duplicate dependency")

	// ErrUnknownPin: a with-list or lookup operation referenced a pin id
	// that does not exist.
	ErrUnknownPin = errors.New("unknown version pin")

	// ErrUnknownDistribution: a pin referenced a distribution id that does
	// not exist.
	ErrUnknownDistribution = errors.New("unknown distribution")

	// ErrDuplicateDistribution: the (package, version) pair already exists.
	ErrDuplicateDistribution = errors.New("duplicate distribution")
)
