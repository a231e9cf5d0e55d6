package registry

import (
	"context"

	"github.com/pinstack/pinstack/pkg/hierarchy"
)

// Store is the persistence boundary of the registry. Implementations must
// map their native conflict errors onto the named errors of this package
// so callers can branch with errors.Is regardless of backend.
//
// Reads must be snapshot-consistent: a slice returned by PinsForPackage
// reflects one committed state and is never mutated afterwards.
type Store interface {
	CreatePackage(ctx context.Context, pkg *Package) error
	GetPackage(ctx context.Context, name string) (*Package, error)
	ListPackages(ctx context.Context) ([]*Package, error)

	// CreateDistribution assigns the ID on success.
	CreateDistribution(ctx context.Context, dist *Distribution) error
	GetDistribution(ctx context.Context, id int64) (*Distribution, error)
	ListDistributions(ctx context.Context, pkg string) ([]*Distribution, error)

	// CreatePin assigns the ID on success and fails if the coordinate is
	// already pinned. UpdatePinDistribution repoints an existing pin; the
	// coordinate itself is immutable.
	CreatePin(ctx context.Context, pin *VersionPin) error
	UpdatePinDistribution(ctx context.Context, pinID int64, dist Distribution) error
	GetPin(ctx context.Context, id int64) (*VersionPin, error)
	GetPinByCoordinate(ctx context.Context, coord Coordinate) (*VersionPin, bool, error)
	PinsForPackage(ctx context.Context, pkg string) ([]*VersionPin, error)

	// SetWiths replaces the pin's dependency list wholesale.
	SetWiths(ctx context.Context, pinID int64, names []string) error

	// Axis paths are persisted so the hierarchy survives restarts.
	RegisterPath(ctx context.Context, path hierarchy.Path) error
	ListPaths(ctx context.Context, axis hierarchy.Axis) ([]hierarchy.Path, error)

	Ping(ctx context.Context) error
	Close() error
}
