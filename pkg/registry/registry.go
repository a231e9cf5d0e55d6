package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pinstack/pinstack/pkg/hierarchy"
)

// Registry is the write path of the pin store. It validates every mutation
// before it reaches the Store, so the invariants hold independently of the
// storage engine's own constraint features.
type Registry struct {
	store Store
	paths *hierarchy.Tree

	// Upserts serialize per coordinate, not per registry: concurrent
	// upserts to distinct coordinates proceed in parallel, concurrent
	// upserts to one coordinate apply last-writer-wins with the invariant
	// checked under the lock.
	mu        sync.Mutex
	coordMu   map[string]*sync.Mutex
	coordRefs map[string]int
}

// New builds a Registry on top of a Store, loading previously registered
// axis paths into the in-memory hierarchy.
func New(ctx context.Context, store Store) (*Registry, error) {
	r := &Registry{
		store:     store,
		paths:     hierarchy.NewTree(),
		coordMu:   make(map[string]*sync.Mutex),
		coordRefs: make(map[string]int),
	}
	for _, axis := range hierarchy.Axes() {
		persisted, err := store.ListPaths(ctx, axis)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s paths: %w", axis, err)
		}
		for _, p := range persisted {
			if p.IsRoot() {
				// roots are implicit in a fresh tree and sit below the
				// axis minimum depth
				continue
			}
			if _, err := r.paths.Register(axis, p.String()); err != nil {
				return nil, fmt.Errorf("failed to restore %s path %q: %w", axis, p, err)
			}
		}
	}
	return r, nil
}

// Hierarchy exposes the registered axis trees to read-side collaborators.
func (r *Registry) Hierarchy() *hierarchy.Tree { return r.paths }

// Store exposes the underlying store to read-side collaborators.
func (r *Registry) Store() Store { return r.store }

// RegisterPath idempotently registers a label path (and its ancestors) on
// an axis. Malformed or depth-violating text fails with ErrMalformedPath.
func (r *Registry) RegisterPath(ctx context.Context, axis hierarchy.Axis, text string) (hierarchy.Path, error) {
	p, err := r.paths.Register(axis, text)
	if err != nil {
		return hierarchy.Path{}, err
	}
	for _, ancestor := range p.Ancestors() {
		if err := r.store.RegisterPath(ctx, ancestor); err != nil {
			return hierarchy.Path{}, fmt.Errorf("failed to persist %s path %q: %w", axis, ancestor, err)
		}
	}
	if err := r.store.RegisterPath(ctx, p); err != nil {
		return hierarchy.Path{}, fmt.Errorf("failed to persist %s path %q: %w", axis, p, err)
	}
	return p, nil
}

// CreatePackage registers a new package name. Names are normalized to
// lowercase; re-creating an existing package fails with
// ErrDuplicatePackage.
func (r *Registry) CreatePackage(ctx context.Context, name string) (*Package, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, fmt.Errorf("package name is required")
	}
	pkg := &Package{Name: name}
	if err := r.store.CreatePackage(ctx, pkg); err != nil {
		return nil, err
	}
	return pkg, nil
}

// CreateDistribution registers an immutable (package, version) pair.
func (r *Registry) CreateDistribution(ctx context.Context, pkgName, version string) (*Distribution, error) {
	labels, err := ParseVersion(version)
	if err != nil {
		return nil, err
	}
	if _, err := r.store.GetPackage(ctx, pkgName); err != nil {
		return nil, err
	}
	dist := &Distribution{Package: pkgName, Version: labels}
	if err := r.store.CreateDistribution(ctx, dist); err != nil {
		return nil, err
	}
	return dist, nil
}

// UpsertVersionPin pins a distribution at a coordinate. If the coordinate
// is unpinned a pin is created; otherwise the existing pin's distribution
// reference is repointed, the sole supported mutation. Both branches
// re-validate that the distribution belongs to the coordinate's package
// and fail with ErrPackageMismatch leaving prior state unchanged.
//
// prior is the pin as it stood before this write, nil on create. It is
// captured under the coordinate lock, so callers recording history can
// trust it even under concurrent upserts to the same coordinate.
func (r *Registry) UpsertVersionPin(ctx context.Context, coord Coordinate, distributionID int64) (pin, prior *VersionPin, err error) {
	unlock := r.lockCoordinate(coord)
	defer unlock()

	dist, err := r.store.GetDistribution(ctx, distributionID)
	if err != nil {
		return nil, nil, err
	}

	existing, found, err := r.store.GetPinByCoordinate(ctx, coord)
	if err != nil {
		return nil, nil, err
	}

	if found {
		if dist.Package != existing.Coordinate.Package {
			return nil, nil, fmt.Errorf("%w: %s pinned at %s", ErrPackageMismatch, dist, existing.Coordinate)
		}
		if err := r.store.UpdatePinDistribution(ctx, existing.ID, *dist); err != nil {
			return nil, nil, err
		}
		updated := *existing
		updated.Distribution = *dist
		return &updated, existing, nil
	}

	if dist.Package != coord.Package {
		return nil, nil, fmt.Errorf("%w: %s pinned at %s", ErrPackageMismatch, dist, coord)
	}
	created := &VersionPin{Coordinate: coord, Distribution: *dist}
	if err := r.store.CreatePin(ctx, created); err != nil {
		return nil, nil, err
	}
	return created, nil, nil
}

// SetDependencies replaces a pin's with list wholesale. Each name must be
// a registered package and may appear only once; order is preserved and
// becomes the resolution order during expansion.
func (r *Registry) SetDependencies(ctx context.Context, pinID int64, names []string) error {
	if _, err := r.store.GetPin(ctx, pinID); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(names))
	normalized := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateDependency, name)
		}
		seen[name] = struct{}{}
		if _, err := r.store.GetPackage(ctx, name); err != nil {
			return err
		}
		normalized = append(normalized, name)
	}
	return r.store.SetWiths(ctx, pinID, normalized)
}

// lockCoordinate takes the per-coordinate mutex, creating it on first use
// and dropping it once no upsert holds or awaits it.
func (r *Registry) lockCoordinate(coord Coordinate) (unlock func()) {
	key := coord.Key()

	r.mu.Lock()
	m, ok := r.coordMu[key]
	if !ok {
		m = &sync.Mutex{}
		r.coordMu[key] = m
	}
	r.coordRefs[key]++
	r.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		r.mu.Lock()
		r.coordRefs[key]--
		if r.coordRefs[key] == 0 {
			delete(r.coordMu, key)
			delete(r.coordRefs, key)
		}
		r.mu.Unlock()
	}
}
