package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pinstack/pinstack/pkg/hierarchy"
	"github.com/pinstack/pinstack/pkg/registry"
)

// MemoryStore implements registry.Store with copy-on-write maps: entities
// are stored by value and replaced, never mutated, so readers holding a
// returned pointer observe one committed state. Reads take the RLock only
// long enough to copy out the slice they need; they never block writers
// beyond that.
type MemoryStore struct {
	mu sync.RWMutex

	packages      map[string]registry.Package
	distributions map[int64]registry.Distribution
	distByKey     map[string]int64 // package|version -> id
	pins          map[int64]registry.VersionPin
	pinByCoord    map[string]int64 // coordinate key -> pin id
	paths         map[hierarchy.Axis]map[string]hierarchy.Path

	nextDistID int64
	nextPinID  int64
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	paths := make(map[hierarchy.Axis]map[string]hierarchy.Path, 4)
	for _, axis := range hierarchy.Axes() {
		paths[axis] = make(map[string]hierarchy.Path)
	}
	return &MemoryStore{
		packages:      make(map[string]registry.Package),
		distributions: make(map[int64]registry.Distribution),
		distByKey:     make(map[string]int64),
		pins:          make(map[int64]registry.VersionPin),
		pinByCoord:    make(map[string]int64),
		paths:         paths,
	}
}

func (s *MemoryStore) CreatePackage(_ context.Context, pkg *registry.Package) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.packages[pkg.Name]; ok {
		return fmt.Errorf("%w: %q", registry.ErrDuplicatePackage, pkg.Name)
	}
	if pkg.CreatedAt.IsZero() {
		pkg.CreatedAt = time.Now().UTC()
	}
	s.packages[pkg.Name] = *pkg
	return nil
}

func (s *MemoryStore) GetPackage(_ context.Context, name string) (*registry.Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pkg, ok := s.packages[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", registry.ErrUnknownPackage, name)
	}
	return &pkg, nil
}

func (s *MemoryStore) ListPackages(_ context.Context) ([]*registry.Package, error) {
	s.mu.RLock()
	out := make([]*registry.Package, 0, len(s.packages))
	for _, pkg := range s.packages {
		p := pkg
		out = append(out, &p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) CreateDistribution(_ context.Context, dist *registry.Distribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := dist.Package + "|" + dist.VersionString()
	if _, ok := s.distByKey[key]; ok {
		return fmt.Errorf("%w: %s", registry.ErrDuplicateDistribution, dist)
	}
	s.nextDistID++
	dist.ID = s.nextDistID
	s.distributions[dist.ID] = *dist
	s.distByKey[key] = dist.ID
	return nil
}

func (s *MemoryStore) GetDistribution(_ context.Context, id int64) (*registry.Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dist, ok := s.distributions[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", registry.ErrUnknownDistribution, id)
	}
	return &dist, nil
}

func (s *MemoryStore) ListDistributions(_ context.Context, pkg string) ([]*registry.Distribution, error) {
	s.mu.RLock()
	var out []*registry.Distribution
	for _, dist := range s.distributions {
		if dist.Package == pkg {
			d := dist
			out = append(out, &d)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreatePin(_ context.Context, pin *registry.VersionPin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pin.Coordinate.Key()
	if _, ok := s.pinByCoord[key]; ok {
		return fmt.Errorf("coordinate already pinned: %s", pin.Coordinate)
	}
	s.nextPinID++
	pin.ID = s.nextPinID
	s.pins[pin.ID] = *pin
	s.pinByCoord[key] = pin.ID
	return nil
}

func (s *MemoryStore) UpdatePinDistribution(_ context.Context, pinID int64, dist registry.Distribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pin, ok := s.pins[pinID]
	if !ok {
		return fmt.Errorf("%w: id %d", registry.ErrUnknownPin, pinID)
	}
	pin.Distribution = dist
	s.pins[pinID] = pin
	return nil
}

func (s *MemoryStore) GetPin(_ context.Context, id int64) (*registry.VersionPin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pin, ok := s.pins[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", registry.ErrUnknownPin, id)
	}
	return clonePin(pin), nil
}

func (s *MemoryStore) GetPinByCoordinate(_ context.Context, coord registry.Coordinate) (*registry.VersionPin, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.pinByCoord[coord.Key()]
	if !ok {
		return nil, false, nil
	}
	pin := s.pins[id]
	return clonePin(pin), true, nil
}

func (s *MemoryStore) PinsForPackage(_ context.Context, pkg string) ([]*registry.VersionPin, error) {
	s.mu.RLock()
	var out []*registry.VersionPin
	for _, pin := range s.pins {
		if pin.Coordinate.Package == pkg {
			out = append(out, clonePin(pin))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) SetWiths(_ context.Context, pinID int64, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pin, ok := s.pins[pinID]
	if !ok {
		return fmt.Errorf("%w: id %d", registry.ErrUnknownPin, pinID)
	}
	pin.Withs = append([]string(nil), names...)
	s.pins[pinID] = pin
	return nil
}

func (s *MemoryStore) RegisterPath(_ context.Context, path hierarchy.Path) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths[path.Axis()][path.String()] = path
	return nil
}

func (s *MemoryStore) ListPaths(_ context.Context, axis hierarchy.Axis) ([]hierarchy.Path, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]hierarchy.Path, 0, len(s.paths[axis]))
	for _, p := range s.paths[axis] {
		out = append(out, p)
	}
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// clonePin copies the pin value and its withs slice so callers can never
// alias store-internal state.
func clonePin(pin registry.VersionPin) *registry.VersionPin {
	out := pin
	out.Withs = append([]string(nil), pin.Withs...)
	return &out
}
