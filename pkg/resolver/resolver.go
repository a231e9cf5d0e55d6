package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/pinstack/pinstack/pkg/registry"
)

// ErrInvalidSearchMode is returned for a mode string outside
// ancestor/exact/descendant. It marks a caller programming error, not a
// data condition.
var ErrInvalidSearchMode = errors.New("invalid search mode")

// Mode selects how the request coordinate is matched against pins.
type Mode string

const (
	// ModeAncestor finds the single most specific pin at or above the
	// request. The default.
	ModeAncestor Mode = "ancestor"
	// ModeExact requires equality on every axis.
	ModeExact Mode = "exact"
	// ModeDescendant finds every pin at or below the request, for impact
	// analysis. The only mode that legitimately returns multiple pins.
	ModeDescendant Mode = "descendant"
)

// ParseMode validates a mode string; empty selects ModeAncestor. The
// ltree-era aliases "down" (ancestor) and "up" (descendant) are accepted.
func ParseMode(text string) (Mode, error) {
	switch text {
	case "", "ancestor", "down":
		return ModeAncestor, nil
	case "exact":
		return ModeExact, nil
	case "descendant", "up":
		return ModeDescendant, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSearchMode, text)
	}
}

// Source supplies the committed pins of a package. Implementations must
// return a snapshot: the slice reflects one committed state and is owned
// by the caller.
type Source interface {
	PinsForPackage(ctx context.Context, pkg string) ([]*registry.VersionPin, error)
}

// Request names a package and the context to resolve it in. Empty axis
// values default to the axis roots.
type Request struct {
	Package  string
	Role     string
	Level    string
	Site     string
	Platform string
	Mode     Mode
}

// Result of a resolution. Found distinguishes "no matching pin", an
// ordinary outcome, from errors. Pins is ordered most specific first and
// holds at most one entry outside descendant mode.
type Result struct {
	Found bool
	Pins  []*registry.VersionPin
}

// Pin returns the winning pin, or nil when nothing matched.
func (r Result) Pin() *registry.VersionPin {
	if !r.Found {
		return nil
	}
	return r.Pins[0]
}

// Resolver ranks pins against request coordinates.
type Resolver struct {
	source Source
}

// New builds a Resolver over a pin source.
func New(source Source) *Resolver {
	return &Resolver{source: source}
}

// Resolve normalizes the request context and matches it against the
// package's pins per the request mode. The comparison is purely
// structural: a requested value that was never registered still resolves
// through its registered ancestors, so the returned pin's context need not
// textually match the request.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Result, error) {
	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return Result{}, err
	}
	coord, err := registry.NewCoordinate(req.Package, req.Role, req.Level, req.Site, req.Platform)
	if err != nil {
		return Result{}, err
	}

	pins, err := r.source.PinsForPackage(ctx, req.Package)
	if err != nil {
		return Result{}, err
	}

	var candidates []*registry.VersionPin
	for _, pin := range pins {
		switch mode {
		case ModeAncestor:
			if pin.Coordinate.Contains(coord) {
				candidates = append(candidates, pin)
			}
		case ModeExact:
			if pin.Coordinate.Equal(coord) {
				candidates = append(candidates, pin)
			}
		case ModeDescendant:
			if coord.Contains(pin.Coordinate) {
				candidates = append(candidates, pin)
			}
		}
	}
	if len(candidates) == 0 {
		return Result{}, nil
	}

	sortBySpecificity(candidates)
	if mode != ModeDescendant {
		candidates = candidates[:1]
	}
	return Result{Found: true, Pins: candidates}, nil
}

// sortBySpecificity orders pins most specific first on the canonical axis
// precedence: level, then role, then platform, then site. Pin id breaks
// exact depth ties so the order is deterministic.
func sortBySpecificity(pins []*registry.VersionPin) {
	sort.SliceStable(pins, func(i, j int) bool {
		a, b := pins[i].Coordinate, pins[j].Coordinate
		if d := a.Level.Depth() - b.Level.Depth(); d != 0 {
			return d > 0
		}
		if d := a.Role.Depth() - b.Role.Depth(); d != 0 {
			return d > 0
		}
		if d := a.Platform.Depth() - b.Platform.Depth(); d != 0 {
			return d > 0
		}
		if d := a.Site.Depth() - b.Site.Depth(); d != 0 {
			return d > 0
		}
		return pins[i].ID < pins[j].ID
	})
}
