package hierarchy

import (
	"fmt"
	"sort"
	"sync"
)

// Tree holds the registered paths of all four axes. Registration is
// idempotent and prefix-closing: inserting a path inserts every ancestor,
// so the prefix-closure invariant holds at all times.
//
// Tree is safe for concurrent use.
type Tree struct {
	mu    sync.RWMutex
	paths map[Axis]map[string]Path
}

// NewTree returns a Tree pre-seeded with each axis root.
func NewTree() *Tree {
	t := &Tree{paths: make(map[Axis]map[string]Path, 4)}
	for _, axis := range Axes() {
		root := RootPath(axis)
		t.paths[axis] = map[string]Path{root.String(): root}
	}
	return t
}

// Register parses text and inserts the resulting path and all of its
// ancestors. Registering an already-present path is a no-op. The depth
// bounds of the axis apply to the registered path itself, not to the
// ancestors inserted for closure.
func (t *Tree) Register(axis Axis, text string) (Path, error) {
	p, err := ParsePath(axis, text)
	if err != nil {
		return Path{}, err
	}
	if p.Depth() < axis.minDepth() {
		return Path{}, fmt.Errorf("%w: %q is too shallow for axis %s (min depth %d)",
			ErrMalformedPath, p, axis, axis.minDepth())
	}
	if max := axis.maxDepth(); max > 0 && p.Depth() > max {
		return Path{}, fmt.Errorf("%w: %q is too deep for axis %s (max depth %d)",
			ErrMalformedPath, p, axis, max)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ancestor := range p.Ancestors() {
		t.paths[axis][ancestor.String()] = ancestor
	}
	t.paths[axis][p.String()] = p
	return p, nil
}

// Registered reports whether the normalized form of text is present on the
// axis. Malformed text is simply not registered.
func (t *Tree) Registered(axis Axis, text string) bool {
	p, err := ParsePath(axis, text)
	if err != nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.paths[axis][p.String()]
	return ok
}

// NearestRegistered walks up from the normalized form of text to the first
// registered ancestor-or-equal. The axis root is always registered, so the
// walk always terminates with a result.
func (t *Tree) NearestRegistered(axis Axis, text string) (Path, error) {
	p, err := ParsePath(axis, text)
	if err != nil {
		return Path{}, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for {
		if _, ok := t.paths[axis][p.String()]; ok {
			return p, nil
		}
		p = p.Parent()
	}
}

// List returns the registered paths of an axis, sorted shallow to deep and
// lexically within a depth.
func (t *Tree) List(axis Axis) []Path {
	t.mu.RLock()
	out := make([]Path, 0, len(t.paths[axis]))
	for _, p := range t.paths[axis] {
		out = append(out, p)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Depth() != out[j].Depth() {
			return out[i].Depth() < out[j].Depth()
		}
		return out[i].String() < out[j].String()
	})
	return out
}
