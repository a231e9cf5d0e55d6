package hierarchy

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedPath is returned when label-path text fails normalization or
// violates the axis depth bounds. It is a caller-fixable structural error.
var ErrMalformedPath = errors.New("malformed path")

// Path is an immutable, normalized label path on a single axis. The zero
// value is invalid; construct paths with ParsePath or RootPath.
type Path struct {
	axis   Axis
	labels []string
}

// RootPath returns the depth-1 root path of the axis.
func RootPath(axis Axis) Path {
	return Path{axis: axis, labels: []string{axis.Root()}}
}

// ParsePath normalizes text into a Path on the given axis. Labels are
// lowercased and split on the axis separator; the axis root is prepended
// when absent. Empty text resolves to the axis root.
func ParsePath(axis Axis, text string) (Path, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" || text == axis.Root() {
		return RootPath(axis), nil
	}

	parts := strings.Split(text, axis.Separator())
	labels := make([]string, 0, len(parts)+1)
	if parts[0] != axis.Root() {
		labels = append(labels, axis.Root())
	}
	for _, part := range parts {
		if !validLabel(part) {
			return Path{}, fmt.Errorf("%w: bad label %q in %q on axis %s", ErrMalformedPath, part, text, axis)
		}
		labels = append(labels, part)
	}
	return Path{axis: axis, labels: labels}, nil
}

// validLabel accepts non-empty lowercase alphanumerics plus '-'. The axis
// separators themselves never appear inside a label.
func validLabel(label string) bool {
	if label == "" {
		return false
	}
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return false
		}
	}
	return true
}

// Axis returns the axis the path belongs to.
func (p Path) Axis() Axis { return p.axis }

// Depth is the number of labels, the axis root included. Depth doubles as
// the specificity score during resolution.
func (p Path) Depth() int { return len(p.labels) }

// Labels returns a copy of the label sequence.
func (p Path) Labels() []string {
	out := make([]string, len(p.labels))
	copy(out, p.labels)
	return out
}

// IsRoot reports whether the path is the axis root.
func (p Path) IsRoot() bool { return len(p.labels) == 1 }

// String renders the fully qualified text form, root label included.
// Input accepts the unqualified form ("bayou.seq01"); output never does.
func (p Path) String() string {
	return strings.Join(p.labels, p.axis.Separator())
}

// Contains reports whether p is an ancestor-or-equal of other: same axis
// and p's labels are a prefix of other's.
func (p Path) Contains(other Path) bool {
	if p.axis != other.axis || len(p.labels) > len(other.labels) {
		return false
	}
	for i, label := range p.labels {
		if other.labels[i] != label {
			return false
		}
	}
	return true
}

// Equal reports label-for-label equality on the same axis.
func (p Path) Equal(other Path) bool {
	return p.Contains(other) && len(p.labels) == len(other.labels)
}

// Parent returns the path one label shorter. Calling Parent on the root
// returns the root.
func (p Path) Parent() Path {
	if p.IsRoot() {
		return p
	}
	return Path{axis: p.axis, labels: p.labels[:len(p.labels)-1]}
}

// Ancestors returns every proper prefix of p, shortest first, the axis
// root included. The result is empty for the root path.
func (p Path) Ancestors() []Path {
	out := make([]Path, 0, len(p.labels)-1)
	for i := 1; i < len(p.labels); i++ {
		out = append(out, Path{axis: p.axis, labels: p.labels[:i]})
	}
	return out
}
