package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pinstack/pinstack/pkg/hierarchy"
)

// ErrMalformedDistribution is returned when a distribution's version text
// fails normalization (a version needs at least one label).
var ErrMalformedDistribution = errors.New("malformed distribution")

// Package is a named piece of software. Packages are created once and are
// immutable; they are never deleted in normal operation.
type Package struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Distribution is an immutable (package, version) identity. The version is
// itself a dot-separated label path ("2018.sp3"), ordered but outside the
// four context axes.
type Distribution struct {
	ID      int64    `json:"id"`
	Package string   `json:"package"`
	Version []string `json:"version"`
}

// VersionString renders the version labels in their dotted text form.
func (d Distribution) VersionString() string {
	return strings.Join(d.Version, ".")
}

// String renders the distribution the way admins write it: name-version.
func (d Distribution) String() string {
	return d.Package + "-" + d.VersionString()
}

// ParseVersion normalizes distribution version text. Versions reuse the
// label rules of the axis trees but carry no implicit root.
func ParseVersion(text string) ([]string, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return nil, fmt.Errorf("%w: empty version", ErrMalformedDistribution)
	}
	parts := strings.Split(text, ".")
	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("%w: empty label in %q", ErrMalformedDistribution, text)
		}
	}
	return parts, nil
}

// Coordinate locates a pin in package space: one path per axis plus the
// package being pinned. Coordinates are immutable once a pin owns them;
// there is no coordinate migration.
type Coordinate struct {
	Package  string         `json:"package"`
	Role     hierarchy.Path `json:"-"`
	Level    hierarchy.Path `json:"-"`
	Site     hierarchy.Path `json:"-"`
	Platform hierarchy.Path `json:"-"`
}

// NewCoordinate normalizes the four axis strings into a Coordinate.
// Missing values default to the axis roots.
func NewCoordinate(pkg, role, level, site, platform string) (Coordinate, error) {
	r, err := hierarchy.ParsePath(hierarchy.AxisRole, role)
	if err != nil {
		return Coordinate{}, err
	}
	l, err := hierarchy.ParsePath(hierarchy.AxisLevel, level)
	if err != nil {
		return Coordinate{}, err
	}
	s, err := hierarchy.ParsePath(hierarchy.AxisSite, site)
	if err != nil {
		return Coordinate{}, err
	}
	p, err := hierarchy.ParsePath(hierarchy.AxisPlatform, platform)
	if err != nil {
		return Coordinate{}, err
	}
	return Coordinate{Package: pkg, Role: r, Level: l, Site: s, Platform: p}, nil
}

// Key is the canonical identity of the coordinate, used as the upsert
// serialization key and as the storage uniqueness key.
func (c Coordinate) Key() string {
	return strings.Join([]string{
		c.Package, c.Role.String(), c.Level.String(), c.Site.String(), c.Platform.String(),
	}, "|")
}

// Contains reports whether c is an ancestor-or-equal of other on every
// axis. Package is identity, not hierarchy: it must match exactly.
func (c Coordinate) Contains(other Coordinate) bool {
	return c.Package == other.Package &&
		c.Role.Contains(other.Role) &&
		c.Level.Contains(other.Level) &&
		c.Site.Contains(other.Site) &&
		c.Platform.Contains(other.Platform)
}

// Equal reports coordinate identity.
func (c Coordinate) Equal(other Coordinate) bool {
	return c.Key() == other.Key()
}

// String renders the coordinate for logs and error messages.
func (c Coordinate) String() string {
	return fmt.Sprintf("(package:%q role:%q level:%q site:%q platform:%q)",
		c.Package, c.Role, c.Level, c.Site, c.Platform)
}

type coordinateJSON struct {
	Package  string `json:"package"`
	Role     string `json:"role"`
	Level    string `json:"level"`
	Site     string `json:"site"`
	Platform string `json:"platform"`
}

// MarshalJSON renders the axis paths in their text form.
func (c Coordinate) MarshalJSON() ([]byte, error) {
	return json.Marshal(coordinateJSON{
		Package:  c.Package,
		Role:     c.Role.String(),
		Level:    c.Level.String(),
		Site:     c.Site.String(),
		Platform: c.Platform.String(),
	})
}

// UnmarshalJSON re-normalizes the axis paths on the way in.
func (c *Coordinate) UnmarshalJSON(data []byte) error {
	var raw coordinateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := NewCoordinate(raw.Package, raw.Role, raw.Level, raw.Site, raw.Platform)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// VersionPin binds a coordinate to a distribution. A pin owns exactly one
// coordinate for its lifetime; the only supported mutation is repointing
// the distribution reference. Withs is the ordered list of dependency
// package names; their versions are deliberately unpinned and re-resolved
// under the caller's context on every lookup.
type VersionPin struct {
	ID           int64        `json:"id"`
	Coordinate   Coordinate   `json:"coordinate"`
	Distribution Distribution `json:"distribution"`
	Withs        []string     `json:"withs,omitempty"`
}
