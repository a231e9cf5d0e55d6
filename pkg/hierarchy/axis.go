package hierarchy

import "fmt"

// Axis identifies one of the four context dimensions.
type Axis string

const (
	AxisRole     Axis = "role"
	AxisLevel    Axis = "level"
	AxisSite     Axis = "site"
	AxisPlatform Axis = "platform"
)

// Axes lists every axis in canonical order.
func Axes() []Axis {
	return []Axis{AxisRole, AxisLevel, AxisSite, AxisPlatform}
}

// ParseAxis validates an axis name.
func ParseAxis(name string) (Axis, error) {
	switch Axis(name) {
	case AxisRole, AxisLevel, AxisSite, AxisPlatform:
		return Axis(name), nil
	default:
		return "", fmt.Errorf("unknown axis %q", name)
	}
}

// Root returns the implicit root label of the axis. Every path on the axis
// begins with it.
func (a Axis) Root() string {
	if a == AxisLevel {
		return "facility"
	}
	return "any"
}

// Separator returns the label separator used in the axis's text form.
// Roles are written with underscores (model_beta); the other axes use dots.
func (a Axis) Separator() string {
	if a == AxisRole {
		return "_"
	}
	return "."
}

// minDepth and maxDepth bound the depth of paths that may be registered on
// the axis. maxDepth of 0 means unbounded. Sites and platforms are flat:
// exactly one label under the root.
func (a Axis) minDepth() int {
	switch a {
	case AxisRole:
		return 1
	default:
		return 2
	}
}

func (a Axis) maxDepth() int {
	switch a {
	case AxisSite, AxisPlatform:
		return 2
	default:
		return 0
	}
}
