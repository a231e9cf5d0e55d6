package resolver

import (
	"context"

	"github.com/pinstack/pinstack/pkg/registry"
)

// Expansion reports the outcome for one with. Pin is nil when no pin for
// the package matched the context; that is a per-entry condition and never
// fails the expansion as a whole.
type Expansion struct {
	Package string               `json:"package"`
	Pin     *registry.VersionPin `json:"pin,omitempty"`
}

// Context is the request context an expansion resolves under: the same
// four axis values the root pin was resolved with.
type Context struct {
	Role     string
	Level    string
	Site     string
	Platform string
}

// ExpandDependencies resolves each of the pin's withs independently, in
// declaration order, in ancestor mode under cctx. Withs carry names only;
// their versions are recomputed on every call, so a later registry change
// or a different context can legitimately change the outcome for an
// unchanged with list.
func (r *Resolver) ExpandDependencies(ctx context.Context, pin *registry.VersionPin, cctx Context) ([]Expansion, error) {
	out := make([]Expansion, 0, len(pin.Withs))
	for _, name := range pin.Withs {
		res, err := r.Resolve(ctx, Request{
			Package:  name,
			Role:     cctx.Role,
			Level:    cctx.Level,
			Site:     cctx.Site,
			Platform: cctx.Platform,
			Mode:     ModeAncestor,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, Expansion{Package: name, Pin: res.Pin()})
	}
	return out, nil
}
