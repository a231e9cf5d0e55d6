// Package hierarchy models the four context axes (role, level, site,
// platform) as independent label-path trees. A path is an ordered sequence
// of normalized labels rooted at the axis root ("any", or "facility" for the
// level axis). Ancestry is prefix containment and specificity is depth.
//
// The four axes share one algorithm but are deliberately disjoint
// keyspaces: identical text registered under two axes is unrelated.
package hierarchy
