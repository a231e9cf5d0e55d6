// Package resolver answers the central question of the system: which
// distribution is authorized for a package at a 4-axis context. Matching
// is specificity-ranked prefix containment over the registered pins, and
// the dependency expander re-resolves each with under the same context.
//
// Resolvers are pure readers: they hold no state beyond the pin source
// and never observe a partially applied write.
package resolver
