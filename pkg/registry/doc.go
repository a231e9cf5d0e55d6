// Package registry owns the persistent entities of the pin store
// (packages, distributions, coordinates, version pins and their withs) and
// the write path that keeps them consistent. All invariant checks live
// here, in front of the storage backend, so they hold regardless of which
// Store implementation is wired in.
package registry
