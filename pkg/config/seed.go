package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/pinstack/pinstack/pkg/hierarchy"
	"github.com/pinstack/pinstack/pkg/observability"
	"github.com/pinstack/pinstack/pkg/registry"
)

// Seed declares axis paths, packages, and distributions to register at
// startup. Seeding is idempotent: entries that already exist are skipped,
// so the same file can be applied repeatedly.
type Seed struct {
	Paths         map[string][]string `yaml:"paths"`
	Packages      []string            `yaml:"packages"`
	Distributions []SeedDistribution  `yaml:"distributions"`
}

// SeedDistribution is one (package, version) pair to pre-register.
type SeedDistribution struct {
	Package string `yaml:"package"`
	Version string `yaml:"version"`
}

// LoadSeed reads and parses a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &seed, nil
}

// Apply registers the seed's contents. Already-present entries are
// skipped silently; any other failure aborts with the entry named.
func (s *Seed) Apply(ctx context.Context, reg *registry.Registry) error {
	for axisName, paths := range s.Paths {
		axis, err := hierarchy.ParseAxis(axisName)
		if err != nil {
			return fmt.Errorf("seed paths: %w", err)
		}
		for _, text := range paths {
			if _, err := reg.RegisterPath(ctx, axis, text); err != nil {
				return fmt.Errorf("seed path %s %q: %w", axis, text, err)
			}
		}
	}

	for _, name := range s.Packages {
		if _, err := reg.CreatePackage(ctx, name); err != nil &&
			!errors.Is(err, registry.ErrDuplicatePackage) {
			return fmt.Errorf("seed package %q: %w", name, err)
		}
	}

	for _, dist := range s.Distributions {
		if _, err := reg.CreateDistribution(ctx, dist.Package, dist.Version); err != nil &&
			!errors.Is(err, registry.ErrDuplicateDistribution) {
			return fmt.Errorf("seed distribution %s-%s: %w", dist.Package, dist.Version, err)
		}
	}
	return nil
}

// WatchSeed applies the seed file now and re-applies it whenever the file
// changes, until ctx is cancelled. Reload failures are logged and the
// previous state stays in effect.
func WatchSeed(ctx context.Context, path string, reg *registry.Registry, logger *observability.Logger) error {
	apply := func() error {
		seed, err := LoadSeed(path)
		if err != nil {
			return err
		}
		return seed.Apply(ctx, reg)
	}
	if err := apply(); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// watch the directory: editors replace the file rather than write it
	// in place, which drops a watch on the file itself
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch seed file: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := apply(); err != nil {
					logger.WithError(err).Warn("seed reload failed, keeping previous state")
					continue
				}
				logger.WithField("file", path).Info("seed file reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Warn("seed watcher error")
			}
		}
	}()
	return nil
}
