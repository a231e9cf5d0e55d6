package storage

import (
	"context"
	"testing"
	"time"

	"github.com/pinstack/pinstack/pkg/registry"
)

func seedPin(t *testing.T, s *MemoryStore, pkg, version string) *registry.VersionPin {
	t.Helper()
	ctx := context.Background()
	_ = s.CreatePackage(ctx, &registry.Package{Name: pkg})
	dist := &registry.Distribution{Package: pkg, Version: []string{version}}
	if err := s.CreateDistribution(ctx, dist); err != nil {
		t.Fatalf("CreateDistribution: %v", err)
	}
	coord, err := registry.NewCoordinate(pkg, "", "", "", "")
	if err != nil {
		t.Fatalf("NewCoordinate: %v", err)
	}
	pin := &registry.VersionPin{Coordinate: coord, Distribution: *dist}
	if err := s.CreatePin(ctx, pin); err != nil {
		t.Fatalf("CreatePin: %v", err)
	}
	return pin
}

func TestCachedStore_HitsAfterFirstRead(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	cached := NewCachedStore(inner, 128, time.Minute)
	seedPin(t, inner, "maya", "1")

	for i := 0; i < 3; i++ {
		pins, err := cached.PinsForPackage(ctx, "maya")
		if err != nil {
			t.Fatalf("PinsForPackage: %v", err)
		}
		if len(pins) != 1 {
			t.Fatalf("got %d pins, want 1", len(pins))
		}
	}

	hits, misses := cached.Stats()
	if hits != 2 || misses != 1 {
		t.Errorf("stats = %d hits / %d misses, want 2/1", hits, misses)
	}
}

func TestCachedStore_WriteEvicts(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	cached := NewCachedStore(inner, 128, time.Minute)
	pin := seedPin(t, inner, "maya", "1")

	if _, err := cached.PinsForPackage(ctx, "maya"); err != nil {
		t.Fatalf("PinsForPackage: %v", err)
	}

	if err := cached.SetWiths(ctx, pin.ID, []string{"maya"}); err != nil {
		t.Fatalf("SetWiths: %v", err)
	}

	pins, err := cached.PinsForPackage(ctx, "maya")
	if err != nil {
		t.Fatalf("PinsForPackage: %v", err)
	}
	if len(pins[0].Withs) != 1 {
		t.Errorf("read after write should see the new withs, got %v", pins[0].Withs)
	}
}

func TestCachedStore_CreatePinEvicts(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	cached := NewCachedStore(inner, 128, time.Minute)
	seedPin(t, inner, "maya", "1")

	if _, err := cached.PinsForPackage(ctx, "maya"); err != nil {
		t.Fatalf("PinsForPackage: %v", err)
	}

	dist := &registry.Distribution{Package: "maya", Version: []string{"2"}}
	if err := inner.CreateDistribution(ctx, dist); err != nil {
		t.Fatalf("CreateDistribution: %v", err)
	}
	coord, err := registry.NewCoordinate("maya", "", "bayou", "", "")
	if err != nil {
		t.Fatalf("NewCoordinate: %v", err)
	}
	if err := cached.CreatePin(ctx, &registry.VersionPin{Coordinate: coord, Distribution: *dist}); err != nil {
		t.Fatalf("CreatePin: %v", err)
	}

	pins, err := cached.PinsForPackage(ctx, "maya")
	if err != nil {
		t.Fatalf("PinsForPackage: %v", err)
	}
	if len(pins) != 2 {
		t.Errorf("got %d pins after create, want 2", len(pins))
	}
}
