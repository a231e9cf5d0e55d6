package hierarchy

import (
	"errors"
	"testing"
)

func TestTree_RegisterPrefixClosure(t *testing.T) {
	tree := NewTree()
	if _, err := tree.Register(AxisLevel, "bayou.seq01.sh0100"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	for _, text := range []string{"facility", "bayou", "bayou.seq01", "bayou.seq01.sh0100"} {
		if !tree.Registered(AxisLevel, text) {
			t.Errorf("prefix %q should be registered", text)
		}
	}
}

func TestTree_RegisterIdempotent(t *testing.T) {
	tree := NewTree()
	first, err := tree.Register(AxisSite, "portland")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	second, err := tree.Register(AxisSite, "portland")
	if err != nil {
		t.Fatalf("re-Register: %v", err)
	}
	if !first.Equal(second) {
		t.Errorf("re-registration returned %q, want %q", second, first)
	}
	if n := len(tree.List(AxisSite)); n != 2 { // root + portland
		t.Errorf("List returned %d paths, want 2", n)
	}
}

func TestTree_DepthBounds(t *testing.T) {
	tree := NewTree()

	// level registrations must name at least a show
	if _, err := tree.Register(AxisLevel, "facility"); !errors.Is(err, ErrMalformedPath) {
		t.Errorf("registering bare facility = %v, want ErrMalformedPath", err)
	}
	// sites and platforms are flat
	if _, err := tree.Register(AxisSite, "portland.eastside"); !errors.Is(err, ErrMalformedPath) {
		t.Errorf("registering nested site = %v, want ErrMalformedPath", err)
	}
	// the role root alone is registrable
	if _, err := tree.Register(AxisRole, "any"); err != nil {
		t.Errorf("registering role root: %v", err)
	}
	// subroles nest freely
	if _, err := tree.Register(AxisRole, "model_beta_rc1"); err != nil {
		t.Errorf("registering subrole: %v", err)
	}
}

func TestTree_NearestRegistered(t *testing.T) {
	tree := NewTree()
	if _, err := tree.Register(AxisLevel, "bayou"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	p, err := tree.NearestRegistered(AxisLevel, "bayou.seq99")
	if err != nil {
		t.Fatalf("NearestRegistered: %v", err)
	}
	if p.String() != "facility.bayou" {
		t.Errorf("NearestRegistered = %q, want facility.bayou", p)
	}

	// a wholly unknown show falls back to the axis root
	p, err = tree.NearestRegistered(AxisLevel, "dev01")
	if err != nil {
		t.Fatalf("NearestRegistered: %v", err)
	}
	if !p.IsRoot() {
		t.Errorf("NearestRegistered = %q, want facility", p)
	}
}
