package hierarchy

import (
	"errors"
	"testing"
)

func TestParsePath_Normalization(t *testing.T) {
	tests := []struct {
		name string
		axis Axis
		text string
		want string
	}{
		{"empty level defaults to facility", AxisLevel, "", "facility"},
		{"bare show gets facility prefix", AxisLevel, "bayou", "facility.bayou"},
		{"qualified level kept as-is", AxisLevel, "facility.bayou.seq01", "facility.bayou.seq01"},
		{"uppercase is lowered", AxisLevel, "Bayou.SEQ01", "facility.bayou.seq01"},
		{"role splits on underscore", AxisRole, "model_beta", "any_model_beta"},
		{"bare role gets any prefix", AxisRole, "model", "any_model"},
		{"empty role defaults to any", AxisRole, "", "any"},
		{"site gets any prefix", AxisSite, "portland", "any.portland"},
		{"platform gets any prefix", AxisPlatform, "cent7-64", "any.cent7-64"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePath(tt.axis, tt.text)
			if err != nil {
				t.Fatalf("ParsePath(%s, %q) error: %v", tt.axis, tt.text, err)
			}
			if p.String() != tt.want {
				t.Errorf("ParsePath(%s, %q) = %q, want %q", tt.axis, tt.text, p, tt.want)
			}
		})
	}
}

func TestParsePath_Malformed(t *testing.T) {
	tests := []struct {
		axis Axis
		text string
	}{
		{AxisLevel, "bayou..seq01"},
		{AxisLevel, "bayou.seq 01"},
		{AxisRole, "model__beta"},
		{AxisRole, "_model"},
		{AxisSite, "port land"},
	}
	for _, tt := range tests {
		if _, err := ParsePath(tt.axis, tt.text); !errors.Is(err, ErrMalformedPath) {
			t.Errorf("ParsePath(%s, %q) = %v, want ErrMalformedPath", tt.axis, tt.text, err)
		}
	}
}

func TestPath_Contains(t *testing.T) {
	facility, _ := ParsePath(AxisLevel, "facility")
	bayou, _ := ParsePath(AxisLevel, "bayou")
	seq, _ := ParsePath(AxisLevel, "bayou.seq01")

	if !facility.Contains(bayou) || !facility.Contains(seq) {
		t.Error("facility should contain every level path")
	}
	if !bayou.Contains(seq) {
		t.Error("bayou should contain bayou.seq01")
	}
	if !bayou.Contains(bayou) {
		t.Error("containment must include equality")
	}
	if seq.Contains(bayou) {
		t.Error("descendant must not contain its ancestor")
	}

	// identical text on another axis is unrelated
	anySite, _ := ParsePath(AxisSite, "any")
	anyRole, _ := ParsePath(AxisRole, "any")
	if anySite.Contains(anyRole) {
		t.Error("containment must not cross axes")
	}
}

func TestPath_DepthAndAncestors(t *testing.T) {
	seq, _ := ParsePath(AxisLevel, "bayou.seq01.sh0100")
	if seq.Depth() != 4 {
		t.Fatalf("Depth() = %d, want 4", seq.Depth())
	}

	ancestors := seq.Ancestors()
	want := []string{"facility", "facility.bayou", "facility.bayou.seq01"}
	if len(ancestors) != len(want) {
		t.Fatalf("Ancestors() returned %d paths, want %d", len(ancestors), len(want))
	}
	for i, a := range ancestors {
		if a.String() != want[i] {
			t.Errorf("Ancestors()[%d] = %q, want %q", i, a, want[i])
		}
	}
}
