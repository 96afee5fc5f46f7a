package validation

import (
	"math"
	"strings"
	"testing"

	"github.com/hyperengineering/traderack/internal/mep"
	"github.com/hyperengineering/traderack/internal/rack"
	"github.com/hyperengineering/traderack/internal/units"
)

// --- Field validator Tests ---

func TestFieldValidators(t *testing.T) {
	tests := []struct {
		name    string
		err     *ValidationError
		wantErr bool
	}{
		{"utf8 valid", ValidateUTF8("f", "Hello, 世界"), false},
		{"utf8 invalid", ValidateUTF8("f", string([]byte{0xff, 0xfe})), true},
		{"null bytes clean", ValidateNoNullBytes("f", "rack"), false},
		{"null bytes present", ValidateNoNullBytes("f", "ra\x00ck"), true},
		{"max length at limit", ValidateMaxLength("f", strings.Repeat("a", 10), 10), false},
		{"max length multibyte", ValidateMaxLength("f", strings.Repeat("世", 10), 10), false},
		{"max length exceeds", ValidateMaxLength("f", strings.Repeat("a", 11), 10), true},
		{"required present", ValidateRequired("f", "x"), false},
		{"required whitespace", ValidateRequired("f", "  \t"), true},
		{"enum valid", ValidateEnum("f", "deck", []string{"deck", "floor"}), false},
		{"enum case sensitive", ValidateEnum("f", "Deck", []string{"deck", "floor"}), true},
		{"range within", ValidateRange("f", 0.5, 0, 1), false},
		{"range below", ValidateRange("f", -0.1, 0, 1), true},
		{"range NaN", ValidateRange("f", math.NaN(), 0, 1), true},
		{"length positive", ValidateLength("f", units.Feet(12), 100), false},
		{"length zero", ValidateLength("f", units.Length{}, 100), true},
		{"length too long", ValidateLength("f", units.Feet(101), 100), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if (tt.err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", tt.err, tt.wantErr)
			}
			if tt.err != nil && tt.err.Field != "f" {
				t.Errorf("Field = %q, want %q", tt.err.Field, "f")
			}
		})
	}
}

func TestCollector(t *testing.T) {
	c := &Collector{}
	if c.HasErrors() {
		t.Fatal("HasErrors() on empty collector = true")
	}
	c.Add(nil)
	c.Add(&ValidationError{Field: "f1", Message: "m1"})
	c.Add(&ValidationError{Field: "f2", Message: "m2"})

	errs := c.Errors()
	if len(errs) != 2 {
		t.Fatalf("len(Errors()) = %d, want 2", len(errs))
	}
	if errs[1].Error() != "f2: m2" {
		t.Errorf("errs[1].Error() = %q", errs[1].Error())
	}
}

// --- ValidateRackParameters Tests ---

func TestValidateRackParameters_Default(t *testing.T) {
	if errs := ValidateRackParameters("", rack.DefaultParameters()); len(errs) != 0 {
		t.Errorf("ValidateRackParameters(default) = %v, want none", errs)
	}
}

func TestValidateRackParameters_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*rack.Parameters)
		wantField string
	}{
		{"mount type", func(p *rack.Parameters) { p.MountType = "wall" }, "cfg.mountType"},
		{"missing length", func(p *rack.Parameters) { p.RackLength = units.Length{} }, "cfg.rackLength"},
		{"missing width", func(p *rack.Parameters) { p.RackWidth = units.Length{} }, "cfg.rackWidth"},
		{"tier count", func(p *rack.Parameters) { p.TierCount = 21 }, "cfg.tierCount"},
		{"tier height", func(p *rack.Parameters) { p.TierHeights[1] = units.Length{} }, "cfg.tierHeights[1]"},
		{"beam type", func(p *rack.Parameters) { p.BeamType = "titanium" }, "cfg.beamType"},
		{"clearance", func(p *rack.Parameters) { p.TopClearance = math.Inf(1) }, "cfg.topClearance"},
		{"bay too narrow", func(p *rack.Parameters) {
			p.RackLength = units.Feet(1000)
			p.BayWidth = units.FeetInches(0, 0.0001)
		}, "cfg.bayWidth"},
		{"too many bays", func(p *rack.Parameters) {
			p.RackLength = units.Feet(1000)
			p.BayWidth = units.Feet(1.5)
		}, "cfg.bayWidth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := rack.DefaultParameters()
			tt.mutate(&p)
			errs := ValidateRackParameters("cfg.", p)
			found := false
			for _, e := range errs {
				if e.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("missing %s error, got %v", tt.wantField, errs)
			}
		})
	}
}

// --- ValidateMEPItem Tests ---

func TestValidateMEPItem(t *testing.T) {
	tests := []struct {
		name      string
		item      mep.Item
		wantField string
	}{
		{"valid duct", mep.Item{Type: mep.Duct, Width: 12, Height: 8}, ""},
		{"valid pipe", mep.Item{Type: mep.Pipe, Diameter: 2, PipeType: "copper"}, ""},
		{"valid conduit bank", mep.Item{Type: mep.Conduit, Diameter: 1, Count: 4, Spacing: 2}, ""},
		{"unknown type", mep.Item{Type: "sprinkler"}, "items[3].type"},
		{"duct width", mep.Item{Type: mep.Duct, Height: 8}, "items[3].width"},
		{"tray height NaN", mep.Item{Type: mep.CableTray, Width: 12, Height: math.NaN()}, "items[3].height"},
		{"pipe material", mep.Item{Type: mep.Pipe, Diameter: 2, PipeType: "lead"}, "items[3].pipeType"},
		{"conduit count", mep.Item{Type: mep.Conduit, Diameter: 1, Count: 51}, "items[3].count"},
		{"color", mep.Item{Type: mep.Pipe, Diameter: 2, Color: "blue"}, "items[3].color"},
		{"name null byte", mep.Item{Type: mep.Pipe, Diameter: 2, Name: "a\x00"}, "items[3].name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateMEPItem(3, tt.item)
			if tt.wantField == "" {
				if len(errs) != 0 {
					t.Errorf("errs = %v, want none", errs)
				}
				return
			}
			if len(errs) == 0 || errs[0].Field != tt.wantField {
				t.Errorf("errs = %v, want first field %s", errs, tt.wantField)
			}
		})
	}
}
