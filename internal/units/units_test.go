package units

import (
	"encoding/json"
	"math"
	"testing"
)

func TestFtToM_RoundTrip(t *testing.T) {
	for _, ft := range []float64{0, 1, -3.5, 12, 0.0833333, 1234.5678, 1e-6} {
		got := MToFt(FtToM(ft))
		if math.Abs(got-ft) >= 1e-9 {
			t.Errorf("MToFt(FtToM(%v)) = %v", ft, got)
		}
	}
}

func TestConversions_NonFinite(t *testing.T) {
	tests := []struct {
		name string
		fn   func(float64) float64
	}{
		{"FtToM", FtToM},
		{"InToM", InToM},
		{"FtToIn", FtToIn},
		{"MToFt", MToFt},
		{"MToIn", MToIn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
				if got := tt.fn(v); got != 0 {
					t.Errorf("%s(%v) = %v, want 0", tt.name, v, got)
				}
			}
		})
	}
}

func TestInToM_Zero(t *testing.T) {
	if InToM(0) != 0 {
		t.Error("InToM(0) should be 0")
	}
	if got := InToM(12); math.Abs(got-FtToM(1)) > 1e-12 {
		t.Errorf("12 in = %v m, want %v", got, FtToM(1))
	}
}

func TestFeetInchesToFeet(t *testing.T) {
	if got := FeetInchesToFeet(2, 6); got != 2.5 {
		t.Errorf("got %v, want 2.5", got)
	}
	if got := FeetInchesToFeet(math.NaN(), 6); got != 0.5 {
		t.Errorf("NaN feet: got %v, want 0.5", got)
	}
}

func TestFormatFeetInches(t *testing.T) {
	tests := []struct {
		m    float64
		want string
	}{
		{0, `0"`},
		{InToM(5), `5"`},
		{InToM(16.5), `1' 4 1/2"`},
		{FtToM(3), `3' 0"`},
		{-InToM(2.25), `-2 1/4"`},
	}
	for _, tt := range tests {
		if got := FormatFeetInches(tt.m); got != tt.want {
			t.Errorf("FormatFeetInches(%v) = %q, want %q", tt.m, got, tt.want)
		}
	}
}

func TestLength_JSONUnion(t *testing.T) {
	tests := []struct {
		in       string
		wantFeet float64
	}{
		{`12`, 12},
		{`{"feet":4}`, 4},
		{`{"feet":2,"inches":6}`, 2.5},
		{`{"inches":18}`, 1.5},
	}
	for _, tt := range tests {
		var l Length
		if err := json.Unmarshal([]byte(tt.in), &l); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.in, err)
		}
		if l.TotalFeet() != tt.wantFeet {
			t.Errorf("%s: TotalFeet = %v, want %v", tt.in, l.TotalFeet(), tt.wantFeet)
		}
	}
}

func TestLength_PreservesShape(t *testing.T) {
	for _, in := range []string{`12.5`, `{"feet":2,"inches":6}`} {
		var l Length
		if err := json.Unmarshal([]byte(in), &l); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		out, err := json.Marshal(l)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(out) != in {
			t.Errorf("round trip %s -> %s", in, out)
		}
	}
}

func TestLength_RejectsGarbage(t *testing.T) {
	var l Length
	if err := json.Unmarshal([]byte(`"twelve"`), &l); err == nil {
		t.Error("expected error for string length")
	}
}
