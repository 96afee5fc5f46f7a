package units

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Length is a user-facing length: either a {feet, inches} pair or a plain
// number of feet. The decoded form is remembered so that encoding writes the
// same shape back, keeping exported files stable across load/save cycles.
type Length struct {
	Ft      float64
	In      float64
	numeric bool
}

// Feet returns a numeric-feet Length.
func Feet(ft float64) Length {
	return Length{Ft: ft, numeric: true}
}

// FeetInches returns a {feet, inches} Length.
func FeetInches(ft, in float64) Length {
	return Length{Ft: ft, In: in}
}

// TotalFeet returns the length in decimal feet.
func (l Length) TotalFeet() float64 {
	return FeetInchesToFeet(l.Ft, l.In)
}

// TotalInches returns the length in inches.
func (l Length) TotalInches() float64 {
	return FtToIn(l.TotalFeet())
}

// Meters returns the length in meters.
func (l Length) Meters() float64 {
	return FtToM(l.TotalFeet())
}

// IsZero reports whether the length is exactly zero.
func (l Length) IsZero() bool {
	return l.Ft == 0 && l.In == 0
}

// String formats the length for logs.
func (l Length) String() string {
	if l.numeric {
		return strconv.FormatFloat(l.Ft, 'f', -1, 64) + "ft"
	}
	return fmt.Sprintf("%g'%g\"", l.Ft, l.In)
}

type feetInches struct {
	Feet   float64 `json:"feet"`
	Inches float64 `json:"inches"`
}

// MarshalJSON writes a number for numeric lengths and an object otherwise.
func (l Length) MarshalJSON() ([]byte, error) {
	if l.numeric {
		return json.Marshal(l.Ft)
	}
	return json.Marshal(feetInches{Feet: l.Ft, Inches: l.In})
}

// UnmarshalJSON accepts a number (feet) or a {feet, inches} object with
// either key optional.
func (l *Length) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = Length{}
		return nil
	}
	if data[0] == '{' {
		var fi feetInches
		if err := json.Unmarshal(data, &fi); err != nil {
			return fmt.Errorf("length object: %w", err)
		}
		*l = Length{Ft: fi.Feet, In: fi.Inches}
		return nil
	}
	var ft float64
	if err := json.Unmarshal(data, &ft); err != nil {
		return fmt.Errorf("length must be a number of feet or {feet, inches}: %w", err)
	}
	*l = Length{Ft: ft, numeric: true}
	return nil
}
