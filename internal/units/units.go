// Package units converts between the imperial lengths users type and the
// meters every geometry computation runs in.
package units

import (
	"fmt"
	"log/slog"
	"math"
)

// Conversion constants.
const (
	InchesPerFoot = 12.0
	MetersPerFoot = 0.3048
	MetersPerInch = 0.0254
)

// finite reports whether v is usable; non-finite values are logged.
func finite(fn string, v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		slog.Warn("non-finite length substituted with 0",
			"component", "units",
			"func", fn,
			"value", fmt.Sprint(v),
		)
		return false
	}
	return true
}

// FtToM converts feet to meters. Non-finite input yields 0.
func FtToM(ft float64) float64 {
	if !finite("FtToM", ft) {
		return 0
	}
	return ft * MetersPerFoot
}

// InToM converts inches to meters. Non-finite input yields 0.
func InToM(in float64) float64 {
	if !finite("InToM", in) {
		return 0
	}
	return in * MetersPerInch
}

// FtToIn converts feet to inches. Non-finite input yields 0.
func FtToIn(ft float64) float64 {
	if !finite("FtToIn", ft) {
		return 0
	}
	return ft * InchesPerFoot
}

// MToFt converts meters to feet. Non-finite input yields 0.
func MToFt(m float64) float64 {
	if !finite("MToFt", m) {
		return 0
	}
	return m / MetersPerFoot
}

// MToIn converts meters to inches. Non-finite input yields 0.
func MToIn(m float64) float64 {
	if !finite("MToIn", m) {
		return 0
	}
	return m / MetersPerInch
}

// FeetInchesToFeet folds a feet/inches pair into decimal feet.
func FeetInchesToFeet(feet, inches float64) float64 {
	if !finite("FeetInchesToFeet", feet) {
		feet = 0
	}
	if !finite("FeetInchesToFeet", inches) {
		inches = 0
	}
	return feet + inches/InchesPerFoot
}

// FormatFeetInches renders meters as a feet-and-inches label rounded to the
// nearest eighth inch, e.g. 1' 4 1/2".
func FormatFeetInches(m float64) string {
	totalIn := MToIn(m)
	sign := ""
	if totalIn < 0 {
		sign = "-"
		totalIn = -totalIn
	}
	eighths := int(math.Round(totalIn * 8))
	feet := eighths / (12 * 8)
	eighths -= feet * 12 * 8
	inches := eighths / 8
	frac := eighths % 8

	fracStr := ""
	if frac != 0 {
		num, den := frac, 8
		for num%2 == 0 {
			num /= 2
			den /= 2
		}
		fracStr = fmt.Sprintf(" %d/%d", num, den)
	}
	if feet == 0 {
		return fmt.Sprintf("%s%d%s\"", sign, inches, fracStr)
	}
	return fmt.Sprintf("%s%d' %d%s\"", sign, feet, inches, fracStr)
}
