package validation

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/hyperengineering/traderack/internal/mep"
	"github.com/hyperengineering/traderack/internal/rack"
	"github.com/hyperengineering/traderack/internal/units"
)

// Field limits.
const (
	MaxNameLength   = 200
	MaxTierCount    = 20
	MaxRackLengthFt = 1000.0
	MaxDimensionIn  = 240.0
	MaxConduitCount = 50
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []ValidationError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

// ValidateUTF8 returns an error if the value is not valid UTF-8.
func ValidateUTF8(field, value string) *ValidationError {
	if !utf8.ValidString(value) {
		return &ValidationError{
			Field:   field,
			Message: "must be valid UTF-8",
		}
	}
	return nil
}

// ValidateNoNullBytes returns an error if the value contains null bytes.
func ValidateNoNullBytes(field, value string) *ValidationError {
	if strings.Contains(value, "\x00") {
		return &ValidationError{
			Field:   field,
			Message: "must not contain null bytes",
		}
	}
	return nil
}

// ValidateMaxLength returns an error if the value exceeds max runes.
func ValidateMaxLength(field, value string, max int) *ValidationError {
	if utf8.RuneCountInString(value) > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("exceeds maximum length of %d characters", max),
		}
	}
	return nil
}

// ValidateRequired returns an error if the value is empty or whitespace-only.
func ValidateRequired(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{
			Field:   field,
			Message: "is required",
		}
	}
	return nil
}

// ValidateEnum returns an error if the value is not in the allowed list.
func ValidateEnum(field, value string, allowed []string) *ValidationError {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidateRange returns an error if the value is outside [min, max] or not
// finite.
func ValidateRange(field string, value, min, max float64) *ValidationError {
	if math.IsNaN(value) || value < min || value > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be between %.1f and %.1f", min, max),
		}
	}
	return nil
}

// ValidateLength returns an error unless l is positive and at most maxFt.
func ValidateLength(field string, l units.Length, maxFt float64) *ValidationError {
	ft := l.TotalFeet()
	if math.IsNaN(ft) || math.IsInf(ft, 0) || ft <= 0 {
		return &ValidationError{Field: field, Message: "must be a positive length"}
	}
	if ft > maxFt {
		return &ValidationError{Field: field, Message: fmt.Sprintf("must not exceed %.0f ft", maxFt)}
	}
	return nil
}

// ValidateName checks an optional display name.
func ValidateName(field, value string) []ValidationError {
	var c Collector
	c.Add(ValidateUTF8(field, value))
	c.Add(ValidateNoNullBytes(field, value))
	c.Add(ValidateMaxLength(field, value, MaxNameLength))
	return c.Errors()
}

var mountTypes = []string{string(rack.MountDeck), string(rack.MountFloor)}

var memberTypes = []string{string(rack.MemberStandard), string(rack.MemberHeavy), string(rack.MemberLight)}

// ValidateRackParameters checks the fields a rack build depends on. Field
// names are prefixed with prefix.
func ValidateRackParameters(prefix string, p rack.Parameters) []ValidationError {
	var c Collector
	c.Add(ValidateEnum(prefix+"mountType", string(p.MountType), mountTypes))
	c.Add(ValidateLength(prefix+"rackLength", p.RackLength, MaxRackLengthFt))
	c.Add(ValidateLength(prefix+"rackWidth", p.RackWidth, MaxRackLengthFt))
	if !p.BayWidth.IsZero() {
		if e := ValidateLength(prefix+"bayWidth", p.BayWidth, MaxRackLengthFt); e != nil {
			c.Add(e)
		} else {
			c.Add(validateBays(prefix, p))
		}
	}
	if p.TierCount != 0 {
		c.Add(ValidateRange(prefix+"tierCount", float64(p.TierCount), 1, MaxTierCount))
	}
	for i, h := range p.TierHeights {
		c.Add(ValidateLength(fmt.Sprintf("%stierHeights[%d]", prefix, i), h, 100))
	}
	if p.ColumnType != "" {
		c.Add(ValidateEnum(prefix+"columnType", string(p.ColumnType), memberTypes))
	}
	if p.BeamType != "" {
		c.Add(ValidateEnum(prefix+"beamType", string(p.BeamType), memberTypes))
	}
	c.Add(ValidateRange(prefix+"topClearance", p.TopClearance, 0, MaxRackLengthFt))
	return c.Errors()
}

// validateBays bounds the bay width and the bay count it gives.
func validateBays(prefix string, p rack.Parameters) *ValidationError {
	bay := p.BayWidth.TotalFeet()
	if bay < rack.MinBayWidthFt {
		return &ValidationError{Field: prefix + "bayWidth", Message: fmt.Sprintf("must be at least %g ft", rack.MinBayWidthFt)}
	}
	if length := p.RackLength.TotalFeet(); length/bay > rack.MaxBayCount {
		return &ValidationError{Field: prefix + "bayWidth", Message: fmt.Sprintf("gives more than %d bays", rack.MaxBayCount)}
	}
	return nil
}

var mepKinds = []string{string(mep.Duct), string(mep.Pipe), string(mep.Conduit), string(mep.CableTray)}

// ValidateMEPItem checks an MEP item's type and the dimensions its kind
// requires. i indexes the item in a request.
func ValidateMEPItem(i int, it mep.Item) []ValidationError {
	prefix := fmt.Sprintf("items[%d].", i)
	var c Collector
	if err := ValidateEnum(prefix+"type", string(it.Type), mepKinds); err != nil {
		c.Add(err)
		return c.Errors()
	}
	for _, e := range ValidateName(prefix+"name", it.Name) {
		c.Add(&e)
	}
	c.Add(ValidateRange(prefix+"insulation", it.Insulation, 0, MaxDimensionIn))
	switch it.Type {
	case mep.Duct, mep.CableTray:
		c.Add(positive(prefix+"width", it.Width))
		c.Add(positive(prefix+"height", it.Height))
	case mep.Pipe:
		c.Add(positive(prefix+"diameter", it.Diameter))
		if it.PipeType != "" {
			c.Add(ValidateEnum(prefix+"pipeType", it.PipeType, mep.PipeTypes))
		}
	case mep.Conduit:
		c.Add(positive(prefix+"diameter", it.Diameter))
		c.Add(ValidateRange(prefix+"count", float64(it.Count), 0, MaxConduitCount))
		c.Add(ValidateRange(prefix+"spacing", it.Spacing, 0, MaxDimensionIn))
	}
	if it.Color != "" {
		if _, ok := mep.ParseColor(it.Color); !ok {
			c.Add(&ValidationError{Field: prefix + "color", Message: "must be a #rrggbb color"})
		}
	}
	return c.Errors()
}

func positive(field string, v float64) *ValidationError {
	if math.IsNaN(v) || v <= 0 || v > MaxDimensionIn {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be greater than 0 and at most %.0f in", MaxDimensionIn),
		}
	}
	return nil
}
