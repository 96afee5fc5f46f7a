// Package configio exports saved rack configurations to a portable JSON
// file and imports them back.
package configio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hyperengineering/traderack/internal/manifest"
	"github.com/hyperengineering/traderack/internal/mep"
	"github.com/hyperengineering/traderack/internal/validation"
	"github.com/oklog/ulid/v2"
)

const (
	// FormatVersion is written to exported files.
	FormatVersion = "1.0"
	// Application identifies the exporter.
	Application = "traderack"
	// MaxImportSize caps an import file.
	MaxImportSize = 10 << 20
)

var (
	ErrTooLarge    = fmt.Errorf("import file exceeds %s", humanize.IBytes(MaxImportSize))
	ErrInvalidFile = errors.New("invalid configuration file")
)

// requiredFields must be present on every imported configuration.
var requiredFields = []string{"rackLength", "rackWidth", "mountType"}

// File is the export document.
type File struct {
	Version        string                        `json:"version"`
	ExportDate     time.Time                     `json:"exportDate"`
	Application    string                        `json:"application"`
	Configurations []manifest.SavedConfiguration `json:"configurations"`
	Count          int                           `json:"count"`
}

// InvalidError lists the validation failures of an import.
type InvalidError struct {
	Errors []validation.ValidationError
}

func (e *InvalidError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("%v: %s", ErrInvalidFile, e.Errors[0].Error())
	}
	return fmt.Sprintf("%v: %d problems, first: %s", ErrInvalidFile, len(e.Errors), e.Errors[0].Error())
}

func (e *InvalidError) Unwrap() error { return ErrInvalidFile }

// Export encodes cfgs as an export file.
func Export(cfgs []manifest.SavedConfiguration, now time.Time) ([]byte, error) {
	if cfgs == nil {
		cfgs = []manifest.SavedConfiguration{}
	}
	f := File{
		Version:        FormatVersion,
		ExportDate:     now.UTC(),
		Application:    Application,
		Configurations: cfgs,
		Count:          len(cfgs),
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	return data, nil
}

// Parse reads an export file. Every configuration gets a fresh id; its
// previous id, or the originalId it already carried, is kept as
// OriginalID.
func Parse(r io.Reader) ([]manifest.SavedConfiguration, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImportSize+1))
	if err != nil {
		return nil, fmt.Errorf("read import: %w", err)
	}
	if len(data) > MaxImportSize {
		return nil, ErrTooLarge
	}

	var doc struct {
		Configurations json.RawMessage `json:"configurations"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	var raws []json.RawMessage
	if len(doc.Configurations) == 0 || doc.Configurations[0] != '[' {
		return nil, &InvalidError{Errors: []validation.ValidationError{{Field: "configurations", Message: "must be an array"}}}
	}
	if err := json.Unmarshal(doc.Configurations, &raws); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	var c validation.Collector
	out := make([]manifest.SavedConfiguration, 0, len(raws))
	for i, raw := range raws {
		prefix := fmt.Sprintf("configurations[%d].", i)
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			c.Add(&validation.ValidationError{Field: fmt.Sprintf("configurations[%d]", i), Message: "must be an object"})
			continue
		}
		missing := false
		for _, name := range requiredFields {
			if v, ok := fields[name]; !ok || bytes.Equal(v, []byte("null")) {
				c.Add(&validation.ValidationError{Field: prefix + name, Message: "is required"})
				missing = true
			}
		}
		if missing {
			continue
		}

		var cfg manifest.SavedConfiguration
		if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&cfg); err != nil {
			c.Add(&validation.ValidationError{Field: fmt.Sprintf("configurations[%d]", i), Message: err.Error()})
			continue
		}
		errs := validation.ValidateRackParameters(prefix, cfg.Parameters)
		errs = append(errs, validation.ValidateName(prefix+"name", cfg.Name)...)
		for j, it := range cfg.MEPItems {
			for _, e := range validation.ValidateMEPItem(j, it) {
				e.Field = prefix + e.Field
				errs = append(errs, e)
			}
		}
		if len(errs) > 0 {
			for _, e := range errs {
				c.Add(&e)
			}
			continue
		}
		out = append(out, fresh(cfg, i))
	}
	if c.HasErrors() {
		return nil, &InvalidError{Errors: c.Errors()}
	}
	return out, nil
}

// fresh assigns a new id and normalizes an imported configuration.
func fresh(cfg manifest.SavedConfiguration, i int) manifest.SavedConfiguration {
	if cfg.OriginalID == "" {
		cfg.OriginalID = cfg.ID
	}
	cfg.ID = ulid.Make().String()
	if cfg.Name == "" {
		cfg.Name = fmt.Sprintf("Imported configuration %d", i+1)
	}
	cfg.LastApplied = nil
	cfg.Version = 1
	cfg.Parameters = cfg.Parameters.Normalize()
	if cfg.MEPItems == nil {
		cfg.MEPItems = []mep.Item{}
	}
	return cfg
}

// Saver appends a saved configuration through the manifest save path.
type Saver interface {
	AddConfiguration(ctx context.Context, cfg manifest.SavedConfiguration) manifest.SavedConfiguration
}

// Import parses r and appends every configuration to dst. Nothing is
// appended when any configuration is invalid.
func Import(ctx context.Context, dst Saver, r io.Reader) ([]manifest.SavedConfiguration, error) {
	cfgs, err := Parse(r)
	if err != nil {
		slog.Warn("configuration import rejected", "component", "configio", "action", "import", "error", err)
		return nil, err
	}
	saved := make([]manifest.SavedConfiguration, 0, len(cfgs))
	for _, cfg := range cfgs {
		saved = append(saved, dst.AddConfiguration(ctx, cfg))
	}
	slog.Info("configurations imported", "component", "configio", "action", "import", "count", len(saved))
	return saved, nil
}
