package meta

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/skdltmxn/ilmeta/internal/table"
)

// Default limits.
const (
	DefaultMaxExpansionDepth   = 32
	DefaultMaxSyntheticClasses = 1 << 20
)

// LoadOptions configures loading, resolution and interning.
type LoadOptions struct {
	// IgnoreErrors records unresolved references as diagnostics and leaves
	// them dangling instead of failing the load.
	IgnoreErrors bool `toml:"ignore_errors"`

	// CoreBoundary names the last table kind for which an undocumented
	// table is fatal. Empty selects NestedClass.
	CoreBoundary string `toml:"core_boundary"`

	// MaxExpansionDepth bounds eager expansion of nested instantiations.
	MaxExpansionDepth int `toml:"max_expansion_depth"`

	// MaxSyntheticClasses bounds the number of interned classes.
	MaxSyntheticClasses int `toml:"max_synthetic_classes"`

	// SearchPaths are directories the directory resolver probes.
	SearchPaths []string `toml:"search_paths"`

	// Prevalidate materializes every type definition while loading so
	// that malformed rows surface immediately.
	Prevalidate bool `toml:"prevalidate"`
}

// DefaultLoadOptions returns the default configuration.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		MaxExpansionDepth:   DefaultMaxExpansionDepth,
		MaxSyntheticClasses: DefaultMaxSyntheticClasses,
	}
}

// LoadConfig reads options from a TOML file. Keys missing from the file
// keep their default values.
func LoadConfig(path string) (LoadOptions, error) {
	opts := DefaultLoadOptions()
	if _, err := toml.DecodeFile(path, &opts); err != nil {
		return LoadOptions{}, fmt.Errorf("meta: failed to read config %s: %w", path, err)
	}
	if err := opts.Validate(); err != nil {
		return LoadOptions{}, err
	}
	return opts, nil
}

// Validate checks option values.
func (o LoadOptions) Validate() error {
	if _, err := o.boundary(); err != nil {
		return err
	}
	if o.MaxExpansionDepth < 0 {
		return fmt.Errorf("meta: max_expansion_depth must not be negative")
	}
	if o.MaxSyntheticClasses < 0 {
		return fmt.Errorf("meta: max_synthetic_classes must not be negative")
	}
	return nil
}

func (o LoadOptions) boundary() (table.Kind, error) {
	if o.CoreBoundary == "" {
		return table.DefaultCoreBoundary, nil
	}
	k, ok := table.KindByName(o.CoreBoundary)
	if !ok {
		return 0, fmt.Errorf("meta: unknown table kind %q for core_boundary", o.CoreBoundary)
	}
	return k, nil
}

func (o LoadOptions) expansionDepth() int {
	if o.MaxExpansionDepth == 0 {
		return DefaultMaxExpansionDepth
	}
	return o.MaxExpansionDepth
}

func (o LoadOptions) syntheticLimit() int {
	if o.MaxSyntheticClasses == 0 {
		return DefaultMaxSyntheticClasses
	}
	return o.MaxSyntheticClasses
}
