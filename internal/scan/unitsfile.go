package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/apitree/internal/foundation/errors"
	"git.home.luguber.info/inful/apitree/internal/unit"
)

// UnitsFile is the on-disk format for pre-scanned units:
//
//	root: src
//	units:
//	  - dotted_name: pkg.mod
//	    kind: module
//	    source_path: pkg/mod.py
//	    docstring: Module docs.
type UnitsFile struct {
	Root  string      `yaml:"root,omitempty"`
	Units []unit.Unit `yaml:"units"`
}

// UnitsFileScanner replays units listed in YAML files produced by an
// external scanner. Each root is a path to such a file.
type UnitsFileScanner struct{}

// Scan implements Scanner. Invalid entries become warnings; a file that
// cannot be read or decoded aborts the scan.
func (UnitsFileScanner) Scan(ctx context.Context, roots []string, emit func(unit.Unit), warn func(Warning)) error {
	for _, file := range roots {
		if err := ctx.Err(); err != nil {
			return err
		}
		uf, err := LoadUnitsFile(file)
		if err != nil {
			return err
		}
		for i, u := range uf.Units {
			if u.Root == "" {
				u.Root = uf.Root
			}
			if u.Root == "" {
				u.Root = filepath.Dir(file)
			}
			if err := u.Validate(); err != nil {
				warn(Warning{Root: u.Root, Path: fmt.Sprintf("%s#%d", filepath.ToSlash(file), i+1), Unit: u.DottedName, Err: err})
				continue
			}
			emit(u)
		}
	}
	return nil
}

// LoadUnitsFile reads and decodes a units file.
func LoadUnitsFile(path string) (*UnitsFile, error) {
	// #nosec G304 -- path is user-provided configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ConfigError("read units file").WithCause(err).WithContext("path", path).Build()
	}
	var uf UnitsFile
	if err := yaml.Unmarshal(data, &uf); err != nil {
		return nil, errors.ConfigError("decode units file").WithCause(err).WithContext("path", path).Build()
	}
	return &uf, nil
}

// WriteUnitsFile encodes units in the format UnitsFileScanner reads.
func WriteUnitsFile(path string, units []unit.Unit) error {
	data, err := yaml.Marshal(UnitsFile{Units: units})
	if err != nil {
		return fmt.Errorf("encode units: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.FileSystemError("write units file").WithCause(err).WithContext("path", path).Build()
	}
	return nil
}
