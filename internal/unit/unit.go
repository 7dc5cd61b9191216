// Package unit defines the flat, dotted-name-qualified records produced by source scanners.
package unit

import (
	"fmt"
	"strings"
)

// Kind indicates the syntactic kind of a code unit.
type Kind string

const (
	Package   Kind = "package"
	Module    Kind = "module"
	Class     Kind = "class"
	Function  Kind = "function"
	Attribute Kind = "attribute"
)

// Kinds lists every valid kind in display order.
var Kinds = []Kind{Package, Module, Class, Function, Attribute}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case Package, Module, Class, Function, Attribute:
		return true
	}
	return false
}

// ParseKind converts a string (case-insensitive) into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown unit kind %q", s)
	}
	return k, nil
}

// Unit is a single documented code unit. Units are values and are never
// mutated after a scanner emits them.
type Unit struct {
	DottedName string `yaml:"dotted_name" json:"dotted_name"`
	Kind       Kind   `yaml:"kind" json:"kind"`
	Root       string `yaml:"root,omitempty" json:"root,omitempty"`        // source root the unit was found under
	SourcePath string `yaml:"source_path" json:"source_path"`              // POSIX path relative to Root
	Line       int    `yaml:"line,omitempty" json:"line,omitempty"`        // 1-based, 0 when unknown
	Docstring  string `yaml:"docstring,omitempty" json:"docstring,omitempty"`
	Signature  string `yaml:"signature,omitempty" json:"signature,omitempty"`
}

// Segments splits the dotted name into its components.
func (u Unit) Segments() []string {
	return Split(u.DottedName)
}

// Depth is the number of segments in the dotted name.
func (u Unit) Depth() int {
	return len(u.Segments())
}

// Location renders the source location as path[:line].
func (u Unit) Location() string {
	if u.Line > 0 {
		return fmt.Sprintf("%s:%d", u.SourcePath, u.Line)
	}
	return u.SourcePath
}

// Validate checks the invariants every scanner must uphold.
func (u Unit) Validate() error {
	if err := ValidateDottedName(u.DottedName); err != nil {
		return err
	}
	if !u.Kind.Valid() {
		return fmt.Errorf("unit %s: unknown kind %q", u.DottedName, u.Kind)
	}
	return nil
}

// Split splits a dotted name into segments. An empty name has no segments.
func Split(dotted string) []string {
	if dotted == "" {
		return nil
	}
	return strings.Split(dotted, ".")
}

// Join is the inverse of Split.
func Join(segments ...string) string {
	return strings.Join(segments, ".")
}

// Parent returns the dotted name of the enclosing unit, or "" for a root.
func Parent(dotted string) string {
	if i := strings.LastIndexByte(dotted, '.'); i >= 0 {
		return dotted[:i]
	}
	return ""
}

// Last returns the final segment of a dotted name.
func Last(dotted string) string {
	if i := strings.LastIndexByte(dotted, '.'); i >= 0 {
		return dotted[i+1:]
	}
	return dotted
}

// ValidateDottedName rejects empty names and empty segments ("a..b", ".a", "a.").
func ValidateDottedName(dotted string) error {
	if dotted == "" {
		return fmt.Errorf("empty dotted name")
	}
	for _, seg := range Split(dotted) {
		if seg == "" {
			return fmt.Errorf("dotted name %q has an empty segment", dotted)
		}
		if strings.ContainsAny(seg, "/\\ \t\n") {
			return fmt.Errorf("dotted name %q has an invalid segment %q", dotted, seg)
		}
	}
	return nil
}
