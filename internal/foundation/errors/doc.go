// Package errors provides the classified error type used across apitree.
//
// Every failure surfaced by the build pipeline is a ClassifiedError carrying a
// category (config, ambiguity, scan, render, ...), a severity and structured
// context such as the stage, the dotted name or the source path involved.
// Fatal errors abort a build; warnings are collected into the build report.
//
// Example usage:
//
//	err := errors.AmbiguityError("duplicate dotted name").
//		WithContext("dotted_name", "pkg.mod").
//		WithContext("first", "pkg/mod.py").
//		WithContext("second", "pkg/mod/__init__.py").
//		Build()
package errors
