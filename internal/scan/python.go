package scan

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"git.home.luguber.info/inful/apitree/internal/foundation/errors"
	"git.home.luguber.info/inful/apitree/internal/logfields"
	"git.home.luguber.info/inful/apitree/internal/pathresolve"
	"git.home.luguber.info/inful/apitree/internal/unit"
)

const (
	pySuffix = ".py"
	pyMarker = "__init__.py"

	// DefaultMaxFileSize bounds the source files the Python scanner reads.
	DefaultMaxFileSize int64 = 2 << 20
)

// PythonOptions configures the bundled Python scanner.
type PythonOptions struct {
	MaxFileSize    int64
	IncludePrivate bool
	Skip           SkipFunc
	Logger         *slog.Logger
}

// PythonScanner walks source roots and extracts modules, classes, functions,
// methods and class attributes with tree-sitter.
type PythonScanner struct {
	opts     PythonOptions
	resolver *pathresolve.Resolver
}

// NewPythonScanner creates a scanner with defaults applied.
func NewPythonScanner(opts PythonOptions) *PythonScanner {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &PythonScanner{opts: opts}
}

// Resolver returns the path resolver used by the most recent Scan.
func (s *PythonScanner) Resolver() *pathresolve.Resolver { return s.resolver }

// Scan implements Scanner.
func (s *PythonScanner) Scan(ctx context.Context, roots []string, emit func(unit.Unit), warn func(Warning)) error {
	resolver := pathresolve.New(roots, pathresolve.Options{
		Suffixes: []string{pySuffix},
		Markers:  []string{pyMarker},
	})
	s.resolver = resolver

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	for _, root := range resolver.Roots() {
		if fi, err := os.Stat(root); err != nil || !fi.IsDir() {
			return errors.ConfigError("source root is not a readable directory").
				WithCause(err).
				WithContext("root", root).
				Build()
		}
		lst, err := discover(root, pySuffix, pyMarker, s.opts.Skip)
		if err != nil {
			return errors.FileSystemError("walk source root").WithCause(err).WithContext("root", root).Fatal().Build()
		}
		populated := lst.sourceDirs()
		for _, d := range lst.dirs {
			if d.rel != "" && !d.hasMarker {
				if err := resolver.RegisterBoundary(root, d.rel); err != nil {
					return errors.InternalError("register namespace package").WithCause(err).WithContext("path", d.rel).Build()
				}
				if _, ok := populated[d.rel]; !ok {
					continue
				}
				if err := resolver.ClaimBoundary(root, d.rel); err != nil {
					return err
				}
			}
		}

		for _, f := range lst.files {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.scanFile(ctx, parser, resolver, root, f, emit, warn); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *PythonScanner) scanFile(ctx context.Context, parser *sitter.Parser, resolver *pathresolve.Resolver,
	root string, f sourceFile, emit func(unit.Unit), warn func(Warning),
) error {
	w := Warning{Root: root, Path: f.rel}

	dotted, kind, err := resolver.Resolve(root, f.rel)
	if err != nil {
		w.Err = err
		warn(w)
		return nil
	}
	w.Unit = dotted
	if err := resolver.Claim(dotted, filepath.ToSlash(filepath.Join(root, f.rel))); err != nil {
		return err
	}

	if f.size > s.opts.MaxFileSize {
		w.Err = fmt.Errorf("file size %d exceeds limit %d", f.size, s.opts.MaxFileSize)
		warn(w)
		return nil
	}
	// #nosec G304 -- path comes from walking a configured source root
	src, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(f.rel)))
	if err != nil {
		w.Err = err
		warn(w)
		return nil
	}

	units, err := ExtractPython(ctx, parser, src, Module{
		DottedName:     dotted,
		Kind:           kind,
		Root:           root,
		SourcePath:     f.rel,
		IncludePrivate: s.opts.IncludePrivate,
	})
	if err != nil {
		w.Err = err
		warn(w)
		return nil
	}
	s.opts.Logger.Debug("Scanned source file",
		logfields.Path(f.rel), logfields.DottedName(dotted), logfields.Count(len(units)))
	for _, u := range units {
		emit(u)
	}
	return nil
}

// Module describes the file being extracted.
type Module struct {
	DottedName     string
	Kind           unit.Kind
	Root           string
	SourcePath     string
	IncludePrivate bool
}

// ExtractPython parses src and returns the module unit followed by its
// members in source order. Files with syntax errors yield no units.
func ExtractPython(ctx context.Context, parser *sitter.Parser, src []byte, m Module) ([]unit.Unit, error) {
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	defer tree.Close()

	rootNode := tree.RootNode()
	if rootNode.HasError() {
		if bad := firstError(rootNode); bad != nil {
			return nil, fmt.Errorf("syntax error at line %d", bad.StartPoint().Row+1)
		}
		return nil, fmt.Errorf("syntax error")
	}

	x := &extractor{src: src, mod: m, index: make(map[string]int)}
	x.add(m.DottedName, m.Kind, 1, docstringOf(rootNode, src), "")
	x.body(rootNode, m.DottedName, false)
	return x.units, nil
}

type extractor struct {
	src   []byte
	mod   Module
	units []unit.Unit
	index map[string]int // dotted name -> position in units
}

// add appends a unit. A name defined again in the same scope (property
// setters, overload stubs, annotation then assignment, redefinitions) merges
// into the first definition: its kind and line win, and an empty docstring or
// signature is filled from the later one.
func (x *extractor) add(dotted string, kind unit.Kind, line int, doc, sig string) {
	if i, ok := x.index[dotted]; ok {
		u := &x.units[i]
		if u.Docstring == "" {
			u.Docstring = doc
		}
		if u.Signature == "" {
			u.Signature = sig
		}
		return
	}
	x.index[dotted] = len(x.units)
	x.units = append(x.units, unit.Unit{
		DottedName: dotted,
		Kind:       kind,
		Root:       x.mod.Root,
		SourcePath: x.mod.SourcePath,
		Line:       line,
		Docstring:  doc,
		Signature:  sig,
	})
}

func (x *extractor) hidden(name string) bool {
	return name == "" || (!x.mod.IncludePrivate && isPrivateName(name))
}

func (x *extractor) body(block *sitter.Node, prefix string, inClass bool) {
	stmts := statements(block)
	for i, st := range stmts {
		def := st
		if st.Type() == "decorated_definition" {
			def = st.ChildByFieldName("definition")
			if def == nil {
				continue
			}
		}
		switch def.Type() {
		case "class_definition":
			x.class(def, prefix)
		case "function_definition":
			x.function(def, prefix)
		case "expression_statement":
			if !inClass {
				continue
			}
			var next *sitter.Node
			if i+1 < len(stmts) {
				next = stmts[i+1]
			}
			x.attribute(def, next, prefix)
		}
	}
}

func (x *extractor) class(def *sitter.Node, prefix string) {
	name := nodeText(def.ChildByFieldName("name"), x.src)
	if x.hidden(name) {
		return
	}
	dotted := prefix + "." + name
	body := def.ChildByFieldName("body")
	x.add(dotted, unit.Class, line(def), docstringOf(body, x.src), classSignature(def, x.src))
	if body != nil {
		x.body(body, dotted, true)
	}
}

func (x *extractor) function(def *sitter.Node, prefix string) {
	name := nodeText(def.ChildByFieldName("name"), x.src)
	if x.hidden(name) {
		return
	}
	x.add(prefix+"."+name, unit.Function, line(def), docstringOf(def.ChildByFieldName("body"), x.src), functionSignature(def, x.src))
}

func (x *extractor) attribute(stmt, next *sitter.Node, prefix string) {
	if stmt.NamedChildCount() == 0 {
		return
	}
	assign := stmt.NamedChild(0)
	if assign.Type() != "assignment" {
		return
	}
	left := assign.ChildByFieldName("left")
	if left == nil || left.Type() != "identifier" {
		return
	}
	name := nodeText(left, x.src)
	if x.hidden(name) {
		return
	}
	sig := name
	if typ := assign.ChildByFieldName("type"); typ != nil {
		sig += ": " + collapseWhitespace(nodeText(typ, x.src))
	}
	doc := ""
	if next != nil && isDocstringStatement(next) {
		doc = cleanDocstring(nodeText(next.NamedChild(0), x.src))
	}
	x.add(prefix+"."+name, unit.Attribute, line(assign), doc, sig)
}

// statements returns the named children of a module or block, comments excluded.
func statements(block *sitter.Node) []*sitter.Node {
	if block == nil {
		return nil
	}
	n := int(block.NamedChildCount())
	out := make([]*sitter.Node, 0, n)
	for i := 0; i < n; i++ {
		c := block.NamedChild(i)
		if c.Type() == "comment" {
			continue
		}
		out = append(out, c)
	}
	return out
}

func isDocstringStatement(st *sitter.Node) bool {
	return st.Type() == "expression_statement" && st.NamedChildCount() == 1 && st.NamedChild(0).Type() == "string"
}

func docstringOf(block *sitter.Node, src []byte) string {
	stmts := statements(block)
	if len(stmts) == 0 || !isDocstringStatement(stmts[0]) {
		return ""
	}
	return cleanDocstring(nodeText(stmts[0].NamedChild(0), src))
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.IsError() || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil || !(c.HasError() || c.IsMissing()) {
			continue
		}
		if bad := firstError(c); bad != nil {
			return bad
		}
	}
	return nil
}

func line(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

func nodeText(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	return string(src[n.StartByte():n.EndByte()])
}

func isPrivateName(name string) bool {
	if !strings.HasPrefix(name, "_") {
		return false
	}
	return !(strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__") && len(name) > 4)
}

func classSignature(def *sitter.Node, src []byte) string {
	name := nodeText(def.ChildByFieldName("name"), src)
	if args := def.ChildByFieldName("superclasses"); args != nil {
		return "class " + name + collapseWhitespace(nodeText(args, src))
	}
	return "class " + name
}

func functionSignature(def *sitter.Node, src []byte) string {
	sig := "def " + nodeText(def.ChildByFieldName("name"), src) +
		collapseWhitespace(nodeText(def.ChildByFieldName("parameters"), src))
	if ret := def.ChildByFieldName("return_type"); ret != nil {
		sig += " -> " + collapseWhitespace(nodeText(ret, src))
	}
	if def.ChildCount() > 0 && def.Child(0).Type() == "async" {
		sig = "async " + sig
	}
	return sig
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
