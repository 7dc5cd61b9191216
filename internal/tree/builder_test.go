package tree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/apitree/internal/foundation/errors"
	"git.home.luguber.info/inful/apitree/internal/unit"
)

func units(specs ...string) []unit.Unit {
	out := make([]unit.Unit, 0, len(specs))
	for _, s := range specs {
		kind := unit.Module
		last := unit.Last(s)
		if last != "" && last[0] >= 'A' && last[0] <= 'Z' {
			kind = unit.Class
		}
		out = append(out, unit.Unit{DottedName: s, Kind: kind, SourcePath: s + ".py", Docstring: "Doc for " + s})
	}
	return out
}

func TestBuildSynthesizesIntermediates(t *testing.T) {
	forest, err := Build(units("a", "a.b", "a.b.C", "a.d.E"))
	require.NoError(t, err)

	roots := forest.Roots()
	require.Len(t, roots, 1)
	a := roots[0]
	require.Equal(t, "a", a.DottedName)
	require.False(t, a.Synthetic)

	b := a.Children["b"]
	require.NotNil(t, b)
	require.False(t, b.Synthetic)
	require.Contains(t, b.Children, "C")

	d := a.Children["d"]
	require.NotNil(t, d)
	require.True(t, d.Synthetic)
	require.Equal(t, unit.Package, d.Kind)
	require.Empty(t, d.Docstring)
	require.Contains(t, d.Children, "E")

	require.Equal(t, 5, forest.Len())
}

func TestBuildIsOrderIndependent(t *testing.T) {
	in := units("a.d.E", "a.b.C", "a", "a.b")
	forest, err := Build(in)
	require.NoError(t, err)

	var got []string
	require.NoError(t, forest.Walk(func(n *ModuleNode) error {
		got = append(got, n.DottedName)
		return nil
	}))
	require.Equal(t, []string{"a", "a.b", "a.b.C", "a.d", "a.d.E"}, got)
}

func TestParentChildInvariant(t *testing.T) {
	forest, err := Build(units("x.y.z.W", "x.q", "r"))
	require.NoError(t, err)
	for _, n := range forest.Nodes() {
		if n.Parent == nil {
			continue
		}
		if n.DottedName != n.Parent.DottedName+"."+n.ShortName {
			t.Fatalf("node %s not under parent %s", n.DottedName, n.Parent.DottedName)
		}
		if n.Parent.Children[n.ShortName] != n {
			t.Fatalf("parent %s does not list %s", n.Parent.DottedName, n.DottedName)
		}
	}
}

func TestSyntheticPromotedByPackage(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Add(unit.Unit{DottedName: "p.m", Kind: unit.Module, SourcePath: "p/m.py"}))
	p, ok := b.Forest().Lookup("p")
	require.True(t, ok)
	require.True(t, p.Synthetic)

	require.NoError(t, b.Add(unit.Unit{DottedName: "p", Kind: unit.Package, SourcePath: "p/__init__.py", Docstring: "Package p."}))
	p2, _ := b.Forest().Lookup("p")
	require.Same(t, p, p2)
	require.False(t, p2.Synthetic)
	require.Equal(t, "Package p.", p2.Docstring)
	require.Contains(t, p2.Children, "m")
}

func TestSyntheticKindConflict(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Add(unit.Unit{DottedName: "p.m", Kind: unit.Module, SourcePath: "p/m.py"}))
	err := b.Add(unit.Unit{DottedName: "p", Kind: unit.Module, SourcePath: "p.py"})
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryAmbiguity))
	require.Contains(t, err.Error(), "synthetic package p")
	require.Contains(t, err.Error(), "p.py")
}

func TestDuplicateDottedName(t *testing.T) {
	_, err := Build([]unit.Unit{
		{DottedName: "a.b", Kind: unit.Module, SourcePath: "a/b.py"},
		{DottedName: "a.b", Kind: unit.Package, SourcePath: "a/b/__init__.py"},
	})
	require.Error(t, err)
	ce, ok := errors.AsClassified(err)
	require.True(t, ok)
	require.Equal(t, errors.CategoryAmbiguity, ce.Category())
	require.Contains(t, err.Error(), "a/b.py")
	require.Contains(t, err.Error(), "a/b/__init__.py")
}

func TestInvalidUnitRejected(t *testing.T) {
	_, err := Build([]unit.Unit{{DottedName: "a..b", Kind: unit.Module}})
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestBreadcrumbAndSummary(t *testing.T) {
	forest, err := Build([]unit.Unit{
		{DottedName: "a.b.C", Kind: unit.Class, Docstring: "\n  First line.\n\nMore text."},
	})
	require.NoError(t, err)
	c, ok := forest.Lookup("a.b.C")
	require.True(t, ok)
	require.Equal(t, []string{"a", "b", "C"}, c.Breadcrumb())
	require.Equal(t, "First line.", c.Summary())
	require.Len(t, c.Ancestors(), 2)
}

func TestSetOutputPathOnce(t *testing.T) {
	n := newNode("a", unit.Module)
	require.NoError(t, n.SetOutputPath("a.md"))
	require.NoError(t, n.SetOutputPath("a.md"))
	require.Error(t, n.SetOutputPath("b.md"))
	require.Equal(t, "a.md", n.OutputPath())
}

func TestEmptyForest(t *testing.T) {
	forest, err := Build(nil)
	require.NoError(t, err)
	require.True(t, forest.Empty())
	require.Empty(t, forest.Roots())
}
