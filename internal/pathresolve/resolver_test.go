package pathresolve

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/apitree/internal/foundation/errors"
	"git.home.luguber.info/inful/apitree/internal/unit"
)

func TestResolveModulesAndPackages(t *testing.T) {
	root := t.TempDir()
	r := New([]string{root}, DefaultOptions())

	cases := []struct {
		file   string
		dotted string
		kind   unit.Kind
	}{
		{"pkg/__init__.py", "pkg", unit.Package},
		{"pkg/sub/mod.py", "pkg.sub.mod", unit.Module},
		{"pkg/stubs.pyi", "pkg.stubs", unit.Module},
		{filepath.Join(root, "top.py"), "top", unit.Module},
	}
	for _, tc := range cases {
		dotted, kind, err := r.Resolve(root, tc.file)
		require.NoError(t, err, tc.file)
		require.Equal(t, tc.dotted, dotted, tc.file)
		require.Equal(t, tc.kind, kind, tc.file)
	}
}

func TestNamespacePackageBoundary(t *testing.T) {
	root := t.TempDir()
	r := New([]string{root}, DefaultOptions())

	_, _, err := r.Resolve(root, "ns/inner")
	require.Error(t, err, "unregistered directory must not resolve")

	require.NoError(t, r.RegisterBoundary(root, filepath.Join(root, "ns", "inner")))
	require.True(t, r.IsBoundary(root, "ns/inner"))

	dotted, kind, err := r.Resolve(root, "ns/inner")
	require.NoError(t, err)
	require.Equal(t, "ns.inner", dotted)
	require.Equal(t, unit.Package, kind)
}

func TestRejectsPathsOutsideRoot(t *testing.T) {
	root := t.TempDir()
	r := New([]string{root}, DefaultOptions())

	_, _, err := r.Resolve(root, filepath.Join(filepath.Dir(root), "other.py"))
	require.Error(t, err)

	_, _, err = r.Resolve(root, "README.md")
	require.Error(t, err)

	_, _, err = r.Resolve(root, "__init__.py")
	require.Error(t, err)
}

func TestClaimDetectsAmbiguity(t *testing.T) {
	r := New([]string{"src"}, DefaultOptions())

	require.NoError(t, r.Claim("pkg.mod", "src/pkg/mod.py"))
	require.NoError(t, r.Claim("pkg.mod", "src/pkg/mod.py"), "re-claiming by the same source is fine")

	err := r.Claim("pkg.mod", "src/pkg/mod/__init__.py")
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryAmbiguity))
	ce, _ := errors.AsClassified(err)
	first, _ := ce.Context().GetString("first")
	second, _ := ce.Context().GetString("second")
	require.Equal(t, "src/pkg/mod.py", first)
	require.Equal(t, "src/pkg/mod/__init__.py", second)

	require.Equal(t, []string{"pkg.mod"}, r.Claims())
}

func TestClaimBoundaryConflictsWithModule(t *testing.T) {
	root := t.TempDir()
	r := New([]string{root}, DefaultOptions())
	require.Error(t, r.ClaimBoundary(root, "a/b"), "unregistered directory")

	require.NoError(t, r.RegisterBoundary(root, "a/b"))
	require.NoError(t, r.ClaimBoundary(root, "a/b"))

	err := r.Claim("a.b", filepath.ToSlash(filepath.Join(root, "a/b.py")))
	require.True(t, errors.HasCategory(err, errors.CategoryAmbiguity))
	require.Contains(t, err.Error(), "a/b/")
	require.Contains(t, err.Error(), "a/b.py")
}

func TestClaimBoundaryAcrossRoots(t *testing.T) {
	one, two := t.TempDir(), t.TempDir()
	r := New([]string{one, two}, DefaultOptions())
	require.NoError(t, r.RegisterBoundary(one, "ns"))
	require.NoError(t, r.RegisterBoundary(two, "ns"))
	require.NoError(t, r.ClaimBoundary(one, "ns"))
	require.NoError(t, r.ClaimBoundary(two, "ns"))
	require.Equal(t, []string{"ns"}, r.Claims())
}

func TestRootForPrefersLongest(t *testing.T) {
	base := t.TempDir()
	outer := base
	inner := filepath.Join(base, "lib")
	r := New([]string{outer, inner}, DefaultOptions())

	root, ok := r.RootFor(filepath.Join(inner, "pkg", "mod.py"))
	require.True(t, ok)
	require.Equal(t, inner, root)
}
