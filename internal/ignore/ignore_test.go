package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/apitree/internal/foundation/errors"
)

func TestEmptyEngineExcludesNothing(t *testing.T) {
	e, err := Compile(nil)
	require.NoError(t, err)
	require.Equal(t, 0, e.Len())
	require.False(t, e.Excluded("a/b.py"))

	var nilEngine *Engine
	require.False(t, nilEngine.Excluded("a/b.py"))
}

func TestRecursiveGlob(t *testing.T) {
	e, err := Compile(FromPatterns("config", []string{"**/a/d/**"}))
	require.NoError(t, err)

	cases := map[string]bool{
		"a/d/E.py":           true,
		"src/a/d/E.py":       true,
		"a/d/deeper/F.py":    true,
		"a/b/C.py":           false,
		"a/dd/E.py":          false,
		"a/b.py":             false,
		`a\d\E.py`:           true,
		"./a/d/E.py":         true,
	}
	for p, want := range cases {
		require.Equal(t, want, e.Excluded(p), p)
	}
}

func TestSegmentGlobsAndOrigins(t *testing.T) {
	e, err := Compile([]Rule{
		{Pattern: "# comment", Origin: "config:1"},
		{Pattern: "", Origin: "config:2"},
		{Pattern: "**/test_*.py", Origin: "config:3"},
		{Pattern: "**/_vendor/**", Origin: "config:4"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, e.Len())

	rule, ok := e.Match("pkg/tests/test_mod.py")
	require.True(t, ok)
	require.Equal(t, "config:3", rule.Origin)

	rule, ok = e.Match("pkg/_vendor/six.py")
	require.True(t, ok)
	require.Equal(t, "**/_vendor/**", rule.Pattern)

	require.False(t, e.Excluded("pkg/mod.py"))
}

func TestMalformedPatternFailsFast(t *testing.T) {
	_, err := Compile([]Rule{
		{Pattern: "**/ok/**", Origin: "config:1"},
		{Pattern: "pkg/[abc", Origin: "config:2"},
	})
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryConfig))
	ce, ok := errors.AsClassified(err)
	require.True(t, ok)
	origin, _ := ce.Context().GetString("origin")
	require.Equal(t, "config:2", origin)
}

func TestNegationRejected(t *testing.T) {
	_, err := Compile(FromPatterns("config", []string{"!keep.py"}))
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, ".apitreeignore")
	require.NoError(t, os.WriteFile(name, []byte("# generated\n\n**/migrations/**\n*_pb2.py\n"), 0o600))

	rules, err := LoadFile(name)
	require.NoError(t, err)
	require.Equal(t, []Rule{
		{Pattern: "**/migrations/**", Origin: ".apitreeignore:3"},
		{Pattern: "*_pb2.py", Origin: ".apitreeignore:4"},
	}, rules)

	missing, err := LoadFile(filepath.Join(dir, "nope"))
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestNormalize(t *testing.T) {
	require.Equal(t, "a/b.py", Normalize("./a/b.py"))
	require.Equal(t, "a/b.py", Normalize(`a\b.py`))
	require.Equal(t, "a/b.py", Normalize("a//b.py"))
	require.Equal(t, "", Normalize("."))
}
