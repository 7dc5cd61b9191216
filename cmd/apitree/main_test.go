package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/apitree/cmd/apitree/commands"
	"git.home.luguber.info/inful/apitree/internal/foundation/errors"
	"git.home.luguber.info/inful/apitree/internal/manifest"
)

const unitsYAML = `units:
  - dotted_name: shop
    kind: package
    source_path: shop/__init__.py
    docstring: Shop package.
  - dotted_name: shop.cart
    kind: module
    source_path: shop/cart.py
  - dotted_name: shop.cart.Cart
    kind: class
    source_path: shop/cart.py
    line: 3
    docstring: A basket of items.
  - dotted_name: shop.tests
    kind: package
    source_path: shop/tests/__init__.py
`

func writeProject(t *testing.T) (cfgPath, outDir string) {
	t.Helper()
	dir := t.TempDir()
	units := filepath.Join(dir, "units.yaml")
	require.NoError(t, os.WriteFile(units, []byte(unitsYAML), 0o600))
	outDir = filepath.Join(dir, "site")
	cfg := fmt.Sprintf(`sources:
  roots: [%q]
  scanner: units
ignore:
  patterns: ["**/tests/**"]
output:
  directory: %q
history:
  enabled: true
  path: %q
`, units, outDir, filepath.Join(dir, "state", "history.db"))
	cfgPath = filepath.Join(dir, "apitree.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))
	return cfgPath, outDir
}

func TestInitWritesConfigOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apitree.yaml")
	var out bytes.Buffer

	_, err := run(t.Context(), []string{"-c", path, "init"}, &out)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Contains(t, out.String(), "Wrote "+path)

	_, err = run(t.Context(), []string{"-c", path, "init"}, &out)
	require.True(t, errors.HasCategory(err, errors.CategoryConfig))

	_, err = run(t.Context(), []string{"-c", path, "init", "--force"}, &out)
	require.NoError(t, err)
}

func TestBuildScanAndHistory(t *testing.T) {
	cfgPath, outDir := writeProject(t)
	metricsFile := filepath.Join(t.TempDir(), "apitree.prom")
	var out bytes.Buffer

	_, err := run(t.Context(), []string{"-c", cfgPath, "build", "--metrics-file", metricsFile}, &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "outcome=success")

	m, err := manifest.Load(outDir)
	require.NoError(t, err)
	require.NotNil(t, m)
	require.NotEmpty(t, m.Entries)
	for dotted := range m.Entries {
		require.NotContains(t, dotted, "tests")
	}

	metrics, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	require.Contains(t, string(metrics), "apitree_build_outcomes_total")

	out.Reset()
	_, err = run(t.Context(), []string{"-c", cfgPath, "scan", "--excluded"}, &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "shop.cart.Cart")
	require.Contains(t, out.String(), "shop/cart.py:3")
	require.Contains(t, out.String(), "excluded by **/tests/**")

	out.Reset()
	_, err = run(t.Context(), []string{"-c", cfgPath, "history"}, &out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[1], "success")
	buildID := strings.Fields(lines[1])[0]

	out.Reset()
	_, err = run(t.Context(), []string{"-c", cfgPath, "history", "--events", buildID}, &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "rendering")
}

func TestBuildFlagOverrides(t *testing.T) {
	cfgPath, _ := writeProject(t)
	alt := filepath.Join(t.TempDir(), "html")
	var out bytes.Buffer

	_, err := run(t.Context(), []string{"-c", cfgPath, "build", "-o", alt, "-t", "html", "-w", "2"}, &out)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(alt, manifest.FileName))
	require.FileExists(t, filepath.Join(alt, "index.html"))
}

func TestHistoryDisabled(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "apitree.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("sources:\n  roots: [src]\n"), 0o600))

	_, err := run(t.Context(), []string{"-c", cfgPath, "history"}, &bytes.Buffer{})
	require.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

func TestMissingConfigExitCode(t *testing.T) {
	_, err := run(t.Context(), []string{"-c", filepath.Join(t.TempDir(), "none.yaml"), "build"}, &bytes.Buffer{})
	require.Equal(t, 7, errors.NewCLIErrorAdapter(false, nil).ExitCodeFor(commands.Classify(err)))
}

func TestInvalidArguments(t *testing.T) {
	_, err := run(t.Context(), []string{"build", "--no-such-flag"}, &bytes.Buffer{})
	require.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestClassifyCancellation(t *testing.T) {
	err := commands.Classify(fmt.Errorf("stage: %w", context.Canceled))
	require.True(t, errors.HasCategory(err, errors.CategoryCanceled))
	require.Equal(t, 130, errors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
	require.NoError(t, commands.Classify(nil))
}
