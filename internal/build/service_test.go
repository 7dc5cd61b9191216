package build

import (
	"context"
	stdErrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/apitree/internal/config"
	"git.home.luguber.info/inful/apitree/internal/foundation/errors"
	"git.home.luguber.info/inful/apitree/internal/history"
	"git.home.luguber.info/inful/apitree/internal/links"
	"git.home.luguber.info/inful/apitree/internal/manifest"
	"git.home.luguber.info/inful/apitree/internal/metrics"
	"git.home.luguber.info/inful/apitree/internal/render"
	"git.home.luguber.info/inful/apitree/internal/scan"
	"git.home.luguber.info/inful/apitree/internal/tree"
	"git.home.luguber.info/inful/apitree/internal/unit"
)

func scenarioUnits() []unit.Unit {
	return []unit.Unit{
		{DottedName: "a", Kind: unit.Package, Root: "src", SourcePath: "a/__init__.py", Docstring: "Package a."},
		{DottedName: "a.b", Kind: unit.Module, Root: "src", SourcePath: "a/b.py", Docstring: "Module b."},
		{DottedName: "a.b.C", Kind: unit.Class, Root: "src", SourcePath: "a/b.py", Line: 3, Docstring: "Class C."},
		{DottedName: "a.d.E", Kind: unit.Class, Root: "src", SourcePath: "a/d/e.py", Line: 1, Docstring: "Class E."},
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default("src")
	cfg.Output.Directory = t.TempDir()
	cfg.Render.Workers = 2
	return cfg
}

func newTestService(cfg *config.Config, units []unit.Unit, opts ...Option) *Service {
	opts = append([]Option{WithScanner(scan.StaticScanner{Units: units})}, opts...)
	return New(cfg, opts...)
}

func readManifest(t *testing.T, dir string) *manifest.Manifest {
	t.Helper()
	m, err := manifest.Load(dir)
	require.NoError(t, err)
	require.NotNil(t, m)
	return m
}

func TestBuildScenario(t *testing.T) {
	cfg := testConfig(t)
	report, err := newTestService(cfg, scenarioUnits()).Run(t.Context())
	require.NoError(t, err)

	require.Equal(t, OutcomeSuccess, report.Outcome, report.Issues)
	require.Equal(t, StageDone, report.FinalStage)
	require.Equal(t, 4, report.Units)
	require.Equal(t, 5, report.Nodes)
	require.Equal(t, 6, report.Written)
	require.Zero(t, report.Unchanged)
	require.Equal(t, 2, report.Workers)
	require.NotEmpty(t, report.ManifestHash)
	for _, st := range []StageName{StageScanning, StageFiltering, StageTreeBuilding, StageNameResolving, StageLinkResolving, StageRendering, StageVerifyLinks} {
		require.Equal(t, StageResultSuccess, report.StageResults[st], st)
		require.Contains(t, report.StageDurations, st)
	}

	m := readManifest(t, cfg.Output.Directory)
	require.Equal(t, "index.md", m.RootIndex)
	require.Equal(t, map[string]string{
		"a":     "a/index.md",
		"a.b":   "a/b/index.md",
		"a.b.C": "a/b/C.md",
		"a.d.E": "a/d/E.md",
	}, m.Entries)
	require.Equal(t, map[string]string{"a.d": "a/d/index.md"}, m.Synthetic)

	for _, p := range m.Paths() {
		require.FileExists(t, filepath.Join(cfg.Output.Directory, filepath.FromSlash(p)))
	}
	require.FileExists(t, filepath.Join(cfg.Output.Directory, ReportJSON))
	require.FileExists(t, filepath.Join(cfg.Output.Directory, ReportText))
}

func TestBuildIgnoredSubtreeVanishes(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ignore.Patterns = []string{"**/a/d/**"}
	report, err := newTestService(cfg, scenarioUnits()).Run(t.Context())
	require.NoError(t, err)
	require.Equal(t, 1, report.Excluded)
	require.Equal(t, 3, report.Nodes)

	m := readManifest(t, cfg.Output.Directory)
	require.Len(t, m.Entries, 3)
	require.Empty(t, m.Synthetic)
	require.NotContains(t, m.Entries, "a.d")
	require.NotContains(t, m.Entries, "a.d.E")
}

func TestBuildIgnoredPackageKeepsDescendants(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ignore.Patterns = []string{"a/__init__.py"}
	report, err := newTestService(cfg, scenarioUnits()).Run(t.Context())
	require.NoError(t, err)
	require.Equal(t, 1, report.Excluded)

	m := readManifest(t, cfg.Output.Directory)
	require.NotContains(t, m.Entries, "a")
	require.Equal(t, "a/index.md", m.Synthetic["a"])
	require.Equal(t, "a/b/C.md", m.Entries["a.b.C"])
}

func TestBuildRootIgnoreFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".apitreeignore"), []byte("# comment\na/b.py\n"), 0o600))
	cfg := testConfig(t)
	cfg.Sources.Roots = []string{root}
	units := scenarioUnits()
	for i := range units {
		units[i].Root = root
	}
	report, err := newTestService(cfg, units).Run(t.Context())
	require.NoError(t, err)
	require.Equal(t, 2, report.Excluded)

	m := readManifest(t, cfg.Output.Directory)
	require.NotContains(t, m.Entries, "a.b")
	require.Contains(t, m.Entries, "a.d.E")
}

func TestBuildIsIdempotentAndDeterministic(t *testing.T) {
	cfg1 := testConfig(t)
	cfg2 := testConfig(t)
	cfg2.Render.Workers = 1

	_, err := newTestService(cfg1, scenarioUnits()).Run(t.Context())
	require.NoError(t, err)
	_, err = newTestService(cfg2, scenarioUnits()).Run(t.Context())
	require.NoError(t, err)

	m1, err := os.ReadFile(filepath.Join(cfg1.Output.Directory, manifest.FileName))
	require.NoError(t, err)
	m2, err := os.ReadFile(filepath.Join(cfg2.Output.Directory, manifest.FileName))
	require.NoError(t, err)
	require.Equal(t, string(m1), string(m2))

	for _, p := range readManifest(t, cfg1.Output.Directory).Paths() {
		a, err := os.ReadFile(filepath.Join(cfg1.Output.Directory, p))
		require.NoError(t, err)
		b, err := os.ReadFile(filepath.Join(cfg2.Output.Directory, p))
		require.NoError(t, err)
		require.Equal(t, string(a), string(b), p)
	}

	again, err := newTestService(cfg1, scenarioUnits()).Run(t.Context())
	require.NoError(t, err)
	require.Zero(t, again.Written)
	require.Equal(t, 6, again.Unchanged)
}

func TestBuildScanWarningsBecomeIssues(t *testing.T) {
	cfg := testConfig(t)
	svc := New(cfg, WithScanner(scan.StaticScanner{
		Units:    scenarioUnits(),
		Warnings: []scan.Warning{{Root: "src", Path: "a/broken.py", Err: fmt.Errorf("syntax error at line 2")}},
	}))
	report, err := svc.Run(t.Context())
	require.NoError(t, err)
	require.Equal(t, OutcomeWarning, report.Outcome)
	require.Equal(t, 1, report.Dropped)
	require.Equal(t, StageResultWarning, report.StageResults[StageScanning])
	require.Len(t, report.Issues, 1)
	require.Equal(t, errors.CategoryScan, report.Issues[0].Category)
	require.Equal(t, "a/broken.py", report.Issues[0].Path)
}

func TestBuildAmbiguityIsFatal(t *testing.T) {
	cfg := testConfig(t)
	units := append(scenarioUnits(), unit.Unit{DottedName: "a.b", Kind: unit.Module, Root: "lib", SourcePath: "a/b.py"})
	report, err := newTestService(cfg, units).Run(t.Context())
	require.Error(t, err)

	var se *StageError
	require.True(t, stdErrors.As(err, &se))
	require.Equal(t, StageTreeBuilding, se.Stage)
	require.Equal(t, StageErrorFatal, se.Kind)
	require.True(t, errors.HasCategory(err, errors.CategoryAmbiguity))
	require.Equal(t, OutcomeFailed, report.Outcome)
	require.Equal(t, StageFailed, report.FinalStage)
	require.Equal(t, StageResultFatal, report.StageResults[StageTreeBuilding])
	require.NotContains(t, report.StageResults, StageRendering)
	require.FileExists(t, filepath.Join(cfg.Output.Directory, ReportJSON))
	require.NoFileExists(t, filepath.Join(cfg.Output.Directory, manifest.FileName))
}

type countingScanner struct{ calls int }

func (c *countingScanner) Scan(context.Context, []string, func(unit.Unit), func(scan.Warning)) error {
	c.calls++
	return nil
}

func TestBuildMalformedIgnoreFailsBeforeScanning(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ignore.Patterns = []string{"a/[b"}
	sc := &countingScanner{}
	_, err := New(cfg, WithScanner(sc)).Run(t.Context())
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryConfig))
	require.Zero(t, sc.calls)
}

func TestBuildMissingTemplateSet(t *testing.T) {
	cfg := testConfig(t)
	cfg.Render.Template = filepath.Join(t.TempDir(), "nope")
	_, err := newTestService(cfg, scenarioUnits()).Run(t.Context())
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

func TestBuildEmpty(t *testing.T) {
	cfg := testConfig(t)
	report, err := newTestService(cfg, nil).Run(t.Context())
	require.NoError(t, err)
	require.Equal(t, OutcomeEmpty, report.Outcome)
	require.FileExists(t, filepath.Join(cfg.Output.Directory, "index.md"))
	require.Empty(t, readManifest(t, cfg.Output.Directory).Entries)
}

func TestBuildIndexLeavesKeepTheirOwnPages(t *testing.T) {
	cfg := testConfig(t)
	units := []unit.Unit{
		{DottedName: "index", Kind: unit.Module, Root: "src", SourcePath: "index.py", Docstring: "Top-level index module."},
		{DottedName: "pkg", Kind: unit.Package, Root: "src", SourcePath: "pkg/__init__.py"},
		{DottedName: "pkg.Seq", Kind: unit.Class, Root: "src", SourcePath: "pkg/__init__.py", Line: 3, Docstring: "A sequence."},
		{DottedName: "pkg.Seq.index", Kind: unit.Function, Root: "src", SourcePath: "pkg/__init__.py", Line: 8, Docstring: "Find a value."},
	}
	report, err := newTestService(cfg, units).Run(t.Context())
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, report.Outcome, report.Issues)
	require.Equal(t, 5, report.Written)

	m := readManifest(t, cfg.Output.Directory)
	require.Equal(t, map[string]string{
		"index":         "index_.md",
		"pkg":           "pkg/index.md",
		"pkg.Seq":       "pkg/Seq/index.md",
		"pkg.Seq.index": "pkg/Seq/index_.md",
	}, m.Entries)

	page, err := os.ReadFile(filepath.Join(cfg.Output.Directory, "pkg", "Seq", "index_.md"))
	require.NoError(t, err)
	require.Contains(t, string(page), "Find a value.")
	page, err = os.ReadFile(filepath.Join(cfg.Output.Directory, "pkg", "Seq", "index.md"))
	require.NoError(t, err)
	require.Contains(t, string(page), "A sequence.")
	page, err = os.ReadFile(filepath.Join(cfg.Output.Directory, "index_.md"))
	require.NoError(t, err)
	require.Contains(t, string(page), "Top-level index module.")
}

func TestBuildCaseOnlyPathDifferenceWarns(t *testing.T) {
	cfg := testConfig(t)
	units := []unit.Unit{
		{DottedName: "m", Kind: unit.Module, Root: "src", SourcePath: "m.py"},
		{DottedName: "m.Foo", Kind: unit.Class, Root: "src", SourcePath: "m.py", Line: 1},
		{DottedName: "m.foo", Kind: unit.Function, Root: "src", SourcePath: "m.py", Line: 9},
	}
	report, err := newTestService(cfg, units).Run(t.Context())
	require.NoError(t, err)
	require.Equal(t, OutcomeWarning, report.Outcome)
	require.Equal(t, StageResultWarning, report.StageResults[StageLinkResolving])
	require.Len(t, report.Issues, 1)
	is := report.Issues[0]
	require.Equal(t, StageLinkResolving, is.Stage)
	require.Equal(t, errors.CategoryAmbiguity, is.Category)
	require.Equal(t, errors.SeverityWarning, is.Severity)
	require.Equal(t, "m.foo", is.Unit)
	require.Equal(t, "m/foo.md", is.Path)
	require.Contains(t, is.Hint, "case-insensitive")

	summary, err := os.ReadFile(filepath.Join(cfg.Output.Directory, ReportText))
	require.NoError(t, err)
	require.Contains(t, string(summary), "hint=")
}

// failingTemplate wraps a set and fails for one dotted name.
type failingTemplate struct {
	*render.Set
	fail string
}

func (f failingTemplate) Render(n *tree.ModuleNode, children []*tree.ModuleNode, table *links.Table) ([]byte, error) {
	if n.DottedName == f.fail {
		return nil, fmt.Errorf("boom")
	}
	return f.Set.Render(n, children, table)
}

func markdownSet(t *testing.T) *render.Set {
	t.Helper()
	set, err := render.Load("markdown", render.Options{})
	require.NoError(t, err)
	return set
}

func TestBuildRenderFailureWritesPlaceholder(t *testing.T) {
	cfg := testConfig(t)
	tmpl := failingTemplate{Set: markdownSet(t), fail: "a.b.C"}
	report, err := newTestService(cfg, scenarioUnits(), WithTemplate(tmpl, ".md")).Run(t.Context())
	require.NoError(t, err)
	require.Equal(t, OutcomeWarning, report.Outcome)
	require.Equal(t, 1, report.Placeholders)
	require.Equal(t, StageResultWarning, report.StageResults[StageRendering])

	var issue Issue
	for _, is := range report.Issues {
		if is.Stage == StageRendering {
			issue = is
		}
	}
	require.Equal(t, errors.CategoryRender, issue.Category)
	require.Equal(t, "a.b.C", issue.Unit)
	require.Equal(t, "a/b/C.md", issue.Path)

	page, err := os.ReadFile(filepath.Join(cfg.Output.Directory, "a", "b", "C.md"))
	require.NoError(t, err)
	require.Contains(t, string(page), "could not be rendered: boom")
}

func TestBuildRenderFailureFatalWhenConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.Render.FailOnError = true
	tmpl := failingTemplate{Set: markdownSet(t), fail: "a.b.C"}
	report, err := newTestService(cfg, scenarioUnits(), WithTemplate(tmpl, ".md")).Run(t.Context())
	require.Error(t, err)

	var se *StageError
	require.True(t, stdErrors.As(err, &se))
	require.Equal(t, StageRendering, se.Stage)
	require.Equal(t, "a.b.C", se.Unit)
	require.Equal(t, "a/b/C.md", se.Path)
	require.Equal(t, OutcomeFailed, report.Outcome)
	require.NoFileExists(t, filepath.Join(cfg.Output.Directory, manifest.FileName))
}

// cancelingTemplate cancels the build after its first page.
type cancelingTemplate struct {
	*render.Set
	cancel context.CancelFunc
	once   *sync.Once
}

func (c cancelingTemplate) Render(n *tree.ModuleNode, children []*tree.ModuleNode, table *links.Table) ([]byte, error) {
	c.once.Do(c.cancel)
	return c.Set.Render(n, children, table)
}

func TestBuildCanceledDuringRendering(t *testing.T) {
	cfg := testConfig(t)
	cfg.Render.Workers = 1
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	tmpl := cancelingTemplate{Set: markdownSet(t), cancel: cancel, once: &sync.Once{}}

	report, err := newTestService(cfg, scenarioUnits(), WithTemplate(tmpl, ".md")).Run(ctx)
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, OutcomeCanceled, report.Outcome)
	require.Equal(t, StageCanceled, report.FinalStage)
	require.Equal(t, 1, report.Written)
	// The first page in pre-order is kept; the manifest is not written.
	require.FileExists(t, filepath.Join(cfg.Output.Directory, "a", "index.md"))
	require.NoFileExists(t, filepath.Join(cfg.Output.Directory, manifest.FileName))
}

func TestBuildCanceledBeforeStart(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	report, err := newTestService(cfg, scenarioUnits()).Run(ctx)
	require.Error(t, err)
	require.Equal(t, OutcomeCanceled, report.Outcome)
	require.Equal(t, StageResultCanceled, report.StageResults[StageScanning])
}

func TestBuildPrunesStalePages(t *testing.T) {
	cfg := testConfig(t)
	_, err := newTestService(cfg, scenarioUnits()).Run(t.Context())
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(cfg.Output.Directory, "a", "d", "E.md"))

	cfg.Ignore.Patterns = []string{"**/a/d/**"}
	cfg.Output.Prune = true
	report, err := newTestService(cfg, scenarioUnits()).Run(t.Context())
	require.NoError(t, err)
	require.Equal(t, 2, report.Pruned)
	require.NoDirExists(t, filepath.Join(cfg.Output.Directory, "a", "d"))
	require.FileExists(t, filepath.Join(cfg.Output.Directory, "a", "b", "C.md"))
}

func TestBuildReportsBrokenLinks(t *testing.T) {
	cfg := testConfig(t)
	units := scenarioUnits()
	units[1].Docstring = "See [elsewhere](missing.md)."
	report, err := newTestService(cfg, units).Run(t.Context())
	require.NoError(t, err)
	require.Equal(t, 1, report.BrokenLinks)
	require.Equal(t, OutcomeWarning, report.Outcome)
	require.Equal(t, StageResultWarning, report.StageResults[StageVerifyLinks])

	off := false
	cfg.Render.VerifyLinks = &off
	report, err = newTestService(cfg, units).Run(t.Context())
	require.NoError(t, err)
	require.NotContains(t, report.StageResults, StageVerifyLinks)
}

type countingRecorder struct {
	metrics.NoopRecorder
	mu       sync.Mutex
	stages   map[string]metrics.ResultLabel
	pages    map[metrics.PageResult]int
	outcomes []string
	workers  int
}

func (c *countingRecorder) IncStageResult(stage string, r metrics.ResultLabel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stages[stage] = r
}

func (c *countingRecorder) IncPageResult(r metrics.PageResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages[r]++
}

func (c *countingRecorder) IncBuildOutcome(o string) { c.outcomes = append(c.outcomes, o) }
func (c *countingRecorder) SetRenderWorkers(n int)   { c.workers = n }

func TestBuildRecordsMetricsAndHistory(t *testing.T) {
	cfg := testConfig(t)
	rec := &countingRecorder{stages: map[string]metrics.ResultLabel{}, pages: map[metrics.PageResult]int{}}
	store, err := history.Open(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	report, err := newTestService(cfg, scenarioUnits(), WithRecorder(rec), WithHistory(store)).Run(t.Context())
	require.NoError(t, err)

	require.Equal(t, []string{"success"}, rec.outcomes)
	require.Equal(t, 6, rec.pages[metrics.PageWritten])
	require.Equal(t, 2, rec.workers)
	require.Equal(t, metrics.ResultSuccess, rec.stages[string(StageRendering)])

	builds, err := store.Recent(t.Context(), 0)
	require.NoError(t, err)
	require.Len(t, builds, 1)
	require.Equal(t, report.BuildID, builds[0].ID)
	require.Equal(t, "success", builds[0].Outcome)
	require.Equal(t, report.ManifestHash, builds[0].ManifestHash)

	events, err := store.Events(t.Context(), report.BuildID)
	require.NoError(t, err)
	require.Len(t, events, 7)
	require.Equal(t, string(StageScanning), events[0].Stage)
}

func TestListFiltersAndSorts(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ignore.Patterns = []string{"**/a/d/**"}
	units := scenarioUnits()
	units[0], units[3] = units[3], units[0]
	listing, err := newTestService(cfg, units).List(t.Context())
	require.NoError(t, err)
	require.Len(t, listing.Units, 3)
	require.Equal(t, "a", listing.Units[0].DottedName)
	require.Len(t, listing.Excluded, 1)
	require.Equal(t, "**/a/d/**", listing.Excluded[0].Rule.Pattern)
}

func TestReportPersistAndSummary(t *testing.T) {
	r := newReport("b-1")
	r.Nodes = 2
	r.AddIssue(StageRendering, errors.RenderError("template execution failed").WithContext("dotted_name", "x.y").Build())
	r.finish(nil)
	require.Equal(t, OutcomeWarning, r.Outcome)
	require.Contains(t, r.Summary(), "build=b-1 outcome=warning")

	dir := t.TempDir()
	require.NoError(t, r.Persist(dir))
	txt, err := os.ReadFile(filepath.Join(dir, ReportText))
	require.NoError(t, err)
	require.Contains(t, string(txt), "rendering [render/warning] template execution failed unit=x.y")
	require.NoFileExists(t, filepath.Join(dir, ReportJSON+".tmp"))
}

func TestStageErrorFormatting(t *testing.T) {
	se := newStageError(StageLinkResolving, errors.AmbiguityError("output path collision").WithContext("path", "a.md").Build())
	require.Equal(t, StageErrorFatal, se.Kind)
	require.Equal(t, "a.md", se.Path)
	require.Contains(t, se.Error(), "fatal stage link_resolving (path a.md)")

	canceled := newStageError(StageRendering, context.Canceled)
	require.Equal(t, StageErrorCanceled, canceled.Kind)
	require.Same(t, canceled, newStageError(StageDone, canceled))
}

func TestWritePageRejectsEscapes(t *testing.T) {
	_, err := writePage(t.TempDir(), "../x.md", []byte("x"))
	require.Error(t, err)
}

func TestWorkersBounds(t *testing.T) {
	cfg := testConfig(t)
	cfg.Render.Workers = 8
	svc := New(cfg)
	require.Equal(t, 3, svc.workers(3))
	require.Equal(t, 8, svc.workers(0))
	cfg.Render.Workers = 0
	require.GreaterOrEqual(t, svc.workers(100), 1)
}
