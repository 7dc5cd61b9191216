package build

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/apitree/internal/config"
	"git.home.luguber.info/inful/apitree/internal/foundation/errors"
	"git.home.luguber.info/inful/apitree/internal/git"
	"git.home.luguber.info/inful/apitree/internal/history"
	"git.home.luguber.info/inful/apitree/internal/linkcheck"
	"git.home.luguber.info/inful/apitree/internal/links"
	"git.home.luguber.info/inful/apitree/internal/logfields"
	"git.home.luguber.info/inful/apitree/internal/manifest"
	"git.home.luguber.info/inful/apitree/internal/metrics"
	"git.home.luguber.info/inful/apitree/internal/naming"
	"git.home.luguber.info/inful/apitree/internal/observability"
	"git.home.luguber.info/inful/apitree/internal/render"
	"git.home.luguber.info/inful/apitree/internal/scan"
	"git.home.luguber.info/inful/apitree/internal/tree"
	"git.home.luguber.info/inful/apitree/internal/unit"
)

// Service executes builds for one configuration. It is safe to call Run
// repeatedly (watch mode does); each run starts from a fresh tree.
type Service struct {
	cfg       *config.Config
	scanner   scan.Scanner
	template  render.Template
	ext       string
	recorder  metrics.Recorder
	history   history.Store
	logger    *slog.Logger
	revisions func(root string) string
}

// Option customizes a Service.
type Option func(*Service)

// WithScanner replaces the scanner chosen from configuration.
func WithScanner(s scan.Scanner) Option { return func(svc *Service) { svc.scanner = s } }

// WithTemplate replaces the configured template set. ext is the page
// extension the template produces.
func WithTemplate(t render.Template, ext string) Option {
	return func(svc *Service) {
		svc.template = t
		svc.ext = ext
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option { return func(svc *Service) { svc.recorder = r } }

// WithHistory records every build in store.
func WithHistory(store history.Store) Option { return func(svc *Service) { svc.history = store } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(svc *Service) { svc.logger = l } }

// WithRevisions overrides how {rev} is resolved for a source root.
func WithRevisions(fn func(root string) string) Option {
	return func(svc *Service) { svc.revisions = fn }
}

// New creates a Service for cfg.
func New(cfg *config.Config, opts ...Option) *Service {
	s := &Service{cfg: cfg, recorder: metrics.NoopRecorder{}, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	if s.recorder == nil {
		s.recorder = metrics.NoopRecorder{}
	}
	if s.revisions == nil {
		s.revisions = git.NewRevisionCache(cfg.SourceLinkRev).Revision
	}
	return s
}

// Config returns the configuration the service builds.
func (s *Service) Config() *config.Config { return s.cfg }

// buildState carries everything produced so far through the stages.
type buildState struct {
	svc      *Service
	report   *Report
	observer BuildObserver

	filter   *filter
	scanner  scan.Scanner
	template render.Template
	ext      string

	units  []unit.Unit
	kept   []unit.Unit
	forest *tree.Forest
	table  *links.Table
	pages  []string
}

// Run executes one build and returns its report. The report is returned
// (and persisted) even when the build fails; the error is a *StageError.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	id := uuid.NewString()
	ctx = observability.WithBuildID(ctx, id)
	report := newReport(id)

	obs := observers{logObserver{logger: s.logger}, recorderObserver{recorder: s.recorder}}
	if s.history != nil {
		obs = append(obs, historyObserver{store: s.history, logger: s.logger})
	}
	bs := &buildState{svc: s, report: report, observer: obs}

	observability.Logger(ctx, s.logger).Info("Build started",
		slog.Any("roots", s.cfg.Sources.Roots),
		logfields.Template(s.cfg.Render.Template))

	err := runStages(ctx, bs, s.pipeline())
	report.finish(err)
	s.recorder.AddUnits("scanned", report.Units)
	s.recorder.AddUnits("excluded", report.Excluded)
	s.recorder.AddUnits("dropped", report.Dropped)

	if perr := report.Persist(s.cfg.Output.Directory); perr != nil {
		observability.Logger(ctx, s.logger).Error("Failed to persist build report", logfields.Error(perr))
	}
	obs.OnBuildComplete(ctx, report)
	return report, err
}

func (s *Service) pipeline() []stageDef {
	defs := []stageDef{
		{StageScanning, stageScan},
		{StageFiltering, stageFilter},
		{StageTreeBuilding, stageTree},
		{StageNameResolving, stageNames},
		{StageLinkResolving, stageLinks},
		{StageRendering, stageRender},
	}
	if s.cfg.Render.ShouldVerifyLinks() {
		defs = append(defs, stageDef{StageVerifyLinks, stageVerifyLinks})
	}
	return defs
}

// workers resolves the render pool size.
func (s *Service) workers(jobs int) int {
	n := s.cfg.Render.Workers
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	if jobs > 0 && n > jobs {
		n = jobs
	}
	if n < 1 {
		n = 1
	}
	return n
}

// prepare compiles the ignore rules and loads the template set so malformed
// configuration fails before any unit is processed.
func (s *Service) prepare(bs *buildState) error {
	f, err := newFilter(s.cfg)
	if err != nil {
		return err
	}
	bs.filter = f
	bs.scanner = s.scannerFor()
	if s.template != nil {
		bs.template, bs.ext = s.template, s.ext
		if bs.ext == "" {
			bs.ext = render.FormatMarkdown.Ext()
		}
		return nil
	}
	set, err := render.Load(s.cfg.Render.Template, render.Options{TOCDepth: s.cfg.Render.TOCDepth})
	if err != nil {
		return err
	}
	bs.template, bs.ext = set, set.Ext()
	bs.report.Template = set.Name()
	return nil
}

func (s *Service) scannerFor() scan.Scanner {
	if s.scanner != nil {
		return s.scanner
	}
	if s.cfg.Sources.Scanner == config.ScannerUnits {
		return scan.UnitsFileScanner{}
	}
	return scan.NewPythonScanner(scan.PythonOptions{
		MaxFileSize:    s.cfg.Sources.MaxFileSize,
		IncludePrivate: s.cfg.Sources.IncludePrivate,
		Logger:         s.logger,
	})
}

// Listing is the result of scanning and filtering without building.
type Listing struct {
	Units    []unit.Unit
	Excluded []Exclusion
	Warnings []scan.Warning
}

// List scans and filters the configured roots, returning the surviving
// units sorted by dotted name.
func (s *Service) List(ctx context.Context) (*Listing, error) {
	f, err := newFilter(s.cfg)
	if err != nil {
		return nil, err
	}
	units, warnings, err := scan.Collect(ctx, s.scannerFor(), s.cfg.Sources.Roots)
	if err != nil {
		return nil, err
	}
	kept, excluded, err := f.apply(ctx, units)
	if err != nil {
		return nil, err
	}
	sortUnits(kept)
	return &Listing{Units: kept, Excluded: excluded, Warnings: warnings}, nil
}

func stageScan(ctx context.Context, bs *buildState) error {
	if err := bs.svc.prepare(bs); err != nil {
		return err
	}
	units, warnings, err := scan.Collect(ctx, bs.scanner, bs.svc.cfg.Sources.Roots)
	if err != nil {
		return err
	}
	lg := observability.Logger(ctx, bs.svc.logger)
	for _, w := range warnings {
		lg.Warn("Unit dropped", logfields.Path(w.Path), logfields.Root(w.Root), logfields.Error(w.Err))
		bs.report.AddIssue(StageScanning, w.Classified())
	}
	bs.units = units
	bs.report.Units = len(units)
	bs.report.Dropped = len(warnings)
	lg.Info("Scan complete", logfields.Count(len(units)), slog.Int("dropped", len(warnings)))
	return nil
}

func stageFilter(ctx context.Context, bs *buildState) error {
	kept, excluded, err := bs.filter.apply(ctx, bs.units)
	if err != nil {
		return err
	}
	lg := observability.Logger(ctx, bs.svc.logger)
	for _, ex := range excluded {
		lg.Debug("Unit excluded", logfields.DottedName(ex.Unit.DottedName), logfields.Pattern(ex.Rule.Pattern), logfields.Origin(ex.Rule.Origin))
	}
	bs.kept = kept
	bs.report.Excluded = len(excluded)
	return nil
}

func stageTree(_ context.Context, bs *buildState) error {
	forest, err := tree.Build(bs.kept)
	if err != nil {
		return err
	}
	bs.forest = forest
	return nil
}

func stageNames(_ context.Context, bs *buildState) error {
	if err := naming.Resolve(bs.forest, bs.svc.cfg.Naming); err != nil {
		return err
	}
	bs.report.Nodes = bs.forest.Len()
	bs.report.Aliases = len(bs.forest.Aliases())
	return nil
}

func stageLinks(_ context.Context, bs *buildState) error {
	table, err := links.Resolve(bs.forest, links.Options{
		Ext:        bs.ext,
		Title:      bs.svc.cfg.Render.Title,
		SourceLink: bs.svc.cfg.SourceLink,
		Revision:   bs.svc.revisions,
	})
	if err != nil {
		return err
	}
	for _, w := range table.Warnings() {
		bs.report.AddIssue(StageLinkResolving, w)
	}
	bs.table = table
	return nil
}

func stageRender(ctx context.Context, bs *buildState) error {
	out := bs.svc.cfg.Output.Directory
	prev, err := manifest.Load(out)
	if err != nil {
		observability.Logger(ctx, bs.svc.logger).Warn("Ignoring unreadable previous manifest", logfields.Error(err))
		prev = nil
	}

	if err := bs.renderAll(ctx); err != nil {
		return err
	}

	m := manifest.FromTable(bs.table)
	if err := m.Write(out); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "write manifest").
			Fatal().
			WithContext("path", manifest.FileName).
			Build()
	}
	hash, err := m.Hash()
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "hash manifest").Build()
	}
	bs.report.ManifestHash = hash
	bs.pages = m.Paths()

	if bs.svc.cfg.Output.Prune {
		n, err := prune(out, m.Stale(prev))
		bs.report.Pruned = n
		if err != nil {
			return err
		}
	}
	return nil
}

func stageVerifyLinks(ctx context.Context, bs *buildState) error {
	known := make(map[string]struct{}, len(bs.pages))
	for _, p := range bs.pages {
		known[p] = struct{}{}
	}
	checker := &linkcheck.Checker{Dir: bs.svc.cfg.Output.Directory, Known: known}
	broken, err := checker.Check(ctx, bs.pages)
	if err != nil {
		return err
	}
	lg := observability.Logger(ctx, bs.svc.logger)
	for _, b := range broken {
		lg.Warn("Broken link", logfields.Path(b.Page), slog.String("link", b.Link))
		bs.report.AddIssue(StageVerifyLinks, b.Classified())
	}
	bs.report.BrokenLinks = len(broken)
	return nil
}
