// Package watch rebuilds documentation when source files change, and
// optionally on a fixed schedule.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/apitree/internal/logfields"
)

// BuildFunc runs one build. reason is "startup", "change" or "schedule".
type BuildFunc func(ctx context.Context, reason string) error

// Options configures a Watcher.
type Options struct {
	// Roots are source directories watched recursively, or files whose
	// directory is watched.
	Roots []string
	// Suffixes select the files whose changes trigger a build.
	Suffixes []string
	// Names are extra base names that trigger a build (e.g. the ignore file).
	Names []string
	// Exclude lists directories whose events are ignored (the output directory).
	Exclude []string
	// Debounce is the quiet window after the last change before building.
	Debounce time.Duration
	// Interval schedules a periodic full rebuild; zero disables it.
	Interval time.Duration
	Logger   *slog.Logger
}

// Watcher serializes builds triggered by file events and the scheduler.
type Watcher struct {
	opts      Options
	build     BuildFunc
	watcher   *fsnotify.Watcher
	scheduler gocron.Scheduler
	trigger   chan string
	files     map[string]struct{}
}

// New creates a watcher. Call Run to start it.
func New(opts Options, build BuildFunc) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &Watcher{
		opts:    opts,
		build:   build,
		watcher: fw,
		trigger: make(chan string, 1),
		files:   make(map[string]struct{}),
	}
	w.opts.Exclude = make([]string, 0, len(opts.Exclude))
	for _, ex := range opts.Exclude {
		if abs, err := filepath.Abs(ex); err == nil {
			ex = abs
		}
		w.opts.Exclude = append(w.opts.Exclude, ex)
	}
	if opts.Interval > 0 {
		s, err := gocron.NewScheduler()
		if err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
		}
		if _, err := s.NewJob(
			gocron.DurationJob(opts.Interval),
			gocron.NewTask(w.Trigger, "schedule"),
			gocron.WithName("periodic-rebuild"),
		); err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("failed to create periodic build job: %w", err)
		}
		w.scheduler = s
	}
	return w, nil
}

// Trigger requests a build. Requests arriving while one is pending coalesce.
func (w *Watcher) Trigger(reason string) {
	select {
	case w.trigger <- reason:
	default:
	}
}

// Run performs an initial build, then rebuilds after changes until ctx is
// canceled. Build errors are logged and do not stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.watcher.Close() }()
	if w.scheduler != nil {
		defer func() { _ = w.scheduler.Shutdown() }()
	}
	for _, root := range w.opts.Roots {
		if err := w.addRoot(root); err != nil {
			return err
		}
	}
	if w.scheduler != nil {
		w.scheduler.Start()
	}
	w.opts.Logger.Info("Watching sources",
		slog.Any("roots", w.opts.Roots),
		slog.Duration("debounce", w.opts.Debounce),
		slog.Duration("interval", w.opts.Interval))

	w.runBuild(ctx, "startup")

	var timer *time.Timer
	var fire <-chan time.Time
	reason := ""
	schedule := func(r string) {
		reason = r
		if timer == nil {
			timer = time.NewTimer(w.opts.Debounce)
		} else {
			timer.Reset(w.opts.Debounce)
		}
		fire = timer.C
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if w.handle(ev) {
				schedule("change")
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.opts.Logger.Error("Watcher error", logfields.Error(err))
		case r := <-w.trigger:
			schedule(r)
		case <-fire:
			fire = nil
			w.runBuild(ctx, reason)
		}
	}
}

func (w *Watcher) runBuild(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}
	w.opts.Logger.Info("Rebuilding", slog.String("reason", reason))
	if err := w.build(ctx, reason); err != nil {
		w.opts.Logger.Error("Build failed", slog.String("reason", reason), logfields.Error(err))
	}
}

// addRoot watches a directory tree, or the directory holding a file root.
func (w *Watcher) addRoot(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve root %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("failed to stat root %s: %w", root, err)
	}
	if !info.IsDir() {
		w.files[abs] = struct{}{}
		return w.watcher.Add(filepath.Dir(abs))
	}
	return w.addTree(abs)
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && (strings.HasPrefix(d.Name(), ".") || w.excluded(p)) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		return nil
	})
}

// handle registers new directories and reports whether ev should trigger a build.
func (w *Watcher) handle(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod || w.excluded(ev.Name) {
		return false
	}
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.opts.Logger.Warn("Failed to watch new directory", logfields.Path(ev.Name), logfields.Error(err))
			}
			return true
		}
	}
	return w.relevant(ev.Name)
}

func (w *Watcher) relevant(name string) bool {
	if _, ok := w.files[name]; ok {
		return true
	}
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") && !w.named(base) {
		return false
	}
	if w.named(base) {
		return true
	}
	for _, suf := range w.opts.Suffixes {
		if strings.HasSuffix(base, suf) {
			return true
		}
	}
	return false
}

func (w *Watcher) named(base string) bool {
	for _, n := range w.opts.Names {
		if base == n {
			return true
		}
	}
	return false
}

func (w *Watcher) excluded(p string) bool {
	for _, ex := range w.opts.Exclude {
		if p == ex || strings.HasPrefix(p, ex+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
