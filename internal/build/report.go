package build

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"git.home.luguber.info/inful/apitree/internal/foundation/errors"
	"git.home.luguber.info/inful/apitree/internal/version"
)

// Report file names inside the output directory.
const (
	ReportJSON = "build-report.json"
	ReportText = "build-report.txt"
)

// Outcome is the final build result.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeWarning  Outcome = "warning"
	OutcomeFailed   Outcome = "failed"
	OutcomeCanceled Outcome = "canceled"
	OutcomeEmpty    Outcome = "empty"
)

// Issue is one non-fatal problem, or the fatal error that ended the build.
type Issue struct {
	Stage    StageName            `json:"stage"`
	Category errors.ErrorCategory `json:"category"`
	Severity errors.ErrorSeverity `json:"severity"`
	Message  string               `json:"message"`
	Unit     string               `json:"unit,omitempty"`
	Path     string               `json:"path,omitempty"`
	Hint     string               `json:"hint,omitempty"`
}

// Report captures what a build did. Render workers add issues and page
// counts concurrently, so mutation goes through its methods.
type Report struct {
	mu sync.Mutex

	SchemaVersion  int                         `json:"schema_version"`
	BuildID        string                      `json:"build_id"`
	Version        string                      `json:"version"`
	Template       string                      `json:"template"`
	Workers        int                         `json:"workers"`
	Start          time.Time                   `json:"start"`
	End            time.Time                   `json:"end"`
	Outcome        Outcome                     `json:"outcome"`
	FinalStage     StageName                   `json:"final_stage"`
	StageDurations map[StageName]time.Duration `json:"stage_durations"`
	StageResults   map[StageName]StageResult   `json:"stage_results"`
	Issues         []Issue                     `json:"issues"`

	Units        int    `json:"units"`
	Dropped      int    `json:"dropped"`
	Excluded     int    `json:"excluded"`
	Nodes        int    `json:"nodes"`
	Aliases      int    `json:"aliases"`
	Written      int    `json:"written"`
	Unchanged    int    `json:"unchanged"`
	Placeholders int    `json:"placeholders"`
	Pruned       int    `json:"pruned"`
	BrokenLinks  int    `json:"broken_links"`
	ManifestHash string `json:"manifest_hash,omitempty"`
}

func newReport(buildID string) *Report {
	return &Report{
		SchemaVersion:  1,
		BuildID:        buildID,
		Version:        version.Version,
		Start:          time.Now(),
		StageDurations: make(map[StageName]time.Duration),
		StageResults:   make(map[StageName]StageResult),
		Issues:         []Issue{},
	}
}

// AddIssue records a non-fatal classified error for stage.
func (r *Report) AddIssue(stage StageName, err error) {
	issue := Issue{Stage: stage, Severity: errors.SeverityWarning, Message: err.Error()}
	if ce, ok := errors.AsClassified(err); ok {
		issue.Category = ce.Category()
		issue.Message = ce.Message()
		if cause := ce.Cause(); cause != nil {
			issue.Message += ": " + cause.Error()
		}
		if ce.Severity() == errors.SeverityFatal {
			issue.Severity = errors.SeverityFatal
		}
		issue.Unit, issue.Path = unitAndPath(ce)
		issue.Hint, _ = ce.Context().GetString("hint")
	}
	r.mu.Lock()
	r.Issues = append(r.Issues, issue)
	r.mu.Unlock()
}

func unitAndPath(ce *errors.ClassifiedError) (string, string) {
	ctx := ce.Context()
	unit, ok := ctx.GetString("unit")
	if !ok {
		unit, _ = ctx.GetString("dotted_name")
	}
	path, _ := ctx.GetString("path")
	return unit, path
}

func (r *Report) addStageError(se *StageError) {
	issue := Issue{
		Stage:    se.Stage,
		Category: errors.GetCategory(se.Err),
		Severity: errors.SeverityFatal,
		Message:  se.Err.Error(),
		Unit:     se.Unit,
		Path:     se.Path,
	}
	if se.Kind == StageErrorCanceled {
		issue.Category = errors.CategoryCanceled
	}
	r.mu.Lock()
	r.Issues = append(r.Issues, issue)
	r.mu.Unlock()
}

func (r *Report) recordStage(stage StageName, d time.Duration, res StageResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StageDurations[stage] = d
	r.StageResults[stage] = res
}

func (r *Report) countPage(written, placeholder bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case placeholder:
		r.Placeholders++
		if written {
			r.Written++
		} else {
			r.Unchanged++
		}
	case written:
		r.Written++
	default:
		r.Unchanged++
	}
}

// IssueCount returns the number of recorded issues.
func (r *Report) IssueCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Issues)
}

// finish stamps the end time and derives the outcome from err.
func (r *Report) finish(err error) {
	r.End = time.Now()
	switch {
	case err != nil && isCanceled(err):
		r.Outcome = OutcomeCanceled
		r.FinalStage = StageCanceled
	case err != nil:
		r.Outcome = OutcomeFailed
		r.FinalStage = StageFailed
	case r.Nodes == 0:
		r.Outcome = OutcomeEmpty
		r.FinalStage = StageDone
	case len(r.Issues) > 0:
		r.Outcome = OutcomeWarning
		r.FinalStage = StageDone
	default:
		r.Outcome = OutcomeSuccess
		r.FinalStage = StageDone
	}
}

// Summary returns a human-readable single-line summary.
func (r *Report) Summary() string {
	dur := r.End.Sub(r.Start)
	return fmt.Sprintf("build=%s outcome=%s units=%d excluded=%d dropped=%d nodes=%d written=%d unchanged=%d placeholders=%d pruned=%d broken_links=%d issues=%d duration=%s",
		r.BuildID, r.Outcome, r.Units, r.Excluded, r.Dropped, r.Nodes, r.Written, r.Unchanged,
		r.Placeholders, r.Pruned, r.BrokenLinks, len(r.Issues), dur.Truncate(time.Millisecond))
}

// Persist writes build-report.json and build-report.txt atomically into dir.
func (r *Report) Persist(dir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("ensure root for report: %w", err)
	}
	jb, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report json: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, ReportJSON), append(jb, '\n')); err != nil {
		return fmt.Errorf("write report json: %w", err)
	}
	lines := r.Summary() + "\n"
	for _, is := range r.Issues {
		lines += fmt.Sprintf("%s [%s/%s] %s", is.Stage, is.Category, is.Severity, is.Message)
		if is.Unit != "" {
			lines += " unit=" + is.Unit
		}
		if is.Path != "" {
			lines += " path=" + is.Path
		}
		if is.Hint != "" {
			lines += " hint=" + strconv.Quote(is.Hint)
		}
		lines += "\n"
	}
	if err := writeAtomic(filepath.Join(dir, ReportText), []byte(lines)); err != nil {
		return fmt.Errorf("write report summary: %w", err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
