package build

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"

	"git.home.luguber.info/inful/apitree/internal/foundation/errors"
	"git.home.luguber.info/inful/apitree/internal/metrics"
	"git.home.luguber.info/inful/apitree/internal/observability"
)

// StageName is a strongly-typed identifier for a build state.
type StageName string

// Canonical stage names, in execution order, plus the terminal states.
const (
	StageScanning      StageName = "scanning"
	StageFiltering     StageName = "filtering"
	StageTreeBuilding  StageName = "tree_building"
	StageNameResolving StageName = "name_resolving"
	StageLinkResolving StageName = "link_resolving"
	StageRendering     StageName = "rendering"
	StageVerifyLinks   StageName = "verify_links"
	StageDone          StageName = "done"
	StageFailed        StageName = "failed"
	StageCanceled      StageName = "canceled"
)

// Stage is a discrete unit of work in the build.
type Stage func(ctx context.Context, bs *buildState) error

// StageErrorKind classifies the outcome of a stage.
type StageErrorKind string

const (
	StageErrorFatal    StageErrorKind = "fatal"
	StageErrorCanceled StageErrorKind = "canceled"
)

// StageError is the error a build aborts with. It carries the stage and the
// offending unit or path when known.
type StageError struct {
	Kind  StageErrorKind
	Stage StageName
	Unit  string
	Path  string
	Err   error
}

func (e *StageError) Error() string {
	msg := fmt.Sprintf("%s stage %s", e.Kind, e.Stage)
	if e.Unit != "" {
		msg += fmt.Sprintf(" (unit %s)", e.Unit)
	}
	if e.Path != "" {
		msg += fmt.Sprintf(" (path %s)", e.Path)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StageResult captures the high-level outcome of a stage.
type StageResult string

const (
	StageResultSuccess  StageResult = "success"
	StageResultWarning  StageResult = "warning"
	StageResultFatal    StageResult = "fatal"
	StageResultCanceled StageResult = "canceled"
)

func (r StageResult) label() metrics.ResultLabel {
	switch r {
	case StageResultWarning:
		return metrics.ResultWarning
	case StageResultFatal:
		return metrics.ResultFatal
	case StageResultCanceled:
		return metrics.ResultCanceled
	default:
		return metrics.ResultSuccess
	}
}

type stageDef struct {
	Name StageName
	Fn   Stage
}

// newStageError wraps err for stage, pulling unit/path context out of
// classified errors.
func newStageError(stage StageName, err error) *StageError {
	var se *StageError
	if stdErrors.As(err, &se) {
		return se
	}
	kind := StageErrorFatal
	if isCanceled(err) {
		kind = StageErrorCanceled
	}
	out := &StageError{Kind: kind, Stage: stage, Err: err}
	if ce, ok := errors.AsClassified(err); ok {
		ctx := ce.Context()
		for _, key := range []string{"unit", "dotted_name"} {
			if v, ok := ctx.GetString(key); ok && out.Unit == "" {
				out.Unit = v
			}
		}
		if v, ok := ctx.GetString("path"); ok {
			out.Path = v
		}
	}
	return out
}

func isCanceled(err error) bool {
	return stdErrors.Is(err, context.Canceled) || stdErrors.Is(err, context.DeadlineExceeded) ||
		errors.HasCategory(err, errors.CategoryCanceled)
}

// runStages executes stages strictly in order, recording timing and stopping
// on the first error. Cancellation is checked before every stage.
func runStages(ctx context.Context, bs *buildState, stages []stageDef) error {
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			se := &StageError{Kind: StageErrorCanceled, Stage: st.Name, Err: err}
			bs.report.recordStage(st.Name, 0, StageResultCanceled)
			bs.report.addStageError(se)
			bs.observer.OnStageComplete(ctx, st.Name, 0, StageResultCanceled)
			return se
		}

		stageCtx := observability.WithStage(ctx, string(st.Name))
		bs.observer.OnStageStart(stageCtx, st.Name)
		issuesBefore := len(bs.report.Issues)

		t0 := time.Now()
		err := st.Fn(stageCtx, bs)
		dur := time.Since(t0)

		result := StageResultSuccess
		switch {
		case err != nil:
			se := newStageError(st.Name, err)
			result = StageResultFatal
			if se.Kind == StageErrorCanceled {
				result = StageResultCanceled
			}
			bs.report.recordStage(st.Name, dur, result)
			bs.report.addStageError(se)
			bs.observer.OnStageComplete(stageCtx, st.Name, dur, result)
			return se
		case len(bs.report.Issues) > issuesBefore:
			result = StageResultWarning
		}
		bs.report.recordStage(st.Name, dur, result)
		bs.observer.OnStageComplete(stageCtx, st.Name, dur, result)
	}
	return nil
}
