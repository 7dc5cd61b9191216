package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultWarning  ResultLabel = "warning"
	ResultFatal    ResultLabel = "fatal"
	ResultCanceled ResultLabel = "canceled"
)

// PageResult classifies what happened to a page during rendering.
type PageResult string

const (
	PageWritten     PageResult = "written"
	PageUnchanged   PageResult = "unchanged"
	PagePlaceholder PageResult = "placeholder"
)

// Recorder defines observability hooks for build, stage and page metrics.
// Implementations must be safe for concurrent use by render workers.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveBuildDuration(d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncBuildOutcome(outcome string) // success|warning|failed|canceled|empty
	AddUnits(state string, n int)   // scanned|excluded|dropped
	IncPageResult(result PageResult)
	SetRenderWorkers(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)         {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) IncBuildOutcome(string)                     {}
func (NoopRecorder) AddUnits(string, int)                       {}
func (NoopRecorder) IncPageResult(PageResult)                   {}
func (NoopRecorder) SetRenderWorkers(int)                       {}
