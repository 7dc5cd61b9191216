package build

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/apitree/internal/history"
	"git.home.luguber.info/inful/apitree/internal/logfields"
	"git.home.luguber.info/inful/apitree/internal/metrics"
	"git.home.luguber.info/inful/apitree/internal/observability"
)

// BuildObserver receives callbacks around stage execution and build lifecycle.
type BuildObserver interface {
	OnStageStart(ctx context.Context, stage StageName)
	OnStageComplete(ctx context.Context, stage StageName, d time.Duration, result StageResult)
	OnBuildComplete(ctx context.Context, report *Report)
}

type observers []BuildObserver

func (o observers) OnStageStart(ctx context.Context, stage StageName) {
	for _, ob := range o {
		ob.OnStageStart(ctx, stage)
	}
}

func (o observers) OnStageComplete(ctx context.Context, stage StageName, d time.Duration, result StageResult) {
	for _, ob := range o {
		ob.OnStageComplete(ctx, stage, d, result)
	}
}

func (o observers) OnBuildComplete(ctx context.Context, report *Report) {
	for _, ob := range o {
		ob.OnBuildComplete(ctx, report)
	}
}

// logObserver writes one debug line per stage and an info line per build.
type logObserver struct{ logger *slog.Logger }

func (l logObserver) OnStageStart(ctx context.Context, _ StageName) {
	observability.Logger(ctx, l.logger).Debug("Stage started")
}

func (l logObserver) OnStageComplete(ctx context.Context, _ StageName, d time.Duration, result StageResult) {
	observability.Logger(ctx, l.logger).Debug("Stage completed",
		logfields.DurationMS(float64(d.Microseconds())/1000),
		logfields.Outcome(string(result)))
}

func (l logObserver) OnBuildComplete(ctx context.Context, r *Report) {
	lg := observability.Logger(ctx, l.logger)
	attrs := []any{
		logfields.Outcome(string(r.Outcome)),
		logfields.Count(r.Nodes),
		slog.Int("written", r.Written),
		slog.Int("unchanged", r.Unchanged),
		slog.Int("issues", len(r.Issues)),
		logfields.DurationMS(float64(r.End.Sub(r.Start).Microseconds()) / 1000),
	}
	switch r.Outcome {
	case OutcomeFailed:
		lg.Error("Build failed", attrs...)
	case OutcomeWarning, OutcomeCanceled, OutcomeEmpty:
		lg.Warn("Build finished", attrs...)
	default:
		lg.Info("Build finished", attrs...)
	}
}

// recorderObserver adapts metrics.Recorder into a BuildObserver.
type recorderObserver struct{ recorder metrics.Recorder }

func (recorderObserver) OnStageStart(context.Context, StageName) {}

func (r recorderObserver) OnStageComplete(_ context.Context, stage StageName, d time.Duration, result StageResult) {
	r.recorder.ObserveStageDuration(string(stage), d)
	r.recorder.IncStageResult(string(stage), result.label())
}

func (r recorderObserver) OnBuildComplete(_ context.Context, report *Report) {
	r.recorder.ObserveBuildDuration(report.End.Sub(report.Start))
	r.recorder.IncBuildOutcome(string(report.Outcome))
}

// historyObserver persists stage events and the build summary.
type historyObserver struct {
	store  history.Store
	logger *slog.Logger
}

func (historyObserver) OnStageStart(context.Context, StageName) {}

func (h historyObserver) OnStageComplete(ctx context.Context, stage StageName, d time.Duration, result StageResult) {
	lc := observability.GetContext(ctx)
	err := h.store.AppendEvent(context.WithoutCancel(ctx), history.StageEvent{
		BuildID:   lc.BuildID,
		Stage:     string(stage),
		Result:    string(result),
		Duration:  d,
		Timestamp: time.Now(),
	})
	if err != nil {
		observability.Logger(ctx, h.logger).Warn("Failed to record stage event", logfields.Error(err))
	}
}

func (h historyObserver) OnBuildComplete(ctx context.Context, r *Report) {
	err := h.store.RecordBuild(context.WithoutCancel(ctx), history.Build{
		ID:           r.BuildID,
		Start:        r.Start,
		End:          r.End,
		Outcome:      string(r.Outcome),
		Units:        r.Units,
		Nodes:        r.Nodes,
		Written:      r.Written,
		Unchanged:    r.Unchanged,
		Placeholders: r.Placeholders,
		Issues:       len(r.Issues),
		ManifestHash: r.ManifestHash,
	})
	if err != nil {
		observability.Logger(ctx, h.logger).Warn("Failed to record build history", logfields.Error(err))
	}
}
