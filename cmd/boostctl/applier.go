package main

import (
	"context"

	"codeberg.org/mutker/boostctl/internal/logger"
	"codeberg.org/mutker/boostctl/internal/metrics"
	"codeberg.org/mutker/boostctl/internal/mode"
)

// recordingApplier records each mode application to the metrics collector.
type recordingApplier struct {
	applier   *mode.Applier
	collector metrics.Collector
	log       logger.Logger
}

func (r *recordingApplier) Apply(ctx context.Context, m mode.Mode) mode.Report {
	report := r.applier.Apply(ctx, m)
	r.record(ctx, report)

	return report
}

func (r *recordingApplier) Revert(ctx context.Context) mode.Report {
	report := r.applier.Revert(ctx)
	r.record(ctx, report)

	return report
}

func (r *recordingApplier) record(ctx context.Context, report mode.Report) {
	change := &metrics.ModeChange{
		Timestamp: report.Started,
		Mode:      report.Mode.String(),
		Steps:     len(report.Steps),
		Failed:    len(report.Failed()),
		Skipped:   report.Skipped(),
		Duration:  report.Finished.Sub(report.Started),
	}
	if err := r.collector.RecordModeChange(ctx, change); err != nil {
		r.log.Error().Err(err).Msg("failed to record mode change")
	}
}
