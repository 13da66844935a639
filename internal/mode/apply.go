package mode

import (
	"context"
	"time"

	"codeberg.org/mutker/boostctl/internal/errors"
	"codeberg.org/mutker/boostctl/internal/logger"
	"codeberg.org/mutker/boostctl/internal/shell"
)

// Step is one command of a mode application.
type Step struct {
	Command string
	Result  shell.CommandResult
	Skipped bool
}

// Report aggregates the steps of one mode application.
type Report struct {
	Mode     Mode
	Steps    []Step
	Started  time.Time
	Finished time.Time
}

// Succeeded reports whether every step ran and succeeded.
func (r Report) Succeeded() bool {
	for _, step := range r.Steps {
		if step.Skipped || !step.Result.Succeeded {
			return false
		}
	}
	return true
}

// Failed returns the steps that ran and failed.
func (r Report) Failed() []Step {
	var failed []Step
	for _, step := range r.Steps {
		if !step.Skipped && !step.Result.Succeeded {
			failed = append(failed, step)
		}
	}
	return failed
}

// Skipped counts steps that were not run.
func (r Report) Skipped() int {
	n := 0
	for _, step := range r.Steps {
		if step.Skipped {
			n++
		}
	}
	return n
}

// Err returns nil on success, otherwise an error wrapping the first
// failed step.
func (r Report) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}

	return errors.New().Wrap(ErrStepFailed, failed[0].Result.Err).WithData(struct {
		Mode    string
		Command string
		Failed  int
		Skipped int
	}{
		Mode:    r.Mode.String(),
		Command: failed[0].Command,
		Failed:  len(failed),
		Skipped: r.Skipped(),
	})
}

type ApplierOption func(*Applier)

// WithStopOnFailure skips the remaining steps once one fails.
func WithStopOnFailure(stop bool) ApplierOption {
	return func(a *Applier) {
		a.stopOnFailure = stop
	}
}

func WithApplierLogger(log logger.Logger) ApplierOption {
	return func(a *Applier) {
		a.logger = log
	}
}

// Applier runs mode command lists through an Executor. Application is
// not transactional: steps that already ran are never rolled back.
type Applier struct {
	exec          shell.Executor
	stopOnFailure bool
	logger        logger.Logger
	now           func() time.Time
}

func NewApplier(exec shell.Executor, opts ...ApplierOption) *Applier {
	a := &Applier{
		exec:   exec,
		logger: logger.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Apply executes m's commands strictly in order.
func (a *Applier) Apply(ctx context.Context, m Mode) Report {
	report := Report{Mode: m, Started: a.now()}

	failed := false
	for _, command := range m.Commands() {
		if failed && a.stopOnFailure {
			report.Steps = append(report.Steps, Step{Command: command, Skipped: true})
			continue
		}

		result := a.exec.Execute(ctx, command)
		report.Steps = append(report.Steps, Step{Command: command, Result: result})
		if !result.Succeeded {
			failed = true
		}
	}
	report.Finished = a.now()

	a.logger.Info().
		Str("mode", m.String()).
		Int("steps", len(report.Steps)).
		Int("failed", len(report.Failed())).
		Int("skipped", report.Skipped()).
		Dur("duration", report.Finished.Sub(report.Started)).
		Msg("Mode applied")

	return report
}

// Revert restores the Normal settings regardless of the current mode.
func (a *Applier) Revert(ctx context.Context) Report {
	return a.Apply(ctx, Normal)
}
