package shell

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"codeberg.org/mutker/boostctl/internal/errors"
	"codeberg.org/mutker/boostctl/internal/logger"
)

const (
	DefaultHelper = "su"

	// waitDelay bounds how long Wait keeps draining pipes held open by
	// grandchildren after the helper itself was killed.
	waitDelay = time.Second
)

// Executor runs a single command line with elevated privileges.
type Executor interface {
	Execute(ctx context.Context, commandLine string) CommandResult
}

// Observer receives every result produced by an Executor.
type Observer func(commandLine string, result CommandResult)

type Option func(*PrivilegedExecutor)

// WithHelper sets the elevation helper binary. It is invoked as
// `helper -c <command line>`.
func WithHelper(helper string) Option {
	return func(e *PrivilegedExecutor) {
		e.helper = helper
	}
}

// WithTimeout bounds each command. Zero leaves commands unbounded.
func WithTimeout(timeout time.Duration) Option {
	return func(e *PrivilegedExecutor) {
		e.timeout = timeout
	}
}

func WithLogger(log logger.Logger) Option {
	return func(e *PrivilegedExecutor) {
		e.logger = log
	}
}

// WithObserver registers an observer called after every command.
func WithObserver(observer Observer) Option {
	return func(e *PrivilegedExecutor) {
		e.observers = append(e.observers, observer)
	}
}

// PrivilegedExecutor spawns the elevation helper for each command.
type PrivilegedExecutor struct {
	helper    string
	timeout   time.Duration
	logger    logger.Logger
	observers []Observer
}

func New(opts ...Option) *PrivilegedExecutor {
	e := &PrivilegedExecutor{
		helper: DefaultHelper,
		logger: logger.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Helper returns the configured elevation helper.
func (e *PrivilegedExecutor) Helper() string {
	return e.helper
}

// Execute runs commandLine through the helper and waits for it to exit.
// The exit status is not inspected; only spawn errors and interruption
// of the wait are reported as failures.
func (e *PrivilegedExecutor) Execute(ctx context.Context, commandLine string) CommandResult {
	result := e.run(ctx, commandLine)

	if result.Succeeded {
		e.logger.Debug().
			Str("command", commandLine).
			Str("output", result.Output).
			Msg("Command executed")
	} else {
		e.logger.ErrorWithCode(result.Err).
			Str("command", commandLine).
			Str("kind", result.Kind.String()).
			Msg("Command failed")
	}

	for _, observe := range e.observers {
		observe(commandLine, result)
	}

	return result
}

func (e *PrivilegedExecutor) run(ctx context.Context, commandLine string) CommandResult {
	if strings.TrimSpace(commandLine) == "" {
		return Failure(KindLaunchFailed, errors.New().New(ErrEmptyCommandLine))
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	if err := ctx.Err(); err != nil {
		return Failure(KindInterruptedWait, err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.helper, "-c", commandLine)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	if err := cmd.Start(); err != nil {
		if errors.Is(err, os.ErrPermission) {
			return Failure(KindElevationDenied, err)
		}

		return Failure(KindLaunchFailed, err)
	}

	err := cmd.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Failure(KindInterruptedWait, ctxErr)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return Failure(KindLaunchFailed, err)
		}

		e.logger.Debug().
			Str("command", commandLine).
			Int("exit_code", exitErr.ExitCode()).
			Msg("Command exited with non-zero status")
	}

	if stderr.Len() > 0 {
		e.logger.Debug().
			Str("command", commandLine).
			Str("stderr", strings.TrimSpace(stderr.String())).
			Msg("Command wrote to stderr")
	}

	return Success(strings.TrimSpace(stdout.String()))
}
