package shell_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/boostctl/internal/errors"
	"codeberg.org/mutker/boostctl/internal/shell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sh accepts the same `-c <command line>` argument shape as su, so it
// stands in for the elevation helper.
func newShellExecutor(opts ...shell.Option) *shell.PrivilegedExecutor {
	return shell.New(append([]shell.Option{shell.WithHelper("sh")}, opts...)...)
}

func TestExecuteCapturesTrimmedOutput(t *testing.T) {
	e := newShellExecutor()

	result := e.Execute(context.Background(), "printf '2400000\\n\\n'")
	require.True(t, result.Succeeded)
	assert.Equal(t, "2400000", result.Output)
	assert.Equal(t, shell.KindNone, result.Kind)
	assert.Nil(t, result.Err)
}

func TestExecuteCompoundAndRedirection(t *testing.T) {
	target := filepath.Join(t.TempDir(), "scaling_governor")
	e := newShellExecutor()

	result := e.Execute(context.Background(), "echo performance > "+target+"; cat "+target)
	require.True(t, result.Succeeded)
	assert.Equal(t, "performance", result.Output)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "performance\n", string(data))
}

func TestExecuteIgnoresExitStatus(t *testing.T) {
	e := newShellExecutor()

	result := e.Execute(context.Background(), "exit 3")
	assert.True(t, result.Succeeded)
	assert.Empty(t, result.Output)
}

func TestExecuteDiscardsStderr(t *testing.T) {
	e := newShellExecutor()

	result := e.Execute(context.Background(), "echo out; echo err >&2")
	require.True(t, result.Succeeded)
	assert.Equal(t, "out", result.Output)
}

func TestExecuteMissingHelper(t *testing.T) {
	e := shell.New(shell.WithHelper(filepath.Join(t.TempDir(), "su")))

	result := e.Execute(context.Background(), "id")
	assert.False(t, result.Succeeded)
	assert.Equal(t, shell.KindLaunchFailed, result.Kind)
	require.NotNil(t, result.Err)
	assert.Equal(t, shell.ErrLaunchFailed, result.Err.Code())
}

func TestExecuteHelperNotOnPath(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	e := shell.New()

	result := e.Execute(context.Background(), "id")
	assert.False(t, result.Succeeded)
	assert.Equal(t, shell.KindLaunchFailed, result.Kind)
}

func TestExecuteHelperNotExecutable(t *testing.T) {
	helper := filepath.Join(t.TempDir(), "su")
	require.NoError(t, os.WriteFile(helper, []byte("#!/bin/sh\n"), 0o600))
	e := shell.New(shell.WithHelper(helper))

	result := e.Execute(context.Background(), "id")
	assert.False(t, result.Succeeded)
	assert.Equal(t, shell.KindElevationDenied, result.Kind)
	assert.Equal(t, shell.ErrElevationDenied, result.Err.Code())
}

func TestExecuteEmptyCommandLine(t *testing.T) {
	e := newShellExecutor()

	result := e.Execute(context.Background(), "   ")
	assert.False(t, result.Succeeded)
	assert.Equal(t, shell.KindLaunchFailed, result.Kind)
	assert.True(t, errors.HasCode(result.Err, shell.ErrEmptyCommandLine))
}

func TestExecuteCancelledBeforeStart(t *testing.T) {
	e := newShellExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := e.Execute(ctx, "echo never")
	assert.False(t, result.Succeeded)
	assert.Equal(t, shell.KindInterruptedWait, result.Kind)
}

func TestExecuteCancelledDuringWait(t *testing.T) {
	e := newShellExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	result := e.Execute(ctx, "sleep 10")

	assert.False(t, result.Succeeded)
	assert.Equal(t, shell.KindInterruptedWait, result.Kind)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecuteTimeout(t *testing.T) {
	e := newShellExecutor(shell.WithTimeout(50 * time.Millisecond))

	result := e.Execute(context.Background(), "sleep 10")
	assert.False(t, result.Succeeded)
	assert.Equal(t, shell.KindInterruptedWait, result.Kind)
	assert.True(t, errors.Is(result.Err, context.DeadlineExceeded))
}

func TestExecuteNotifiesObservers(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	observer := func(commandLine string, result shell.CommandResult) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, commandLine+"="+result.Output)
	}
	e := newShellExecutor(shell.WithObserver(observer))

	e.Execute(context.Background(), "echo a")
	e.Execute(context.Background(), "echo b")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"echo a=a", "echo b=b"}, seen)
}

func TestKindStrings(t *testing.T) {
	assert.Equal(t, "none", shell.KindNone.String())
	assert.Equal(t, "launch_failed", shell.KindLaunchFailed.String())
	assert.Equal(t, "elevation_denied", shell.KindElevationDenied.String())
	assert.Equal(t, "interrupted_wait", shell.KindInterruptedWait.String())
	assert.Equal(t, errors.ErrorCode(""), shell.KindNone.Code())
}
