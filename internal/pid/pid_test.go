package pid_test

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"codeberg.org/mutker/boostctl/internal/errors"
	"codeberg.org/mutker/boostctl/internal/pid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRemove(t *testing.T) {
	f := pid.New(t.TempDir(), pid.DefaultName)

	require.NoError(t, f.Write())
	data, err := os.ReadFile(f.Path())
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	// Rewriting our own PID is allowed.
	require.NoError(t, f.Write())

	require.NoError(t, f.Remove())
	_, err = os.Stat(f.Path())
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, f.Remove())
}

func TestWriteAlreadyRunning(t *testing.T) {
	f := pid.New(t.TempDir(), pid.DefaultName)
	// The parent process is alive for the duration of the test.
	require.NoError(t, os.WriteFile(f.Path(), []byte(strconv.Itoa(os.Getppid())), 0o600))

	err := f.Write()
	require.Error(t, err)
	assert.Equal(t, errors.ErrAlreadyRunning, errors.CodeOf(err))
}

func TestWriteReplacesStaleFile(t *testing.T) {
	f := pid.New(t.TempDir(), pid.DefaultName)
	require.NoError(t, os.WriteFile(f.Path(), []byte("not-a-pid"), 0o600))

	require.NoError(t, f.Write())
	data, err := os.ReadFile(f.Path())
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))
}

func TestDefaultDir(t *testing.T) {
	f := pid.New("", "x.pid")
	assert.Equal(t, filepath.Clean(os.TempDir()), filepath.Dir(f.Path()))
}
