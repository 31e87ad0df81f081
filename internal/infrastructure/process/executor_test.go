//go:build !windows

package process

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRun_ZeroExit_ReturnsZero tests the plain success path
func TestRun_ZeroExit_ReturnsZero(t *testing.T) {
	var out bytes.Buffer
	code, err := Run(context.Background(), "sh", []string{"-c", "echo ok"}, RunOptions{Stdout: &out})

	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "ok\n", out.String())
}

// TestRun_NonZeroExit_IsNotAnError tests exit-code propagation
func TestRun_NonZeroExit_IsNotAnError(t *testing.T) {
	code, err := Run(context.Background(), "sh", []string{"-c", "exit 7"}, RunOptions{})

	require.NoError(t, err)
	assert.Equal(t, 7, code)
}

// TestRun_MissingExecutable_FailsWithNotFound tests the not-found classification
func TestRun_MissingExecutable_FailsWithNotFound(t *testing.T) {
	_, err := Run(context.Background(), "definitely-not-a-real-binary-xyz", nil, RunOptions{})

	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

// TestIsNotFound_OtherErrors_NotClassified tests that unrelated failures stay distinct
func TestIsNotFound_OtherErrors_NotClassified(t *testing.T) {
	assert.False(t, IsNotFound(context.Canceled))
	assert.False(t, IsNotFound(nil))
}

// TestStartDetached_WritesLogAndReportsLivePid tests the detached spawn
func TestStartDetached_WritesLogAndReportsLivePid(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "child.log")

	pid, err := StartDetached("sh", []string{"-c", "echo started; sleep 5"}, nil, logPath)
	require.NoError(t, err)
	require.Positive(t, pid)
	defer Kill(pid)

	assert.True(t, Alive(pid))

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(logPath)
		return err == nil && bytes.Contains(data, []byte("started"))
	}, 3*time.Second, 50*time.Millisecond, "child output should land in the log file")
}

// TestAlive_ExitedProcess_ReportsFalse tests liveness after exit
func TestAlive_ExitedProcess_ReportsFalse(t *testing.T) {
	cmd := exec.Command("sh", "-c", "exit 0")
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid
	require.NoError(t, cmd.Wait())

	assert.False(t, Alive(pid))
	assert.False(t, Alive(0))
	assert.False(t, Alive(-1))
}

// TestTerminate_ThenIsGone_OnDeadProcess tests signal error classification
func TestTerminate_ThenIsGone_OnDeadProcess(t *testing.T) {
	cmd := exec.Command("sleep", "10")
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid

	require.NoError(t, Terminate(pid))
	// Reap so the pid leaves the process table instead of lingering as a
	// zombie, which would still answer signals.
	cmd.Wait()

	err := Terminate(pid)
	if err != nil {
		assert.True(t, IsGone(err))
	}
}
