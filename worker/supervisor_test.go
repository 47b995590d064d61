package worker

import (
	"context"
	"errors"
	"hordegui/monitor"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// recorder collects supervisor callbacks
type recorder struct {
	mu     sync.Mutex
	lines  []string
	states []State
}

func (r *recorder) line(l string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, l)
}

func (r *recorder) state(st Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, st.State)
}

func (r *recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func (r *recorder) States() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func scriptSupervisor(t *testing.T, body string) (*Supervisor, *recorder) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("supervisor tests drive bash scripts")
	}
	bash, err := exec.LookPath("bash")
	if err != nil {
		t.Skip("bash not available")
	}

	script := filepath.Join(t.TempDir(), "horde-bridge.sh")
	require.NoError(t, os.WriteFile(script, []byte(body), 0755))

	rec := &recorder{}
	s := NewSupervisor(func() (*exec.Cmd, error) {
		return exec.Command(bash, script), nil
	})
	s.OnLine = rec.line
	s.OnState = rec.state
	s.GracePeriod = 2 * time.Second
	s.newBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(10*time.Millisecond), 2)
	}
	return s, rec
}

func TestSupervisorStreamsOutput(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, rec := scriptSupervisor(t, "echo 'Starting worker'\necho\necho '  Job completed. Kudos earned: 12.5  ' 1>&2\n")
	require.NoError(t, s.Start(context.Background()))
	s.Wait()

	assert.Equal(t, []string{"Starting worker", "Job completed. Kudos earned: 12.5"}, rec.Lines())
	assert.Equal(t, Stopped, s.Status().State)
	assert.NoError(t, s.Status().LastError)

	states := rec.States()
	require.NotEmpty(t, states)
	assert.Equal(t, Starting, states[0])
	assert.Contains(t, states, Running)
	assert.Equal(t, Stopped, states[len(states)-1])
}

func TestSupervisorStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, rec := scriptSupervisor(t, "while true; do echo tick; sleep 0.05; done\n")
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, errors.Is(s.Start(context.Background()), ErrAlreadyRunning))

	require.Eventually(t, func() bool { return len(rec.Lines()) > 0 }, 5*time.Second, 10*time.Millisecond)
	assert.NotZero(t, s.Status().PID)

	require.NoError(t, s.Stop())
	assert.Equal(t, Stopped, s.Status().State)
	assert.Zero(t, s.Status().PID)
	assert.Contains(t, rec.States(), Stopping)

	// Idle stop is a no-op
	assert.NoError(t, s.Stop())
}

func TestSupervisorKillsAfterGracePeriod(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, rec := scriptSupervisor(t, "trap '' TERM\necho ready\nwhile true; do sleep 0.05; done\n")
	s.GracePeriod = 200 * time.Millisecond
	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return len(rec.Lines()) > 0 }, 5*time.Second, 10*time.Millisecond)

	start := time.Now()
	s.Stop()
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, Stopped, s.Status().State)
}

func TestSupervisorCrashWithoutRestart(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, _ := scriptSupervisor(t, "echo boom\nexit 3\n")
	require.NoError(t, s.Start(context.Background()))
	s.Wait()

	st := s.Status()
	assert.Equal(t, Crashed, st.State)
	assert.Error(t, st.LastError)
	assert.Zero(t, st.Restarts)

	// A crashed supervisor can be started again
	require.NoError(t, s.Start(context.Background()))
	s.Wait()
	assert.Equal(t, Crashed, s.Status().State)
}

func TestSupervisorRestartsUntilBackOffGivesUp(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, rec := scriptSupervisor(t, "echo attempt\nexit 1\n")
	s.SetAutoRestart(true)
	require.NoError(t, s.Start(context.Background()))
	s.Wait()

	st := s.Status()
	assert.Equal(t, Crashed, st.State)
	assert.Equal(t, 2, st.Restarts)
	assert.Contains(t, st.LastError.Error(), "giving up")
	assert.Len(t, rec.Lines(), 3)
}

func TestSupervisorCleanExitIsNotRestarted(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, rec := scriptSupervisor(t, "echo done\nexit 0\n")
	s.SetAutoRestart(true)
	require.NoError(t, s.Start(context.Background()))
	s.Wait()

	st := s.Status()
	assert.Equal(t, Stopped, st.State)
	assert.Zero(t, st.Restarts)
	assert.NoError(t, st.LastError)
	assert.Equal(t, []string{"done"}, rec.Lines())
	assert.NotContains(t, rec.States(), Crashed)
	assert.False(t, s.Supervising())
}

func TestSupervisorStableRunResetsBackOff(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, _ := scriptSupervisor(t, "sleep 0.2\nexit 1\n")
	s.newBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(10*time.Millisecond), 1)
	}
	s.stableRun = 50 * time.Millisecond
	s.SetAutoRestart(true)
	require.NoError(t, s.Start(context.Background()))

	// One retry is allowed, but every run outlives stableRun
	require.Eventually(t, func() bool { return s.Status().Restarts >= 3 }, 10*time.Second, 20*time.Millisecond)
	assert.True(t, s.Supervising())

	require.NoError(t, s.Stop())
	assert.Equal(t, Stopped, s.Status().State)
}

func TestSupervisorShortRunsExhaustBackOff(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, _ := scriptSupervisor(t, "exit 1\n")
	s.newBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(10*time.Millisecond), 1)
	}
	s.stableRun = time.Hour
	s.SetAutoRestart(true)
	require.NoError(t, s.Start(context.Background()))
	s.Wait()

	assert.Equal(t, Crashed, s.Status().State)
	assert.Equal(t, 1, s.Status().Restarts)
}

func TestSupervisorKeepsStreamingAfterLongLine(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, rec := scriptSupervisor(t, "echo before\nhead -c 1100000 /dev/zero | tr '\\0' x\necho\necho 'Job completed. Kudos earned: 5'\necho after\n")
	require.NoError(t, s.Start(context.Background()))
	s.Wait()

	lines := rec.Lines()
	require.Len(t, lines, 4)
	assert.Equal(t, "before", lines[0])
	assert.Len(t, lines[1], monitor.MaxLineBytes)
	assert.Equal(t, "Job completed. Kudos earned: 5", lines[2])
	assert.Equal(t, "after", lines[3])
	assert.Equal(t, Stopped, s.Status().State)
}

func TestSupervisorStopDuringRestartWait(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, _ := scriptSupervisor(t, "exit 1\n")
	s.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Hour) }
	s.SetAutoRestart(true)
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return s.Status().State == Crashed }, 5*time.Second, 10*time.Millisecond)
	assert.True(t, s.Supervising())
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyRunning)

	require.NoError(t, s.Stop())
	assert.Equal(t, Stopped, s.Status().State)
	assert.False(t, s.Supervising())
}

func TestSupervisorStartError(t *testing.T) {
	s := NewSupervisor(func() (*exec.Cmd, error) {
		return exec.Command(filepath.Join(t.TempDir(), "does-not-exist")), nil
	})
	err := s.Start(context.Background())
	assert.Error(t, err)
	assert.Equal(t, Stopped, s.Status().State)
	assert.Error(t, s.Status().LastError)
	s.Wait()
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Not Running", Stopped.String())
	assert.Equal(t, "Running", Running.String())
	assert.True(t, Stopping.Active())
	assert.False(t, Crashed.Active())
}
