package worker

import (
	"context"
	"errors"
	"fmt"
	"hordegui/logger"
	"hordegui/monitor"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
)

// ErrAlreadyRunning is returned by Start while a worker process is active
var ErrAlreadyRunning = errors.New("worker is already running")

const (
	// DefaultGracePeriod is how long Stop waits before killing the worker
	DefaultGracePeriod = 10 * time.Second

	maxRestarts = 5
	// A run that lasted longer than this resets the restart backoff
	stableRunTime = time.Minute
)

// State is the lifecycle state of the supervised worker
type State int

const (
	Stopped State = iota
	Starting
	Running
	Stopping
	Crashed
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "Not Running"
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Stopping:
		return "Stopping"
	case Crashed:
		return "Crashed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Active reports whether a worker process exists or is about to
func (s State) Active() bool {
	return s == Starting || s == Running || s == Stopping
}

// Status is a snapshot of the supervisor
type Status struct {
	State     State
	PID       int
	StartedAt time.Time
	Restarts  int
	LastError error
}

// CommandFunc builds a fresh, unstarted worker command
type CommandFunc func() (*exec.Cmd, error)

// Supervisor runs the worker process, streams its output and optionally
// restarts it when it fails.
type Supervisor struct {
	newCmd CommandFunc

	// OnLine receives every non-empty output line, stdout and stderr merged.
	OnLine func(line string)
	// OnState receives every status change.
	OnState func(st Status)

	GracePeriod time.Duration

	newBackOff func() backoff.BackOff
	// runs longer than stableRun reset the restart backoff
	stableRun time.Duration

	mu          sync.Mutex
	autoRestart bool
	status      Status
	cmd         *exec.Cmd
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewSupervisor creates a supervisor for the commands built by newCmd
func NewSupervisor(newCmd CommandFunc) *Supervisor {
	return &Supervisor{
		newCmd:      newCmd,
		GracePeriod: DefaultGracePeriod,
		newBackOff:  defaultBackOff,
		stableRun:   stableRunTime,
	}
}

func defaultBackOff() backoff.BackOff {
	expb := backoff.NewExponentialBackOff()
	expb.InitialInterval = time.Second
	expb.MaxInterval = time.Minute
	expb.MaxElapsedTime = 0
	return backoff.WithMaxRetries(expb, maxRestarts)
}

// SetAutoRestart enables restarting the worker after a failed exit
func (s *Supervisor) SetAutoRestart(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoRestart = on
}

func (s *Supervisor) restartEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoRestart
}

// Status returns the current status
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Supervising reports whether a run is in progress. This includes a
// crashed worker waiting to be restarted.
func (s *Supervisor) Supervising() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Start launches the worker. The process is running when Start returns
// without error; it keeps running after ctx is done only until Stop.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.status.State.Active() || s.cancel != nil {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.status = Status{State: Starting}
	st := s.status
	s.mu.Unlock()
	s.notify(st)

	out, err := s.spawn(runCtx)
	if err != nil {
		cancel()
		s.mu.Lock()
		close(s.done)
		s.cancel = nil
		s.status = Status{State: Stopped, LastError: err}
		st := s.status
		s.mu.Unlock()
		s.notify(st)
		return err
	}

	go s.run(runCtx, out)
	return nil
}

// spawn starts one worker process and returns the reader of its output
func (s *Supervisor) spawn(ctx context.Context) (*outputPipe, error) {
	cmd, err := s.newCmd()
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	cmd.WaitDelay = s.GracePeriod
	configureProcess(cmd)

	s.mu.Lock()
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		pw.Close()
		return nil, fmt.Errorf("starting worker: %w", err)
	}
	s.cmd = cmd
	s.status.State = Running
	s.status.PID = cmd.Process.Pid
	s.status.StartedAt = time.Now()
	s.status.LastError = nil
	st := s.status
	s.mu.Unlock()

	logger.Log.WithField("pid", cmd.Process.Pid).Infof("Worker started: %s", strings.Join(cmd.Args, " "))
	s.notify(st)

	return &outputPipe{cmd: cmd, r: pr, w: pw}, nil
}

// run waits for the worker and restarts it while that is wanted
func (s *Supervisor) run(ctx context.Context, out *outputPipe) {
	defer close(s.done)

	b := s.newBackOff()
	b.Reset()

	for {
		err := out.drain(s.OnLine)
		ranFor := time.Since(s.Status().StartedAt)

		if ctx.Err() != nil {
			logger.Log.Info("Worker process ended")
			s.finish(Stopped, nil)
			return
		}
		if err == nil {
			logger.Log.Info("Worker process exited")
			s.finish(Stopped, nil)
			return
		}

		logger.Log.WithError(err).Warn("Worker process failed")
		if !s.restartEnabled() {
			s.finish(Crashed, err)
			return
		}
		s.setCrashed(err)

		if ranFor > s.stableRun {
			b.Reset()
		}

		for {
			d := b.NextBackOff()
			if d == backoff.Stop {
				s.finish(Crashed, fmt.Errorf("giving up after %d restarts: %w", s.Status().Restarts, err))
				return
			}

			logger.Log.Infof("Restarting worker in %s", d)
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				s.finish(Stopped, nil)
				return
			case <-t.C:
			}

			var spawnErr error
			out, spawnErr = s.spawn(ctx)
			if spawnErr == nil {
				s.mu.Lock()
				s.status.Restarts++
				s.mu.Unlock()
				break
			}
			if ctx.Err() != nil {
				s.finish(Stopped, nil)
				return
			}
			err = spawnErr
			s.setCrashed(err)
		}
	}
}

func (s *Supervisor) setCrashed(err error) {
	s.mu.Lock()
	s.cmd = nil
	s.status.State = Crashed
	s.status.PID = 0
	s.status.LastError = err
	st := s.status
	s.mu.Unlock()
	s.notify(st)
}

// finish records the final state of a run
func (s *Supervisor) finish(state State, err error) {
	s.mu.Lock()
	s.cmd = nil
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.status.State = state
	s.status.PID = 0
	s.status.LastError = err
	st := s.status
	s.mu.Unlock()
	s.notify(st)
}

// Stop terminates the worker, killing it if it outlives the grace period.
// Stopping an idle supervisor is a no-op.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return nil
	}
	cancel, cmd, done := s.cancel, s.cmd, s.done
	cancel()
	s.status.State = Stopping
	st := s.status
	s.mu.Unlock()
	s.notify(st)

	var err error
	if cmd != nil {
		logger.Log.WithField("pid", cmd.Process.Pid).Info("Stopping worker")
		err = terminateProcess(cmd)
	}

	t := time.NewTimer(s.GracePeriod)
	defer t.Stop()
	select {
	case <-done:
		return nil
	case <-t.C:
	}

	if cmd != nil {
		logger.Log.Warn("Worker did not exit in time, killing it")
		err = killProcess(cmd)
	}
	<-done
	return err
}

// Wait blocks until the current run has finished
func (s *Supervisor) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *Supervisor) notify(st Status) {
	if s.OnState != nil {
		s.OnState(st)
	}
}

// outputPipe carries the merged output of one worker process
type outputPipe struct {
	cmd *exec.Cmd
	r   *io.PipeReader
	w   *io.PipeWriter
}

// drain delivers output lines until the process exits and returns its
// exit error
func (o *outputPipe) drain(onLine func(string)) error {
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		err := monitor.ReadLines(o.r, func(line string) {
			line = strings.TrimSpace(line)
			if line == "" || onLine == nil {
				return
			}
			onLine(line)
		})
		if err != nil {
			logger.Log.WithError(err).Debug("Error reading worker output")
		}
		// Keep the writer side unblocked if reading stopped early
		io.Copy(io.Discard, o.r)
	}()

	err := o.cmd.Wait()
	o.w.Close()
	<-readDone
	return err
}
