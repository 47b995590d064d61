// Package stats keeps the counters shown on the dashboard. Everything is
// derived from the worker's output lines.
package stats

import (
	"fmt"
	"hordegui/models"
	"hordegui/monitor"
	"sync"
	"time"
)

// MaxRecentJobs is the number of completed jobs kept for display
const MaxRecentJobs = 50

// Snapshot is a point-in-time copy of the statistics
type Snapshot struct {
	JobsCompleted int
	KudosEarned   float64
	KudosPerHour  float64
	Uptime        time.Duration
	CurrentJob    string
	ModelsLoaded  int
	Running       bool
	RecentJobs    []*models.JobRecord
	Process       ProcessUsage
}

// Tracker accumulates statistics for one worker session
type Tracker struct {
	mu            sync.RWMutex
	startedAt     time.Time
	running       bool
	jobsCompleted int
	kudosEarned   float64
	currentJob    string
	modelsLoaded  int
	recent        []*models.JobRecord
	sampler       *ProcessSampler
}

// NewTracker creates a tracker seeded with previously saved jobs
func NewTracker(history []*models.JobRecord) *Tracker {
	t := &Tracker{sampler: NewProcessSampler()}
	if len(history) > MaxRecentJobs {
		history = history[:MaxRecentJobs]
	}
	t.recent = append(t.recent, history...)
	return t
}

// Reset starts a new session. The recent jobs list is kept.
func (t *Tracker) Reset(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.startedAt = now
	t.running = true
	t.jobsCompleted = 0
	t.kudosEarned = 0
	t.currentJob = ""
	t.modelsLoaded = 0
}

// Stopped marks the session as ended
func (t *Tracker) Stopped() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	t.currentJob = ""
}

// Observe updates the counters for one classified output line. It returns
// the job record when the event completed a job.
func (t *Tracker) Observe(ev monitor.Event, now time.Time) *models.JobRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Kind {
	case monitor.JobCompleted:
		t.jobsCompleted++
		t.kudosEarned += ev.Kudos
		t.currentJob = ""
		job := models.NewJobRecord(ev.Line, ev.Kudos, now)
		t.recent = append([]*models.JobRecord{job}, t.recent...)
		if len(t.recent) > MaxRecentJobs {
			t.recent = t.recent[:MaxRecentJobs]
		}
		return job
	case monitor.JobStarted:
		t.currentJob = ev.Line
	case monitor.ModelLoading:
		t.modelsLoaded++
	}
	return nil
}

// RecentJobs returns the recent jobs, newest first
func (t *Tracker) RecentJobs() []*models.JobRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]*models.JobRecord(nil), t.recent...)
}

// Snapshot returns the current statistics. pid, when non-zero, is sampled
// for resource usage.
func (t *Tracker) Snapshot(now time.Time, pid int) Snapshot {
	t.mu.RLock()
	snap := Snapshot{
		JobsCompleted: t.jobsCompleted,
		KudosEarned:   t.kudosEarned,
		CurrentJob:    t.currentJob,
		ModelsLoaded:  t.modelsLoaded,
		Running:       t.running,
		RecentJobs:    append([]*models.JobRecord(nil), t.recent...),
	}
	if t.running && !t.startedAt.IsZero() {
		snap.Uptime = now.Sub(t.startedAt)
	}
	t.mu.RUnlock()

	snap.KudosPerHour = KudosPerHour(snap.KudosEarned, snap.Uptime)
	if pid > 0 {
		snap.Process = t.sampler.Sample(pid)
	}
	return snap
}

// KudosPerHour extrapolates kudos earned over uptime to an hourly rate
func KudosPerHour(kudos float64, uptime time.Duration) float64 {
	secs := int64(uptime / time.Second)
	if secs <= 0 {
		return 0
	}
	return kudos / float64(secs) * 3600
}

// FormatUptime renders d as HH:MM:SS; hours are not wrapped at 24
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}
