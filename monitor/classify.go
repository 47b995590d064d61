package monitor

import (
	"strconv"
	"strings"
)

// Kind classifies a line of worker output
type Kind int

const (
	Info Kind = iota
	JobCompleted
	JobStarted
	Waiting
	Initializing
	Error
	Warning
	Maintenance
	ModelLoading
	ModelDownloaded
	Kudos
)

func (k Kind) String() string {
	switch k {
	case JobCompleted:
		return "job-completed"
	case JobStarted:
		return "job-started"
	case Waiting:
		return "waiting"
	case Initializing:
		return "initializing"
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Maintenance:
		return "maintenance"
	case ModelLoading:
		return "model-loading"
	case ModelDownloaded:
		return "model-downloaded"
	case Kudos:
		return "kudos"
	}
	return "info"
}

// Event is one classified output line
type Event struct {
	Kind  Kind
	Line  string
	Kudos float64 // Only set for JobCompleted lines that report kudos
}

// Classify maps a line of worker output to an Event. The first matching
// rule wins.
func Classify(line string) Event {
	lower := strings.ToLower(line)
	ev := Event{Kind: Info, Line: line}

	switch {
	case strings.Contains(line, "Job completed") || strings.Contains(line, "Kudos earned"):
		ev.Kind = JobCompleted
		ev.Kudos, _ = ParseKudos(line)
	case strings.Contains(line, "Finished generating"):
		ev.Kind = JobCompleted
	case strings.Contains(line, "Processing job"):
		ev.Kind = JobStarted
	case strings.Contains(line, "Waiting for") && strings.Contains(line, "jobs"):
		ev.Kind = Waiting
	case strings.Contains(line, "Starting worker") || strings.Contains(line, "Initializing"):
		ev.Kind = Initializing
	case strings.Contains(lower, "error") || strings.Contains(lower, "exception"):
		ev.Kind = Error
	case strings.Contains(lower, "warning"):
		ev.Kind = Warning
	case strings.Contains(lower, "maintenance mode"):
		ev.Kind = Maintenance
	case strings.Contains(line, "Loading model"):
		ev.Kind = ModelLoading
	case strings.Contains(lower, "downloaded") && strings.Contains(lower, "model"):
		ev.Kind = ModelDownloaded
	case strings.Contains(lower, "kudos"):
		ev.Kind = Kudos
	}

	return ev
}

// ParseKudos extracts the number following "Kudos earned:"
func ParseKudos(line string) (float64, bool) {
	_, rest, ok := strings.Cut(line, "Kudos earned:")
	if !ok {
		return 0, false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return 0, false
	}
	kudos, err := strconv.ParseFloat(strings.TrimRight(fields[0], ",;."), 64)
	if err != nil {
		return 0, false
	}
	return kudos, true
}

// Display returns the line as shown in the log view
func (e Event) Display() string {
	switch e.Kind {
	case Error:
		return "ERROR: " + e.Line
	case Warning:
		return "WARNING: " + e.Line
	case Maintenance:
		return "MAINTENANCE: " + e.Line
	case ModelLoading:
		return "MODEL: " + e.Line
	case ModelDownloaded:
		return "DOWNLOAD: " + e.Line
	case Kudos:
		return "KUDOS: " + e.Line
	case JobCompleted:
		return "DONE: " + e.Line
	}
	return e.Line
}

// StatusText returns a short description for the status bar, or "" when
// the event does not change it
func (e Event) StatusText() string {
	switch e.Kind {
	case Waiting:
		return "Worker is online and waiting for jobs"
	case Initializing:
		return "Worker initialization in progress"
	case JobStarted:
		return "Processing job"
	case Maintenance:
		return "Maintenance mode"
	}
	return ""
}
