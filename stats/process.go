package stats

import (
	"hordegui/logger"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessUsage is the resource usage of the worker process tree
type ProcessUsage struct {
	Available   bool
	CPUPercent  float64
	RSS         uint64
	SystemUsed  float64 // percent of system memory in use
	SystemTotal uint64
}

// MemoryLabel renders the worker's resident memory
func (u ProcessUsage) MemoryLabel() string {
	if !u.Available {
		return "n/a"
	}
	return humanize.IBytes(u.RSS)
}

// ProcessSampler reads resource usage of a process and its children.
// CPU percentages are measured between consecutive samples, so the sampler
// keeps the gopsutil handles alive across calls.
type ProcessSampler struct {
	mu    sync.Mutex
	procs map[int32]*process.Process
}

// NewProcessSampler creates an empty sampler
func NewProcessSampler() *ProcessSampler {
	return &ProcessSampler{procs: make(map[int32]*process.Process)}
}

func (s *ProcessSampler) handle(pid int32) (*process.Process, error) {
	if p, ok := s.procs[pid]; ok {
		return p, nil
	}
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil, err
	}
	s.procs[pid] = p
	return p, nil
}

// Sample measures pid and its descendants. Failures leave Available false.
func (s *ProcessSampler) Sample(pid int) ProcessUsage {
	s.mu.Lock()
	defer s.mu.Unlock()

	var usage ProcessUsage

	root, err := s.handle(int32(pid))
	if err != nil {
		logger.Log.WithError(err).Debug("Cannot sample worker process")
		s.procs = make(map[int32]*process.Process)
		return usage
	}

	seen := make(map[int32]bool)
	queue := []*process.Process{root}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		if seen[p.Pid] {
			continue
		}
		seen[p.Pid] = true

		if cpu, err := p.Percent(0); err == nil {
			usage.CPUPercent += cpu
		}
		if info, err := p.MemoryInfo(); err == nil {
			usage.RSS += info.RSS
			usage.Available = true
		}

		children, err := p.Children()
		if err != nil {
			continue
		}
		for _, c := range children {
			if h, err := s.handle(c.Pid); err == nil {
				queue = append(queue, h)
			}
		}
	}

	// Forget processes that are gone
	for pid := range s.procs {
		if !seen[pid] {
			delete(s.procs, pid)
		}
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		usage.SystemUsed = vm.UsedPercent
		usage.SystemTotal = vm.Total
	}
	return usage
}
