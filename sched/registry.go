package sched

import (
	"sync"

	"rvkernel/config"
	"rvkernel/proc"
)

// Registry bundles the scheduler, its timer queue, and the pid→process
// lookup table used by wait/kill-style syscalls (spec §5 "the SCHEDULER
// with its PID→PCB map", one of the four global single-owner cells).
type Registry struct {
	Sched *Scheduler
	Timer *TimerQueue

	mu    sync.Mutex
	byPid map[int]*proc.Process
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		Sched: New(),
		Timer: NewTimerQueue(),
		byPid: make(map[int]*proc.Process),
	}
}

// Track records p under its pid.
func (r *Registry) Track(p *proc.Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byPid[p.Pid] = p
}

// Untrack removes pid from the table, called once a zombie's exit status has
// been collected by wait.
func (r *Registry) Untrack(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byPid, pid)
}

// Lookup returns the process registered under pid, or nil.
func (r *Registry) Lookup(pid int) *proc.Process {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byPid[pid]
}

// TickMs returns the wall-clock duration, in milliseconds, of one scheduler
// tick at config.TicksPerSec (spec §4.11 timer interrupt "re-arm ... now +
// CLOCK_FREQ / TICKS_PER_SEC").
func TickMs() int64 {
	return 1000 / int64(config.TicksPerSec)
}
