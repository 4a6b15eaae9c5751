package proc

import (
	"sync"
	"sync/atomic"
	"time"
)

// Accnt accumulates per-process accounting information (user/sys
// nanoseconds), grounded on the teacher's accnt.Accnt_t. The embedded mutex
// lets Snapshot take a consistent view while Utadd/Systadd update lock-free.
type Accnt struct {
	Userns int64
	Sysns  int64
	mu     sync.Mutex
}

/// Utadd adds delta nanoseconds to the user-time counter.
func (a *Accnt) Utadd(delta int64) {
	atomic.AddInt64(&a.Userns, delta)
}

/// Systadd adds delta nanoseconds to the system-time counter.
func (a *Accnt) Systadd(delta int64) {
	atomic.AddInt64(&a.Sysns, delta)
}

/// Now returns the current time in nanoseconds since the Unix epoch.
func (a *Accnt) Now() int64 {
	return time.Now().UnixNano()
}

// Add merges another Accnt's totals into this one, taking the lock so
// concurrent Snapshot calls see a consistent sum (spec §4.10 exit folding a
// departing thread's usage into its process).
func (a *Accnt) Add(n *Accnt) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Userns += atomic.LoadInt64(&n.Userns)
	a.Sysns += atomic.LoadInt64(&n.Sysns)
}

// Snapshot returns a consistent (userns, sysns) pair.
func (a *Accnt) Snapshot() (userns, sysns int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Userns, a.Sysns
}
