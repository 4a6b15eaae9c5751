package proc

import (
	"strconv"

	"github.com/google/pprof/profile"
)

// ExportAccounting snapshots every process reachable from roots into a
// github.com/google/pprof/profile.Profile with two sample types, "user" and
// "sys", both measured in nanoseconds, one Sample per process labeled with
// its pid. This is the hosted simulator's analogue of the teacher's
// Accnt_t.Fetch/To_rusage rusage export, reshaped into a format a standard
// pprof toolchain can already render and diff.
func ExportAccounting(roots []*Process) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "user", Unit: "nanoseconds"},
			{Type: "sys", Unit: "nanoseconds"},
		},
	}
	seen := make(map[int]bool)
	var walk func(proc *Process)
	walk = func(proc *Process) {
		if proc == nil || seen[proc.Pid] {
			return
		}
		seen[proc.Pid] = true
		userns, sysns := proc.Accnt.Snapshot()
		p.Sample = append(p.Sample, &profile.Sample{
			Value: []int64{userns, sysns},
			Label: map[string][]string{"pid": {strconv.Itoa(proc.Pid)}},
		})
		for _, c := range proc.Children {
			walk(c)
		}
	}
	for _, r := range roots {
		walk(r)
	}
	return p
}
