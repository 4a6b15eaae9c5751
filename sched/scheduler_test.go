package sched

import (
	"testing"
	"time"

	"rvkernel/proc"
)

func TestRunTasksExecutesReadyThreadsInFIFOOrder(t *testing.T) {
	s := New()
	var order []int
	threads := []*proc.Thread{{Tid: 1}, {Tid: 2}, {Tid: 3}}
	for _, th := range threads {
		th := th
		s.Spawn(th, func() {
			order = append(order, th.Tid)
		})
	}
	s.RunTasks()

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("expected FIFO execution order [1 2 3], got %v", order)
	}
}

func TestSuspendCurrentAndRunNextReschedulesToTail(t *testing.T) {
	s := New()
	var order []int
	a := &proc.Thread{Tid: 1}
	b := &proc.Thread{Tid: 2}

	s.Spawn(a, func() {
		order = append(order, 100+a.Tid)
		s.SuspendCurrentAndRunNext(a)
		order = append(order, 200+a.Tid)
	})
	s.Spawn(b, func() {
		order = append(order, 100+b.Tid)
	})
	s.RunTasks()

	want := []int{101, 102, 201}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestBlockedThreadOnlyResumesAfterWake(t *testing.T) {
	s := New()
	done := make(chan struct{})
	woke := make(chan struct{})
	th := &proc.Thread{Tid: 1}

	s.Spawn(th, func() {
		s.BlockCurrentAndRunNext(th)
		close(done)
	})

	go func() {
		s.RunTasks()
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("blocked thread resumed without being woken")
	default:
	}

	s.Wake(th)
	go func() { s.RunTasks(); close(woke) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("woken thread never resumed")
	}
	<-woke
}

func TestTimerQueueWakesExpiredSleepersInOrder(t *testing.T) {
	q := NewTimerQueue()
	early := &proc.Thread{Tid: 1}
	late := &proc.Thread{Tid: 2}
	q.Add(late, 200)
	q.Add(early, 100)

	expired := q.CheckTimer(150)
	if len(expired) != 1 || expired[0] != early {
		t.Fatalf("expected only the early sleeper to expire, got %v", expired)
	}

	expired = q.CheckTimer(300)
	if len(expired) != 1 || expired[0] != late {
		t.Fatalf("expected the late sleeper next, got %v", expired)
	}
}
