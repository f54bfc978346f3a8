// Package cron implements Araliya's event-driven timer subsystem: a
// single owning goroutine holds a deadline-ordered priority queue and
// fires bus notifications with no polling loop. External callers only
// ever reach it through the command channel exposed by Service.
package cron

import (
	"container/heap"
	"time"

	"github.com/araliya/araliya-bot/internal/bus"
)

// queueEntry is one scheduled timer. index is maintained by the heap
// implementation and used to support O(log n) cancellation by id.
type queueEntry struct {
	id           string
	deadline     time.Time
	targetMethod string
	payloadJSON  string
	spec         bus.ScheduleSpec
	index        int
}

// priorityQueue orders entries by ascending deadline. It implements
// container/heap.Interface, the idiomatic Go substitute for the
// original's BTreeMap<Instant, ScheduleEntry>.
type priorityQueue []*queueEntry

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	return pq[i].deadline.Before(pq[j].deadline)
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	e := x.(*queueEntry)
	e.index = len(*pq)
	*pq = append(*pq, e)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*pq = old[:n-1]
	return e
}

// deadlineFor computes the monotonic fire time for a schedule spec:
// Once converts the wall-clock target into an offset from now
// (clamped to "now" if already past), Interval simply adds
// every_secs to now.
func deadlineFor(spec bus.ScheduleSpec, now time.Time) time.Time {
	switch spec.Kind {
	case "once":
		target := time.UnixMilli(spec.AtUnixMs)
		if !target.After(now) {
			return now
		}
		return target
	default: // "interval"
		return now.Add(time.Duration(spec.EverySecs) * time.Second)
	}
}

// insertUnique pushes e onto pq at e.deadline, nudging the deadline
// forward by 1ns at a time until it no longer collides with an
// existing entry, keeping deadlines unique and fire order
// meaningful for entries scheduled in the same instant.
func insertUnique(pq *priorityQueue, used map[int64]bool, e *queueEntry) {
	for used[e.deadline.UnixNano()] {
		e.deadline = e.deadline.Add(time.Nanosecond)
	}
	used[e.deadline.UnixNano()] = true
	heap.Push(pq, e)
}

func releaseDeadline(used map[int64]bool, t time.Time) {
	delete(used, t.UnixNano())
}
