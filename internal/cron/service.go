package cron

import (
	"container/heap"
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/araliya/araliya-bot/internal/bus"
)

// scheduleCmd registers a new timer and replies with its assigned id.
type scheduleCmd struct {
	targetMethod string
	payloadJSON  string
	spec         bus.ScheduleSpec
	reply        chan string
}

// cancelCmd removes a timer by id and replies whether it was found.
type cancelCmd struct {
	scheduleID string
	reply      chan bool
}

// listCmd snapshots all active timers.
type listCmd struct {
	reply chan []bus.CronEntryInfo
}

type command interface{ isCommand() }

func (scheduleCmd) isCommand() {}
func (cancelCmd) isCommand()   {}
func (listCmd) isCommand()     {}

// Service owns the timer queue. Exactly one goroutine (started by
// Run) ever touches the queue; every other caller goes through the
// buffered command channel, matching the "owned by exactly one task"
// rule in the concurrency model.
type Service struct {
	handle bus.Handle
	logger *slog.Logger
	cmds   chan command

	// now is overridable in tests so the queue's fire order can be
	// exercised without sleeping real wall-clock time.
	now func() time.Time
}

// New creates a Service bound to the given bus handle. Call Run in its
// own goroutine to start the timer loop.
func New(handle bus.Handle, logger *slog.Logger) *Service {
	return &Service{
		handle: handle,
		logger: logger,
		cmds:   make(chan command, 64),
		now:    time.Now,
	}
}

// Schedule registers a new timer and returns its id.
func (s *Service) Schedule(ctx context.Context, targetMethod, payloadJSON string, spec bus.ScheduleSpec) (string, error) {
	reply := make(chan string, 1)
	select {
	case s.cmds <- scheduleCmd{targetMethod: targetMethod, payloadJSON: payloadJSON, spec: spec, reply: reply}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case id := <-reply:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Cancel removes a timer by id, returning whether it was found.
func (s *Service) Cancel(ctx context.Context, scheduleID string) (bool, error) {
	reply := make(chan bool, 1)
	select {
	case s.cmds <- cancelCmd{scheduleID: scheduleID, reply: reply}:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case ok := <-reply:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// List snapshots all active timers.
func (s *Service) List(ctx context.Context) ([]bus.CronEntryInfo, error) {
	reply := make(chan []bus.CronEntryInfo, 1)
	select {
	case s.cmds <- listCmd{reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case entries := <-reply:
		return entries, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run is the single owning loop: select between shutdown, inbound
// commands, and the next deadline. It never polls — the timer channel
// is only armed when the queue is non-empty.
func (s *Service) Run(ctx context.Context) {
	pq := &priorityQueue{}
	heap.Init(pq)
	byID := make(map[string]*queueEntry)
	used := make(map[int64]bool)

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	timerArmed := false

	armNext := func() {
		if timerArmed && !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timerArmed = false
		if pq.Len() == 0 {
			return
		}
		d := time.Until((*pq)[0].deadline)
		if d < 0 {
			d = 0
		}
		timer.Reset(d)
		timerArmed = true
	}

	for {
		armNext()
		select {
		case <-ctx.Done():
			return

		case cmd := <-s.cmds:
			switch c := cmd.(type) {
			case scheduleCmd:
				id := uuid.NewString()
				deadline := deadlineFor(c.spec, s.now())
				e := &queueEntry{
					id:           id,
					targetMethod: c.targetMethod,
					payloadJSON:  c.payloadJSON,
					spec:         c.spec,
					deadline:     deadline,
				}
				insertUnique(pq, used, e)
				byID[id] = e
				c.reply <- id

			case cancelCmd:
				e, ok := byID[c.scheduleID]
				if !ok {
					c.reply <- false
					continue
				}
				heap.Remove(pq, e.index)
				releaseDeadline(used, e.deadline)
				delete(byID, c.scheduleID)
				c.reply <- true

			case listCmd:
				now := s.now()
				entries := make([]bus.CronEntryInfo, 0, len(byID))
				for _, e := range byID {
					entries = append(entries, bus.CronEntryInfo{
						ScheduleID:     e.id,
						TargetMethod:   e.targetMethod,
						NextFireUnixMs: instantToUnixMs(e.deadline, now),
						Kind:           e.spec.Kind,
					})
				}
				c.reply <- entries
			}

		case <-timer.C:
			timerArmed = false
			if pq.Len() == 0 {
				continue
			}
			e := heap.Pop(pq).(*queueEntry)
			releaseDeadline(used, e.deadline)
			delete(byID, e.id)

			if err := s.handle.Notify(e.targetMethod, bus.JSONResponse{Data: e.payloadJSON}); err != nil {
				s.logger.Warn("cron notify dropped", "schedule_id", e.id, "method", e.targetMethod, "error", err)
			}

			if e.spec.Kind == "interval" {
				next := &queueEntry{
					id:           e.id,
					targetMethod: e.targetMethod,
					payloadJSON:  e.payloadJSON,
					spec:         e.spec,
					deadline:     e.deadline.Add(time.Duration(e.spec.EverySecs) * time.Second),
				}
				insertUnique(pq, used, next)
				byID[next.id] = next
			}
		}
	}
}

// instantToUnixMs converts a monotonic deadline into a best-effort
// Unix-ms timestamp for display in "cron/list", by measuring the
// deadline's offset from the supplied "now" in both directions.
func instantToUnixMs(deadline, now time.Time) int64 {
	delta := deadline.Sub(now)
	return now.UnixMilli() + delta.Milliseconds()
}
