package cron

import (
	"context"
	"encoding/json"
	"time"

	"github.com/araliya/araliya-bot/internal/bus"
)

// Subsystem adapts Service to the bus.Handler interface under the
// "cron" prefix.
type Subsystem struct {
	svc *Service
}

// NewSubsystem wraps svc for bus registration.
func NewSubsystem(svc *Service) *Subsystem {
	return &Subsystem{svc: svc}
}

func (s *Subsystem) Prefix() string { return "cron" }

func (s *Subsystem) HandleRequest(method string, payload bus.Payload, reply chan<- bus.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch method {
	case "schedule":
		req, ok := payload.(bus.CronSchedule)
		if !ok {
			bus.Reply(reply, nil, bus.BadRequest("expected CronSchedule payload"))
			return
		}
		if req.Spec.Kind == "interval" && req.Spec.EverySecs == 0 {
			bus.Reply(reply, nil, bus.BadRequest("interval every_secs must be > 0"))
			return
		}
		id, err := s.svc.Schedule(ctx, req.TargetMethod, req.PayloadJSON, req.Spec)
		if err != nil {
			bus.Reply(reply, nil, bus.Application(err.Error()))
			return
		}
		bus.Reply(reply, bus.CronScheduleResult{ScheduleID: id}, nil)

	case "cancel":
		req, ok := payload.(bus.CronCancel)
		if !ok {
			bus.Reply(reply, nil, bus.BadRequest("expected CronCancel payload"))
			return
		}
		removed, err := s.svc.Cancel(ctx, req.ScheduleID)
		if err != nil {
			bus.Reply(reply, nil, bus.Application(err.Error()))
			return
		}
		data, _ := json.Marshal(map[string]bool{"removed": removed})
		bus.Reply(reply, bus.JSONResponse{Data: string(data)}, nil)

	case "list":
		entries, err := s.svc.List(ctx)
		if err != nil {
			bus.Reply(reply, nil, bus.Application(err.Error()))
			return
		}
		bus.Reply(reply, bus.CronListResult{Entries: entries}, nil)

	case "health":
		bus.Reply(reply, bus.JSONResponse{Data: `{"status":"ok"}`}, nil)

	case "status", "timer-service/status":
		entries, err := s.svc.List(ctx)
		if err != nil {
			bus.Reply(reply, nil, bus.Application(err.Error()))
			return
		}
		data, _ := json.Marshal(map[string]any{"status": "running", "active_schedules": len(entries)})
		bus.Reply(reply, bus.JSONResponse{Data: string(data)}, nil)

	case "detailed_status":
		entries, err := s.svc.List(ctx)
		if err != nil {
			bus.Reply(reply, nil, bus.Application(err.Error()))
			return
		}
		data, _ := json.Marshal(map[string]any{"status": "running", "active_schedules": len(entries), "entries": entries})
		bus.Reply(reply, bus.JSONResponse{Data: string(data)}, nil)

	default:
		bus.Reply(reply, nil, bus.NotFound("cron/"+method))
	}
}

func (s *Subsystem) HandleNotification(method string, payload bus.Payload) {}

func (s *Subsystem) ComponentInfo() bus.ComponentInfo {
	return bus.Running("cron", "Cron", []bus.ComponentInfo{
		bus.Leaf("timer-service", "Timer Service"),
	})
}
